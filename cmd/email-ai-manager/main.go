package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skycomm/email-ai-manager/internal/classifier"
	"github.com/Skycomm/email-ai-manager/internal/config"
	"github.com/Skycomm/email-ai-manager/internal/coordinator"
	"github.com/Skycomm/email-ai-manager/internal/drafting"
	"github.com/Skycomm/email-ai-manager/internal/gateway"
	"github.com/Skycomm/email-ai-manager/internal/handlers"
	"github.com/Skycomm/email-ai-manager/internal/metrics"
	"github.com/Skycomm/email-ai-manager/internal/notify"
	"github.com/Skycomm/email-ai-manager/internal/repository"
	"github.com/Skycomm/email-ai-manager/internal/scheduler"
)

func main() {
	// Configure logging
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Email AI Manager")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	// Initialize database
	store, err := initStore(cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize metrics
	m := metrics.NewMetrics()

	ctx := context.Background()

	// Initialize mailbox gateway
	var mailbox gateway.Mailbox
	if cfg.Mailbox.UseIMAP {
		mailbox, err = gateway.NewIMAPMailbox(gateway.IMAPOptions{
			Host:     cfg.Mailbox.IMAPHost,
			Port:     cfg.Mailbox.IMAPPort,
			Username: cfg.Mailbox.IMAPUser,
			Password: cfg.Mailbox.IMAPPassword,
		})
		if err != nil {
			logrus.Fatalf("Failed to create IMAP mailbox: %v", err)
		}
		logrus.Info("Using IMAP mailbox (read-only, sends disabled)")
	} else {
		mailbox, err = gateway.NewGmailMailbox(ctx, gateway.GmailOptions{
			ClientID:     cfg.Mailbox.ClientID,
			ClientSecret: cfg.Mailbox.ClientSecret,
			RefreshToken: cfg.Mailbox.RefreshToken,
		})
		if err != nil {
			logrus.Fatalf("Failed to create Gmail mailbox: %v", err)
		}
		logrus.Info("Using Gmail API mailbox")
	}

	// Initialize chat gateway
	chat := gateway.NewTeamsChat(ctx, gateway.TeamsOptions{
		TenantID:     cfg.Teams.TenantID,
		ClientID:     cfg.Teams.ClientID,
		ClientSecret: cfg.Teams.ClientSecret,
		TeamID:       cfg.Teams.TeamID,
		ChannelID:    cfg.Teams.ChannelID,
	})

	// Initialize AI gateway
	ai := gateway.NewAnthropicCompleter(gateway.AnthropicOptions{
		APIKey:    cfg.AI.APIKey,
		Model:     cfg.AI.Model,
		MaxTokens: cfg.AI.MaxTokens,
	})

	// Calendar shares the Gmail OAuth client; meetings degrade gracefully
	// without it
	var calendar gateway.Calendar
	if !cfg.Mailbox.UseIMAP && cfg.Triage.MeetingsEnabled {
		gcal, err := gateway.NewGoogleCalendar(ctx, gateway.GmailOptions{
			ClientID:     cfg.Mailbox.ClientID,
			ClientSecret: cfg.Mailbox.ClientSecret,
			RefreshToken: cfg.Mailbox.RefreshToken,
		})
		if err != nil {
			logrus.Warnf("Calendar unavailable, meeting conflicts disabled: %v", err)
		} else {
			calendar = gcal
		}
	}

	// Classifiers and drafting
	spam := classifier.NewSpamClassifier(ai, classifier.SpamConfig{
		SpamSenderDomains:   cfg.Triage.SpamSenderDomains,
		SpamSubjectPatterns: cfg.Triage.SpamSubjectPatterns,
	})
	meetings := classifier.NewMeetingAnalyzer(ai, calendar, classifier.MeetingConfig{
		Enabled:            cfg.Triage.MeetingsEnabled,
		CheckConflicts:     calendar != nil,
		AutoAcceptInternal: cfg.Triage.AutoAcceptInternal,
		InternalDomains:    cfg.Triage.InternalDomains,
	})
	rules := classifier.NewRulesEvaluator(ai, store)
	drafts := drafting.NewGenerator(ai, cfg.Triage.SenderName)

	dedup, err := notify.NewDeduplicator(chat, store)
	if err != nil {
		logrus.Fatalf("Failed to load notification dedup state: %v", err)
	}

	// Coordinator
	coord := coordinator.New(store, mailbox, chat, ai, spam, meetings, rules, drafts, dedup, m, coordinator.Config{
		Mailboxes:            cfg.Mailbox.Accounts,
		VIPSenders:           cfg.Triage.VIPSenders,
		VIPDomains:           cfg.Triage.VIPDomains,
		InternalDomains:      cfg.Triage.InternalDomains,
		AlertSenderDomains:   cfg.Triage.AlertSenderDomains,
		AlertSubjectPatterns: cfg.Triage.AlertSubjectPatterns,
		MorningSummaryHour:   cfg.Triage.MorningSummaryHour,
		FYIArchiveAfter:      time.Duration(cfg.Triage.FYIArchiveAfterHours) * time.Hour,
		SenderName:           cfg.Triage.SenderName,
	})

	// Initialize scheduler
	sched := scheduler.New(cfg.Scheduler.IntervalMinutes, func(ctx context.Context) {
		coord.RunCycle(ctx)
	})

	// Initialize HTTP handlers
	h := handlers.NewHandlers(store, sched)

	// Setup HTTP server
	router := setupRouter(h)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start scheduler
	if err := sched.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop scheduler
	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}

	// Wait for any in-flight cycle to finish
	sched.Wait()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	// Close mailbox
	if err := mailbox.Close(); err != nil {
		logrus.Errorf("Failed to close mailbox: %v", err)
	}

	logrus.Info("Server stopped gracefully")
}

// initStore initializes the database connection and runs migrations
func initStore(cfg config.DatabaseConfig) (*repository.Store, error) {
	// Configure GORM logger
	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	// Connect to database
	db, err := gorm.Open(mysql.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying SQL DB for connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	store := repository.New(db)
	if err := store.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logrus.Info("Database initialized successfully")
	return store, nil
}

// setupRouter sets up the HTTP router with middleware
func setupRouter(h *handlers.Handlers) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	// Create router
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware())

	// Setup routes
	h.SetupRoutes(router)

	return router
}

// loggerMiddleware adds logging middleware
func loggerMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	})
}
