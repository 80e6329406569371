// Package config loads and validates application configuration from a YAML
// file plus environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Mailbox   MailboxConfig   `mapstructure:"mailbox"`
	Teams     TeamsConfig     `mapstructure:"teams"`
	AI        AIConfig        `mapstructure:"ai"`
	Triage    TriageConfig    `mapstructure:"triage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// MailboxConfig holds mail-provider configuration. The Gmail API is the
// primary backend; IMAP is the read-only fallback.
type MailboxConfig struct {
	Accounts     []string `mapstructure:"accounts"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RefreshToken string   `mapstructure:"refresh_token"`
	UseIMAP      bool     `mapstructure:"use_imap"`
	IMAPHost     string   `mapstructure:"imap_host"`
	IMAPPort     int      `mapstructure:"imap_port"`
	IMAPUser     string   `mapstructure:"imap_user"`
	IMAPPassword string   `mapstructure:"imap_password"`
}

// TeamsConfig holds the Microsoft Graph credentials for the notification
// channel.
type TeamsConfig struct {
	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TeamID       string `mapstructure:"team_id"`
	ChannelID    string `mapstructure:"channel_id"`
}

// AIConfig holds the Anthropic API configuration.
type AIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// TriageConfig holds the classification and notification policy knobs.
type TriageConfig struct {
	SenderName           string   `mapstructure:"sender_name"`
	VIPSenders           []string `mapstructure:"vip_senders"`
	VIPDomains           []string `mapstructure:"vip_domains"`
	InternalDomains      []string `mapstructure:"internal_domains"`
	AlertSenderDomains   []string `mapstructure:"alert_sender_domains"`
	AlertSubjectPatterns []string `mapstructure:"alert_subject_patterns"`
	SpamSenderDomains    []string `mapstructure:"spam_sender_domains"`
	SpamSubjectPatterns  []string `mapstructure:"spam_subject_patterns"`
	MorningSummaryHour   int      `mapstructure:"morning_summary_hour"`
	FYIArchiveAfterHours int      `mapstructure:"fyi_archive_after_hours"`
	MeetingsEnabled      bool     `mapstructure:"meetings_enabled"`
	AutoAcceptInternal   bool     `mapstructure:"auto_accept_internal"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("mailbox.use_imap", false)
	viper.SetDefault("mailbox.imap_host", "imap.gmail.com")
	viper.SetDefault("mailbox.imap_port", 993)

	viper.SetDefault("ai.model", "claude-sonnet-4-20250514")
	viper.SetDefault("ai.max_tokens", 1024)

	viper.SetDefault("triage.sender_name", "David")
	viper.SetDefault("triage.morning_summary_hour", 7)
	viper.SetDefault("triage.fyi_archive_after_hours", 48)
	viper.SetDefault("triage.meetings_enabled", true)
	viper.SetDefault("triage.auto_accept_internal", false)

	viper.SetDefault("scheduler.interval_minutes", 5)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Mailbox
	viper.BindEnv("mailbox.client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("mailbox.client_secret", "GMAIL_CLIENT_SECRET")
	viper.BindEnv("mailbox.refresh_token", "GMAIL_REFRESH_TOKEN")
	viper.BindEnv("mailbox.use_imap", "MAILBOX_USE_IMAP")
	viper.BindEnv("mailbox.imap_host", "MAILBOX_IMAP_HOST")
	viper.BindEnv("mailbox.imap_port", "MAILBOX_IMAP_PORT")
	viper.BindEnv("mailbox.imap_user", "MAILBOX_IMAP_USER")
	viper.BindEnv("mailbox.imap_password", "MAILBOX_IMAP_PASSWORD")

	// Teams
	viper.BindEnv("teams.tenant_id", "TEAMS_TENANT_ID")
	viper.BindEnv("teams.client_id", "TEAMS_CLIENT_ID")
	viper.BindEnv("teams.client_secret", "TEAMS_CLIENT_SECRET")
	viper.BindEnv("teams.team_id", "TEAMS_TEAM_ID")
	viper.BindEnv("teams.channel_id", "TEAMS_CHANNEL_ID")

	// AI
	viper.BindEnv("ai.api_key", "ANTHROPIC_API_KEY")
	viper.BindEnv("ai.model", "ANTHROPIC_MODEL")
	viper.BindEnv("ai.max_tokens", "ANTHROPIC_MAX_TOKENS")

	// Scheduler
	viper.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if len(c.Mailbox.Accounts) == 0 {
		return fmt.Errorf("at least one mailbox account is required")
	}

	if !c.Mailbox.UseIMAP {
		if c.Mailbox.ClientID == "" || c.Mailbox.ClientSecret == "" || c.Mailbox.RefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required when not using IMAP")
		}
	} else {
		if c.Mailbox.IMAPUser == "" || c.Mailbox.IMAPPassword == "" {
			return fmt.Errorf("IMAP credentials are required when using IMAP")
		}
	}

	if c.Teams.TenantID == "" || c.Teams.ClientID == "" || c.Teams.ClientSecret == "" {
		return fmt.Errorf("Teams Graph credentials are required")
	}
	if c.Teams.TeamID == "" || c.Teams.ChannelID == "" {
		return fmt.Errorf("Teams team and channel ids are required")
	}

	if c.AI.APIKey == "" {
		return fmt.Errorf("AI api key is required")
	}

	if c.Triage.MorningSummaryHour < 0 || c.Triage.MorningSummaryHour > 23 {
		return fmt.Errorf("morning summary hour must be between 0 and 23")
	}

	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	return nil
}
