// Package coordinator runs the email processing loop: ingest, classify,
// draft, notify, and apply user commands. One Coordinator instance is driven
// by the scheduler; the dashboard API reads the same store concurrently and
// the database is the synchronization boundary between them.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Skycomm/email-ai-manager/internal/classifier"
	"github.com/Skycomm/email-ai-manager/internal/drafting"
	"github.com/Skycomm/email-ai-manager/internal/gateway"
	"github.com/Skycomm/email-ai-manager/internal/metrics"
	"github.com/Skycomm/email-ai-manager/internal/model"
	"github.com/Skycomm/email-ai-manager/internal/notify"
)

// Config carries the coordinator's runtime knobs.
type Config struct {
	Mailboxes            []string
	VIPSenders           []string
	VIPDomains           []string
	InternalDomains      []string
	AlertSenderDomains   []string
	AlertSubjectPatterns []string
	MorningSummaryHour   int
	FYIArchiveAfter      time.Duration
	LookbackWindow       time.Duration
	CommandFetchLimit    int
	RuleConfidenceFloor  int
	SenderName           string

	// Auto-send is persisted per email but the triage path forces
	// eligibility off; the knobs stay so the feature can be enabled without
	// a schema change.
	AutoSendEnabled     bool
	AutoSendMaxPriority int
}

// CycleSummary reports what one cycle did.
type CycleSummary struct {
	StartedAt        time.Time
	Duration         time.Duration
	Ingested         int
	Processed        int
	SpamFiltered     int
	Newsletters      int
	Notified         int
	CommandsHandled  int
	FollowUpsSent    int
	Archived         int
	Errors           int
	MorningSummary   bool
	InfraErrors      []string
}

// Coordinator orchestrates one processing cycle at a time. It is not safe
// for concurrent RunCycle calls; the scheduler serializes them.
type Coordinator struct {
	store    Store
	mailbox  gateway.Mailbox
	chat     gateway.Chat
	ai       gateway.Completer
	spam     *classifier.SpamClassifier
	meetings *classifier.MeetingAnalyzer
	rules    *classifier.RulesEvaluator
	drafts   *drafting.Generator
	dedup    *notify.Deduplicator
	metrics  *metrics.Metrics
	config   Config

	lastFetch time.Time
	now       func() time.Time
}

// New wires a Coordinator.
func New(
	store Store,
	mailbox gateway.Mailbox,
	chat gateway.Chat,
	ai gateway.Completer,
	spam *classifier.SpamClassifier,
	meetings *classifier.MeetingAnalyzer,
	rules *classifier.RulesEvaluator,
	drafts *drafting.Generator,
	dedup *notify.Deduplicator,
	m *metrics.Metrics,
	config Config,
) *Coordinator {
	if config.LookbackWindow == 0 {
		config.LookbackWindow = 24 * time.Hour
	}
	if config.FYIArchiveAfter == 0 {
		config.FYIArchiveAfter = 48 * time.Hour
	}
	if config.CommandFetchLimit == 0 {
		config.CommandFetchLimit = 20
	}
	return &Coordinator{
		store:    store,
		mailbox:  mailbox,
		chat:     chat,
		ai:       ai,
		spam:     spam,
		meetings: meetings,
		rules:    rules,
		drafts:   drafts,
		dedup:    dedup,
		metrics:  m,
		config:   config,
		now:      func() time.Time { return time.Now() },
	}
}

// RunCycle executes one full cycle. Infrastructure-level failures are caught
// per step and reported in the summary; the cycle itself never returns an
// error, so a bad cycle can never crash the process loop.
func (c *Coordinator) RunCycle(ctx context.Context) CycleSummary {
	start := c.now()
	summary := CycleSummary{StartedAt: start}
	if c.metrics != nil {
		c.metrics.CycleCount.Inc()
	}

	// 1. Ingest
	newEmails, err := c.ingest(ctx)
	if err != nil {
		logrus.Errorf("Ingest failed: %v", err)
		summary.InfraErrors = append(summary.InfraErrors, fmt.Sprintf("ingest: %v", err))
	}
	summary.Ingested = len(newEmails)

	// 2. Per-email pipeline with partial-failure isolation
	for i := range newEmails {
		email := &newEmails[i]
		if err := c.processEmail(ctx, email, &summary); err != nil {
			summary.Errors++
			if c.metrics != nil {
				c.metrics.ProcessingErrors.Inc()
			}
			logrus.WithFields(logrus.Fields{
				"email_id": email.ID,
				"subject":  email.Subject,
			}).Errorf("Email processing failed: %v", err)

			email.ErrorMessage = err.Error()
			email.RetryCount++
			if terr := email.Transition(model.StateError); terr != nil {
				logrus.Errorf("Could not mark email %s as error: %v", email.ID, terr)
			}
			if serr := c.store.SaveEmail(email); serr != nil {
				logrus.Errorf("Could not persist error state for %s: %v", email.ID, serr)
			}
			c.audit(email.ID, "email_processed", model.ActorSystem, err.Error(), false)
			continue
		}
		summary.Processed++
	}

	// 3. Command intake
	handled, err := c.processCommands(ctx)
	if err != nil {
		logrus.Errorf("Command check failed: %v", err)
		summary.InfraErrors = append(summary.InfraErrors, fmt.Sprintf("commands: %v", err))
	}
	summary.CommandsHandled = handled

	// 4. Morning summary + post-digest auto-archive
	sent, err := c.maybeSendMorningSummary(ctx)
	if err != nil {
		logrus.Errorf("Morning summary failed: %v", err)
		summary.InfraErrors = append(summary.InfraErrors, fmt.Sprintf("summary: %v", err))
	}
	summary.MorningSummary = sent
	if sent {
		archived, err := c.autoArchiveSweep()
		if err != nil {
			logrus.Errorf("Auto-archive sweep failed: %v", err)
		}
		summary.Archived = archived
	}

	// 5. Follow-up sweep
	reminders, err := c.followUpSweep(ctx)
	if err != nil {
		logrus.Errorf("Follow-up sweep failed: %v", err)
		summary.InfraErrors = append(summary.InfraErrors, fmt.Sprintf("followups: %v", err))
	}
	summary.FollowUpsSent = reminders

	c.updateApprovalGauge()

	summary.Duration = c.now().Sub(start)
	if c.metrics != nil {
		c.metrics.CycleDuration.Observe(summary.Duration.Seconds())
	}
	logrus.WithFields(logrus.Fields{
		"ingested":  summary.Ingested,
		"processed": summary.Processed,
		"spam":      summary.SpamFiltered,
		"commands":  summary.CommandsHandled,
		"errors":    summary.Errors,
		"duration":  summary.Duration.String(),
	}).Info("Cycle complete")
	return summary
}

// ingest pulls new messages from every configured mailbox and revives
// records stuck in NEW from a crashed cycle.
func (c *Coordinator) ingest(ctx context.Context) ([]model.EmailRecord, error) {
	since := c.lastFetch
	if since.IsZero() {
		since = c.now().Add(-c.config.LookbackWindow)
	}

	var out []model.EmailRecord

	// crash recovery: stuck NEW records are re-run before fresh mail
	stuck, err := c.store.GetStuckNewEmails()
	if err != nil {
		return nil, err
	}
	out = append(out, stuck...)

	var firstErr error
	for _, mailbox := range c.config.Mailboxes {
		messages, err := c.mailbox.FetchRecent(ctx, mailbox, since)
		if err != nil {
			logrus.Errorf("Failed to fetch mailbox %s: %v", mailbox, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for i := range messages {
			msg := &messages[i]
			processed, err := c.store.IsMessageProcessed(msg.MessageID, mailbox)
			if err != nil {
				logrus.Errorf("Ledger check failed for %s: %v", msg.MessageID, err)
				continue
			}
			if processed {
				continue
			}
			record := recordFromMessage(msg)
			if err := c.store.UpsertEmail(record); err != nil {
				logrus.Errorf("Failed to persist email %s: %v", msg.MessageID, err)
				continue
			}
			if c.metrics != nil {
				c.metrics.EmailsIngested.Inc()
			}
			out = append(out, *record)
		}
	}

	c.lastFetch = c.now()
	return out, firstErr
}

func recordFromMessage(msg *gateway.InboundMessage) *model.EmailRecord {
	record := model.NewEmailRecord(msg.MessageID, msg.Mailbox)
	record.ThreadID = msg.ThreadID
	record.SenderEmail = msg.From
	record.SenderName = msg.FromName
	record.ToRecipients = msg.To
	record.CcRecipients = msg.CC
	record.Subject = msg.Subject
	record.BodyFull = msg.BodyText
	record.BodyPreview = preview(msg.BodyText, 500)
	record.HasAttachments = msg.HasAttachments
	record.Importance = msg.Importance
	if !msg.ReceivedAt.IsZero() {
		record.ReceivedAt = msg.ReceivedAt
	}
	return record
}

func preview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	return body[:max]
}

// processEmail runs the classification pipeline for one record. The
// idempotency ledger row is written only on completion so a crash mid-email
// causes a retry, never a skip.
func (c *Coordinator) processEmail(ctx context.Context, email *model.EmailRecord, summary *CycleSummary) error {
	if err := email.Transition(model.StateProcessing); err != nil {
		return err
	}
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}

	// mute check before any AI call: muted senders cost nothing
	muted, err := c.store.IsSenderMuted(email.SenderEmail)
	if err != nil {
		return err
	}
	if muted {
		email.ForceState(model.StateArchived)
		email.HandledBy = model.HandledByRule
		if err := c.store.SaveEmail(email); err != nil {
			return err
		}
		c.audit(email.ID, "muted_sender_archived", model.ActorRule, email.SenderEmail, true)
		return c.finish(email)
	}

	email.IsVIP = c.isVIP(email)

	// thread context from previously stored conversation members
	if email.ThreadID != "" {
		email.ThreadContext = c.threadContext(email)
	}

	// spam/newsletter classification, skipped entirely for VIP senders
	if !email.IsVIP {
		done, err := c.classifySpam(ctx, email, summary)
		if err != nil {
			return err
		}
		if done {
			return c.finish(email)
		}
	}

	// meeting branch
	if c.meetings != nil && classifier.IsMeetingEmail(email) {
		done, err := c.classifyMeeting(ctx, email, summary)
		if err != nil {
			return err
		}
		if done {
			return c.finish(email)
		}
	}

	// general triage fallback
	if err := c.triage(ctx, email, summary); err != nil {
		return err
	}

	// rule-based post-processing can override the terminal state
	if err := c.applyRules(ctx, email); err != nil {
		logrus.Warnf("Rule post-processing failed for %s: %v", email.ID, err)
	}

	if err := c.store.SaveEmail(email); err != nil {
		return err
	}
	c.audit(email.ID, "email_processed", model.ActorAI,
		fmt.Sprintf("category=%s priority=%d state=%s", email.Category, email.Priority, email.State), true)
	return c.finish(email)
}

// finish writes the idempotency ledger row for a handled email.
func (c *Coordinator) finish(email *model.EmailRecord) error {
	processed, err := c.store.IsMessageProcessed(email.MessageID, email.Mailbox)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}
	return c.store.MarkMessageProcessed(email.MessageID, email.Mailbox)
}

func (c *Coordinator) isVIP(email *model.EmailRecord) bool {
	sender := strings.ToLower(email.SenderEmail)
	for _, vip := range c.config.VIPSenders {
		if strings.EqualFold(vip, sender) {
			return true
		}
	}
	domain := email.SenderDomain()
	for _, vipDomain := range c.config.VIPDomains {
		if strings.EqualFold(vipDomain, domain) {
			return true
		}
	}
	return false
}

// threadContext summarizes prior stored emails in the same conversation.
// No gateway call: the store already has everything previously ingested.
func (c *Coordinator) threadContext(email *model.EmailRecord) string {
	prior, err := c.store.GetThreadEmails(email.ThreadID, email.ID, 5)
	if err != nil {
		logrus.Warnf("Could not fetch thread context for %s: %v", email.ID, err)
		return ""
	}
	if len(prior) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Previous messages in this conversation:\n")
	for i := range prior {
		p := &prior[i]
		line := p.Summary
		if line == "" {
			line = p.Subject
		}
		sb.WriteString(fmt.Sprintf("- %s (%s): %s\n",
			p.SenderDisplay(), p.ReceivedAt.Format("Jan 2"), line))
	}
	return sb.String()
}

// classifySpam runs the spam/newsletter stage. Returns done=true when the
// email's handling ended here (hard spam deleted, newsletter deferred).
func (c *Coordinator) classifySpam(ctx context.Context, email *model.EmailRecord, summary *CycleSummary) (bool, error) {
	learned, err := c.store.GetActiveSpamRules()
	if err != nil {
		return false, err
	}
	verdict := c.spam.Classify(ctx, email, learned)
	email.SpamScore = verdict.SpamScore

	if verdict.IsSpam {
		email.Category = model.CategorySpamCandidate
		email.HandledBy = model.HandledByAI
		if err := email.Transition(model.StateSpamDetected); err != nil {
			return false, err
		}
		if err := c.store.SaveEmail(email); err != nil {
			return false, err
		}
		// hard spam is deleted silently: no notification, ever
		if err := c.mailbox.Delete(ctx, email.Mailbox, email.MessageID); err != nil {
			logrus.Warnf("Could not delete spam message %s: %v", email.MessageID, err)
		}
		summary.SpamFiltered++
		if c.metrics != nil {
			c.metrics.SpamFiltered.Inc()
		}
		c.audit(email.ID, "spam_deleted", model.ActorAI, verdict.Reasoning, true)
		return true, nil
	}

	if verdict.IsNewsletter {
		email.Category = model.CategoryNewsletter
		email.HandledBy = model.HandledByAI
		if err := email.Transition(model.StateFYINotified); err != nil {
			return false, err
		}
		if err := c.store.SaveEmail(email); err != nil {
			return false, err
		}
		if err := c.deferToDigest(email.ID); err != nil {
			return false, err
		}
		summary.Newsletters++
		c.audit(email.ID, "newsletter_deferred", model.ActorAI, verdict.Reasoning, true)
		return true, nil
	}

	return false, nil
}

// classifyMeeting handles the meeting branch. Invites take the immediate
// action path with a suggested response; other meeting mail is informational
// and defers to the digest.
func (c *Coordinator) classifyMeeting(ctx context.Context, email *model.EmailRecord, summary *CycleSummary) (bool, error) {
	verdict := c.meetings.Analyze(ctx, email)
	if !verdict.IsMeeting {
		return false, nil
	}
	email.Category = model.CategoryMeeting
	email.HandledBy = model.HandledByAI

	if verdict.Type != classifier.MeetingInvite {
		if err := email.Transition(model.StateFYINotified); err != nil {
			return true, err
		}
		if err := c.store.SaveEmail(email); err != nil {
			return true, err
		}
		if err := c.deferToDigest(email.ID); err != nil {
			return true, err
		}
		c.audit(email.ID, "meeting_acknowledged", model.ActorAI, string(verdict.Type), true)
		return true, nil
	}

	if verdict.AutoResponded {
		// acceptance already executed against the calendar
		if err := email.Transition(model.StateFYINotified); err != nil {
			return true, err
		}
		if err := email.Transition(model.StateArchived); err != nil {
			return true, err
		}
		if err := c.store.SaveEmail(email); err != nil {
			return true, err
		}
		c.audit(email.ID, "meeting_auto_accepted", model.ActorAI, email.Subject, true)
		return true, nil
	}

	email.Priority = 2
	if email.IsVIP {
		email.Priority = 1
	}
	email.Summary = c.drafts.Summarize(ctx, email)
	if err := email.Transition(model.StateActionRequired); err != nil {
		return true, err
	}

	draft := classifier.SuggestMeetingResponse(email, verdict, c.config.SenderName)
	email.AddDraftVersion(draft)
	email.GenerateApprovalToken()
	if err := email.Transition(model.StateDraftGenerated); err != nil {
		return true, err
	}
	if err := email.Transition(model.StateAwaitingApproval); err != nil {
		return true, err
	}
	if c.metrics != nil {
		c.metrics.DraftsGenerated.Inc()
	}
	if err := c.store.SaveEmail(email); err != nil {
		return true, err
	}

	if err := c.notifyAction(ctx, email); err != nil {
		logrus.Errorf("Meeting notification failed for %s: %v", email.ID, err)
	} else {
		summary.Notified++
	}
	c.audit(email.ID, "meeting_invite_processed", model.ActorAI, verdict.SuggestedAction, true)
	return true, nil
}

type triageResult struct {
	Category   string `json:"category"`
	Priority   int    `json:"priority"`
	NeedsReply bool   `json:"needs_reply"`
	Reasoning  string `json:"reasoning"`
}

// triage is the general classification fallback: category and priority via
// AI, degrading to action_required/priority 3 on failure. Erring toward
// visibility: a misfiled email the user sees beats one silently dropped.
func (c *Coordinator) triage(ctx context.Context, email *model.EmailRecord, summary *CycleSummary) error {
	prompt := fmt.Sprintf(`Analyze this email and categorize it:

From: %s <%s>
Subject: %s
Body Preview: %s

Determine:
1. Category: One of [urgent, action_required, fyi, meeting, spam_candidate, forward_candidate]
2. Priority: 1-5 (1 = highest, 5 = lowest)
3. Needs Reply: true/false
4. Reasoning: Brief explanation`,
		email.SenderDisplay(), email.SenderEmail, email.Subject, email.BodyPreview)

	result := triageResult{Category: string(model.CategoryActionRequired), Priority: 3, NeedsReply: true}
	if err := c.ai.CompleteJSON(ctx, "You triage an inbox: categorize and prioritize emails.", prompt, &result); err != nil {
		logrus.Warnf("Triage AI failed for %s, using defaults: %v", email.ID, err)
		result = triageResult{Category: string(model.CategoryActionRequired), Priority: 3, NeedsReply: true}
	}
	if result.Priority < 1 || result.Priority > 5 {
		result.Priority = 3
	}

	email.Category = model.EmailCategory(result.Category)
	email.Priority = result.Priority
	email.HandledBy = model.HandledByAI
	if email.IsVIP && email.Priority > 1 {
		email.Priority--
	}
	// eligibility is computed but deliberately withheld until the auto-send
	// path has earned trust
	email.AutoSendEligible = false

	switch email.Category {
	case model.CategoryUrgent, model.CategoryActionRequired:
		return c.actionPath(ctx, email, summary)
	case model.CategoryForwardCandidate:
		if err := email.Transition(model.StateActionRequired); err != nil {
			return err
		}
		email.Summary = c.drafts.Summarize(ctx, email)
		if err := email.Transition(model.StateForwardSuggested); err != nil {
			return err
		}
		if err := c.store.SaveEmail(email); err != nil {
			return err
		}
		if err := c.notifyAction(ctx, email); err != nil {
			logrus.Errorf("Forward notification failed for %s: %v", email.ID, err)
		} else {
			summary.Notified++
		}
		return nil
	case model.CategoryMeeting:
		// triage called it a meeting the keyword gate missed
		return c.actionPath(ctx, email, summary)
	default:
		// fyi, spam_candidate at low confidence, anything unknown
		email.Category = model.CategoryFYI
		email.Summary = c.drafts.Summarize(ctx, email)
		if err := email.Transition(model.StateFYINotified); err != nil {
			return err
		}
		if err := c.store.SaveEmail(email); err != nil {
			return err
		}
		if c.isAlertSender(email) {
			// monitoring alerts bypass the digest but go through dedup so a
			// flapping link cannot storm the channel
			if err := c.notifyAlert(ctx, email); err != nil {
				logrus.Errorf("Alert notification failed for %s: %v", email.ID, err)
			} else {
				summary.Notified++
			}
		} else if err := c.deferToDigest(email.ID); err != nil {
			return err
		}
		return nil
	}
}

// actionPath generates the draft and parks the email awaiting approval.
func (c *Coordinator) actionPath(ctx context.Context, email *model.EmailRecord, summary *CycleSummary) error {
	if err := email.Transition(model.StateActionRequired); err != nil {
		return err
	}
	email.Summary = c.drafts.Summarize(ctx, email)
	draft := c.drafts.GenerateDraft(ctx, email, email.Summary, "")
	email.AddDraftVersion(draft)
	email.GenerateApprovalToken()
	if err := email.Transition(model.StateDraftGenerated); err != nil {
		return err
	}
	if err := email.Transition(model.StateAwaitingApproval); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.DraftsGenerated.Inc()
	}
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}
	if err := c.notifyAction(ctx, email); err != nil {
		logrus.Errorf("Action notification failed for %s: %v", email.ID, err)
	} else {
		summary.Notified++
	}
	return nil
}

func (c *Coordinator) isAlertSender(email *model.EmailRecord) bool {
	domain := email.SenderDomain()
	for _, alertDomain := range c.config.AlertSenderDomains {
		if strings.EqualFold(alertDomain, domain) {
			return true
		}
	}
	subjectLower := strings.ToLower(email.Subject)
	for _, pattern := range c.config.AlertSubjectPatterns {
		if strings.Contains(subjectLower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// applyRules evaluates routing rules and executes the first match's action.
// Only the first match is applied even when later non-stop rules also
// matched: highest priority wins.
func (c *Coordinator) applyRules(ctx context.Context, email *model.EmailRecord) error {
	rules, err := c.store.GetActiveEmailRules()
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	matches, err := c.rules.Evaluate(ctx, email, rules, c.config.RuleConfidenceFloor)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	match := matches[0]
	rule := match.Rule
	c.audit(email.ID, "rule_matched", model.ActorRule,
		fmt.Sprintf("rule=%s confidence=%d", rule.Name, match.Confidence), true)

	switch rule.Action {
	case model.ActionMoveToFolder:
		if err := c.mailbox.Move(ctx, email.Mailbox, email.MessageID, rule.ActionTarget); err != nil {
			return fmt.Errorf("rule move failed: %w", err)
		}
		email.ForceState(model.StateArchived)
		email.HandledBy = model.HandledByRule
	case model.ActionArchive:
		email.ForceState(model.StateArchived)
		email.HandledBy = model.HandledByRule
	case model.ActionForward:
		if err := c.mailbox.Send(ctx, email.Mailbox, rule.ActionTarget,
			"Fwd: "+email.Subject, email.BodyFull); err != nil {
			return fmt.Errorf("rule forward failed: %w", err)
		}
		email.ForceState(model.StateForwarded)
		email.HandledBy = model.HandledByRule
	case model.ActionSetPriority:
		if p, err := parsePriority(rule.ActionTarget); err == nil {
			email.Priority = p
		}
	case model.ActionNotify:
		content := notify.ActionNotification(email)
		if _, err := c.chat.Post(ctx, content); err != nil {
			return fmt.Errorf("rule notify failed: %w", err)
		}
	}
	return c.store.SaveEmail(email)
}

func parsePriority(s string) (int, error) {
	var p int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &p); err != nil {
		return 0, err
	}
	if p < 1 || p > 5 {
		return 0, fmt.Errorf("priority out of range: %d", p)
	}
	return p, nil
}

func (c *Coordinator) audit(emailID, action, actor, detail string, success bool) {
	entry := model.NewAuditEntry(emailID, action, actor, detail)
	entry.Success = success
	if err := c.store.AppendAudit(entry); err != nil {
		logrus.Errorf("Audit write failed (%s): %v", action, err)
	}
}

func (c *Coordinator) updateApprovalGauge() {
	if c.metrics == nil {
		return
	}
	awaiting, err := c.store.GetEmailsByState(model.StateAwaitingApproval, 0)
	if err != nil {
		return
	}
	c.metrics.AwaitingApproval.Set(float64(len(awaiting)))
}
