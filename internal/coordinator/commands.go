package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Skycomm/email-ai-manager/internal/command"
	"github.com/Skycomm/email-ai-manager/internal/model"
	"github.com/Skycomm/email-ai-manager/internal/notify"
)

// learnedSpamConfidence is the starting confidence for rules created by the
// user's `spam` command. Above the classifier's activation floor, so one user
// report is enough to make the rule bite.
const learnedSpamConfidence = 90

// processCommands reads new chat replies, parses each into a command, and
// dispatches it. The watermark advances past every reply seen, including
// unknowns, so no reply is ever parsed twice.
func (c *Coordinator) processCommands(ctx context.Context) (int, error) {
	replies, err := c.chat.FetchRecentReplies(ctx, c.config.CommandFetchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch chat replies: %w", err)
	}
	if len(replies) == 0 {
		return 0, nil
	}

	watermark := time.Time{}
	if raw, err := c.store.GetSetting(model.SettingChatWatermark); err == nil && raw != "" {
		if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			watermark = t
		}
	}

	// replies arrive newest first; apply them in the order the user sent them
	handled := 0
	latest := watermark
	for i := len(replies) - 1; i >= 0; i-- {
		reply := &replies[i]
		if !reply.CreatedAt.After(watermark) {
			continue
		}
		if reply.CreatedAt.After(latest) {
			latest = reply.CreatedAt
		}

		cmd := command.Parse(reply.Text)
		if cmd.Type == command.Unknown {
			logrus.WithField("text", reply.Text).Debug("Ignoring unrecognized chat reply")
			continue
		}
		if err := c.dispatch(ctx, cmd); err != nil {
			logrus.Errorf("Command %s failed: %v", cmd.Type, err)
			if _, perr := c.chat.Post(ctx, notify.ErrorNotice(
				fmt.Sprintf("Command '%s' failed", cmd.Type), err.Error())); perr != nil {
				logrus.Errorf("Could not post command error notice: %v", perr)
			}
		}
		handled++
		if c.metrics != nil {
			c.metrics.CommandsProcessed.Inc()
		}
	}

	if latest.After(watermark) {
		if err := c.store.SetSetting(model.SettingChatWatermark, latest.UTC().Format(time.RFC3339Nano)); err != nil {
			logrus.Errorf("Could not persist chat watermark: %v", err)
		}
	}
	return handled, nil
}

func (c *Coordinator) dispatch(ctx context.Context, cmd command.Command) error {
	switch cmd.Type {
	case command.Approve:
		return c.cmdApprove(ctx, cmd.Parameter)
	case command.ConfirmSend:
		return c.cmdConfirmSend(ctx)
	case command.Ignore:
		return c.cmdIgnore(ctx)
	case command.Edit:
		return c.cmdEdit(ctx, cmd.Parameter)
	case command.Rewrite:
		return c.cmdRewrite(ctx)
	case command.More:
		return c.cmdMore(ctx, cmd.Parameter)
	case command.Spam:
		return c.cmdSpam(ctx, cmd.Parameter)
	case command.Keep:
		return c.cmdKeep(ctx, cmd.Parameter)
	case command.Forward:
		return c.cmdForward(ctx, cmd.Parameter)
	case command.Delete:
		return c.cmdDelete(ctx)
	case command.Mute:
		return c.cmdMute(ctx, cmd.Parameter)
	case command.FollowUp:
		return c.cmdFollowUp(ctx, cmd.Parameter)
	case command.Review:
		return c.cmdReview(ctx)
	case command.DismissAll:
		return c.cmdDismissAll(ctx)
	case command.ArchiveAll:
		return c.cmdArchiveAll(ctx)
	}
	return nil
}

// currentApproval resolves the email a bare command refers to: an explicit
// token wins, otherwise the most recently surfaced email still awaiting
// approval.
func (c *Coordinator) currentApproval(token string) (*model.EmailRecord, error) {
	if token != "" {
		email, err := c.store.GetEmailByToken(token)
		if err != nil {
			return nil, err
		}
		if email == nil {
			return nil, fmt.Errorf("no email awaiting approval with token %s", token)
		}
		return email, nil
	}
	email, err := c.store.GetLatestAwaitingApproval()
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("no email is awaiting approval")
	}
	return email, nil
}

// cmdApprove moves the email to APPROVED and asks for the second-step
// confirmation. Nothing is sent yet.
func (c *Coordinator) cmdApprove(ctx context.Context, token string) error {
	email, err := c.currentApproval(token)
	if err != nil {
		return err
	}
	if err := email.Transition(model.StateApproved); err != nil {
		return err
	}
	email.HandledBy = model.HandledByUser
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}
	c.audit(email.ID, "approved", model.ActorUser, "draft approved, awaiting send confirmation", true)
	_, err = c.chat.Post(ctx, notify.ConfirmSendRequest(email))
	return err
}

// latestApproved resolves the email a second-step command refers to: the most
// recently updated email in APPROVED.
func (c *Coordinator) latestApproved() (*model.EmailRecord, error) {
	approved, err := c.store.GetEmailsByState(model.StateApproved, 0)
	if err != nil {
		return nil, err
	}
	if len(approved) == 0 {
		return nil, fmt.Errorf("no approved draft is waiting to be sent")
	}
	email := &approved[0]
	for i := range approved {
		if approved[i].UpdatedAt.After(email.UpdatedAt) {
			email = &approved[i]
		}
	}
	return email, nil
}

// cmdConfirmSend executes the send for the most recently approved email.
// Fails closed: on a send error the email stays APPROVED and the failure is
// posted to the channel.
func (c *Coordinator) cmdConfirmSend(ctx context.Context) error {
	email, err := c.latestApproved()
	if err != nil {
		return err
	}

	subject := email.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	if err := c.mailbox.Send(ctx, email.Mailbox, email.SenderEmail, subject, email.CurrentDraft); err != nil {
		c.audit(email.ID, "send", model.ActorUser, err.Error(), false)
		if _, perr := c.chat.Post(ctx, notify.Confirmation(email, "send", false)); perr != nil {
			logrus.Errorf("Could not post send failure: %v", perr)
		}
		return fmt.Errorf("send failed, draft still approved: %w", err)
	}

	now := c.now().UTC()
	email.SentAt = &now
	email.HandledBy = model.HandledByUser
	if err := email.Transition(model.StateSent); err != nil {
		return err
	}
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}
	c.audit(email.ID, "sent", model.ActorUser, "reply sent to "+email.SenderEmail, true)
	_, err = c.chat.Post(ctx, notify.Confirmation(email, "send", true))
	return err
}

func (c *Coordinator) cmdIgnore(ctx context.Context) error {
	email, err := c.currentApproval("")
	if err != nil {
		return err
	}
	if err := email.Transition(model.StateIgnored); err != nil {
		return err
	}
	email.HandledBy = model.HandledByUser
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}
	c.audit(email.ID, "ignored", model.ActorUser, "", true)
	_, err = c.chat.Post(ctx, notify.Confirmation(email, "ignore", true))
	return err
}

// cmdEdit revises the current draft per the user's instructions and re-parks
// the email for approval under a fresh token. An already-approved draft can
// still be edited; doing so revokes the approval so the revised draft goes
// through the send gate again.
func (c *Coordinator) cmdEdit(ctx context.Context, instructions string) error {
	email, err := c.currentApproval("")
	if err != nil {
		approved, aerr := c.latestApproved()
		if aerr != nil {
			return err
		}
		email = approved
		email.ForceState(model.StateDraftGenerated)
	} else if err := email.Transition(model.StateDraftGenerated); err != nil {
		return err
	}
	draft := c.drafts.EditDraft(ctx, email, instructions)
	email.AddDraftVersion(draft)
	email.GenerateApprovalToken()
	if err := email.Transition(model.StateAwaitingApproval); err != nil {
		return err
	}
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}
	c.audit(email.ID, "draft_edited", model.ActorUser, instructions, true)
	_, err = c.chat.Post(ctx, notify.ActionNotification(email))
	return err
}

// cmdRewrite regenerates the draft in the next tone preset.
func (c *Coordinator) cmdRewrite(ctx context.Context) error {
	email, err := c.currentApproval("")
	if err != nil {
		return err
	}
	if err := email.Transition(model.StateDraftGenerated); err != nil {
		return err
	}
	draft := c.drafts.RewriteDraft(ctx, email, "")
	email.AddDraftVersion(draft)
	email.GenerateApprovalToken()
	if err := email.Transition(model.StateAwaitingApproval); err != nil {
		return err
	}
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}
	c.audit(email.ID, "draft_rewritten", model.ActorUser, string(email.DraftMode), true)
	_, err = c.chat.Post(ctx, notify.ActionNotification(email))
	return err
}

// cmdMore shows the full email: a summary ordinal when given, otherwise the
// email currently awaiting approval.
func (c *Coordinator) cmdMore(ctx context.Context, ordinal string) error {
	var email *model.EmailRecord
	var err error
	if ordinal != "" {
		email, err = c.emailByOrdinal(ordinal)
	} else {
		email, err = c.currentApproval("")
	}
	if err != nil {
		return err
	}
	if email.BodyFull == "" {
		full, ferr := c.mailbox.GetFull(ctx, email.Mailbox, email.MessageID)
		if ferr == nil && full != nil {
			email.BodyFull = full.BodyText
			if serr := c.store.SaveEmail(email); serr != nil {
				logrus.Warnf("Could not persist fetched body for %s: %v", email.ID, serr)
			}
		}
	}
	_, err = c.chat.Post(ctx, notify.FullEmailView(email))
	return err
}

// cmdSpam marks the email as spam, learns a sender-domain rule so the next
// email from that domain is caught without AI, and trashes the message.
func (c *Coordinator) cmdSpam(ctx context.Context, ordinal string) error {
	var email *model.EmailRecord
	var err error
	if ordinal != "" {
		email, err = c.emailByOrdinal(ordinal)
	} else {
		email, err = c.currentApproval("")
	}
	if err != nil {
		return err
	}

	switch email.State {
	case model.StateAwaitingApproval:
		if err := email.Transition(model.StateSpamDetected); err != nil {
			return err
		}
	default:
		email.ForceState(model.StateSpamDetected)
	}
	email.Category = model.CategorySpamCandidate
	email.HandledBy = model.HandledByUser
	if err := email.Transition(model.StateArchived); err != nil {
		return err
	}
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}

	if domain := email.SenderDomain(); domain != "" {
		if _, err := c.store.UpsertSpamRule(model.SpamRuleSenderDomain, domain, learnedSpamConfidence); err != nil {
			logrus.Errorf("Could not learn spam rule for %s: %v", domain, err)
		}
	}
	if err := c.mailbox.Delete(ctx, email.Mailbox, email.MessageID); err != nil {
		logrus.Warnf("Could not trash spam message %s: %v", email.MessageID, err)
	}
	c.audit(email.ID, "marked_spam", model.ActorUser, email.SenderDomain(), true)
	_, err = c.chat.Post(ctx, notify.Confirmation(email, "mark as spam", true))
	return err
}

// cmdKeep rescues a spam false positive: decays the learned rules that
// matched the sender and puts the email back on the action path.
func (c *Coordinator) cmdKeep(ctx context.Context, ref string) error {
	email, err := c.resolveReference(ref)
	if err != nil {
		return err
	}
	if err := c.store.ReportSpamFalsePositiveByPattern(email.SenderDomain(), strings.ToLower(email.SenderEmail)); err != nil {
		logrus.Errorf("Could not decay spam rules for %s: %v", email.SenderEmail, err)
	}
	if email.State == model.StateSpamDetected {
		if err := email.Transition(model.StateActionRequired); err != nil {
			return err
		}
	} else {
		email.ForceState(model.StateActionRequired)
	}
	email.Category = model.CategoryActionRequired
	email.HandledBy = model.HandledByUser
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
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}
	c.audit(email.ID, "kept", model.ActorUser, "false positive rescued", true)
	_, err = c.chat.Post(ctx, notify.ActionNotification(email))
	return err
}

// cmdForward sends the original email on to the given address.
func (c *Coordinator) cmdForward(ctx context.Context, target string) error {
	if target == "" {
		return fmt.Errorf("forward needs a destination address")
	}
	email, err := c.currentApproval("")
	if err != nil {
		// fall back to a pending forward suggestion
		suggested, serr := c.store.GetEmailsByState(model.StateForwardSuggested, 1)
		if serr != nil || len(suggested) == 0 {
			return err
		}
		email = &suggested[0]
	}

	body := email.BodyFull
	if body == "" {
		body = email.BodyPreview
	}
	content := fmt.Sprintf("Forwarded message from %s <%s>:\n\n%s",
		email.SenderDisplay(), email.SenderEmail, body)
	if err := c.mailbox.Send(ctx, email.Mailbox, target, "Fwd: "+email.Subject, content); err != nil {
		c.audit(email.ID, "forward", model.ActorUser, err.Error(), false)
		return fmt.Errorf("forward failed: %w", err)
	}
	email.ForceState(model.StateForwarded)
	email.HandledBy = model.HandledByUser
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}
	c.audit(email.ID, "forwarded", model.ActorUser, target, true)
	_, err = c.chat.Post(ctx, notify.Confirmation(email, "forward to "+target, true))
	return err
}

// cmdDelete archives the current email and trashes it in the mailbox.
func (c *Coordinator) cmdDelete(ctx context.Context) error {
	email, err := c.currentApproval("")
	if err != nil {
		return err
	}
	if err := email.Transition(model.StateArchived); err != nil {
		return err
	}
	email.HandledBy = model.HandledByUser
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}
	if err := c.mailbox.Delete(ctx, email.Mailbox, email.MessageID); err != nil {
		logrus.Warnf("Could not trash message %s: %v", email.MessageID, err)
	}
	c.audit(email.ID, "deleted", model.ActorUser, "", true)
	_, err = c.chat.Post(ctx, notify.Confirmation(email, "delete", true))
	return err
}

// cmdMute silences a sender: with no argument the current email's sender,
// otherwise the given address or domain.
func (c *Coordinator) cmdMute(ctx context.Context, pattern string) error {
	var emailID string
	if pattern == "" {
		email, err := c.currentApproval("")
		if err != nil {
			return fmt.Errorf("mute needs a sender or an email in progress: %w", err)
		}
		pattern = email.SenderEmail
		emailID = email.ID
		if err := email.Transition(model.StateArchived); err == nil {
			email.HandledBy = model.HandledByUser
			if serr := c.store.SaveEmail(email); serr != nil {
				return serr
			}
		}
	}
	muted, err := c.store.MuteSender(pattern, "muted via chat command")
	if err != nil {
		return err
	}
	c.audit(emailID, "sender_muted", model.ActorUser, muted.Pattern, true)
	_, err = c.chat.Post(ctx, fmt.Sprintf("<p>🔇 Muted <b>%s</b>. Future mail is archived silently.</p>", muted.Pattern))
	return err
}

// cmdFollowUp schedules a follow-up reminder on the current email. The
// parameter is a free-text note; the first reminder fires in 24 hours.
func (c *Coordinator) cmdFollowUp(ctx context.Context, note string) error {
	email, err := c.currentApproval("")
	if err != nil {
		return err
	}
	due := c.now().UTC().Add(24 * time.Hour)
	email.FollowUpAt = &due
	email.FollowUpNote = note
	email.FollowUpRemindedCount = 0
	email.ForceState(model.StateFollowUp)
	email.HandledBy = model.HandledByUser
	if err := c.store.SaveEmail(email); err != nil {
		return err
	}
	c.audit(email.ID, "follow_up_scheduled", model.ActorUser, note, true)
	_, err = c.chat.Post(ctx, fmt.Sprintf("<p>⏰ Follow-up scheduled for <b>%s</b> (%s).</p>",
		due.Format("Mon 15:04 MST"), email.Subject))
	return err
}

// cmdReview re-posts every email still awaiting approval.
func (c *Coordinator) cmdReview(ctx context.Context) error {
	awaiting, err := c.store.GetEmailsByState(model.StateAwaitingApproval, 0)
	if err != nil {
		return err
	}
	if len(awaiting) == 0 {
		_, err := c.chat.Post(ctx, "<p>✅ Nothing is awaiting approval.</p>")
		return err
	}
	for i := range awaiting {
		if _, err := c.chat.Post(ctx, notify.ActionNotification(&awaiting[i])); err != nil {
			return err
		}
	}
	return nil
}

// cmdDismissAll archives every pending spam candidate in one go.
func (c *Coordinator) cmdDismissAll(ctx context.Context) error {
	candidates, err := c.store.GetEmailsByState(model.StateSpamDetected, 0)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		_, err := c.chat.Post(ctx, "<p>✅ No spam candidates are pending.</p>")
		return err
	}
	dismissed := 0
	for i := range candidates {
		email := &candidates[i]
		if err := email.Transition(model.StateArchived); err != nil {
			return err
		}
		email.HandledBy = model.HandledByUser
		if err := c.store.SaveEmail(email); err != nil {
			return err
		}
		c.audit(email.ID, "dismissed", model.ActorUser, "spam batch dismissed", true)
		dismissed++
	}
	_, err = c.chat.Post(ctx, fmt.Sprintf("<p>🗑️ Dismissed <b>%d</b> spam candidates.</p>", dismissed))
	return err
}

// cmdArchiveAll archives every deferred FYI/newsletter item without waiting
// for the auto-archive window.
func (c *Coordinator) cmdArchiveAll(ctx context.Context) error {
	deferred, err := c.store.GetEmailsByState(model.StateFYINotified, 0)
	if err != nil {
		return err
	}
	if len(deferred) == 0 {
		_, err := c.chat.Post(ctx, "<p>✅ No deferred emails to archive.</p>")
		return err
	}
	archived := 0
	for i := range deferred {
		email := &deferred[i]
		if err := email.Transition(model.StateArchived); err != nil {
			return err
		}
		email.HandledBy = model.HandledByUser
		if err := c.store.SaveEmail(email); err != nil {
			return err
		}
		c.audit(email.ID, "archived", model.ActorUser, "bulk archive", true)
		archived++
	}
	_, err = c.chat.Post(ctx, fmt.Sprintf("<p>📦 Archived <b>%d</b> deferred emails.</p>", archived))
	return err
}

// emailByOrdinal resolves `more N` / `spam N` against the ordinal map
// persisted with the last morning summary.
func (c *Coordinator) emailByOrdinal(ordinal string) (*model.EmailRecord, error) {
	n, err := strconv.Atoi(ordinal)
	if err != nil {
		return nil, fmt.Errorf("invalid ordinal %q", ordinal)
	}
	ordinals := map[string]string{}
	found, err := c.store.GetSettingJSON(model.SettingSummaryOrdinals, &ordinals)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no summary has been sent yet")
	}
	emailID, ok := ordinals[strconv.Itoa(n)]
	if !ok {
		return nil, fmt.Errorf("no summary item numbered %d", n)
	}
	email, err := c.store.GetEmail(emailID)
	if err != nil {
		return nil, err
	}
	if email == nil {
		return nil, fmt.Errorf("summary item %d no longer exists", n)
	}
	return email, nil
}

// resolveReference resolves a keep-command argument: an ordinal, a token, or
// empty (latest awaiting approval).
func (c *Coordinator) resolveReference(ref string) (*model.EmailRecord, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return c.currentApproval("")
	}
	if _, err := strconv.Atoi(ref); err == nil {
		return c.emailByOrdinal(ref)
	}
	email, err := c.store.GetEmailByToken(strings.ToLower(ref))
	if err != nil {
		return nil, err
	}
	if email != nil {
		return email, nil
	}
	return c.currentApproval("")
}
