package coordinator

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Skycomm/email-ai-manager/internal/model"
	"github.com/Skycomm/email-ai-manager/internal/notify"
)

// notifyAction posts the individual action card and records the chat message
// id on the email so later commands can reference the thread.
func (c *Coordinator) notifyAction(ctx context.Context, email *model.EmailRecord) error {
	messageID, err := c.chat.Post(ctx, notify.ActionNotification(email))
	if err != nil {
		return err
	}
	email.ChatMessageID = messageID
	if c.metrics != nil {
		c.metrics.NotificationsSent.Inc()
	}
	return c.store.SaveEmail(email)
}

// notifyAlert routes a monitoring alert through the deduplicator so repeats
// collapse into one chat message.
func (c *Coordinator) notifyAlert(ctx context.Context, email *model.EmailRecord) error {
	content := notify.ActionNotification(email)
	before, had := c.dedup.Entry(notify.DedupKey(email))
	beforeID := ""
	if had {
		beforeID = before.MessageID
	}
	messageID, err := c.dedup.SendDeduped(ctx, email, content)
	if err != nil {
		return err
	}
	email.ChatMessageID = messageID
	if c.metrics != nil {
		if had && messageID == beforeID {
			c.metrics.NotificationsDeduped.Inc()
		} else {
			c.metrics.NotificationsSent.Inc()
		}
	}
	return c.store.SaveEmail(email)
}

// deferToDigest queues an email id for the next morning summary.
func (c *Coordinator) deferToDigest(emailID string) error {
	var pending []string
	if _, err := c.store.GetSettingJSON(model.SettingPendingDigest, &pending); err != nil {
		return err
	}
	for _, id := range pending {
		if id == emailID {
			return nil
		}
	}
	pending = append(pending, emailID)
	return c.store.SetSettingJSON(model.SettingPendingDigest, pending)
}

// maybeSendMorningSummary posts the daily digest once per local day, at or
// after the configured hour. The sent-date marker is durable, so a restart
// after sending cannot produce a second digest.
func (c *Coordinator) maybeSendMorningSummary(ctx context.Context) (bool, error) {
	now := c.now()
	if now.Hour() < c.config.MorningSummaryHour {
		return false, nil
	}
	today := now.Format("2006-01-02")
	sentDate, err := c.store.GetSetting(model.SettingMorningSummaryDate)
	if err != nil {
		return false, err
	}
	if sentDate == today {
		return false, nil
	}

	var pending []string
	if _, err := c.store.GetSettingJSON(model.SettingPendingDigest, &pending); err != nil {
		return false, err
	}

	var items []notify.SummaryItem
	ordinals := map[string]string{}
	for _, id := range pending {
		email, err := c.store.GetEmail(id)
		if err != nil {
			logrus.Warnf("Could not load digest email %s: %v", id, err)
			continue
		}
		if email == nil || email.State != model.StateFYINotified {
			// already handled via some other path; drop silently
			continue
		}
		ordinal := len(items) + 1
		items = append(items, notify.SummaryItem{Ordinal: ordinal, Email: email})
		ordinals[strconv.Itoa(ordinal)] = email.ID
	}

	autoSent, err := c.store.GetAutoSentSince(now.Add(-24 * time.Hour))
	if err != nil {
		logrus.Warnf("Could not load auto-sent emails for summary: %v", err)
	}

	if _, err := c.chat.Post(ctx, notify.MorningSummary(items, autoSent, now)); err != nil {
		return false, err
	}
	if c.metrics != nil {
		c.metrics.NotificationsSent.Inc()
	}

	// marker first: a crash between these writes must not cause a re-send
	if err := c.store.SetSetting(model.SettingMorningSummaryDate, today); err != nil {
		return true, err
	}
	if err := c.store.SetSettingJSON(model.SettingSummaryOrdinals, ordinals); err != nil {
		return true, err
	}
	if err := c.store.SetSettingJSON(model.SettingPendingDigest, []string{}); err != nil {
		return true, err
	}
	return true, nil
}
