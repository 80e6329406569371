package coordinator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Skycomm/email-ai-manager/internal/model"
	"github.com/Skycomm/email-ai-manager/internal/notify"
)

// autoArchiveSweep closes out FYI emails that sat unread past the
// configured age. Runs right after the morning summary, so nothing is
// archived before it has appeared in at least one digest.
func (c *Coordinator) autoArchiveSweep() (int, error) {
	stale, err := c.store.GetArchivableFYI(c.now(), c.config.FYIArchiveAfter)
	if err != nil {
		return 0, err
	}
	archived := 0
	for i := range stale {
		email := &stale[i]
		if err := email.Transition(model.StateArchived); err != nil {
			logrus.Warnf("Could not archive FYI email %s: %v", email.ID, err)
			continue
		}
		if err := c.store.SaveEmail(email); err != nil {
			logrus.Errorf("Could not persist archive for %s: %v", email.ID, err)
			continue
		}
		c.audit(email.ID, "fyi_auto_archived", model.ActorSystem, "", true)
		archived++
	}
	return archived, nil
}

// followUpSweep posts reminders for due follow-ups and reschedules each for
// the next day with an escalated count.
func (c *Coordinator) followUpSweep(ctx context.Context) (int, error) {
	due, err := c.store.GetDueFollowUps(c.now())
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range due {
		email := &due[i]
		if _, err := c.chat.Post(ctx, notify.FollowUpReminder(email)); err != nil {
			logrus.Errorf("Could not post follow-up reminder for %s: %v", email.ID, err)
			continue
		}
		email.FollowUpRemindedCount++
		next := c.now().UTC().Add(24 * time.Hour)
		email.FollowUpAt = &next
		if err := c.store.SaveEmail(email); err != nil {
			logrus.Errorf("Could not reschedule follow-up for %s: %v", email.ID, err)
			continue
		}
		c.audit(email.ID, "follow_up_reminded", model.ActorSystem, email.FollowUpNote, true)
		sent++
	}
	return sent, nil
}
