package notify

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Skycomm/email-ai-manager/internal/gateway"
	"github.com/Skycomm/email-ai-manager/internal/model"
)

// dedupTTL is how long an entry stays live without a new occurrence.
const dedupTTL = 24 * time.Hour

var (
	timestampRe = regexp.MustCompile(`\d{1,2}:\d{2}(?::\d{2})?`)
	digitsRe    = regexp.MustCompile(`\d+`)
)

// alert status keywords, matched against each new subject to build the
// flap history
var (
	upKeywords   = []string{"up", "resolved", "recovered", "restored", "online", "ok"}
	downKeywords = []string{"down", "offline", "failed", "failure", "critical", "unreachable"}
)

const (
	statusUp      = "up"
	statusDown    = "down"
	statusChanged = "changed"
)

// DedupEntry is the durable record of a collapsed alert group.
type DedupEntry struct {
	MessageID     string    `json:"message_id"`
	Count         int       `json:"count"`
	EmailIDs      []string  `json:"email_ids"`
	StatusHistory []string  `json:"status_history"`
	LastUpdated   time.Time `json:"last_updated"`
}

// DedupStore is the durable-settings slice the deduplicator needs.
type DedupStore interface {
	GetSettingJSON(key string, out interface{}) (bool, error)
	SetSettingJSON(key string, v interface{}) error
}

// Deduplicator collapses repeating alert notifications into a single chat
// message updated in place. This is the anti-spam-storm mechanism for noisy
// monitoring senders; its state is durable so a restart cannot re-post a
// storm.
type Deduplicator struct {
	chat    gateway.Chat
	store   DedupStore
	entries map[string]*DedupEntry
}

// NewDeduplicator loads durable state and prunes entries idle for more than
// 24 hours.
func NewDeduplicator(chat gateway.Chat, store DedupStore) (*Deduplicator, error) {
	d := &Deduplicator{
		chat:    chat,
		store:   store,
		entries: make(map[string]*DedupEntry),
	}
	if _, err := store.GetSettingJSON(model.SettingDedupState, &d.entries); err != nil {
		return nil, fmt.Errorf("failed to load dedup state: %w", err)
	}
	if d.entries == nil {
		d.entries = make(map[string]*DedupEntry)
	}

	cutoff := time.Now().UTC().Add(-dedupTTL)
	for key, entry := range d.entries {
		if entry.LastUpdated.Before(cutoff) {
			delete(d.entries, key)
		}
	}
	return d, nil
}

// DedupKey derives the grouping key: sender domain plus the subject with
// digits and timestamps collapsed, so "VPN Alert #1021" and "VPN Alert #1077"
// share a key.
func DedupKey(email *model.EmailRecord) string {
	subject := timestampRe.ReplaceAllString(email.Subject, "#")
	subject = digitsRe.ReplaceAllString(subject, "#")
	sum := md5.Sum([]byte(email.SenderDomain() + ":" + subject))
	return hex.EncodeToString(sum[:])[:16]
}

// SendDeduped posts the notification, or updates the existing chat message in
// place when the email repeats a live alert group. Returns the chat message
// id carrying the notification.
func (d *Deduplicator) SendDeduped(ctx context.Context, email *model.EmailRecord, content string) (string, error) {
	key := DedupKey(email)
	entry, exists := d.entries[key]

	if !exists || time.Since(entry.LastUpdated) > dedupTTL {
		messageID, err := d.chat.Post(ctx, content)
		if err != nil {
			return "", fmt.Errorf("failed to post notification: %w", err)
		}
		d.entries[key] = &DedupEntry{
			MessageID:     messageID,
			Count:         1,
			EmailIDs:      []string{email.ID},
			StatusHistory: []string{extractStatus(email.Subject)},
			LastUpdated:   time.Now().UTC(),
		}
		d.persist()
		return messageID, nil
	}

	entry.Count++
	entry.EmailIDs = append(entry.EmailIDs, email.ID)
	entry.StatusHistory = append(entry.StatusHistory, extractStatus(email.Subject))
	entry.LastUpdated = time.Now().UTC()

	updated := content + d.occurrenceSummary(entry)
	if err := d.chat.Update(ctx, entry.MessageID, updated); err != nil {
		// message too old or deleted upstream: fall back to a fresh post
		// under the same key
		logrus.Warnf("Failed to update deduped message %s, re-posting: %v", entry.MessageID, err)
		messageID, postErr := d.chat.Post(ctx, updated)
		if postErr != nil {
			return "", fmt.Errorf("failed to re-post notification: %w", postErr)
		}
		entry.MessageID = messageID
	}
	d.persist()
	return entry.MessageID, nil
}

// occurrenceSummary renders the count and flap line appended to an updated
// message.
func (d *Deduplicator) occurrenceSummary(entry *DedupEntry) string {
	summary := fmt.Sprintf("<hr><p>🔁 <b>%d occurrences</b> (last at %s)",
		entry.Count, entry.LastUpdated.Format("15:04 MST"))
	if flap := FlapSummary(entry.StatusHistory); flap != "" {
		summary += "<br>" + flap
	}
	return summary + "</p>"
}

// FlapSummary derives a transition line from the status history, e.g.
// "flapped 5x (↑2 ↓3) → currently DOWN". Histories without any up/down
// signal yield an empty string.
func FlapSummary(history []string) string {
	ups, downs := 0, 0
	current := ""
	for _, status := range history {
		switch status {
		case statusUp:
			ups++
			current = "UP"
		case statusDown:
			downs++
			current = "DOWN"
		}
	}
	if ups+downs == 0 {
		return ""
	}
	return fmt.Sprintf("flapped %dx (↑%d ↓%d) → currently %s", ups+downs, ups, downs, current)
}

// extractStatus classifies one subject as an up, down, or changed signal.
func extractStatus(subject string) string {
	words := strings.FieldsFunc(strings.ToLower(subject), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, w := range words {
		for _, kw := range downKeywords {
			if w == kw {
				return statusDown
			}
		}
	}
	for _, w := range words {
		for _, kw := range upKeywords {
			if w == kw {
				return statusUp
			}
		}
	}
	return statusChanged
}

// persist writes the dedup map to durable storage. Persistence failures are
// logged, not fatal: the in-memory state stays correct for this process.
func (d *Deduplicator) persist() {
	if err := d.store.SetSettingJSON(model.SettingDedupState, d.entries); err != nil {
		logrus.Errorf("Failed to persist dedup state: %v", err)
	}
}

// Entry exposes the live entry for a key, for tests and the dashboard.
func (d *Deduplicator) Entry(key string) (*DedupEntry, bool) {
	entry, ok := d.entries[key]
	return entry, ok
}
