package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skycomm/email-ai-manager/internal/gateway"
	"github.com/Skycomm/email-ai-manager/internal/model"
)

type fakeChat struct {
	posts     []string
	updates   map[string]string
	updateErr error
	nextID    int
}

func newFakeChat() *fakeChat {
	return &fakeChat{updates: make(map[string]string)}
}

func (f *fakeChat) Post(ctx context.Context, html string) (string, error) {
	f.nextID++
	f.posts = append(f.posts, html)
	return fmt.Sprintf("chat-%d", f.nextID), nil
}

func (f *fakeChat) Update(ctx context.Context, messageID, html string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates[messageID] = html
	return nil
}

func (f *fakeChat) FetchRecentReplies(ctx context.Context, limit int) ([]gateway.ChatReply, error) {
	return nil, nil
}

type fakeSettings struct {
	values map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: make(map[string]string)}
}

func (f *fakeSettings) GetSettingJSON(key string, out interface{}) (bool, error) {
	raw, ok := f.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(raw), out)
}

func (f *fakeSettings) SetSettingJSON(key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.values[key] = string(b)
	return nil
}

func alertEmail(id, subject string) *model.EmailRecord {
	e := model.NewEmailRecord("msg-"+id, "ops@example.com")
	e.ID = id
	e.SenderEmail = "monitor@Datacenter.Example"
	e.Subject = subject
	return e
}

func TestDedupKeyNormalizesDigits(t *testing.T) {
	a := DedupKey(alertEmail("1", "VPN Alert #1021 - Link DOWN"))
	b := DedupKey(alertEmail("2", "VPN Alert #1077 - Link DOWN"))
	assert.Equal(t, a, b, "digit runs must not split the alert group")
	assert.Len(t, a, 16)

	c := DedupKey(alertEmail("3", "Disk Alert #1021"))
	assert.NotEqual(t, a, c)
}

func TestDedupKeyNormalizesTimestamps(t *testing.T) {
	a := DedupKey(alertEmail("1", "Backup failed at 02:15:33"))
	b := DedupKey(alertEmail("2", "Backup failed at 23:59:01"))
	assert.Equal(t, a, b)
}

func TestSendDedupedUpdatesInPlace(t *testing.T) {
	chat := newFakeChat()
	settings := newFakeSettings()
	d, err := NewDeduplicator(chat, settings)
	require.NoError(t, err)

	first := alertEmail("e1", "VPN Alert #1021 - Link DOWN")
	id1, err := d.SendDeduped(context.Background(), first, "<p>alert</p>")
	require.NoError(t, err)
	assert.Len(t, chat.posts, 1)

	second := alertEmail("e2", "VPN Alert #1077 - Link DOWN")
	id2, err := d.SendDeduped(context.Background(), second, "<p>alert</p>")
	require.NoError(t, err)

	// same chat message, updated in place with the occurrence count
	assert.Equal(t, id1, id2)
	assert.Len(t, chat.posts, 1, "a repeat alert must not post a new message")
	require.Contains(t, chat.updates, id1)
	assert.Contains(t, chat.updates[id1], "2 occurrences")

	entry, ok := d.Entry(DedupKey(first))
	require.True(t, ok)
	assert.Equal(t, 2, entry.Count)
	assert.Equal(t, []string{"e1", "e2"}, entry.EmailIDs)
}

func TestSendDedupedFlapSummary(t *testing.T) {
	chat := newFakeChat()
	d, err := NewDeduplicator(chat, newFakeSettings())
	require.NoError(t, err)

	subjects := []string{
		"VPN Tunnel 12 DOWN",
		"VPN Tunnel 12 restored",
		"VPN Tunnel 12 DOWN",
		"VPN Tunnel 12 recovered",
		"VPN Tunnel 12 DOWN",
	}
	var lastID string
	for i, subject := range subjects {
		lastID, err = d.SendDeduped(context.Background(), alertEmail(fmt.Sprintf("e%d", i), subject), "<p>alert</p>")
		require.NoError(t, err)
	}

	assert.Len(t, chat.posts, 1)
	assert.Contains(t, chat.updates[lastID], "flapped 5x (↑2 ↓3) → currently DOWN")
}

func TestSendDedupedUpdateFailureFallsBack(t *testing.T) {
	chat := newFakeChat()
	d, err := NewDeduplicator(chat, newFakeSettings())
	require.NoError(t, err)

	first := alertEmail("e1", "VPN Alert #1021 DOWN")
	id1, err := d.SendDeduped(context.Background(), first, "<p>alert</p>")
	require.NoError(t, err)

	chat.updateErr = errors.New("message too old")
	second := alertEmail("e2", "VPN Alert #1077 DOWN")
	id2, err := d.SendDeduped(context.Background(), second, "<p>alert</p>")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2, "fallback must re-post and re-key")
	assert.Len(t, chat.posts, 2)

	entry, ok := d.Entry(DedupKey(first))
	require.True(t, ok)
	assert.Equal(t, id2, entry.MessageID)
	assert.Equal(t, 2, entry.Count)
}

func TestDedupStateSurvivesRestart(t *testing.T) {
	chat := newFakeChat()
	settings := newFakeSettings()

	d1, err := NewDeduplicator(chat, settings)
	require.NoError(t, err)
	_, err = d1.SendDeduped(context.Background(), alertEmail("e1", "VPN Alert #1021 DOWN"), "<p>alert</p>")
	require.NoError(t, err)

	// new process, same durable store
	d2, err := NewDeduplicator(chat, settings)
	require.NoError(t, err)
	id, err := d2.SendDeduped(context.Background(), alertEmail("e2", "VPN Alert #1077 DOWN"), "<p>alert</p>")
	require.NoError(t, err)

	assert.Len(t, chat.posts, 1, "restart must not re-post a live alert group")
	assert.Contains(t, chat.updates[id], "2 occurrences")
}

func TestStaleEntriesPrunedOnLoad(t *testing.T) {
	settings := newFakeSettings()
	stale := map[string]*DedupEntry{
		"deadbeefdeadbeef": {
			MessageID:   "chat-old",
			Count:       4,
			LastUpdated: time.Now().UTC().Add(-25 * time.Hour),
		},
	}
	require.NoError(t, settings.SetSettingJSON(model.SettingDedupState, stale))

	d, err := NewDeduplicator(newFakeChat(), settings)
	require.NoError(t, err)
	_, ok := d.Entry("deadbeefdeadbeef")
	assert.False(t, ok)
}

func TestExtractStatus(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"Link DOWN on router 4", statusDown},
		{"Service restored", statusUp},
		{"Tunnel is back online", statusUp},
		{"Config changed on fw-2", statusChanged},
		{"Critical: disk failure", statusDown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractStatus(tt.subject), "subject %q", tt.subject)
	}
}
