package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skycomm/email-ai-manager/internal/classifier"
	"github.com/Skycomm/email-ai-manager/internal/drafting"
	"github.com/Skycomm/email-ai-manager/internal/gateway"
	"github.com/Skycomm/email-ai-manager/internal/model"
	"github.com/Skycomm/email-ai-manager/internal/notify"
)

// memStore is an in-memory Store for coordinator tests.
type memStore struct {
	emails    map[string]*model.EmailRecord
	order     []string
	processed map[string]bool
	muted     map[string]bool
	spamRules []model.SpamRule
	audits    []*model.AuditLogEntry
	settings  map[string]string

	failSaveSubject string
}

func newMemStore() *memStore {
	return &memStore{
		emails:    make(map[string]*model.EmailRecord),
		processed: make(map[string]bool),
		muted:     make(map[string]bool),
		settings:  make(map[string]string),
	}
}

func (m *memStore) put(e *model.EmailRecord) {
	if _, ok := m.emails[e.ID]; !ok {
		m.order = append(m.order, e.ID)
	}
	cp := *e
	m.emails[e.ID] = &cp
}

func (m *memStore) UpsertEmail(e *model.EmailRecord) error { m.put(e); return nil }

func (m *memStore) SaveEmail(e *model.EmailRecord) error {
	if m.failSaveSubject != "" && e.Subject == m.failSaveSubject {
		return errors.New("simulated database failure")
	}
	m.put(e)
	return nil
}

func (m *memStore) GetEmail(id string) (*model.EmailRecord, error) {
	e, ok := m.emails[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) GetEmailByToken(token string) (*model.EmailRecord, error) {
	for _, e := range m.emails {
		if e.ApprovalToken == token && e.State == model.StateAwaitingApproval {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetEmailsByState(state model.EmailState, limit int) ([]model.EmailRecord, error) {
	var out []model.EmailRecord
	for _, id := range m.order {
		e := m.emails[id]
		if e.State == state {
			out = append(out, *e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetStuckNewEmails() ([]model.EmailRecord, error) {
	return m.GetEmailsByState(model.StateNew, 0)
}

func (m *memStore) GetLatestAwaitingApproval() (*model.EmailRecord, error) {
	var latest *model.EmailRecord
	for _, e := range m.emails {
		if e.State != model.StateAwaitingApproval {
			continue
		}
		if latest == nil || e.UpdatedAt.After(latest.UpdatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) GetThreadEmails(threadID, excludeID string, limit int) ([]model.EmailRecord, error) {
	var out []model.EmailRecord
	for _, id := range m.order {
		e := m.emails[id]
		if e.ThreadID == threadID && e.ID != excludeID {
			out = append(out, *e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetDueFollowUps(now time.Time) ([]model.EmailRecord, error) {
	var out []model.EmailRecord
	for _, id := range m.order {
		e := m.emails[id]
		if e.State == model.StateFollowUp && e.FollowUpAt != nil && !e.FollowUpAt.After(now) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) GetArchivableFYI(now time.Time, age time.Duration) ([]model.EmailRecord, error) {
	cutoff := now.Add(-age)
	var out []model.EmailRecord
	for _, id := range m.order {
		e := m.emails[id]
		if e.State == model.StateFYINotified && e.UpdatedAt.Before(cutoff) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) GetAutoSentSince(cutoff time.Time) ([]model.EmailRecord, error) {
	var out []model.EmailRecord
	for _, id := range m.order {
		e := m.emails[id]
		if e.State == model.StateSent && e.HandledBy == model.HandledByAI &&
			e.SentAt != nil && e.SentAt.After(cutoff) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) IsMessageProcessed(messageID, mailbox string) (bool, error) {
	return m.processed[messageID+"|"+mailbox], nil
}

func (m *memStore) MarkMessageProcessed(messageID, mailbox string) error {
	m.processed[messageID+"|"+mailbox] = true
	return nil
}

func (m *memStore) IsSenderMuted(senderEmail string) (bool, error) {
	addr := strings.ToLower(senderEmail)
	if m.muted[addr] {
		return true, nil
	}
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return m.muted[addr[i+1:]], nil
	}
	return false, nil
}

func (m *memStore) MuteSender(pattern, reason string) (*model.MutedSender, error) {
	m.muted[strings.ToLower(pattern)] = true
	return model.NewMutedSender(strings.ToLower(pattern), reason), nil
}

func (m *memStore) GetActiveSpamRules() ([]model.SpamRule, error) {
	var out []model.SpamRule
	for _, r := range m.spamRules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) GetActiveEmailRules() ([]model.EmailRule, error) { return nil, nil }

func (m *memStore) UpsertSpamRule(ruleType, pattern string, confidence int) (*model.SpamRule, error) {
	rule := model.NewSpamRule(ruleType, pattern, confidence)
	m.spamRules = append(m.spamRules, *rule)
	return rule, nil
}

func (m *memStore) ReportSpamFalsePositiveByPattern(patterns ...string) error {
	for i := range m.spamRules {
		for _, p := range patterns {
			if m.spamRules[i].Pattern == p {
				m.spamRules[i].Confidence -= 10
			}
		}
	}
	return nil
}

func (m *memStore) RecordEmailRuleHit(id string) error { return nil }

func (m *memStore) AppendAudit(entry *model.AuditLogEntry) error {
	m.audits = append(m.audits, entry)
	return nil
}

func (m *memStore) GetSetting(key string) (string, error) { return m.settings[key], nil }

func (m *memStore) SetSetting(key, value string) error {
	m.settings[key] = value
	return nil
}

func (m *memStore) GetSettingJSON(key string, out interface{}) (bool, error) {
	raw, ok := m.settings[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(raw), out)
}

func (m *memStore) SetSettingJSON(key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.settings[key] = string(b)
	return nil
}

func (m *memStore) auditActions() []string {
	var out []string
	for _, a := range m.audits {
		out = append(out, a.Action)
	}
	return out
}

type sentMail struct {
	Mailbox, To, Subject, Body string
}

type fakeMailbox struct {
	messages []gateway.InboundMessage
	deleted  []string
	moved    []string
	sent     []sentMail
	sendErr  error
}

func (f *fakeMailbox) FetchRecent(ctx context.Context, mailbox string, since time.Time) ([]gateway.InboundMessage, error) {
	var out []gateway.InboundMessage
	for _, msg := range f.messages {
		if msg.Mailbox == mailbox {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeMailbox) GetFull(ctx context.Context, mailbox, messageID string) (*gateway.InboundMessage, error) {
	return nil, nil
}

func (f *fakeMailbox) Send(ctx context.Context, mailbox, to, subject, body string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMail{mailbox, to, subject, body})
	return nil
}

func (f *fakeMailbox) Move(ctx context.Context, mailbox, messageID, destFolder string) error {
	f.moved = append(f.moved, messageID+"->"+destFolder)
	return nil
}

func (f *fakeMailbox) Delete(ctx context.Context, mailbox, messageID string) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMailbox) ListFolders(ctx context.Context, mailbox string) ([]string, error) {
	return nil, nil
}

func (f *fakeMailbox) Close() error { return nil }

type chatFake struct {
	posts   []string
	updates map[string]string
	replies []gateway.ChatReply
	nextID  int
}

func newChatFake() *chatFake {
	return &chatFake{updates: make(map[string]string)}
}

func (f *chatFake) Post(ctx context.Context, html string) (string, error) {
	f.nextID++
	f.posts = append(f.posts, html)
	return fmt.Sprintf("chat-%d", f.nextID), nil
}

func (f *chatFake) Update(ctx context.Context, messageID, html string) error {
	f.updates[messageID] = html
	return nil
}

func (f *chatFake) FetchRecentReplies(ctx context.Context, limit int) ([]gateway.ChatReply, error) {
	out := make([]gateway.ChatReply, len(f.replies))
	copy(out, f.replies)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *chatFake) reply(text string, at time.Time) {
	f.replies = append(f.replies, gateway.ChatReply{
		ID:        fmt.Sprintf("reply-%d", len(f.replies)+1),
		From:      "user",
		Text:      text,
		CreatedAt: at,
	})
}

type fakeAI struct {
	jsonResponse map[string]interface{}
	jsonErr      error
	textResponse string
	textErr      error
	jsonCalls    int
	textCalls    int
}

func (f *fakeAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.textCalls++
	if f.textErr != nil {
		return "", f.textErr
	}
	if f.textResponse == "" {
		return "Generated text.", nil
	}
	return f.textResponse, nil
}

func (f *fakeAI) CompleteJSON(ctx context.Context, system, prompt string, out interface{}) error {
	f.jsonCalls++
	if f.jsonErr != nil {
		return f.jsonErr
	}
	b, err := json.Marshal(f.jsonResponse)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

type fixture struct {
	store   *memStore
	mailbox *fakeMailbox
	chat    *chatFake
	ai      *fakeAI
	coord   *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	mailbox := &fakeMailbox{}
	chat := newChatFake()
	ai := &fakeAI{
		jsonResponse: map[string]interface{}{
			"category":    "action_required",
			"priority":    2,
			"needs_reply": true,
			"reasoning":   "requires a reply",
		},
	}

	dedup, err := notify.NewDeduplicator(chat, store)
	require.NoError(t, err)

	spam := classifier.NewSpamClassifier(ai, classifier.SpamConfig{
		SpamSenderDomains: []string{"spamdomain.example"},
	})
	drafts := drafting.NewGenerator(ai, "David")
	rules := classifier.NewRulesEvaluator(ai, store)

	coord := New(store, mailbox, chat, ai, spam, nil, rules, drafts, dedup, nil, Config{
		Mailboxes: []string{"david@skycomm.example"},
		// Hour() never reaches 24, so the digest only fires in tests that
		// lower this explicitly.
		MorningSummaryHour: 24,
		SenderName:         "David",
	})
	return &fixture{store: store, mailbox: mailbox, chat: chat, ai: ai, coord: coord}
}

func inbound(messageID, from, subject, body string) gateway.InboundMessage {
	return gateway.InboundMessage{
		MessageID:  messageID,
		Mailbox:    "david@skycomm.example",
		From:       from,
		Subject:    subject,
		BodyText:   body,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestActionEmailEndsAwaitingApproval(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []gateway.InboundMessage{
		inbound("m1", "boss@client.example", "Quarterly Report - Action Needed",
			"Please send over the Q3 numbers by Friday."),
	}

	summary := f.coord.RunCycle(context.Background())
	assert.Equal(t, 1, summary.Ingested)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Errors)

	emails, err := f.store.GetEmailsByState(model.StateAwaitingApproval, 0)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	email := emails[0]

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{6}$`), email.ApprovalToken)
	assert.NotEmpty(t, email.CurrentDraft)
	assert.Equal(t, 2, email.Priority)
	assert.NotEmpty(t, email.ChatMessageID)

	require.Len(t, f.chat.posts, 1)
	assert.Contains(t, f.chat.posts[0], email.ApprovalToken)
	assert.Contains(t, f.chat.posts[0], "Quarterly Report")

	processed, err := f.store.IsMessageProcessed("m1", "david@skycomm.example")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Contains(t, f.store.auditActions(), "email_processed")
}

func TestIngestionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []gateway.InboundMessage{
		inbound("m1", "boss@client.example", "Quarterly Report", "Numbers please."),
	}

	first := f.coord.RunCycle(context.Background())
	assert.Equal(t, 1, first.Processed)

	second := f.coord.RunCycle(context.Background())
	assert.Equal(t, 0, second.Ingested)
	assert.Equal(t, 0, second.Processed)
	assert.Len(t, f.chat.posts, 1, "a reprocessed message must not notify again")
}

func TestHardSpamDeletedSilently(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []gateway.InboundMessage{
		inbound("m1", "promo@spamdomain.example", "WIN A FREE PRIZE NOW", "Claim your winner bonus!"),
	}

	summary := f.coord.RunCycle(context.Background())
	assert.Equal(t, 1, summary.SpamFiltered)
	assert.Empty(t, f.chat.posts, "hard spam must never notify")
	assert.Contains(t, f.mailbox.deleted, "m1")

	emails, err := f.store.GetEmailsByState(model.StateSpamDetected, 0)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Zero(t, f.ai.jsonCalls, "hard spam must not reach the AI")
}

func TestMutedSenderArchivedWithoutAI(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.MuteSender("noreply@vendor.example", "test")
	require.NoError(t, err)
	f.mailbox.messages = []gateway.InboundMessage{
		inbound("m1", "noreply@vendor.example", "Your weekly update", "News inside."),
	}

	f.coord.RunCycle(context.Background())

	emails, err := f.store.GetEmailsByState(model.StateArchived, 0)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, model.HandledByRule, emails[0].HandledBy)
	assert.Zero(t, f.ai.jsonCalls)
	assert.Zero(t, f.ai.textCalls)
	assert.Empty(t, f.chat.posts)
}

func TestTwoStepSendGate(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []gateway.InboundMessage{
		inbound("m1", "boss@client.example", "Quarterly Report", "Numbers please."),
	}
	f.coord.RunCycle(context.Background())
	postsAfterIngest := len(f.chat.posts)

	// step one: approve moves to APPROVED and asks for confirmation, no send
	f.chat.reply("approve", time.Now().Add(time.Second))
	f.coord.RunCycle(context.Background())

	approved, err := f.store.GetEmailsByState(model.StateApproved, 0)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Empty(t, f.mailbox.sent, "approve alone must not send")
	require.Greater(t, len(f.chat.posts), postsAfterIngest)
	assert.Contains(t, f.chat.posts[len(f.chat.posts)-1], "confirm send")

	// step two: confirm send executes it
	f.chat.reply("confirm send", time.Now().Add(2*time.Second))
	f.coord.RunCycle(context.Background())

	require.Len(t, f.mailbox.sent, 1)
	assert.Equal(t, "boss@client.example", f.mailbox.sent[0].To)
	assert.Equal(t, "Re: Quarterly Report", f.mailbox.sent[0].Subject)

	sent, err := f.store.GetEmailsByState(model.StateSent, 0)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, model.HandledByUser, sent[0].HandledBy)
	assert.NotNil(t, sent[0].SentAt)
}

func TestConfirmSendFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []gateway.InboundMessage{
		inbound("m1", "boss@client.example", "Quarterly Report", "Numbers please."),
	}
	f.coord.RunCycle(context.Background())
	f.chat.reply("approve", time.Now().Add(time.Second))
	f.coord.RunCycle(context.Background())

	f.mailbox.sendErr = errors.New("smtp unavailable")
	f.chat.reply("confirm send", time.Now().Add(2*time.Second))
	f.coord.RunCycle(context.Background())

	// email stays approved so the user can retry; failure is chat-visible
	approved, err := f.store.GetEmailsByState(model.StateApproved, 0)
	require.NoError(t, err)
	assert.Len(t, approved, 1)
	sent, err := f.store.GetEmailsByState(model.StateSent, 0)
	require.NoError(t, err)
	assert.Empty(t, sent)

	var sawFailure bool
	for _, post := range f.chat.posts {
		if strings.Contains(post, "❌") {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure, "send failure must be posted to the channel")

	var auditFail bool
	for _, a := range f.store.audits {
		if a.Action == "send" && !a.Success {
			auditFail = true
		}
	}
	assert.True(t, auditFail)
}

func TestSpamCommandLearnsRule(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []gateway.InboundMessage{
		inbound("m1", "sales@coldoutreach.example", "Quick question", "Do you have 15 minutes?"),
	}
	f.coord.RunCycle(context.Background())

	f.chat.reply("spam", time.Now().Add(time.Second))
	f.coord.RunCycle(context.Background())

	require.Len(t, f.store.spamRules, 1)
	assert.Equal(t, model.SpamRuleSenderDomain, f.store.spamRules[0].RuleType)
	assert.Equal(t, "coldoutreach.example", f.store.spamRules[0].Pattern)
	assert.Equal(t, learnedSpamConfidence, f.store.spamRules[0].Confidence)
	assert.Contains(t, f.mailbox.deleted, "m1")

	archived, err := f.store.GetEmailsByState(model.StateArchived, 0)
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestFailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.store.failSaveSubject = "Poison"
	f.mailbox.messages = []gateway.InboundMessage{
		inbound("m1", "a@client.example", "Poison", "This one breaks persistence."),
		inbound("m2", "b@client.example", "Healthy", "This one is fine."),
	}

	summary := f.coord.RunCycle(context.Background())
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Processed)

	healthy, err := f.store.GetEmailsByState(model.StateAwaitingApproval, 0)
	require.NoError(t, err)
	require.Len(t, healthy, 1)
	assert.Equal(t, "Healthy", healthy[0].Subject)
}

func TestMorningSummaryOncePerDay(t *testing.T) {
	f := newFixture(t)
	f.coord.config.MorningSummaryHour = 0

	for i := 1; i <= 2; i++ {
		e := model.NewEmailRecord(fmt.Sprintf("n%d", i), "david@skycomm.example")
		e.SenderEmail = fmt.Sprintf("news%d@letter.example", i)
		e.Subject = fmt.Sprintf("Newsletter %d", i)
		e.Summary = fmt.Sprintf("Digest item %d", i)
		e.Category = model.CategoryNewsletter
		e.ForceState(model.StateFYINotified)
		f.store.put(e)
		require.NoError(t, f.coord.deferToDigest(e.ID))
	}

	sent, err := f.coord.maybeSendMorningSummary(context.Background())
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, f.chat.posts, 1)
	assert.Contains(t, f.chat.posts[0], "Digest item 1")
	assert.Contains(t, f.chat.posts[0], "more N")

	// ordinal map persisted for `more N` / `spam N`
	ordinals := map[string]string{}
	found, err := f.store.GetSettingJSON(model.SettingSummaryOrdinals, &ordinals)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, ordinals, 2)

	// same day: no second digest
	sent, err = f.coord.maybeSendMorningSummary(context.Background())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Len(t, f.chat.posts, 1)

	// `more 1` resolves through the persisted ordinals
	email, err := f.coord.emailByOrdinal("1")
	require.NoError(t, err)
	assert.Equal(t, "Newsletter 1", email.Subject)
}

func TestFollowUpSweepRemindsAndReschedules(t *testing.T) {
	f := newFixture(t)

	e := model.NewEmailRecord("m1", "david@skycomm.example")
	e.SenderEmail = "boss@client.example"
	e.Subject = "Contract renewal"
	e.FollowUpNote = "chase the signature"
	due := time.Now().UTC().Add(-time.Hour)
	e.FollowUpAt = &due
	e.ForceState(model.StateFollowUp)
	f.store.put(e)

	sent, err := f.coord.followUpSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, f.chat.posts, 1)
	assert.Contains(t, f.chat.posts[0], "chase the signature")

	saved, err := f.store.GetEmail(e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.FollowUpRemindedCount)
	require.NotNil(t, saved.FollowUpAt)
	assert.True(t, saved.FollowUpAt.After(time.Now().UTC()))
}

func TestDismissAllArchivesSpamCandidates(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []gateway.InboundMessage{
		inbound("m1", "promo@spamdomain.example", "WIN A FREE PRIZE NOW", "Claim your winner bonus!"),
		inbound("m2", "deals@spamdomain.example", "FREE PRIZE inside", "You are today's winner!"),
	}
	f.coord.RunCycle(context.Background())

	candidates, err := f.store.GetEmailsByState(model.StateSpamDetected, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	f.chat.reply("dismiss all", time.Now().Add(time.Second))
	f.coord.RunCycle(context.Background())

	remaining, err := f.store.GetEmailsByState(model.StateSpamDetected, 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	archived, err := f.store.GetEmailsByState(model.StateArchived, 0)
	require.NoError(t, err)
	assert.Len(t, archived, 2)
	for _, e := range archived {
		assert.Equal(t, model.HandledByUser, e.HandledBy)
	}
	assert.Contains(t, f.store.auditActions(), "dismissed")
	require.NotEmpty(t, f.chat.posts)
	assert.Contains(t, f.chat.posts[len(f.chat.posts)-1], "Dismissed")
}

func TestArchiveAllArchivesDeferredFYI(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 3; i++ {
		e := model.NewEmailRecord(fmt.Sprintf("n%d", i), "david@skycomm.example")
		e.SenderEmail = fmt.Sprintf("news%d@letter.example", i)
		e.Subject = fmt.Sprintf("Newsletter %d", i)
		e.Category = model.CategoryNewsletter
		e.ForceState(model.StateFYINotified)
		f.store.put(e)
	}

	f.chat.reply("archive_all", time.Now())
	handled, err := f.coord.processCommands(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	deferred, err := f.store.GetEmailsByState(model.StateFYINotified, 0)
	require.NoError(t, err)
	assert.Empty(t, deferred)
	archived, err := f.store.GetEmailsByState(model.StateArchived, 0)
	require.NoError(t, err)
	assert.Len(t, archived, 3)
	require.NotEmpty(t, f.chat.posts)
	assert.Contains(t, f.chat.posts[len(f.chat.posts)-1], "Archived")
}

func TestEditAfterApproveRevokesApproval(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []gateway.InboundMessage{
		inbound("m1", "boss@client.example", "Quarterly Report", "Numbers please."),
	}
	f.coord.RunCycle(context.Background())

	awaiting, err := f.store.GetEmailsByState(model.StateAwaitingApproval, 0)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	oldToken := awaiting[0].ApprovalToken

	f.chat.reply("approve", time.Now().Add(time.Second))
	f.coord.RunCycle(context.Background())

	// editing after approval pulls the draft back through the send gate
	f.chat.reply("edit: mention the deadline", time.Now().Add(2*time.Second))
	f.coord.RunCycle(context.Background())

	approved, err := f.store.GetEmailsByState(model.StateApproved, 0)
	require.NoError(t, err)
	assert.Empty(t, approved, "an edited draft must need re-approval")
	awaiting, err = f.store.GetEmailsByState(model.StateAwaitingApproval, 0)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.NotEqual(t, oldToken, awaiting[0].ApprovalToken)
	assert.Empty(t, f.mailbox.sent)
}

func TestUnknownRepliesAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.chat.reply("should we approve this?", time.Now())

	handled, err := f.coord.processCommands(context.Background())
	require.NoError(t, err)
	assert.Zero(t, handled)
	assert.Empty(t, f.chat.posts)
}
