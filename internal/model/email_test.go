package model

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateApprovalToken(t *testing.T) {
	hexToken := regexp.MustCompile(`^[0-9a-f]{6}$`)

	e := NewEmailRecord("msg-1", "ops@example.com")
	first := e.GenerateApprovalToken()
	require.Regexp(t, hexToken, first)
	assert.Equal(t, first, e.ApprovalToken)

	// regeneration invalidates the previous token
	second := e.GenerateApprovalToken()
	require.Regexp(t, hexToken, second)
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, e.ApprovalToken)
}

func TestAddDraftVersion(t *testing.T) {
	e := NewEmailRecord("msg-1", "ops@example.com")

	e.AddDraftVersion("first draft")
	assert.Equal(t, "first draft", e.CurrentDraft)
	assert.Empty(t, e.DraftVersions)

	e.AddDraftVersion("second draft")
	assert.Equal(t, "second draft", e.CurrentDraft)
	require.Len(t, e.DraftVersions, 1)
	assert.Equal(t, "first draft", e.DraftVersions[0])

	e.AddDraftVersion("third draft")
	assert.Equal(t, StringList{"first draft", "second draft"}, e.DraftVersions)
}

func TestSenderDomain(t *testing.T) {
	tests := []struct {
		sender string
		want   string
	}{
		{"Alice@Example.COM", "example.com"},
		{"bob@mail.internal.example.org", "mail.internal.example.org"},
		{"no-at-sign", ""},
		{"", ""},
	}
	for _, tt := range tests {
		e := &EmailRecord{SenderEmail: tt.sender}
		assert.Equal(t, tt.want, e.SenderDomain(), "sender %q", tt.sender)
	}
}

func TestStringListRoundTrip(t *testing.T) {
	l := StringList{"a@example.com", "b@example.com"}
	v, err := l.Value()
	require.NoError(t, err)

	var out StringList
	require.NoError(t, out.Scan(v))
	assert.Equal(t, l, out)

	var empty StringList
	require.NoError(t, empty.Scan([]byte("[]")))
	assert.Empty(t, empty)
}

func TestMutedSenderActive(t *testing.T) {
	m := NewMutedSender("noise.example.com", "alert storm")
	assert.True(t, m.Active(m.MutedAt))

	expiry := m.MutedAt.Add(1)
	m.ExpiresAt = &expiry
	assert.False(t, m.Active(expiry))
}
