// Package gateway holds the external-system clients (mailbox, chat, AI,
// calendar) and the normalized DTOs they hand to the rest of the system.
// Remote payload shapes never leak past this package.
package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrSendUnsupported is returned by mailbox backends that can read but not
// submit mail.
var ErrSendUnsupported = errors.New("mailbox backend does not support sending")

// InboundMessage is a normalized mailbox message.
type InboundMessage struct {
	MessageID      string
	ThreadID       string
	Mailbox        string
	From           string
	FromName       string
	To             []string
	CC             []string
	Subject        string
	BodyText       string
	BodyHTML       string
	ReceivedAt     time.Time
	HasAttachments bool
	HasICS         bool
	Importance     string
	Headers        map[string]string
}

// ChatReply is a normalized inbound chat message, the raw material for
// command parsing.
type ChatReply struct {
	ID        string
	From      string
	Text      string
	CreatedAt time.Time
}

// CalendarEvent is a normalized calendar entry.
type CalendarEvent struct {
	ID       string
	Subject  string
	Start    time.Time
	End      time.Time
	Location string
}

// Mailbox is the mail-provider surface the coordinator depends on.
type Mailbox interface {
	// FetchRecent lists messages received in mailbox since the given time.
	FetchRecent(ctx context.Context, mailbox string, since time.Time) ([]InboundMessage, error)
	// GetFull retrieves one message with its full body.
	GetFull(ctx context.Context, mailbox, messageID string) (*InboundMessage, error)
	// Send submits a new message. Backends without a submission channel
	// return ErrSendUnsupported.
	Send(ctx context.Context, mailbox, to, subject, body string) error
	// Move relabels/moves a message to destFolder.
	Move(ctx context.Context, mailbox, messageID, destFolder string) error
	// Delete moves a message to trash.
	Delete(ctx context.Context, mailbox, messageID string) error
	// ListFolders returns the mailbox's folder/label names.
	ListFolders(ctx context.Context, mailbox string) ([]string, error)
	Close() error
}

// Chat is the notification/command channel surface.
type Chat interface {
	// Post publishes an HTML message and returns its channel message id.
	Post(ctx context.Context, html string) (string, error)
	// Update replaces the content of an existing message in place.
	Update(ctx context.Context, messageID, html string) error
	// FetchRecentReplies returns the newest replies in the channel, newest
	// first, capped at limit.
	FetchRecentReplies(ctx context.Context, limit int) ([]ChatReply, error)
}

// Completer is the AI surface. Failures are returned as errors; every caller
// is expected to degrade to a non-AI default.
type Completer interface {
	// Complete returns free text for prompt.
	Complete(ctx context.Context, system, prompt string) (string, error)
	// CompleteJSON returns a response constrained to a JSON object, decoded
	// into out.
	CompleteJSON(ctx context.Context, system, prompt string, out interface{}) error
}

// Calendar exposes read access plus invite acceptance.
type Calendar interface {
	// EventsInRange lists events overlapping [start, end) for mailbox.
	EventsInRange(ctx context.Context, mailbox string, start, end time.Time) ([]CalendarEvent, error)
	// AcceptEvent accepts the invite with the given calendar event id.
	AcceptEvent(ctx context.Context, mailbox, eventID string) error
}
