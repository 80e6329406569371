package gateway

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/sirupsen/logrus"
)

// IMAPOptions carries the connection settings for the IMAP backend.
type IMAPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
}

// IMAPMailbox implements Mailbox over IMAP. IMAP has no submission channel,
// so Send always returns ErrSendUnsupported; deployments that need outbound
// mail must use the Gmail backend.
type IMAPMailbox struct {
	client *client.Client
}

// NewIMAPMailbox connects and logs in over TLS.
func NewIMAPMailbox(opts IMAPOptions) (*IMAPMailbox, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", opts.Host, opts.Port), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	if err := c.Login(opts.Username, opts.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}
	return &IMAPMailbox{client: c}, nil
}

// FetchRecent searches INBOX for messages received since the given time.
func (m *IMAPMailbox) FetchRecent(ctx context.Context, mailbox string, since time.Time) ([]InboundMessage, error) {
	if _, err := m.client.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	uids, err := m.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- m.client.Fetch(seqset, []imap.FetchItem{
			imap.FetchEnvelope, imap.FetchBody, imap.FetchUid, imap.FetchInternalDate,
		}, messages)
	}()

	var out []InboundMessage
	for msg := range messages {
		parsed, err := parseIMAPMessage(msg, mailbox)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message: %v", err)
			continue
		}
		out = append(out, parsed)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return out, nil
}

// GetFull retrieves one message by its Message-Id header.
func (m *IMAPMailbox) GetFull(ctx context.Context, mailbox, messageID string) (*InboundMessage, error) {
	if _, err := m.client.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}
	uids, err := m.searchByMessageID(messageID)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, fmt.Errorf("message %s not found", messageID)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids[0])

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.client.Fetch(seqset, []imap.FetchItem{
			imap.FetchEnvelope, imap.FetchBody, imap.FetchUid, imap.FetchInternalDate,
		}, messages)
	}()

	var result *InboundMessage
	for msg := range messages {
		parsed, err := parseIMAPMessage(msg, mailbox)
		if err != nil {
			continue
		}
		result = &parsed
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("message %s not found", messageID)
	}
	return result, nil
}

// Send is unsupported over IMAP.
func (m *IMAPMailbox) Send(ctx context.Context, mailbox, to, subject, body string) error {
	return ErrSendUnsupported
}

// Move copies the message to destFolder and flags the original deleted.
func (m *IMAPMailbox) Move(ctx context.Context, mailbox, messageID, destFolder string) error {
	if _, err := m.client.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select INBOX: %w", err)
	}
	uids, err := m.searchByMessageID(messageID)
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return fmt.Errorf("message %s not found", messageID)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids[0])

	if err := m.client.Copy(seqset, destFolder); err != nil {
		return fmt.Errorf("failed to copy message to %s: %w", destFolder, err)
	}
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.client.Store(seqset, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return fmt.Errorf("failed to flag message deleted: %w", err)
	}
	if err := m.client.Expunge(nil); err != nil {
		return fmt.Errorf("failed to expunge: %w", err)
	}
	return nil
}

// Delete flags the message deleted and expunges.
func (m *IMAPMailbox) Delete(ctx context.Context, mailbox, messageID string) error {
	if _, err := m.client.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select INBOX: %w", err)
	}
	uids, err := m.searchByMessageID(messageID)
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return fmt.Errorf("message %s not found", messageID)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids[0])
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.client.Store(seqset, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return fmt.Errorf("failed to flag message deleted: %w", err)
	}
	if err := m.client.Expunge(nil); err != nil {
		return fmt.Errorf("failed to expunge: %w", err)
	}
	return nil
}

// ListFolders lists the account's mailboxes.
func (m *IMAPMailbox) ListFolders(ctx context.Context, mailbox string) ([]string, error) {
	boxes := make(chan *imap.MailboxInfo, 32)
	done := make(chan error, 1)
	go func() {
		done <- m.client.List("", "*", boxes)
	}()

	var names []string
	for box := range boxes {
		names = append(names, box.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return names, nil
}

// Close logs out.
func (m *IMAPMailbox) Close() error {
	return m.client.Logout()
}

func (m *IMAPMailbox) searchByMessageID(messageID string) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Header.Set("Message-Id", messageID)
	uids, err := m.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search by message id: %w", err)
	}
	return uids, nil
}

func parseIMAPMessage(msg *imap.Message, mailbox string) (InboundMessage, error) {
	out := InboundMessage{
		Mailbox:    mailbox,
		ReceivedAt: msg.InternalDate.UTC(),
		Importance: "normal",
		Headers:    make(map[string]string),
	}

	if msg.Envelope != nil {
		out.Subject = msg.Envelope.Subject
		out.MessageID = msg.Envelope.MessageId
		if len(msg.Envelope.From) > 0 {
			out.From = msg.Envelope.From[0].Address()
			out.FromName = msg.Envelope.From[0].PersonalName
		}
		for _, addr := range msg.Envelope.To {
			out.To = append(out.To, addr.Address())
		}
		for _, addr := range msg.Envelope.Cc {
			out.CC = append(out.CC, addr.Address())
		}
		// IMAP has no thread id; References/In-Reply-To collapse to the root
		if msg.Envelope.InReplyTo != "" {
			out.ThreadID = msg.Envelope.InReplyTo
		} else {
			out.ThreadID = out.MessageID
		}
	}

	if err := parseIMAPBody(msg, &out); err != nil {
		return out, err
	}
	return out, nil
}

func parseIMAPBody(msg *imap.Message, out *InboundMessage) error {
	if msg.Body == nil {
		return nil
	}
	section := &imap.BodySectionName{}
	r := msg.GetBody(section)
	if r == nil {
		return fmt.Errorf("failed to get message body")
	}

	entity, err := message.Read(r)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read part: %w", err)
			}
			content, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("failed to read part body: %w", err)
			}
			contentType := p.Header.Get("Content-Type")
			disposition := p.Header.Get("Content-Disposition")
			switch {
			case strings.Contains(contentType, "text/plain") && disposition == "":
				out.BodyText = string(content)
			case strings.Contains(contentType, "text/html") && disposition == "":
				out.BodyHTML = string(content)
			case strings.Contains(contentType, "text/calendar"):
				out.HasICS = true
			default:
				if strings.Contains(disposition, "attachment") {
					out.HasAttachments = true
					if strings.Contains(disposition, ".ics") || strings.Contains(contentType, "calendar") {
						out.HasICS = true
					}
				}
			}
		}
		return nil
	}

	content, err := io.ReadAll(entity.Body)
	if err != nil {
		return fmt.Errorf("failed to read message body: %w", err)
	}
	contentType := entity.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		out.BodyHTML = string(content)
	} else {
		out.BodyText = string(content)
	}
	return nil
}
