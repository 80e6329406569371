package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailOptions carries the OAuth credentials for the Gmail backend.
type GmailOptions struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// GmailMailbox implements Mailbox on the Gmail REST API. The mailbox argument
// of each call is the Gmail user (email address) to act as.
type GmailMailbox struct {
	service *gmail.Service
}

// NewGmailMailbox builds a Gmail-backed mailbox gateway.
func NewGmailMailbox(ctx context.Context, opts GmailOptions) (*GmailMailbox, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		Scopes:       []string{gmail.GmailModifyScope},
		Endpoint:     google.Endpoint,
	}
	token := &oauth2.Token{RefreshToken: opts.RefreshToken}
	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &GmailMailbox{service: service}, nil
}

// FetchRecent lists messages received since the given time.
func (g *GmailMailbox) FetchRecent(ctx context.Context, mailbox string, since time.Time) ([]InboundMessage, error) {
	query := fmt.Sprintf("after:%d", since.Unix())
	response, err := g.service.Users.Messages.List(mailbox).Q(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var messages []InboundMessage
	for _, stub := range response.Messages {
		full, err := g.service.Users.Messages.Get(mailbox, stub.Id).Format("full").Context(ctx).Do()
		if err != nil {
			logrus.Warnf("Failed to get message %s: %v", stub.Id, err)
			continue
		}
		msg, err := parseGmailMessage(full, mailbox)
		if err != nil {
			logrus.Warnf("Failed to parse message %s: %v", stub.Id, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// GetFull retrieves one message with its full body.
func (g *GmailMailbox) GetFull(ctx context.Context, mailbox, messageID string) (*InboundMessage, error) {
	full, err := g.service.Users.Messages.Get(mailbox, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	msg, err := parseGmailMessage(full, mailbox)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Send submits a message, retrying up to 3 times on quota errors with
// quadratic backoff.
func (g *GmailMailbox) Send(ctx context.Context, mailbox, to, subject, body string) error {
	var raw strings.Builder
	raw.WriteString(fmt.Sprintf("From: %s\r\n", mailbox))
	raw.WriteString(fmt.Sprintf("To: %s\r\n", to))
	raw.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	raw.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	raw.WriteString("MIME-Version: 1.0\r\n")
	raw.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	raw.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	raw.WriteString("\r\n")
	raw.WriteString(body)

	message := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw.String())),
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := g.service.Users.Messages.Send(mailbox, message).Context(ctx).Do()
		if err == nil {
			return nil
		}
		lastErr = err
		logrus.Warnf("Failed to send email (attempt %d/%d): %v", attempt, 3, err)
		if strings.Contains(err.Error(), "quota") || strings.Contains(err.Error(), "rate") {
			waitTime := time.Duration(attempt*attempt) * time.Second
			logrus.Infof("Rate limited, waiting %v before retry", waitTime)
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			break
		}
	}
	return fmt.Errorf("failed to send email after retries: %w", lastErr)
}

// Move applies the destination label and removes INBOX, creating the label on
// demand.
func (g *GmailMailbox) Move(ctx context.Context, mailbox, messageID, destFolder string) error {
	labelID, err := g.resolveLabel(ctx, mailbox, destFolder)
	if err != nil {
		return err
	}
	modify := &gmail.ModifyMessageRequest{
		AddLabelIds:    []string{labelID},
		RemoveLabelIds: []string{"INBOX"},
	}
	if _, err := g.service.Users.Messages.Modify(mailbox, messageID, modify).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to move message %s to %s: %w", messageID, destFolder, err)
	}
	return nil
}

// Delete moves a message to trash.
func (g *GmailMailbox) Delete(ctx context.Context, mailbox, messageID string) error {
	if _, err := g.service.Users.Messages.Trash(mailbox, messageID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to trash message %s: %w", messageID, err)
	}
	return nil
}

// ListFolders returns the label names of the mailbox.
func (g *GmailMailbox) ListFolders(ctx context.Context, mailbox string) ([]string, error) {
	response, err := g.service.Users.Labels.List(mailbox).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	names := make([]string, 0, len(response.Labels))
	for _, label := range response.Labels {
		names = append(names, label.Name)
	}
	return names, nil
}

// Close is a no-op; the Gmail service holds no persistent connection.
func (g *GmailMailbox) Close() error {
	return nil
}

func (g *GmailMailbox) resolveLabel(ctx context.Context, mailbox, name string) (string, error) {
	response, err := g.service.Users.Labels.List(mailbox).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}
	for _, label := range response.Labels {
		if strings.EqualFold(label.Name, name) {
			return label.Id, nil
		}
	}
	created, err := g.service.Users.Labels.Create(mailbox, &gmail.Label{Name: name}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create label %s: %w", name, err)
	}
	return created.Id, nil
}

func parseGmailMessage(msg *gmail.Message, mailbox string) (InboundMessage, error) {
	out := InboundMessage{
		MessageID:  msg.Id,
		ThreadID:   msg.ThreadId,
		Mailbox:    mailbox,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
		Importance: "normal",
		Headers:    make(map[string]string),
	}

	for _, header := range msg.Payload.Headers {
		out.Headers[header.Name] = header.Value
		switch header.Name {
		case "Subject":
			out.Subject = header.Value
		case "From":
			out.From, out.FromName = parseAddress(header.Value)
		case "To":
			out.To = splitAddressList(header.Value)
		case "Cc":
			out.CC = splitAddressList(header.Value)
		case "Importance", "X-Priority":
			if strings.HasPrefix(header.Value, "1") || strings.EqualFold(header.Value, "high") {
				out.Importance = "high"
			}
		}
	}

	if err := parseGmailBody(msg.Payload, &out); err != nil {
		return out, err
	}
	return out, nil
}

func parseGmailBody(part *gmail.MessagePart, msg *InboundMessage) error {
	if part.Filename != "" {
		msg.HasAttachments = true
		if strings.HasSuffix(strings.ToLower(part.Filename), ".ics") {
			msg.HasICS = true
		}
	}
	if strings.Contains(part.MimeType, "text/calendar") {
		msg.HasICS = true
	}

	if part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return fmt.Errorf("failed to decode body data: %w", err)
		}
		switch part.MimeType {
		case "text/plain":
			msg.BodyText = string(data)
		case "text/html":
			msg.BodyHTML = string(data)
		}
	}

	for _, subPart := range part.Parts {
		if err := parseGmailBody(subPart, msg); err != nil {
			return err
		}
	}
	return nil
}

// parseAddress splits `Name <addr>` into address and display name.
func parseAddress(raw string) (addr, name string) {
	raw = strings.TrimSpace(raw)
	if i := strings.LastIndex(raw, "<"); i >= 0 {
		addr = strings.Trim(raw[i:], "<> ")
		name = strings.Trim(strings.TrimSpace(raw[:i]), `"`)
		return addr, name
	}
	return raw, ""
}

func splitAddressList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		addr, _ := parseAddress(part)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
