package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// TeamsOptions carries the Azure AD app registration and channel target.
type TeamsOptions struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	TeamID       string
	ChannelID    string
}

// TeamsChat implements Chat against the Microsoft Graph channel-messages API.
// The oauth2 client-credentials transport handles token acquisition and
// refresh.
type TeamsChat struct {
	httpClient *http.Client
	teamID     string
	channelID  string
}

// NewTeamsChat builds a Teams-backed chat gateway.
func NewTeamsChat(ctx context.Context, opts TeamsOptions) *TeamsChat {
	cc := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", opts.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = 30 * time.Second
	return &TeamsChat{
		httpClient: httpClient,
		teamID:     opts.TeamID,
		channelID:  opts.ChannelID,
	}
}

type graphMessageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphMessage struct {
	ID              string           `json:"id,omitempty"`
	Body            graphMessageBody `json:"body"`
	CreatedDateTime time.Time        `json:"createdDateTime,omitempty"`
	From            *struct {
		User *struct {
			DisplayName string `json:"displayName"`
		} `json:"user"`
		Application *struct {
			DisplayName string `json:"displayName"`
		} `json:"application"`
	} `json:"from,omitempty"`
}

// Post publishes an HTML message to the channel and returns its id.
func (t *TeamsChat) Post(ctx context.Context, html string) (string, error) {
	url := fmt.Sprintf("%s/teams/%s/channels/%s/messages", graphBaseURL, t.teamID, t.channelID)
	payload := graphMessage{Body: graphMessageBody{ContentType: "html", Content: html}}

	var created graphMessage
	if err := t.do(ctx, http.MethodPost, url, payload, &created); err != nil {
		return "", fmt.Errorf("failed to post chat message: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("chat post returned no message id")
	}
	return created.ID, nil
}

// Update replaces a channel message's content in place.
func (t *TeamsChat) Update(ctx context.Context, messageID, html string) error {
	url := fmt.Sprintf("%s/teams/%s/channels/%s/messages/%s", graphBaseURL, t.teamID, t.channelID, messageID)
	payload := graphMessage{Body: graphMessageBody{ContentType: "html", Content: html}}
	if err := t.do(ctx, http.MethodPatch, url, payload, nil); err != nil {
		return fmt.Errorf("failed to update chat message %s: %w", messageID, err)
	}
	return nil
}

// FetchRecentReplies returns the newest channel messages, newest first.
// Application-authored messages are filtered out so the system never parses
// its own notifications as commands.
func (t *TeamsChat) FetchRecentReplies(ctx context.Context, limit int) ([]ChatReply, error) {
	url := fmt.Sprintf("%s/teams/%s/channels/%s/messages?$top=%d", graphBaseURL, t.teamID, t.channelID, limit)

	var page struct {
		Value []graphMessage `json:"value"`
	}
	if err := t.do(ctx, http.MethodGet, url, nil, &page); err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}

	var replies []ChatReply
	for _, msg := range page.Value {
		if msg.From == nil || msg.From.User == nil {
			continue
		}
		replies = append(replies, ChatReply{
			ID:        msg.ID,
			From:      msg.From.User.DisplayName,
			Text:      stripHTMLTags(msg.Body.Content),
			CreatedAt: msg.CreatedDateTime,
		})
	}
	sort.Slice(replies, func(i, j int) bool {
		return replies[i].CreatedAt.After(replies[j].CreatedAt)
	})
	if limit > 0 && len(replies) > limit {
		replies = replies[:limit]
	}
	return replies, nil
}

func (t *TeamsChat) do(ctx context.Context, method, url string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph returned %d: %s", resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode graph response: %w", err)
		}
	}
	return nil
}

// stripHTMLTags reduces a Teams HTML body to plain text for command parsing.
func stripHTMLTags(html string) string {
	var out []rune
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			out = append(out, r)
		}
	}
	return string(out)
}
