// Package notify formats chat notifications and suppresses duplicate alerts.
package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Skycomm/email-ai-manager/internal/model"
)

var priorityEmoji = map[int]string{
	1: "🚨",
	2: "⚡",
	3: "📧",
	4: "📬",
	5: "📭",
}

var categoryEmoji = map[model.EmailCategory]string{
	model.CategoryUrgent:           "🔴",
	model.CategoryActionRequired:   "💼",
	model.CategoryFYI:              "ℹ️",
	model.CategoryMeeting:          "📅",
	model.CategorySpamCandidate:    "🗑️",
	model.CategoryNewsletter:       "📰",
	model.CategoryForwardCandidate: "↪️",
}

func emojiForPriority(p int) string {
	if e, ok := priorityEmoji[p]; ok {
		return e
	}
	return "📧"
}

func emojiForCategory(c model.EmailCategory) string {
	if e, ok := categoryEmoji[c]; ok {
		return e
	}
	return "📧"
}

// ActionNotification builds the chat card for an email needing a decision:
// summary, draft, approval token, and the reply command help.
func ActionNotification(email *model.EmailRecord) string {
	var sb strings.Builder

	summary := email.Summary
	if summary == "" {
		summary = email.BodyPreview
		if len(summary) > 300 {
			summary = summary[:300]
		}
	}

	category := string(email.Category)
	if category == "" {
		category = "Unknown"
	}

	sb.WriteString(fmt.Sprintf("<h3>%s New Email Requiring Action</h3><hr>", emojiForPriority(email.Priority)))
	sb.WriteString(fmt.Sprintf("<p><b>From:</b> %s &lt;%s&gt;</p>",
		html.EscapeString(email.SenderDisplay()), html.EscapeString(email.SenderEmail)))
	sb.WriteString(fmt.Sprintf("<p><b>Subject:</b> %s</p>", html.EscapeString(email.Subject)))
	sb.WriteString(fmt.Sprintf("<p><b>Priority:</b> %d/5 | <b>Category:</b> %s %s</p>",
		email.Priority, emojiForCategory(email.Category), category))
	sb.WriteString("<hr><h4>📝 Summary:</h4>")
	sb.WriteString(fmt.Sprintf("<p>%s</p>", html.EscapeString(summary)))

	if email.CurrentDraft != "" {
		sb.WriteString("<hr><h4>✉️ Draft Reply:</h4>")
		sb.WriteString(fmt.Sprintf("<blockquote>%s</blockquote>",
			strings.ReplaceAll(html.EscapeString(email.CurrentDraft), "\n", "<br>")))
	}

	sb.WriteString("<hr>")
	sb.WriteString(fmt.Sprintf("<p><b>Token:</b> <code>[%s]</code></p>", email.ApprovalToken))
	sb.WriteString(fmt.Sprintf(`<p>Reply with:<br>
• <code>approve</code> or <code>%s</code> - Send this reply<br>
• <code>edit: [your changes]</code> - Modify the draft<br>
• <code>rewrite</code> - Generate a new draft<br>
• <code>ignore</code> - Skip, no reply needed<br>
• <code>more</code> - Show full email<br>
• <code>spam</code> - Mark as spam
</p>`, email.ApprovalToken))

	return sb.String()
}

// FullEmailView builds the response to a `more` command.
func FullEmailView(email *model.EmailRecord) string {
	body := email.BodyFull
	if body == "" {
		body = email.BodyPreview
	}

	var sb strings.Builder
	sb.WriteString("<h3>📄 Full Email</h3><hr>")
	sb.WriteString(fmt.Sprintf("<p><b>From:</b> %s &lt;%s&gt;</p>",
		html.EscapeString(email.SenderDisplay()), html.EscapeString(email.SenderEmail)))
	sb.WriteString(fmt.Sprintf("<p><b>To:</b> %s</p>", html.EscapeString(strings.Join(email.ToRecipients, ", "))))
	sb.WriteString(fmt.Sprintf("<p><b>Subject:</b> %s</p>", html.EscapeString(email.Subject)))
	sb.WriteString(fmt.Sprintf("<p><b>Received:</b> %s</p>", email.ReceivedAt.Format(time.RFC1123)))
	sb.WriteString("<hr>")
	sb.WriteString(fmt.Sprintf("<p>%s</p>", strings.ReplaceAll(html.EscapeString(body), "\n", "<br>")))
	return sb.String()
}

// SummaryItem is one ordinal line of the morning summary. The ordinal is the
// number users reference in `more N` and `spam N` commands.
type SummaryItem struct {
	Ordinal int
	Email   *model.EmailRecord
}

// MorningSummary builds the daily digest: deferred newsletters/FYI items with
// ordinals, plus auto-sent replies from the last day.
func MorningSummary(items []SummaryItem, autoSent []model.EmailRecord, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<h3>☀️ Morning Summary — %s</h3><hr>", now.Format("Mon, 2 Jan 2006")))

	if len(items) == 0 {
		sb.WriteString("<p>No deferred emails overnight.</p>")
	} else {
		sb.WriteString(fmt.Sprintf("<p><b>%d deferred emails:</b></p>", len(items)))
		for _, item := range items {
			e := item.Email
			summary := e.Summary
			if summary == "" {
				summary = e.Subject
			}
			sb.WriteString(fmt.Sprintf("<p><b>%d.</b> %s <b>%s</b> — %s</p>",
				item.Ordinal, emojiForCategory(e.Category),
				html.EscapeString(e.SenderDisplay()), html.EscapeString(summary)))
		}
		sb.WriteString(`<hr><p>Reply with <code>more N</code> to see an email or <code>spam N</code> to mark it as spam.</p>`)
	}

	if len(autoSent) > 0 {
		sb.WriteString(fmt.Sprintf("<hr><p><b>🤖 Auto-sent replies (%d):</b></p>", len(autoSent)))
		for i := range autoSent {
			e := &autoSent[i]
			sb.WriteString(fmt.Sprintf("<p>• Replied to <b>%s</b>: %s</p>",
				html.EscapeString(e.SenderDisplay()), html.EscapeString(e.Subject)))
		}
	}

	return sb.String()
}

// Confirmation builds the response posted after a user action completes or
// fails. Failures are always chat-visible; silent failure is forbidden.
func Confirmation(email *model.EmailRecord, action string, success bool) string {
	emoji, status := "✅", "completed"
	if !success {
		emoji, status = "❌", "failed"
	}
	return fmt.Sprintf("<p>%s <b>%s</b> %s</p><p><i>Email:</i> %s</p>",
		emoji, html.EscapeString(capitalize(action)), status, html.EscapeString(email.Subject))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ConfirmSendRequest is the second step of the two-step send gate.
func ConfirmSendRequest(email *model.EmailRecord) string {
	return fmt.Sprintf(`<p>⚠️ <b>Ready to send</b> reply to %s.</p>
<p><i>Subject:</i> %s</p>
<p>Reply <code>confirm send</code> to send it now, or <code>edit: ...</code> to keep revising.</p>`,
		html.EscapeString(email.SenderDisplay()), html.EscapeString(email.Subject))
}

// ErrorNotice reports a processing error to the channel.
func ErrorNotice(context, detail string) string {
	return fmt.Sprintf("<p>❌ <b>Error:</b> %s</p><p>%s</p>",
		html.EscapeString(context), html.EscapeString(detail))
}

// FollowUpReminder builds an escalating reminder for an overdue follow-up.
func FollowUpReminder(email *model.EmailRecord) string {
	urgency := "⏰"
	if email.FollowUpRemindedCount >= 2 {
		urgency = "🚨"
	}
	note := email.FollowUpNote
	if note == "" {
		note = "follow up on this email"
	}
	return fmt.Sprintf(`<p>%s <b>Follow-up due</b> (reminder %d)</p>
<p><b>From:</b> %s</p>
<p><b>Subject:</b> %s</p>
<p><i>Note:</i> %s</p>`,
		urgency, email.FollowUpRemindedCount+1,
		html.EscapeString(email.SenderDisplay()),
		html.EscapeString(email.Subject),
		html.EscapeString(note))
}
