package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Skycomm/email-ai-manager/internal/gateway"
	"github.com/Skycomm/email-ai-manager/internal/model"
)

var meetingKeywords = []string{
	"meeting", "invite", "invitation", "calendar", "schedule",
	"appointment", "call", "conference", "sync", "standup",
	"review", "discussion", "catch up", "1:1", "one-on-one",
}

var meetingSubjectPatterns = []string{
	"meeting request", "invitation:", "invite:", "calendar:",
	"accepted:", "declined:", "tentative:", "canceled:",
	"updated:", "rescheduled:",
}

// MeetingType classifies a meeting-related email.
type MeetingType string

const (
	MeetingInvite            MeetingType = "invite"
	MeetingCancellation      MeetingType = "cancellation"
	MeetingResponseAccepted  MeetingType = "response_accepted"
	MeetingResponseDeclined  MeetingType = "response_declined"
	MeetingResponseTentative MeetingType = "response_tentative"
	MeetingUpdate            MeetingType = "update"
	MeetingRelated           MeetingType = "meeting_related"
)

// Meeting suggested actions.
const (
	SuggestAccept              = "accept"
	SuggestDeclineOrReschedule = "decline_or_reschedule"
	SuggestReview              = "review"
	SuggestAcknowledge         = "acknowledge"
)

// MeetingVerdict is the analyzer output.
type MeetingVerdict struct {
	IsMeeting       bool
	Type            MeetingType
	SuggestedAction string
	HasConflict     bool
	Conflicts       []gateway.CalendarEvent
	AutoResponded   bool
}

// MeetingConfig carries the calendar-related knobs.
type MeetingConfig struct {
	Enabled            bool
	CheckConflicts     bool
	AutoAcceptInternal bool
	InternalDomains    []string
}

// MeetingAnalyzer detects meeting emails, checks conflicts, and suggests a
// response.
type MeetingAnalyzer struct {
	ai       gateway.Completer
	calendar gateway.Calendar
	config   MeetingConfig
}

// NewMeetingAnalyzer builds the analyzer. calendar may be nil when conflict
// checking is disabled.
func NewMeetingAnalyzer(ai gateway.Completer, calendar gateway.Calendar, config MeetingConfig) *MeetingAnalyzer {
	return &MeetingAnalyzer{ai: ai, calendar: calendar, config: config}
}

// IsMeetingEmail reports whether the email looks meeting-related.
func IsMeetingEmail(email *model.EmailRecord) bool {
	subjectLower := strings.ToLower(email.Subject)
	bodyLower := strings.ToLower(email.BodyPreview)

	for _, pattern := range meetingSubjectPatterns {
		if strings.Contains(subjectLower, pattern) {
			return true
		}
	}
	for _, keyword := range meetingKeywords {
		if strings.Contains(subjectLower, keyword) {
			return true
		}
	}
	return email.HasAttachments && strings.Contains(bodyLower, ".ics")
}

// Analyze processes a meeting-related email. For non-invite types the email
// is informational only and the suggested action is acknowledge.
func (a *MeetingAnalyzer) Analyze(ctx context.Context, email *model.EmailRecord) MeetingVerdict {
	verdict := MeetingVerdict{}
	if !a.config.Enabled || !IsMeetingEmail(email) {
		return verdict
	}

	verdict.IsMeeting = true
	verdict.Type = detectMeetingType(email)

	if verdict.Type != MeetingInvite {
		verdict.SuggestedAction = SuggestAcknowledge
		return verdict
	}

	start, end, ok := a.extractMeetingTime(ctx, email)
	if ok && a.config.CheckConflicts && a.calendar != nil {
		conflicts, err := a.calendar.EventsInRange(ctx, email.Mailbox, start, end)
		if err != nil {
			logrus.Warnf("Could not check calendar conflicts: %v", err)
		} else if len(conflicts) > 0 {
			verdict.HasConflict = true
			if len(conflicts) > 3 {
				conflicts = conflicts[:3]
			}
			verdict.Conflicts = conflicts
		}
	}

	verdict.SuggestedAction = a.suggestAction(email, verdict.HasConflict)

	if a.config.AutoAcceptInternal && !verdict.HasConflict && a.isInternalSender(email) {
		verdict.AutoResponded = a.autoAccept(ctx, email)
		if verdict.AutoResponded {
			logrus.Infof("Auto-accepted meeting from %s: %s", email.SenderEmail, email.Subject)
		}
	}

	return verdict
}

func detectMeetingType(email *model.EmailRecord) MeetingType {
	subjectLower := strings.ToLower(email.Subject)
	switch {
	case strings.Contains(subjectLower, "canceled") || strings.Contains(subjectLower, "cancelled"):
		return MeetingCancellation
	case strings.Contains(subjectLower, "accepted:"):
		return MeetingResponseAccepted
	case strings.Contains(subjectLower, "declined:"):
		return MeetingResponseDeclined
	case strings.Contains(subjectLower, "tentative:"):
		return MeetingResponseTentative
	case strings.Contains(subjectLower, "updated:") || strings.Contains(subjectLower, "rescheduled:"):
		return MeetingUpdate
	case strings.Contains(subjectLower, "invite") ||
		strings.Contains(subjectLower, "invitation") ||
		strings.Contains(subjectLower, "meeting request"):
		return MeetingInvite
	default:
		return MeetingRelated
	}
}

type meetingTimeResult struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// extractMeetingTime asks the AI to pull a start/end window out of the email.
// Absence of a window is a normal outcome, not an error.
func (a *MeetingAnalyzer) extractMeetingTime(ctx context.Context, email *model.EmailRecord) (start, end time.Time, ok bool) {
	preview := email.BodyPreview
	if len(preview) > 500 {
		preview = preview[:500]
	}
	prompt := fmt.Sprintf(`Extract the meeting time from this email if present:

Subject: %s
Body: %s

If you can identify a meeting time, respond with JSON:
{"start": "YYYY-MM-DDTHH:MM:SS", "end": "YYYY-MM-DDTHH:MM:SS"}

If no meeting time found, respond with: {"start": null, "end": null}`,
		email.Subject, preview)

	var result meetingTimeResult
	err := a.ai.CompleteJSON(ctx, "You help analyze meeting invitations and suggest appropriate responses.", prompt, &result)
	if err != nil {
		logrus.Debugf("Could not extract meeting time: %v", err)
		return time.Time{}, time.Time{}, false
	}
	if result.Start == "" || result.End == "" {
		return time.Time{}, time.Time{}, false
	}

	const layout = "2006-01-02T15:04:05"
	start, err = time.Parse(layout, result.Start)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err = time.Parse(layout, result.End)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (a *MeetingAnalyzer) suggestAction(email *model.EmailRecord, hasConflict bool) string {
	if hasConflict {
		return SuggestDeclineOrReschedule
	}
	if a.isInternalSender(email) {
		return SuggestAccept
	}
	return SuggestReview
}

func (a *MeetingAnalyzer) isInternalSender(email *model.EmailRecord) bool {
	senderDomain := email.SenderDomain()
	for _, domain := range a.config.InternalDomains {
		if strings.EqualFold(domain, senderDomain) {
			return true
		}
	}
	return false
}

// autoAccept executes acceptance only when a real calendar event id can be
// resolved. Without one it logs the intent and reports false; claiming an
// acceptance that never reached the calendar would poison the audit log.
func (a *MeetingAnalyzer) autoAccept(ctx context.Context, email *model.EmailRecord) bool {
	eventID := a.resolveEventID(email)
	if eventID == "" {
		logrus.Infof("Would auto-accept meeting (no calendar event id): %s", email.Subject)
		return false
	}
	if err := a.calendar.AcceptEvent(ctx, email.Mailbox, eventID); err != nil {
		logrus.Warnf("Failed to auto-accept meeting %s: %v", email.Subject, err)
		return false
	}
	return true
}

// resolveEventID maps an invite email to a calendar event id. Mail headers do
// not reliably carry one; until .ics parsing lands this returns empty and
// auto-accept stays an intent-only log line.
func (a *MeetingAnalyzer) resolveEventID(email *model.EmailRecord) string {
	return ""
}

// SuggestMeetingResponse builds a reply draft for a meeting invitation.
func SuggestMeetingResponse(email *model.EmailRecord, verdict MeetingVerdict, signature string) string {
	name := email.SenderName
	if name == "" {
		name = strings.Split(email.SenderEmail, "@")[0]
	}

	if verdict.HasConflict {
		var names []string
		for i, c := range verdict.Conflicts {
			if i == 2 {
				break
			}
			subject := c.Subject
			if subject == "" {
				subject = "another meeting"
			}
			names = append(names, subject)
		}
		return fmt.Sprintf(`Hi %s,

Thanks for the meeting invitation. Unfortunately, I have a conflict at that time (%s).

Could we look at an alternative time? I'm happy to find a slot that works for both of us.

Best regards,
%s`, name, strings.Join(names, ", "), signature)
	}

	return fmt.Sprintf(`Hi %s,

Thanks for the meeting invitation. I'll review my calendar and get back to you shortly.

Best regards,
%s`, name, signature)
}
