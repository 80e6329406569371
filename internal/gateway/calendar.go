package gateway

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleCalendar implements Calendar on the Google Calendar API, reusing the
// same OAuth credentials as the Gmail backend.
type GoogleCalendar struct {
	service *calendar.Service
}

// NewGoogleCalendar builds the calendar gateway.
func NewGoogleCalendar(ctx context.Context, opts GmailOptions) (*GoogleCalendar, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		Scopes:       []string{calendar.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}
	token := &oauth2.Token{RefreshToken: opts.RefreshToken}
	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := calendar.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return &GoogleCalendar{service: service}, nil
}

// EventsInRange lists events overlapping [start, end) on the mailbox's
// primary calendar.
func (c *GoogleCalendar) EventsInRange(ctx context.Context, mailbox string, start, end time.Time) ([]CalendarEvent, error) {
	call := c.service.Events.List("primary").
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)

	response, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar events: %w", err)
	}

	var events []CalendarEvent
	for _, item := range response.Items {
		if item.Start == nil || item.End == nil {
			continue
		}
		eventStart, err := parseEventTime(item.Start)
		if err != nil {
			continue
		}
		eventEnd, err := parseEventTime(item.End)
		if err != nil {
			continue
		}
		events = append(events, CalendarEvent{
			ID:       item.Id,
			Subject:  item.Summary,
			Start:    eventStart,
			End:      eventEnd,
			Location: item.Location,
		})
	}
	return events, nil
}

// AcceptEvent marks the mailbox owner's attendance as accepted.
func (c *GoogleCalendar) AcceptEvent(ctx context.Context, mailbox, eventID string) error {
	event, err := c.service.Events.Get("primary", eventID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get calendar event %s: %w", eventID, err)
	}
	updated := false
	for _, attendee := range event.Attendees {
		if attendee.Email == mailbox {
			attendee.ResponseStatus = "accepted"
			updated = true
		}
	}
	if !updated {
		return fmt.Errorf("mailbox %s is not an attendee of event %s", mailbox, eventID)
	}
	if _, err := c.service.Events.Update("primary", eventID, event).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to accept event %s: %w", eventID, err)
	}
	return nil
}

func parseEventTime(t *calendar.EventDateTime) (time.Time, error) {
	if t.DateTime != "" {
		return time.Parse(time.RFC3339, t.DateTime)
	}
	return time.Parse("2006-01-02", t.Date)
}
