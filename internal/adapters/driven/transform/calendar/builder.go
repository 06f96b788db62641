// Package calendar builds searchable documents from calendar event
// records.
package calendar

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helicon-labs/vectra/internal/core/domain"
	"github.com/helicon-labs/vectra/internal/core/ports/driven"
)

// Ensure Builder implements the interface.
var _ driven.DocumentBuilder = (*Builder)(nil)

// DefaultMaxDescriptionLength caps how much of an event description
// makes it into the document.
const DefaultMaxDescriptionLength = 2000

// Options controls which event fields are included in the document.
type Options struct {
	// IncludeDescription includes the event description, truncated to
	// MaxDescriptionLength.
	IncludeDescription bool

	// IncludeLocation includes the event location.
	IncludeLocation bool

	// IncludeAttendees includes the participant list.
	IncludeAttendees bool

	// MaxDescriptionLength is the description truncation limit
	// (default DefaultMaxDescriptionLength).
	MaxDescriptionLength int
}

// DefaultOptions includes every field.
func DefaultOptions() Options {
	return Options{
		IncludeDescription:   true,
		IncludeLocation:      true,
		IncludeAttendees:     true,
		MaxDescriptionLength: DefaultMaxDescriptionLength,
	}
}

// Builder handles calendar event records.
type Builder struct {
	opts Options
}

// New creates a calendar document builder.
func New(opts Options) *Builder {
	if opts.MaxDescriptionLength <= 0 {
		opts.MaxDescriptionLength = DefaultMaxDescriptionLength
	}
	return &Builder{opts: opts}
}

// Kind returns the record kind this builder handles.
func (b *Builder) Kind() string {
	return "calendar"
}

// event is the typed view of a calendar record payload.
type event struct {
	Envelope envelope `json:"envelope"`
	Body     body     `json:"body"`
}

// decodeEvent converts the generic record payload into the typed event
// structure.
func decodeEvent(payload map[string]any) (*event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

type envelope struct {
	MessageID      string        `json:"message_id"`
	RemoteID       string        `json:"remote_id"`
	ContextID      string        `json:"context_id"`
	ContextLabel   string        `json:"context_label"`
	SourceChannel  string        `json:"source_channel"`
	SourceInstance string        `json:"source_instance"`
	Timestamp      string        `json:"ts"`
	Sender         participant   `json:"sender"`
	Participants   []participant `json:"participants"`
}

type participant struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type body struct {
	Text        string `json:"text"`
	Description string `json:"description"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	AllDay      bool   `json:"all_day"`
	Location    string `json:"location"`
	Status      string `json:"status"`
	Recurring   bool   `json:"recurring"`
}

// Build produces the document for a calendar event record.
func (b *Builder) Build(record domain.Record, container *domain.Container) (*domain.Document, error) {
	ev, err := decodeEvent(record.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPermanentRecord, err)
	}

	title := ev.Body.Text
	if title == "" {
		title = "Untitled Event"
	}

	calendarLabel := ev.Envelope.ContextLabel
	if calendarLabel == "" && container != nil {
		calendarLabel = container.Label
	}

	var content strings.Builder
	fmt.Fprintf(&content, "Event: %s\n\n", title)

	if b.opts.IncludeDescription {
		if description := strings.TrimSpace(ev.Body.Description); description != "" {
			fmt.Fprintf(&content, "Description: %s\n\n", b.truncate(description))
		}
	}

	if ev.Body.StartTime != "" {
		if ev.Body.AllDay {
			fmt.Fprintf(&content, "Date: %s (All Day)\n", datePart(ev.Body.StartTime))
		} else {
			fmt.Fprintf(&content, "Starts: %s\n", ev.Body.StartTime)
			if ev.Body.EndTime != "" {
				fmt.Fprintf(&content, "Ends: %s\n", ev.Body.EndTime)
			}
		}
	}

	if b.opts.IncludeLocation {
		if location := strings.TrimSpace(ev.Body.Location); location != "" {
			fmt.Fprintf(&content, "Location: %s\n", location)
		}
	}

	if b.opts.IncludeAttendees {
		if names := participantNames(ev.Envelope.Participants); len(names) > 0 {
			fmt.Fprintf(&content, "Participants: %s\n", strings.Join(names, ", "))
		}
	}

	if calendarLabel != "" {
		fmt.Fprintf(&content, "Calendar: %s\n", calendarLabel)
	}

	status := ev.Body.Status
	if status == "" {
		status = "confirmed"
	}
	if status != "confirmed" {
		fmt.Fprintf(&content, "Status: %s\n", status)
	}

	if ev.Body.Recurring {
		content.WriteString("(Recurring Event)\n")
	}

	doc := &domain.Document{
		ID:       record.Ref.DocumentID(),
		Content:  strings.TrimRight(content.String(), "\n"),
		Metadata: b.buildMetadata(record, ev, calendarLabel, status),
	}
	return doc, nil
}

// buildMetadata assembles the document metadata from envelope and body
// fields. Values are kept scalar so any index backend can filter on
// them.
func (b *Builder) buildMetadata(record domain.Record, ev *event, calendarLabel, status string) map[string]any {
	metadata := map[string]any{
		"container_id":   record.Ref.ContainerID,
		"record_id":      record.Ref.RecordID,
		"source_channel": sourceChannel(ev.Envelope.SourceChannel),
		"calendar_id":    ev.Envelope.ContextID,
		"calendar_name":  calendarLabel,
		"event_id":       ev.Envelope.RemoteID,
		"event_type":     "calendar_event",
		"start_time":     ev.Body.StartTime,
		"end_time":       ev.Body.EndTime,
		"is_all_day":     ev.Body.AllDay,
		"status":         status,
		"recurring":      ev.Body.Recurring,
	}
	if ev.Envelope.SourceInstance != "" {
		metadata["source_instance"] = ev.Envelope.SourceInstance
	}
	if ev.Envelope.Timestamp != "" {
		metadata["event_timestamp"] = ev.Envelope.Timestamp
	}

	if b.opts.IncludeLocation {
		if location := strings.TrimSpace(ev.Body.Location); location != "" {
			metadata["location"] = location
		}
	}

	if sender := ev.Envelope.Sender; sender.Email != "" || sender.ID != "" {
		organizer := sender.Email
		if organizer == "" {
			organizer = sender.ID
		}
		metadata["organizer"] = organizer
		if sender.DisplayName != "" {
			metadata["organizer_name"] = sender.DisplayName
		}
	}

	if b.opts.IncludeAttendees {
		if emails := participantEmails(ev.Envelope.Participants); len(emails) > 0 {
			metadata["attendees"] = strings.Join(emails, ", ")
		}
	}

	return metadata
}

func (b *Builder) truncate(description string) string {
	if len(description) <= b.opts.MaxDescriptionLength {
		return description
	}
	return description[:b.opts.MaxDescriptionLength] + "..."
}

// datePart extracts the date from an RFC 3339 timestamp.
func datePart(timestamp string) string {
	if idx := strings.IndexByte(timestamp, 'T'); idx > 0 {
		return timestamp[:idx]
	}
	return timestamp
}

func sourceChannel(channel string) string {
	if channel == "" {
		return "calendar"
	}
	return channel
}

func participantNames(participants []participant) []string {
	var names []string
	for _, p := range participants {
		name := p.DisplayName
		if name == "" {
			name = p.Email
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func participantEmails(participants []participant) []string {
	var emails []string
	for _, p := range participants {
		if p.Email != "" {
			emails = append(emails, p.Email)
		}
	}
	return emails
}
