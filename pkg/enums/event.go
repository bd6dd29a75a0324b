package enums

import (
	"fmt"
	"strings"
)

// EventStatus tracks the publication lifecycle of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusLive      EventStatus = "LIVE"
	EventStatusEnded     EventStatus = "ENDED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

var validEventStatuses = []EventStatus{
	EventStatusDraft,
	EventStatusPublished,
	EventStatusLive,
	EventStatusEnded,
	EventStatusCancelled,
}

// String implements fmt.Stringer.
func (s EventStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EventStatus.
func (s EventStatus) IsValid() bool {
	for _, candidate := range validEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Purchasable reports whether purchases may be opened against an event in this status.
func (s EventStatus) Purchasable() bool {
	return s == EventStatusPublished || s == EventStatusLive
}

// ParseEventStatus converts raw input into an EventStatus.
func ParseEventStatus(value string) (EventStatus, error) {
	for _, candidate := range validEventStatuses {
		if strings.EqualFold(string(candidate), value) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event status %q", value)
}

// EventType distinguishes voting events from ticketed events.
type EventType string

const (
	EventTypeVoting    EventType = "VOTING"
	EventTypeTicketing EventType = "TICKETING"
)

var validEventTypes = []EventType{
	EventTypeVoting,
	EventTypeTicketing,
}

// String implements fmt.Stringer.
func (t EventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known EventType.
func (t EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into an EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if strings.EqualFold(string(candidate), value) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
