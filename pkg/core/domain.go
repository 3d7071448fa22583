package core

import (
	"fmt"
	"time"
)

// EventType represents the type of change observed on a backing store.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event represents a change to a stored document.
type Event struct {
	Type      EventType
	URI       string
	Timestamp time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Type, e.URI)
}
