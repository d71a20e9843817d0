package services

import "github.com/gurjot03/parsec-cloud/internal/client/models"

type EventType string

const (
	EventManifestUpdated  EventType = "manifest.updated"
	EventManifestSynced   EventType = "manifest.synced"
	EventSharingUpdated   EventType = "sharing.updated"
	EventWorkspaceCreated EventType = "workspace.created"
	EventPingReceived     EventType = "ping.received"
)

// Event is a notification for the layers above the engine. NewEntry and
// PreviousEntry are set for sharing updates; PreviousEntry is nil when the
// workspace was not known before.
type Event struct {
	Type          EventType
	ID            models.EntryID
	NewEntry      *models.WorkspaceEntry
	PreviousEntry *models.WorkspaceEntry
	Ping          string
}

// Observer receives engine events. Notify must not block.
type Observer interface {
	Notify(e Event)
}

type ObserverFunc func(e Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

type NopObserver struct{}

func (NopObserver) Notify(Event) {}

// ChannelObserver forwards events to a channel and drops them when it is
// full.
type ChannelObserver chan Event

func (c ChannelObserver) Notify(e Event) {
	select {
	case c <- e:
	default:
	}
}
