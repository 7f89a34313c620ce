package chat

import "github.com/ikoral/burnbox/internal/infrastructure/events"

// Key layout, inherited from the original deployment: one hash for room
// metadata, one list for the message log, one list (owned by the event bus)
// for the replay buffer. All three expire in lockstep.
const (
	metaPrefix     = "meta:"
	messagesPrefix = "messages:"

	connectedField = "connected"
	createdAtField = "createdAt"
	destroyedField = "destroyed"
)

func metaKey(roomID string) string {
	return metaPrefix + roomID
}

func messagesKey(roomID string) string {
	return messagesPrefix + roomID
}

func historyKey(roomID string) string {
	return events.HistoryKey(events.Channel(roomID))
}

// roomKeys lists every room-scoped artifact, the unit of teardown.
func roomKeys(roomID string) []string {
	return []string{metaKey(roomID), messagesKey(roomID), historyKey(roomID)}
}
