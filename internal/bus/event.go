package bus

import "time"

// Event kinds are dot-namespaced: "feed." for change-feed rows decoded by the
// backend client, "message." for reconciled collection changes, "session."
// for daemon status, "story." for story lifecycle.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
