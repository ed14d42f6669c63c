package bus

import "time"

// Event kinds published by the sync core. Subscribers filter by prefix,
// e.g. "queue." receives every queue event.
const (
	KindQueueEnqueued       = "queue.enqueued"
	KindQueueDelivered      = "queue.delivered"
	KindQueueDeliveryFailed = "queue.delivery_failed"
	KindQueueDrained        = "queue.drained"
	KindOnlineChanged       = "network.online_changed"
	KindSyncCompleted       = "sync.completed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
