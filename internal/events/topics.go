package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated      = "order.created"
	TopicOrderIngestFailed = "order.ingest_failed"
	TopicOrderFulfilled    = "order.fulfilled"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderIngestFailed,
		TopicOrderFulfilled,
	}
}
