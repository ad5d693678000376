package events

// Topic constants for domain events emitted by the service.
const (
	TopicOrderCreated    = "order.created"
	TopicRatesAppended   = "rates.appended"
	TopicCatalogImported = "catalog.imported"
)

// DefaultTopics returns every topic the service emits.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicRatesAppended,
		TopicCatalogImported,
	}
}
