// Package mirror republishes broker events to Kafka with
// github.com/segmentio/kafka-go. Each event becomes one message keyed by
// event id, with event_type and published_at headers and the wire event as
// the value.
package mirror
