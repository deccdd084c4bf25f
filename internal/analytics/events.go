// Package analytics collects enhancement and search events, ships them to
// Kafka (or straight into an in-process Aggregator) and serves aggregated
// usage statistics.
package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/kafka"
)

type EventType string

const (
	EventEnhance EventType = "enhance"
	EventSearch  EventType = "search"
)

// Event is anything the Collector can ship.
type Event interface {
	EventType() EventType
	// EventKey picks the Kafka partition key.
	EventKey() string
}

// EnhancementEvent describes one pass through the query enhancer.
type EnhancementEvent struct {
	Type          EventType `json:"type"`
	Query         string    `json:"query"`
	EnhancedQuery string    `json:"enhanced_query"`
	Expansions    []string  `json:"expansions"`
	Corrections   []string  `json:"corrections"`
	SpecialTerms  int       `json:"special_terms"`
	TopCategory   string    `json:"top_category"`
	Uniform       bool      `json:"uniform"`
	LatencyUs     int64     `json:"latency_us"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
}

func (EnhancementEvent) EventType() EventType { return EventEnhance }
func (e EnhancementEvent) EventKey() string   { return e.Query }

// SearchEvent describes one category search driven by an enhanced query.
type SearchEvent struct {
	Type          EventType `json:"type"`
	Query         string    `json:"query"`
	EnhancedQuery string    `json:"enhanced_query"`
	Categories    []string  `json:"categories"`
	TotalHits     int       `json:"total_hits"`
	Returned      int       `json:"returned"`
	LatencyMs     int64     `json:"latency_ms"`
	CacheHits     int       `json:"cache_hits"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
}

func (SearchEvent) EventType() EventType { return EventSearch }
func (e SearchEvent) EventKey() string   { return e.Query }

type envelope struct {
	Type EventType `json:"type"`
}

// Decode turns a JSON payload into its concrete event. typ may be empty, in
// which case the "type" field of the payload decides.
func Decode(typ string, value []byte) (Event, error) {
	if typ == "" {
		var env envelope
		if err := json.Unmarshal(value, &env); err != nil {
			return nil, fmt.Errorf("decoding event envelope: %w: %w", kafka.ErrPoison, err)
		}
		typ = string(env.Type)
	}
	switch EventType(typ) {
	case EventEnhance:
		return kafka.DecodeJSON[EnhancementEvent](value)
	case EventSearch:
		return kafka.DecodeJSON[SearchEvent](value)
	default:
		return nil, fmt.Errorf("unknown event type %q: %w", typ, kafka.ErrPoison)
	}
}

func toKafka(ev Event) kafka.Event {
	return kafka.Event{Key: ev.EventKey(), Type: string(ev.EventType()), Value: ev}
}
