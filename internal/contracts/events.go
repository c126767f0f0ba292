package contracts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventLedgerAppended  = "ledger.appended"
	EventLedgerReplaced  = "ledger.replaced"
	EventScoresRefreshed = "scores.refreshed"
)

// Event is a notification emitted after a successful commit
type Event struct {
	ID         string    `json:"id"` // 수신측 중복 제거용
	Type       string    `json:"type"`
	StrategyID int64     `json:"strategyId,omitempty"`
	Date       string    `json:"date,omitempty"` // YYYY-MM-DD (appended day, or first replaced day)
	Data       any       `json:"data,omitempty"`
	At         time.Time `json:"at"`
}

// NewEvent stamps a fresh event id and the current time
func NewEvent(eventType string, strategyID int64, date string, data any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		StrategyID: strategyID,
		Date:       date,
		Data:       data,
		At:         time.Now(),
	}
}

// EventSink receives committed events. Publish must not block the caller
// for long and has no way to fail the commit it reports.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// EventSinks fans an event out to several sinks
type EventSinks []EventSink

// Publish implements EventSink
func (s EventSinks) Publish(ctx context.Context, ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(ctx, ev)
		}
	}
}
