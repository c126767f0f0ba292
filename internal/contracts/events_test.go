package contracts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	got []Event
}

func (r *recordingSink) Publish(_ context.Context, ev Event) {
	r.got = append(r.got, ev)
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(EventLedgerAppended, 7, "2025-01-02", nil)
	b := NewEvent(EventLedgerAppended, 7, "2025-01-02", nil)

	_, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, int64(7), a.StrategyID)
	assert.False(t, a.At.IsZero())
}

func TestEventSinks_FanOut(t *testing.T) {
	first, second := &recordingSink{}, &recordingSink{}
	sinks := EventSinks{first, nil, second}

	ev := NewEvent(EventScoresRefreshed, 0, "", nil)
	sinks.Publish(context.Background(), ev)

	require.Len(t, first.got, 1)
	require.Len(t, second.got, 1)
	assert.Equal(t, ev.ID, second.got[0].ID)
}
