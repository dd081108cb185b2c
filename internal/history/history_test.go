package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/extbox/internal/alert"
	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/rollover"
	"github.com/loykin/extbox/internal/worker"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	purged time.Time
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) PurgeOlderThan(_ context.Context, t time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = t
	return 3, nil
}

func (m *memSink) snapshot() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func newRecorder(t *testing.T, sink Sink) *Recorder {
	t.Helper()
	pool := worker.New(4, nil)
	t.Cleanup(func() { _ = pool.Close(context.Background()) })
	return NewRecorder(sink, pool, nil)
}

func waitEvents(t *testing.T, s *memSink, n int) []Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(s.snapshot()) >= n }, 2*time.Second, 5*time.Millisecond)
	return s.snapshot()
}

func TestNewEventStampsID(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.FixedZone("X", 3600))
	a := NewEvent(EventSnapshot, "battery", at)
	b := NewEvent(EventSnapshot, "battery", at)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, time.UTC, a.OccurredAt.Location())
	assert.True(t, a.OccurredAt.Equal(at))
}

func TestRecorderSnapshot(t *testing.T) {
	sink := &memSink{}
	r := newRecorder(t, sink)
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	r.RecordSnapshot(context.Background(), "battery", at, module.DataPoints{}.Add("battery.level", "80%"))

	evs := waitEvents(t, sink, 1)
	assert.Equal(t, EventSnapshot, evs[0].Type)
	assert.Equal(t, "battery", evs[0].Module)
	v, ok := evs[0].Data.Get("battery.level")
	require.True(t, ok)
	assert.Equal(t, "80%", v)
}

func TestRecorderRollover(t *testing.T) {
	sink := &memSink{}
	r := newRecorder(t, sink)
	at := time.Date(2026, 4, 1, 0, 0, 1, 0, time.UTC)

	r.RecordRollover(context.Background(), at, rollover.Result{})
	r.RecordRollover(context.Background(), at, rollover.Result{Day: true, Month: true})

	waitEvents(t, sink, 1)
	time.Sleep(20 * time.Millisecond)
	evs := sink.snapshot()
	require.Len(t, evs, 1)
	assert.Equal(t, EventRollover, evs[0].Type)
	assert.Equal(t, "day,month", evs[0].Message)
}

func TestRecorderSkipSnapshots(t *testing.T) {
	sink := &memSink{}
	r := newRecorder(t, sink).SkipSnapshots()
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	r.RecordSnapshot(context.Background(), "battery", at, module.DataPoints{}.Add("battery.level", "50%"))
	r.RecordRollover(context.Background(), at, rollover.Result{Day: true})

	waitEvents(t, sink, 1)
	time.Sleep(20 * time.Millisecond)
	evs := sink.snapshot()
	require.Len(t, evs, 1)
	assert.Equal(t, EventRollover, evs[0].Type)
}

func TestRecorderAlert(t *testing.T) {
	sink := &memSink{}
	r := newRecorder(t, sink)
	var n alert.Notifier = r
	n.Raise(context.Background(), alert.Alert{ID: "battery.low", Module: "battery", Title: "Low", Body: "15%"})

	evs := waitEvents(t, sink, 1)
	assert.Equal(t, EventAlert, evs[0].Type)
	assert.Equal(t, "battery", evs[0].Module)
	assert.Equal(t, "15%", evs[0].Message)
	id, _ := evs[0].Data.Get("alert.id")
	assert.Equal(t, "battery.low", id)
}

func TestRecorderDropsWhenPoolClosed(t *testing.T) {
	sink := &memSink{}
	pool := worker.New(1, nil)
	require.NoError(t, pool.Close(context.Background()))
	r := NewRecorder(sink, pool, nil)
	r.RecordSnapshot(context.Background(), "cpu_ram", time.Now(), nil)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.snapshot())
}

func TestRecorderPurge(t *testing.T) {
	sink := &memSink{}
	r := newRecorder(t, sink)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	n, err := r.Purge(context.Background(), now, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, sink.purged.IsZero())

	n, err = r.Purge(context.Background(), now, 48*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, now.Add(-48*time.Hour), sink.purged)
}

func TestRecorderQueryUnsupported(t *testing.T) {
	r := newRecorder(t, &memSink{})
	_, err := r.Query(context.Background(), "battery", time.Time{}, 10)
	assert.ErrorIs(t, err, ErrNoQuerier)
}

func TestMultiDeliversDespiteFailure(t *testing.T) {
	bad := &memSink{err: errors.New("down")}
	good := &memSink{}
	m := Multi{bad, good}

	err := m.Send(context.Background(), NewEvent(EventSnapshot, "network", time.Now()))
	assert.Error(t, err)
	assert.Len(t, good.snapshot(), 1)

	n, err := m.PurgeOlderThan(context.Background(), time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)

	_, err = m.Query(context.Background(), "", time.Time{}, 0)
	assert.ErrorIs(t, err, ErrNoQuerier)
	assert.NoError(t, m.Close())
}
