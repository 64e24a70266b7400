package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/schedule"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
)

type mockImporter struct {
	mock.Mock
}

func (m *mockImporter) ImportHolidays(ctx context.Context, url string, start, end model.Date) (*schedule.ImportResult, error) {
	args := m.Called(ctx, url, start, end)
	res, _ := args.Get(0).(*schedule.ImportResult)
	return res, args.Error(1)
}

func TestNewHolidaySyncWorkerValidatesConfig(t *testing.T) {
	_, err := NewHolidaySyncWorker(&mockImporter{}, HolidaySyncConfig{Interval: time.Hour, LookaheadDays: 30}, nil)
	assert.Error(t, err)
	_, err = NewHolidaySyncWorker(&mockImporter{}, HolidaySyncConfig{URL: "https://x", LookaheadDays: 30}, nil)
	assert.Error(t, err)
	_, err = NewHolidaySyncWorker(&mockImporter{}, HolidaySyncConfig{URL: "https://x", Interval: time.Hour}, nil)
	assert.Error(t, err)
}

func TestHolidaySyncWindowUsesClinicDate(t *testing.T) {
	sydney, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	importer := &mockImporter{}
	// 20:00 UTC on Dec 31 is already Jan 1 in Sydney.
	importer.On("ImportHolidays", mock.Anything, "https://cal/holidays.ics",
		model.NewDate(2027, time.January, 1), model.NewDate(2027, time.January, 30)).
		Return(&schedule.ImportResult{Fetched: 2, Added: 1}, nil)

	w, err := NewHolidaySyncWorker(importer, HolidaySyncConfig{
		URL: "https://cal/holidays.ics", Interval: time.Hour, LookaheadDays: 30, Location: sydney,
	}, nil)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2026, time.December, 31, 20, 0, 0, 0, time.UTC) }

	require.NoError(t, w.Sync(context.Background()))
	importer.AssertExpectations(t)
}

func TestHolidaySyncRetries(t *testing.T) {
	importer := &mockImporter{}
	importer.On("ImportHolidays", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("feed unavailable")).Once()
	importer.On("ImportHolidays", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&schedule.ImportResult{}, nil).Once()

	w, err := NewHolidaySyncWorker(importer, HolidaySyncConfig{
		URL: "https://cal", Interval: time.Hour, LookaheadDays: 7, RetryDelay: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, w.Sync(context.Background()))
	importer.AssertNumberOfCalls(t, "ImportHolidays", 2)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry(ctx, 5, time.Hour, func() error {
		calls++
		cancel()
		return errors.New("nope")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestEventConsumerDispatches(t *testing.T) {
	broker := messaging.NewMemoryBroker()
	bus := messaging.NewBrokerAdapter(broker, nil, nil)
	defer bus.Close()

	var (
		mu   sync.Mutex
		seen []string
		done = make(chan struct{})
	)
	handler := func(_ context.Context, event messaging.Event) error {
		var payload model.AppointmentEvent
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		mu.Lock()
		seen = append(seen, payload.PatientEmail)
		mu.Unlock()
		close(done)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, NewEventConsumer(bus, nil).
		Handle(messaging.TopicAppointmentBooked, handler).
		Start(ctx))

	require.NoError(t, bus.Publish(ctx, messaging.TopicAppointmentBooked, model.AppointmentEvent{PatientEmail: "ana@example.com"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ana@example.com"}, seen)
}
