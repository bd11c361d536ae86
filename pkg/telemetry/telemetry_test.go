package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/rtlab/pkg/kernel"
)

func TestEncodeDecode(t *testing.T) {
	ev := &Event{ID: "x", Kind: uint32(KindCommand), Source: "actuator", Text: "SetValue(12)", Value: 12, Timestamp: 42}
	data, err := Encode(ev)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	require.True(t, proto.Equal(ev, decoded))

	other, err := proto.Marshal(&Envelope{TypeID: 7})
	require.NoError(t, err)
	_, err = Decode(other)
	require.ErrorIs(t, err, ErrUnknownType)

	require.Equal(t, "command", KindCommand.String())
	require.Equal(t, "kind(99)", Kind(99).String())
}

func TestRecorderDrops(t *testing.T) {
	r, err := NewRecorder(2, LogPublisher{})
	require.NoError(t, err)
	r.Device = "dev"
	for n := 0; n < 5; n++ {
		r.Record(KindPress, "S3", int64(n))
	}
	require.Equal(t, 2, r.Pending())
	require.Equal(t, uint64(3), r.Dropped())

	var nilRecorder *Recorder
	nilRecorder.Record(KindPress, "S3", 1)
}

func TestRecorderPublishes(t *testing.T) {
	events := make(chan *Event, 4)
	r, err := NewRecorder(4, PublisherFunc(func(ev *Event) error {
		events <- ev
		return nil
	}))
	require.NoError(t, err)
	r.Device = "dev"

	k := kernel.New()
	k.MustCreateTask("telemetry", kernel.PriorityIdle, r)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Start(ctx) }()

	r.Recordf(KindCommand, "parser", "%s", "SetOutputOn(3)")
	select {
	case ev := <-events:
		require.Equal(t, uint32(KindCommand), ev.Kind)
		require.Equal(t, "SetOutputOn(3)", ev.Text)
		require.Equal(t, "dev", ev.Device)
		_, err := uuid.Parse(ev.ID)
		require.NoError(t, err)
		require.NotZero(t, ev.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}
	require.Eventually(t, func() bool { return r.Published() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRecorderReportsDrops(t *testing.T) {
	events := make(chan *Event, 8)
	r, err := NewRecorder(2, PublisherFunc(func(ev *Event) error {
		events <- ev
		return nil
	}))
	require.NoError(t, err)
	r.Device = "dev"
	for n := 0; n < 5; n++ {
		r.Record(KindPress, "S3", int64(n))
	}

	ctx := context.Background()
	require.NoError(t, r.Step(ctx))
	require.NoError(t, r.Step(ctx))
	require.Equal(t, uint64(3), r.Published())
	require.Len(t, events, 3)

	kinds := []Kind{}
	var drop *Event
	for len(events) > 0 {
		ev := <-events
		kinds = append(kinds, Kind(ev.Kind))
		if Kind(ev.Kind) == KindDrop {
			drop = ev
		}
	}
	require.Equal(t, []Kind{KindPress, KindDrop, KindPress}, kinds)
	require.Equal(t, int64(3), drop.Value)
	require.Equal(t, "dev", drop.Device)

	// drops are reported once
	r.Record(KindPress, "S3", 9)
	require.NoError(t, r.Step(ctx))
	require.Equal(t, KindPress, Kind((<-events).Kind))
	require.Len(t, events, 0)
}
