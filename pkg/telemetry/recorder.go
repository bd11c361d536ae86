package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/robotalks/rtlab/pkg/kernel"
)

// Publisher delivers events.
type Publisher interface {
	Publish(ev *Event) error
}

// PublisherFunc is the func form of Publisher.
type PublisherFunc func(ev *Event) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ev *Event) error {
	return f(ev)
}

// LogPublisher writes events to the log.
type LogPublisher struct{}

// Publish implements Publisher.
func (LogPublisher) Publish(ev *Event) error {
	glog.Infof("event %s %s=%d %s", Kind(ev.Kind), ev.Source, ev.Value, ev.Text)
	return nil
}

const appID = "rtlab"

// DeviceID identifies this machine without exposing its raw id.
func DeviceID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		return "unknown"
	}
	return id
}

// Recorder queues events without blocking the recording task and
// publishes them from its own low priority task. Events arriving at a
// full queue are dropped and counted.
type Recorder struct {
	Device    string
	Publisher Publisher

	queue     *kernel.Queue[*Event]
	dropped   atomic.Uint64
	published atomic.Uint64
	// drops already reported by a KindDrop event
	reported uint64
}

// NewRecorder creates a Recorder queueing up to capacity events.
func NewRecorder(capacity int, pub Publisher) (*Recorder, error) {
	q, err := kernel.NewQueue[*Event](capacity)
	if err != nil {
		return nil, err
	}
	return &Recorder{Publisher: pub, queue: q}, nil
}

// Record queues an event. It is a no-op on a nil Recorder.
func (r *Recorder) Record(kind Kind, source string, value int64) {
	r.record(&Event{Kind: uint32(kind), Source: source, Value: value})
}

// Recordf queues an event with a text.
func (r *Recorder) Recordf(kind Kind, source, format string, args ...interface{}) {
	r.record(&Event{Kind: uint32(kind), Source: source, Text: fmt.Sprintf(format, args...)})
}

func (r *Recorder) record(ev *Event) {
	if r == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now().UnixNano()
	ev.Device = r.Device
	if err := r.queue.Send(context.Background(), ev, kernel.NoWait); err != nil {
		r.dropped.Add(1)
	}
}

// Dropped returns the number of events lost on a full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Published returns the number of events published.
func (r *Recorder) Published() uint64 {
	return r.published.Load()
}

// Pending returns the number of queued events.
func (r *Recorder) Pending() int {
	return r.queue.Len()
}

// Step implements kernel.Body. Events lost since the last Step are
// reported by a KindDrop event carrying their count.
func (r *Recorder) Step(ctx context.Context) error {
	ev, err := r.queue.Receive(ctx, kernel.WaitForever)
	if err != nil {
		return err
	}
	if err := r.publish(ev); err != nil {
		return err
	}
	if lost := r.dropped.Load() - r.reported; lost > 0 {
		r.reported += lost
		return r.publish(&Event{
			ID:        uuid.NewString(),
			Kind:      uint32(KindDrop),
			Source:    "telemetry",
			Value:     int64(lost),
			Timestamp: time.Now().UnixNano(),
			Device:    r.Device,
		})
	}
	return nil
}

func (r *Recorder) publish(ev *Event) error {
	if err := r.Publisher.Publish(ev); err != nil {
		return fmt.Errorf("publish %s: %w", ev.ID, err)
	}
	r.published.Add(1)
	return nil
}
