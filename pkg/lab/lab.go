// Package lab composes the lab exercises from the kernel primitives,
// the interrupt adapters and the simulated board.
package lab

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/golang/glog"
	"v.io/x/lib/timing"

	"github.com/robotalks/rtlab/pkg/debounce"
	"github.com/robotalks/rtlab/pkg/display"
	"github.com/robotalks/rtlab/pkg/hal/board"
	"github.com/robotalks/rtlab/pkg/isr"
	"github.com/robotalks/rtlab/pkg/kernel"
	"github.com/robotalks/rtlab/pkg/telemetry"
)

// Buttons of the board.
var (
	ButtonS3 = debounce.Button{Name: "S3", Line: board.LineS3, Mask: uint32(board.BitS3)}
	ButtonS4 = debounce.Button{Name: "S4", Line: board.LineS4, Mask: uint32(board.BitS4)}
)

// ErrUnknownProfile indicates no profile is registered with the name.
var ErrUnknownProfile = errors.New("unknown profile")

// Profile builds the fixed task set of one exercise.
type Profile struct {
	Name        string
	Description string
	Build       func(*Lab) error
}

var profiles = make(map[string]*Profile)

// RegisterProfile makes a profile available by name.
func RegisterProfile(p *Profile) {
	profiles[p.Name] = p
}

// ProfileNames returns the registered profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindProfile looks up a profile.
func FindProfile(name string) (*Profile, error) {
	if p := profiles[name]; p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownProfile, name)
}

// Lab is a board running one profile.
type Lab struct {
	Config  *Config
	Profile *Profile
	Kernel  *kernel.Kernel
	Board   *board.Board
	Timers  *kernel.TimerService
	// Events is optional, a nil Recorder discards events.
	Events *telemetry.Recorder

	// Counter is the shared value of profiles that have one.
	Counter *SharedCounter
	// Display is the refresh task body of profiles multiplexing the
	// display.
	Display *display.Refresher
	// Boot reports the time spent building the lab.
	Boot *timing.Timer
}

// New builds a lab from conf. All primitives and tasks are created
// here; any failure leaves the lab unusable.
func New(conf *Config, events *telemetry.Recorder) (*Lab, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	p, err := FindProfile(conf.Profile)
	if err != nil {
		return nil, err
	}
	l := &Lab{
		Config:  conf,
		Profile: p,
		Kernel:  kernel.New(),
		Events:  events,
		Boot:    timing.NewTimer("boot " + p.Name),
	}
	l.Board = board.New(isr.NewController(l.Kernel))

	l.Boot.Push("timers")
	l.Timers, err = kernel.NewTimerService(l.Kernel, conf.Priorities.Timer, conf.TimerQueue)
	l.Boot.Pop()
	if err != nil {
		return nil, err
	}

	l.Boot.Push("profile")
	err = p.Build(l)
	l.Boot.Pop()
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}

	if events != nil {
		if _, err := l.Kernel.CreateTask("telemetry", conf.Priorities.Telemetry, events); err != nil {
			return nil, err
		}
	}
	l.Boot.Finish()
	glog.V(1).Infof("lab %s built:\n%s", p.Name, l.Boot.String())
	return l, nil
}

// MustNew builds a lab and halts on failure.
func MustNew(conf *Config, events *telemetry.Recorder) *Lab {
	l, err := New(conf, events)
	if err != nil {
		kernel.Halt(err)
	}
	return l
}

// Run starts the kernel and blocks until ctx is canceled.
func (l *Lab) Run(ctx context.Context) error {
	glog.Infof("lab %s: running", l.Profile.Name)
	return l.Kernel.Start(ctx)
}

func (l *Lab) newDebouncer(edges debounce.EdgeSource, emit debounce.EmitFunc, buttons ...debounce.Button) (*debounce.Debouncer, error) {
	mode, err := debounce.ParseMode(l.Config.DebounceMode)
	if err != nil {
		return nil, err
	}
	conf := debounce.Config{Settle: l.Config.Settle, Mode: mode}
	return debounce.New(conf, edges, l.Board, func(ctx context.Context, btn debounce.Button) error {
		l.Events.Record(telemetry.KindPress, btn.Name, 1)
		return emit(ctx, btn)
	}, buttons...), nil
}
