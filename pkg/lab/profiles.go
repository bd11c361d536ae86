package lab

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rtlab/pkg/command"
	"github.com/robotalks/rtlab/pkg/debounce"
	"github.com/robotalks/rtlab/pkg/display"
	"github.com/robotalks/rtlab/pkg/hal"
	"github.com/robotalks/rtlab/pkg/hal/board"
	"github.com/robotalks/rtlab/pkg/isr"
	"github.com/robotalks/rtlab/pkg/kernel"
	"github.com/robotalks/rtlab/pkg/telemetry"
)

// Counter values of the mutex profile.
const (
	CounterStart = 10
	CounterStep  = 2
	CounterMax   = 40
)

func init() {
	RegisterProfile(&Profile{
		Name:        "counter",
		Description: "S3 presses count 0..9 on the display, LED3 toggles on wrap.",
		Build:       buildCounter,
	})
	RegisterProfile(&Profile{
		Name:        "adc",
		Description: "ADC samples shown on the display, S3 sends the value over UART.",
		Build:       buildADC,
	})
	RegisterProfile(&Profile{
		Name:        "mutex",
		Description: "S3 adds 2 to a shared counter, S4 copies it into the LED3 blink period.",
		Build:       buildMutex,
	})
	RegisterProfile(&Profile{
		Name:        "pipeline",
		Description: "UART symbols parsed into LED and display commands, S3/S4 switch LED3.",
		Build:       buildPipeline,
	})
}

// NextCount advances the counter of the mutex profile.
func NextCount(v int) int {
	if v >= CounterMax {
		return CounterStep
	}
	return v + CounterStep
}

func buildCounter(l *Lab) error {
	conf := l.Config
	edge := kernel.NewBinarySemaphore()
	pressed := kernel.NewBinarySemaphore()
	wrapped := kernel.NewBinarySemaphore()

	l.Board.Port1.Enable = board.BitS3
	l.Board.Port1.Handler = isr.GiveSemaphore(edge)
	deb, err := l.newDebouncer(debounce.SemaphoreEdges{Sem: edge}, func(context.Context, debounce.Button) error {
		pressed.Give()
		return nil
	}, ButtonS3)
	if err != nil {
		return err
	}

	l.Counter = NewSharedCounter(0, conf.LockTimeout)
	l.Board.EnablePlane(hal.PlaneA)
	l.Board.WriteDigit(0)
	count := kernel.StepFunc(func(ctx context.Context) error {
		if err := pressed.Take(ctx, kernel.WaitForever); err != nil {
			return err
		}
		var v int
		err := l.Counter.Update(ctx, func(cur int) int {
			if v = cur + 1; v > 9 {
				v = 0
			}
			return v
		})
		if err != nil {
			return err
		}
		if v == 0 {
			wrapped.Give()
		}
		l.Board.WriteDigit(uint8(v))
		l.Events.Record(telemetry.KindValue, "counter", int64(v))
		return nil
	})
	toggle := kernel.StepFunc(func(ctx context.Context) error {
		if err := wrapped.Take(ctx, kernel.WaitForever); err != nil {
			return err
		}
		l.Board.ToggleOutput(board.LED3)
		l.Events.Record(telemetry.KindOutput, "LED3", boolValue(l.Board.Output(board.LED3)))
		return nil
	})

	return createTasks(l.Kernel,
		taskSpec{"buttons", conf.Priorities.Buttons, deb},
		taskSpec{"counter", conf.Priorities.Worker, count},
		taskSpec{"toggle", conf.Priorities.Worker + 1, toggle},
	)
}

func buildADC(l *Lab) error {
	conf := l.Config
	edge := kernel.NewBinarySemaphore()
	mailbox := kernel.NewMailbox[uint16]()

	l.Board.ADC.Handler = isr.OverwriteMailbox(mailbox, func() uint16 {
		return l.Board.Result() >> 6
	})
	l.Board.Port1.Enable = board.BitS3
	l.Board.Port1.Handler = isr.GiveSemaphore(edge)

	sample := kernel.StepFunc(func(ctx context.Context) error {
		l.Board.StartConversion()
		return kernel.Delay(ctx, conf.ADCPeriod)
	})
	deb, err := l.newDebouncer(debounce.SemaphoreEdges{Sem: edge}, func(ctx context.Context, _ debounce.Button) error {
		v, err := mailbox.Peek(ctx, kernel.NoWait)
		if err != nil {
			// nothing converted yet
			return nil
		}
		high, low := display.Split(int(v))
		l.Board.TransmitByte('0' + high)
		l.Board.TransmitByte('0' + low)
		l.Events.Record(telemetry.KindSample, "adc", int64(v))
		return nil
	}, ButtonS3)
	if err != nil {
		return err
	}
	l.Display = display.New(l.Board, &display.MailboxSource[uint16]{Mailbox: mailbox}, display.DelayTick{Period: conf.Refresh})

	return createTasks(l.Kernel,
		taskSpec{"buttons", conf.Priorities.Buttons, deb},
		taskSpec{"adc", conf.Priorities.Worker, sample},
		taskSpec{"display", conf.Priorities.Display, l.Display},
	)
}

func buildMutex(l *Lab) error {
	conf := l.Config
	increment := kernel.NewBinarySemaphore()
	copyPeriod := kernel.NewBinarySemaphore()

	deb, err := l.newDebouncer(nil, func(_ context.Context, btn debounce.Button) error {
		if btn.Line == board.LineS3 {
			increment.Give()
		} else {
			copyPeriod.Give()
		}
		return nil
	}, ButtonS3, ButtonS4)
	if err != nil {
		return err
	}
	// both buttons share Port1, the status bits tell them apart
	buttons, err := l.Kernel.CreateTask("buttons", conf.Priorities.Buttons, deb)
	if err != nil {
		return err
	}
	deb.Edges = debounce.NotifiedEdges{Task: buttons}
	l.Board.Port1.Handler = isr.NotifyBits(buttons)

	l.Counter = NewSharedCounter(CounterStart, conf.LockTimeout)
	period := NewSharedCounter(CounterStart, conf.LockTimeout)
	count := kernel.StepFunc(func(ctx context.Context) error {
		if err := increment.Take(ctx, kernel.WaitForever); err != nil {
			return err
		}
		var v int
		err := l.Counter.Update(ctx, func(cur int) int {
			v = NextCount(cur)
			return v
		})
		if err == nil {
			l.Events.Record(telemetry.KindValue, "counter", int64(v))
		}
		return err
	})
	setPeriod := kernel.StepFunc(func(ctx context.Context) error {
		if err := copyPeriod.Take(ctx, kernel.WaitForever); err != nil {
			return err
		}
		v, err := l.Counter.Load(ctx)
		if err != nil {
			return err
		}
		glog.V(2).Infof("blink period %d", v)
		if err := period.Store(ctx, v); err != nil {
			return err
		}
		l.Events.Record(telemetry.KindValue, "period", int64(v))
		return nil
	})
	// the period is copied out so the mutex is never held across the delay
	blink := kernel.StepFunc(func(ctx context.Context) error {
		l.Board.ToggleOutput(board.LED3)
		p, err := period.Load(ctx)
		if err != nil {
			return err
		}
		return kernel.Delay(ctx, time.Duration(p)*conf.BlinkUnit)
	})
	l.Display = display.New(l.Board, l.Counter, display.DelayTick{Period: conf.Refresh})

	return createTasks(l.Kernel,
		taskSpec{"counter", conf.Priorities.Worker + 1, count},
		taskSpec{"period", conf.Priorities.Worker + 1, setPeriod},
		taskSpec{"display", conf.Priorities.Display, l.Display},
		taskSpec{"blink", conf.Priorities.Worker - 1, blink},
	)
}

func buildPipeline(l *Lab) error {
	conf := l.Config
	symbols, err := kernel.NewQueue[byte](conf.SymbolQueue)
	if err != nil {
		return err
	}
	commands, err := kernel.NewQueue[command.Command](conf.CommandQueue)
	if err != nil {
		return err
	}
	grammar := command.DefaultGrammar(board.LED4)
	grammar.Digits = conf.Digits
	if err := grammar.Validate(); err != nil {
		return err
	}

	tick, _, err := display.NewTimerTick(context.Background(), l.Timers, "refresh", conf.Refresh)
	if err != nil {
		return err
	}
	l.Display = display.New(l.Board, &display.NotifiedSource{}, tick)
	displayTask, err := l.Kernel.CreateTask("display", conf.Priorities.Display, l.Display)
	if err != nil {
		return err
	}

	rx := &isr.SymbolReceiver{Queue: symbols, RX: l.Board, Echo: l.Board}
	l.Board.UARTRx.Handler = rx
	parser := &command.ParserTask{
		Parser:      command.NewParser(grammar),
		Symbols:     symbols,
		Commands:    commands,
		SendTimeout: conf.SendTimeout,
		OnCommand: func(cmd command.Command) {
			l.Events.Recordf(telemetry.KindCommand, "parser", "%s", cmd)
		},
		OnDrop: func(cmd command.Command) {
			l.Events.Recordf(telemetry.KindDrop, "parser", "%s", cmd)
		},
	}
	actuator := &command.ActuatorTask{
		Commands: commands,
		Handler: &command.Outputs{
			Outputs: l.Board,
			Value: func(n int) error {
				l.Events.Record(telemetry.KindValue, "display", int64(n))
				return displayTask.Notify(kernel.NotifySetValueWithOverwrite, uint32(n))
			},
		},
	}

	deb, err := l.newDebouncer(nil, func(ctx context.Context, btn debounce.Button) error {
		var cmd command.Command = command.SetOutputOn{ID: board.LED3}
		if btn.Line == board.LineS4 {
			cmd = command.SetOutputOff{ID: board.LED3}
		}
		l.Events.Recordf(telemetry.KindCommand, btn.Name, "%s", cmd)
		return commands.Send(ctx, cmd, conf.SendTimeout)
	}, ButtonS3, ButtonS4)
	if err != nil {
		return err
	}
	buttons, err := l.Kernel.CreateTask("buttons", conf.Priorities.Buttons, deb)
	if err != nil {
		return err
	}
	deb.Edges = debounce.NotifiedEdges{Task: buttons}
	l.Board.Port1.Handler = isr.NotifyBits(buttons)

	return createTasks(l.Kernel,
		taskSpec{"parser", conf.Priorities.Worker, parser},
		taskSpec{"actuator", conf.Priorities.Buttons + 1, actuator},
	)
}

type taskSpec struct {
	name string
	prio kernel.Priority
	body kernel.Body
}

func createTasks(k *kernel.Kernel, specs ...taskSpec) error {
	for _, s := range specs {
		if _, err := k.CreateTask(s.name, s.prio, s.body); err != nil {
			return err
		}
	}
	return nil
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
