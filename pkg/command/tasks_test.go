package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/rtlab/pkg/hal/board"
	"github.com/robotalks/rtlab/pkg/isr"
	"github.com/robotalks/rtlab/pkg/kernel"
)

type pipeline struct {
	board    *board.Board
	rx       *isr.SymbolReceiver
	parser   *ParserTask
	actuator *ActuatorTask
	values   chan int
	stop     func()
}

func newPipeline(t *testing.T, symbols, commands int) *pipeline {
	k := kernel.New()
	b := board.New(isr.NewController(k))
	p := &pipeline{board: b, values: make(chan int, 8)}
	p.rx = &isr.SymbolReceiver{Queue: kernel.MustNewQueue[byte](symbols), RX: b, Echo: b}
	b.UARTRx.Handler = p.rx
	cmdQ := kernel.MustNewQueue[Command](commands)
	p.parser = &ParserTask{
		Parser:      NewParser(DefaultGrammar(board.LED3)),
		Symbols:     p.rx.Queue,
		Commands:    cmdQ,
		SendTimeout: 10 * time.Millisecond,
	}
	p.actuator = &ActuatorTask{
		Commands: cmdQ,
		Handler: &Outputs{
			Outputs: b,
			Value: func(n int) error {
				p.values <- n
				return nil
			},
		},
	}
	k.MustCreateTask("parser", kernel.PriorityNormal, p.parser)
	k.MustCreateTask("actuator", kernel.PriorityHigh, p.actuator)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Start(ctx) }()
	p.stop = func() {
		cancel()
		require.NoError(t, <-done)
	}
	return p
}

func (p *pipeline) send(s string) {
	for _, c := range []byte(s) {
		p.board.Receive(c)
	}
}

func TestPipeline(t *testing.T) {
	p := newPipeline(t, 16, 4)
	defer p.stop()

	p.send("e")
	require.Eventually(t, func() bool { return p.board.Output(board.LED3) }, time.Second, time.Millisecond)

	p.send("s042t")
	select {
	case n := <-p.values:
		require.Equal(t, 42, n)
	case <-time.After(time.Second):
		t.Fatal("value not applied")
	}

	p.send("x5d")
	require.Eventually(t, func() bool { return !p.board.Output(board.LED3) }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return p.actuator.Applied() == 3 }, time.Second, time.Millisecond)
	require.Equal(t, uint64(3), p.parser.Parsed())
	require.Zero(t, p.parser.Dropped())
	require.Equal(t, uint64(9), p.rx.Received())
	require.Equal(t, []byte("es042tx5d"), p.board.Transmitted())
}

func TestPipelineOrder(t *testing.T) {
	p := newPipeline(t, 32, 8)
	defer p.stop()

	p.send("s001ts002ts003t")
	for n := 1; n <= 3; n++ {
		select {
		case v := <-p.values:
			require.Equal(t, n, v)
		case <-time.After(time.Second):
			t.Fatalf("value %d not applied", n)
		}
	}
}

func TestParserTaskDropsOnFullQueue(t *testing.T) {
	symbols := kernel.MustNewQueue[byte](4)
	commands := kernel.MustNewQueue[Command](1)
	ctx := context.Background()
	require.NoError(t, commands.Send(ctx, SetValue{N: 1}, kernel.NoWait))
	require.NoError(t, symbols.Send(ctx, 'e', kernel.NoWait))

	var dropped []Command
	p := &ParserTask{
		Parser:      NewParser(DefaultGrammar(board.LED3)),
		Symbols:     symbols,
		Commands:    commands,
		SendTimeout: kernel.NoWait,
		OnDrop:      func(cmd Command) { dropped = append(dropped, cmd) },
	}
	require.ErrorIs(t, p.Step(ctx), kernel.ErrQueueFull)
	require.Equal(t, uint64(1), p.Dropped())
	require.Zero(t, p.Parsed())
	require.Equal(t, []Command{SetOutputOn{ID: board.LED3}}, dropped)
	require.Equal(t, 1, commands.Len())
}
