package board

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/rtlab/pkg/cli/sh"
	"github.com/robotalks/rtlab/pkg/hal"
)

const defaultHold = 100 * time.Millisecond

func buttonCmd(name string, aliases []string, help string, fn func(c *ishell.Context, s *sh.Shell, line hal.LineID) error) ishell.Cmd {
	return ishell.Cmd{
		Name:    name,
		Aliases: aliases,
		Help:    help,
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("BUTTON required"))
				return
			}
			line, err := sh.ParseButton(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			if err := fn(c, sh.ShellFrom(c), line); err != nil {
				c.Err(err)
			}
		},
	}
}

func durationArg(c *ishell.Context, n int, def time.Duration) (time.Duration, error) {
	if len(c.Args) <= n {
		return def, nil
	}
	d, err := time.ParseDuration(c.Args[n])
	if err != nil {
		return 0, fmt.Errorf("Invalid DURATION: %v", err)
	}
	return d, nil
}

var (
	// PressCmd holds a button down.
	PressCmd = buttonCmd("press", []string{"p"}, "BUTTON", func(c *ishell.Context, s *sh.Shell, line hal.LineID) error {
		s.Lab.Board.Press(line)
		return nil
	})

	// ReleaseCmd releases a button.
	ReleaseCmd = buttonCmd("release", []string{"r"}, "BUTTON", func(c *ishell.Context, s *sh.Shell, line hal.LineID) error {
		s.Lab.Board.Release(line)
		return nil
	})

	// ClickCmd presses and releases a button.
	ClickCmd = buttonCmd("click", []string{"k"}, "BUTTON [HOLD]", func(c *ishell.Context, s *sh.Shell, line hal.LineID) error {
		hold, err := durationArg(c, 1, defaultHold)
		if err != nil {
			return err
		}
		s.Lab.Board.Click(line, hold)
		return nil
	})

	// GlitchCmd raises an edge shorter than the settle window.
	GlitchCmd = buttonCmd("glitch", nil, "BUTTON [DURATION]", func(c *ishell.Context, s *sh.Shell, line hal.LineID) error {
		d, err := durationArg(c, 1, s.Lab.Config.Settle/4)
		if err != nil {
			return err
		}
		s.Lab.Board.Glitch(line, d)
		return nil
	})

	// BounceCmd presses a button with contact bounce.
	BounceCmd = buttonCmd("bounce", nil, "BUTTON [EDGES] [GAP]", func(c *ishell.Context, s *sh.Shell, line hal.LineID) error {
		edges := 3
		if len(c.Args) > 1 {
			n, err := strconv.Atoi(c.Args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("Invalid EDGES: %q", c.Args[1])
			}
			edges = n
		}
		gap, err := durationArg(c, 2, time.Millisecond)
		if err != nil {
			return err
		}
		s.Lab.Board.Bounce(line, edges, gap)
		return nil
	})

	// TypeCmd sends symbols over the UART.
	TypeCmd = ishell.Cmd{
		Name:    "type",
		Aliases: []string{"t"},
		Help:    "SYMBOLS...",
		Func: func(c *ishell.Context) {
			b := sh.ShellFrom(c).Lab.Board
			for _, r := range []byte(strings.Join(c.Args, "")) {
				b.Receive(r)
			}
		},
	}

	// ADCCmd sets the analog input.
	ADCCmd = ishell.Cmd{
		Name: "adc",
		Help: "SAMPLE(0..4095)",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("SAMPLE required"))
				return
			}
			v, err := strconv.ParseUint(c.Args[0], 0, 12)
			if err != nil {
				c.Err(fmt.Errorf("Invalid SAMPLE: %v", err))
				return
			}
			sh.ShellFrom(c).Lab.Board.SetSample(uint16(v))
		},
	}

	// ShowCmd prints the display, LEDs and UART output.
	ShowCmd = ishell.Cmd{
		Name:    "show",
		Aliases: []string{"s", "leds"},
		Help:    "show the display digits, LEDs and UART output",
		Func: func(c *ishell.Context) {
			sh.Print(c, sh.Board(sh.ShellFrom(c).Lab.Board))
		},
	}
)

func init() {
	sh.AddCmds(
		&PressCmd,
		&ReleaseCmd,
		&ClickCmd,
		&GlitchCmd,
		&BounceCmd,
		&TypeCmd,
		&ADCCmd,
		&ShowCmd,
	)
}
