package sh

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/rtlab/pkg/hal"
	"github.com/robotalks/rtlab/pkg/hal/board"
	"github.com/robotalks/rtlab/pkg/isr"
	"github.com/robotalks/rtlab/pkg/kernel"
	"github.com/robotalks/rtlab/pkg/lab"
)

// Shell provides ishell backed interactive shell driving a running lab.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell *ishell.Shell
	Lab   *lab.Lab
}

const shellKey = "$shell"

var (
	// flags

	evalOnly   bool
	outputJSON bool

	commands []*ishell.Cmd
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(l *lab.Lab) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell: ishell.New(),
		Lab:   l,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(l.Profile.Name + " > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Print writes v as JSON or as text.
func Print(c *ishell.Context, v fmt.Stringer) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(v.String())
}

// Run processes args as one command, or runs the interactive shell
// when args is empty.
func (s *Shell) Run(args ...string) error {
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if s.Interactive {
		s.Shell.Run()
		return nil
	}
	return fmt.Errorf("command expected")
}

// ParseButton resolves a button name like S3.
func ParseButton(name string) (hal.LineID, error) {
	switch strings.ToUpper(name) {
	case lab.ButtonS3.Name:
		return lab.ButtonS3.Line, nil
	case lab.ButtonS4.Name:
		return lab.ButtonS4.Line, nil
	}
	return 0, fmt.Errorf("unknown button %q", name)
}

// TaskInfo describes a task.
type TaskInfo struct {
	Name      string          `json:"name"`
	Base      kernel.Priority `json:"base"`
	Effective kernel.Priority `json:"effective"`
	State     string          `json:"state"`
	Steps     uint64          `json:"steps"`
	Failures  uint64          `json:"failures"`
}

// TaskList is printed by the tasks command.
type TaskList []TaskInfo

// Tasks lists the tasks of a kernel.
func Tasks(k *kernel.Kernel) TaskList {
	var list TaskList
	for _, t := range k.Tasks() {
		list = append(list, TaskInfo{
			Name:      t.Name(),
			Base:      t.BasePriority(),
			Effective: t.EffectivePriority(),
			State:     t.State().String(),
			Steps:     t.Steps(),
			Failures:  t.Failures(),
		})
	}
	return list
}

// String implements fmt.Stringer.
func (l TaskList) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-14s %4s %4s %-10s %8s %s", "NAME", "PRIO", "EFF", "STATE", "STEPS", "FAILURES")
	for _, t := range l {
		fmt.Fprintf(&sb, "\n%-14s %4d %4d %-10s %8d %d", t.Name, t.Base, t.Effective, t.State, t.Steps, t.Failures)
	}
	return sb.String()
}

// BoardState is printed by the show command.
type BoardState struct {
	Digits  [2]uint8 `json:"digits"`
	Enabled [2]bool  `json:"enabled"`
	Ghosts  uint64   `json:"ghosts"`
	LED3    bool     `json:"led3"`
	LED4    bool     `json:"led4"`
	TX      string   `json:"tx"`
}

// Board takes a snapshot of the board outputs.
func Board(b *board.Board) BoardState {
	d := b.Display()
	return BoardState{
		Digits:  [2]uint8{d.Shown[hal.PlaneB], d.Shown[hal.PlaneA]},
		Enabled: d.Enabled,
		Ghosts:  d.Ghosts,
		LED3:    b.Output(board.LED3),
		LED4:    b.Output(board.LED4),
		TX:      string(b.Transmitted()),
	}
}

// String implements fmt.Stringer.
func (s BoardState) String() string {
	return fmt.Sprintf("display %d%d ghosts %d LED3 %s LED4 %s tx %q",
		s.Digits[0], s.Digits[1], s.Ghosts, onOff(s.LED3), onOff(s.LED4), s.TX)
}

// Stats summarizes interrupt and telemetry counters.
type Stats struct {
	ISRExits  uint64 `json:"isr_exits"`
	ISRYields uint64 `json:"isr_yields"`
	Served    uint64 `json:"served"`
	Spurious  uint64 `json:"spurious"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

// StatsOf collects the counters of a lab.
func StatsOf(l *lab.Lab) Stats {
	ks := l.Kernel.Stats()
	s := Stats{ISRExits: ks.ISRExits, ISRYields: ks.ISRYields}
	for _, v := range []*isr.Vector{&l.Board.Port1, &l.Board.UARTRx, &l.Board.ADC} {
		s.Served += v.Served()
		s.Spurious += v.Spurious()
	}
	if l.Events != nil {
		s.Published, s.Dropped = l.Events.Published(), l.Events.Dropped()
	}
	return s
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("isr exits %d yields %d served %d spurious %d, events published %d dropped %d",
		s.ISRExits, s.ISRYields, s.Served, s.Spurious, s.Published, s.Dropped)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// Main is a helper to provide a single call in main.
func Main(l *lab.Lab) error {
	return New(l).Run(flag.Args()...)
}
