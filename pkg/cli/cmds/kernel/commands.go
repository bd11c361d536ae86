package kernel

import (
	"github.com/abiosoft/ishell"

	"github.com/robotalks/rtlab/pkg/cli/sh"
)

var (
	// TasksCmd lists tasks with priorities and states.
	TasksCmd = ishell.Cmd{
		Name:    "tasks",
		Aliases: []string{"ps"},
		Help:    "list tasks with base and effective priority, state and step counts",
		Func: func(c *ishell.Context) {
			sh.Print(c, sh.Tasks(sh.ShellFrom(c).Lab.Kernel))
		},
	}

	// StatsCmd prints interrupt and telemetry counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "show interrupt and telemetry counters",
		Func: func(c *ishell.Context) {
			sh.Print(c, sh.StatsOf(sh.ShellFrom(c).Lab))
		},
	}
)

func init() {
	sh.AddCmds(&TasksCmd, &StatsCmd)
}
