// Package all registers all shell commands.
package all

import (
	_ "github.com/robotalks/rtlab/pkg/cli/cmds/board"
	_ "github.com/robotalks/rtlab/pkg/cli/cmds/kernel"
)
