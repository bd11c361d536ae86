package board

import (
	"testing"

	"github.com/abiosoft/ishell"
	"github.com/stretchr/testify/require"
)

func TestCmdsHaveHelp(t *testing.T) {
	for _, cmd := range []*ishell.Cmd{
		&PressCmd, &ReleaseCmd, &ClickCmd, &GlitchCmd,
		&BounceCmd, &TypeCmd, &ADCCmd, &ShowCmd,
	} {
		require.NotEmpty(t, cmd.Help, cmd.Name)
	}
}
