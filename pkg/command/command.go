// Package command decodes a symbol stream into commands and applies
// them to outputs in a separate task.
package command

import (
	"fmt"

	"github.com/robotalks/rtlab/pkg/hal"
)

// Command is one of SetOutputOn, SetOutputOff or SetValue. The set is
// closed: Handler has one method per variant.
type Command interface {
	// Dispatch calls the Handler method matching the variant.
	Dispatch(Handler) error
	fmt.Stringer

	command()
}

// Handler applies commands.
type Handler interface {
	SetOutputOn(id hal.OutputID) error
	SetOutputOff(id hal.OutputID) error
	SetValue(n int) error
}

// SetOutputOn turns an output on.
type SetOutputOn struct {
	ID hal.OutputID
}

// SetOutputOff turns an output off.
type SetOutputOff struct {
	ID hal.OutputID
}

// SetValue updates the shared value.
type SetValue struct {
	N int
}

// Dispatch implements Command.
func (c SetOutputOn) Dispatch(h Handler) error { return h.SetOutputOn(c.ID) }

// Dispatch implements Command.
func (c SetOutputOff) Dispatch(h Handler) error { return h.SetOutputOff(c.ID) }

// Dispatch implements Command.
func (c SetValue) Dispatch(h Handler) error { return h.SetValue(c.N) }

func (c SetOutputOn) String() string  { return fmt.Sprintf("SetOutputOn(%d)", c.ID) }
func (c SetOutputOff) String() string { return fmt.Sprintf("SetOutputOff(%d)", c.ID) }
func (c SetValue) String() string     { return fmt.Sprintf("SetValue(%d)", c.N) }

func (SetOutputOn) command()  {}
func (SetOutputOff) command() {}
func (SetValue) command()     {}

// Outputs is a Handler driving outputs directly. SetValue is delegated
// to Value when set.
type Outputs struct {
	Outputs hal.Outputs
	Value   func(n int) error
}

// SetOutputOn implements Handler.
func (o *Outputs) SetOutputOn(id hal.OutputID) error {
	o.Outputs.SetOutput(id)
	return nil
}

// SetOutputOff implements Handler.
func (o *Outputs) SetOutputOff(id hal.OutputID) error {
	o.Outputs.ClearOutput(id)
	return nil
}

// SetValue implements Handler.
func (o *Outputs) SetValue(n int) error {
	if o.Value == nil {
		return nil
	}
	return o.Value(n)
}
