package command

import (
	"errors"
	"fmt"

	"github.com/robotalks/rtlab/pkg/hal"
)

// Grammar defines the symbols recognized by Parser.
//
//	<on>                        -> SetOutputOn(id)
//	<off>                       -> SetOutputOff(id)
//	<start> digit{Digits} <end> -> SetValue(n)
type Grammar struct {
	Start      byte
	Terminator byte
	Digits     int
	On         map[byte]hal.OutputID
	Off        map[byte]hal.OutputID
}

// DefaultGrammar returns 'e'/'d' switching out on/off and "s" 3 digits
// "t" setting the value.
func DefaultGrammar(out hal.OutputID) Grammar {
	return Grammar{
		Start:      's',
		Terminator: 't',
		Digits:     3,
		On:         map[byte]hal.OutputID{'e': out},
		Off:        map[byte]hal.OutputID{'d': out},
	}
}

// ErrInvalidGrammar indicates conflicting or missing grammar symbols.
var ErrInvalidGrammar = errors.New("invalid grammar")

// Validate checks every symbol has one meaning.
func (g Grammar) Validate() error {
	if g.Digits < 1 || g.Digits > 9 {
		return fmt.Errorf("%w: %d digits", ErrInvalidGrammar, g.Digits)
	}
	seen := make(map[byte]bool)
	claim := func(b byte) error {
		if isDigit(b) || seen[b] {
			return fmt.Errorf("%w: symbol %q reused", ErrInvalidGrammar, b)
		}
		seen[b] = true
		return nil
	}
	if err := claim(g.Start); err != nil {
		return err
	}
	if err := claim(g.Terminator); err != nil {
		return err
	}
	for b := range g.On {
		if err := claim(b); err != nil {
			return err
		}
	}
	for b := range g.Off {
		if err := claim(b); err != nil {
			return err
		}
	}
	return nil
}

type parseState int

const (
	stateIdle   parseState = iota // waiting for a command symbol
	stateNumber                   // collecting digits after start
)

// Parser decodes one symbol at a time. Any symbol breaking a rule
// resets the accumulator, digit count and mode.
type Parser struct {
	Grammar Grammar

	state  parseState
	acc    int
	digits int
}

// NewParser creates a parser.
func NewParser(g Grammar) *Parser {
	return &Parser{Grammar: g}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// Reset drops the partial input.
func (p *Parser) Reset() {
	p.state, p.acc, p.digits = stateIdle, 0, 0
}

// Parse consumes a symbol and returns the completed command, or nil.
func (p *Parser) Parse(b byte) Command {
	g := &p.Grammar
	if id, ok := g.On[b]; ok {
		p.Reset()
		return SetOutputOn{ID: id}
	}
	if id, ok := g.Off[b]; ok {
		p.Reset()
		return SetOutputOff{ID: id}
	}
	switch {
	case b == g.Start:
		p.Reset()
		p.state = stateNumber
	case isDigit(b):
		if p.state != stateNumber || p.digits >= g.Digits {
			p.Reset()
			return nil
		}
		p.acc = p.acc*10 + int(b-'0')
		p.digits++
	case b == g.Terminator:
		var cmd Command
		if p.state == stateNumber && p.digits == g.Digits {
			cmd = SetValue{N: p.acc}
		}
		p.Reset()
		return cmd
	default:
		p.Reset()
	}
	return nil
}
