// Package board simulates the lab board: two push buttons sharing one
// interrupt vector, LEDs, a multiplexed two-digit display, a UART and
// an ADC channel.
package board

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robotalks/rtlab/pkg/hal"
	"github.com/robotalks/rtlab/pkg/isr"
)

// Lines, outputs and flag bits of the board.
const (
	LineS3 hal.LineID = 3
	LineS4 hal.LineID = 4

	LED3 hal.OutputID = 3
	LED4 hal.OutputID = 4

	BitS3     uint16 = 0x10
	BitS4     uint16 = 0x20
	BitRX     uint16 = 0x01
	BitADCEnd uint16 = 0x01
)

// DisplayState is a snapshot of the display lines.
type DisplayState struct {
	Segments uint8
	Enabled  [2]bool
	Shown    [2]uint8
	Ghosts   uint64
	Enables  uint64
}

// Board is a simulated board. Its vectors have no handler until a
// profile attaches one.
type Board struct {
	Port1  isr.Vector
	UARTRx isr.Vector
	ADC    isr.Vector

	// ConversionTime is the delay between StartConversion and the
	// completion interrupt.
	ConversionTime time.Duration

	ctrl *isr.Controller

	lock    sync.Mutex
	buttons map[hal.LineID]uint16
	lines   map[hal.LineID]bool
	outputs map[hal.OutputID]bool
	display DisplayState
	tx      []byte
	txFuncs []func(byte)

	rxLock sync.Mutex
	rx     atomic.Uint32
	sample atomic.Uint32
	result atomic.Uint32
}

// New creates a board raising interrupts through ctrl.
func New(ctrl *isr.Controller) *Board {
	b := &Board{
		ConversionTime: 100 * time.Microsecond,
		ctrl:           ctrl,
		buttons: map[hal.LineID]uint16{
			LineS3: BitS3,
			LineS4: BitS4,
		},
		lines:   make(map[hal.LineID]bool),
		outputs: make(map[hal.OutputID]bool),
	}
	b.Port1 = isr.Vector{Name: "port1", Flags: &isr.Register{}, Enable: BitS3 | BitS4}
	b.UARTRx = isr.Vector{Name: "uart-rx", Flags: &isr.Register{}, Enable: BitRX}
	b.ADC = isr.Vector{Name: "adc", Flags: &isr.Register{}, Enable: BitADCEnd}
	return b
}

// Controller returns the interrupt controller.
func (b *Board) Controller() *isr.Controller {
	return b.ctrl
}

// ButtonBit returns the flag bit of the button on line.
func (b *Board) ButtonBit(line hal.LineID) uint16 {
	return b.buttons[line]
}

// Press asserts the line and raises the edge interrupt.
func (b *Board) Press(line hal.LineID) {
	b.lock.Lock()
	b.lines[line] = true
	bit := b.buttons[line]
	b.lock.Unlock()
	if bit != 0 {
		b.ctrl.Trigger(&b.Port1, bit)
	}
}

// PressTogether asserts several lines and raises a single interrupt
// carrying all their bits.
func (b *Board) PressTogether(lines ...hal.LineID) {
	var bits uint16
	b.lock.Lock()
	for _, line := range lines {
		b.lines[line] = true
		bits |= b.buttons[line]
	}
	b.lock.Unlock()
	if bits != 0 {
		b.ctrl.Trigger(&b.Port1, bits)
	}
}

// Release de-asserts the line. Only falling edges interrupt.
func (b *Board) Release(line hal.LineID) {
	b.lock.Lock()
	b.lines[line] = false
	b.lock.Unlock()
}

// Click presses the button and releases it after hold.
func (b *Board) Click(line hal.LineID, hold time.Duration) {
	b.Press(line)
	time.Sleep(hold)
	b.Release(line)
}

// Glitch raises an edge with the line asserted only for d, shorter
// than any settle window used for a genuine press.
func (b *Board) Glitch(line hal.LineID, d time.Duration) {
	b.Click(line, d)
}

// Bounce raises edges separated by gap while the line stays asserted,
// as a bouncing contact does.
func (b *Board) Bounce(line hal.LineID, edges int, gap time.Duration) {
	for n := 0; n < edges; n++ {
		if n > 0 {
			time.Sleep(gap)
		}
		b.Press(line)
	}
}

// ReadInputLine implements hal.InputLines.
func (b *Board) ReadInputLine(id hal.LineID) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.lines[id]
}

// SetOutput implements hal.Outputs.
func (b *Board) SetOutput(id hal.OutputID) {
	b.lock.Lock()
	b.outputs[id] = true
	b.lock.Unlock()
}

// ClearOutput implements hal.Outputs.
func (b *Board) ClearOutput(id hal.OutputID) {
	b.lock.Lock()
	b.outputs[id] = false
	b.lock.Unlock()
}

// ToggleOutput implements hal.Outputs.
func (b *Board) ToggleOutput(id hal.OutputID) {
	b.lock.Lock()
	b.outputs[id] = !b.outputs[id]
	b.lock.Unlock()
}

// Output returns the output state.
func (b *Board) Output(id hal.OutputID) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.outputs[id]
}

// WriteDigit implements hal.DigitWriter.
func (b *Board) WriteDigit(d uint8) {
	b.lock.Lock()
	b.display.Segments = d
	b.lock.Unlock()
}

// EnablePlane implements hal.PlaneSwitch. Enabling a plane while the
// other one is enabled shows both digits and is counted as ghosting.
func (b *Board) EnablePlane(p hal.Plane) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.display.Enabled[p.Other()] {
		b.display.Ghosts++
	}
	b.display.Enabled[p] = true
	b.display.Shown[p] = b.display.Segments
	b.display.Enables++
}

// DisablePlane implements hal.PlaneSwitch.
func (b *Board) DisablePlane(p hal.Plane) {
	b.lock.Lock()
	b.display.Enabled[p] = false
	b.lock.Unlock()
}

// Display returns a snapshot of the display.
func (b *Board) Display() DisplayState {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.display
}

// Receive puts a byte in the receive register and raises the RX
// interrupt.
func (b *Board) Receive(c byte) {
	b.rxLock.Lock()
	defer b.rxLock.Unlock()
	b.rx.Store(uint32(c))
	b.ctrl.Trigger(&b.UARTRx, BitRX)
}

// ReceiveByte implements hal.ByteReceiver.
func (b *Board) ReceiveByte() byte {
	return byte(b.rx.Load())
}

// TransmitByte implements hal.ByteTransmitter.
func (b *Board) TransmitByte(c byte) {
	b.lock.Lock()
	b.tx = append(b.tx, c)
	funcs := b.txFuncs
	b.lock.Unlock()
	for _, fn := range funcs {
		fn(c)
	}
}

// OnTransmit registers fn to observe transmitted bytes.
func (b *Board) OnTransmit(fn func(byte)) {
	b.lock.Lock()
	b.txFuncs = append(b.txFuncs, fn)
	b.lock.Unlock()
}

// Transmitted returns all transmitted bytes.
func (b *Board) Transmitted() []byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]byte(nil), b.tx...)
}

// SetSample sets the analog input for the next conversion.
func (b *Board) SetSample(v uint16) {
	b.sample.Store(uint32(v & 0x0fff))
}

// StartConversion implements hal.Converter.
func (b *Board) StartConversion() {
	time.AfterFunc(b.ConversionTime, func() {
		b.result.Store(b.sample.Load())
		b.ctrl.Trigger(&b.ADC, BitADCEnd)
	})
}

// Result implements hal.Converter.
func (b *Board) Result() uint16 {
	return uint16(b.result.Load())
}
