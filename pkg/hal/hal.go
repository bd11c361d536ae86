// Package hal defines the capabilities of board drivers consumed by
// tasks and interrupt handlers.
package hal

// Plane selects one digit of a multiplexed two-digit display.
type Plane int

// Display planes. PlaneA shows the low digit, PlaneB the high digit.
const (
	PlaneA Plane = iota
	PlaneB
)

// Other returns the opposite plane.
func (p Plane) Other() Plane {
	if p == PlaneA {
		return PlaneB
	}
	return PlaneA
}

// String implements fmt.Stringer.
func (p Plane) String() string {
	if p == PlaneA {
		return "A"
	}
	return "B"
}

// DigitWriter drives the segment lines shared by all planes.
type DigitWriter interface {
	WriteDigit(d uint8)
}

// PlaneSwitch drives the plane enable lines.
type PlaneSwitch interface {
	EnablePlane(p Plane)
	DisablePlane(p Plane)
}

// SevenSegment is a multiplexed seven-segment display.
type SevenSegment interface {
	DigitWriter
	PlaneSwitch
}

// OutputID identifies a digital output, e.g. an LED.
type OutputID int

// Outputs controls digital outputs.
type Outputs interface {
	SetOutput(id OutputID)
	ClearOutput(id OutputID)
	ToggleOutput(id OutputID)
}

// LineID identifies a digital input line.
type LineID int

// InputLines samples raw input lines. A line reads true when asserted.
type InputLines interface {
	ReadInputLine(id LineID) bool
}

// ByteTransmitter writes the transmit register of a serial port.
type ByteTransmitter interface {
	TransmitByte(b byte)
}

// ByteReceiver reads the receive register of a serial port.
type ByteReceiver interface {
	ReceiveByte() byte
}

// Converter is an analog to digital converter signaling completion by
// interrupt.
type Converter interface {
	StartConversion()
	Result() uint16
}
