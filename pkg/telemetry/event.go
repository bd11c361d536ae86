// Package telemetry records lab events off the task path and publishes
// them as protobuf envelopes.
package telemetry

import (
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"
)

// Kind classifies an event.
type Kind uint32

// Event kinds.
const (
	KindPress Kind = iota + 1
	KindCommand
	KindValue
	KindOutput
	KindSample
	KindDrop
)

var kindNames = map[Kind]string{
	KindPress:   "press",
	KindCommand: "command",
	KindValue:   "value",
	KindOutput:  "output",
	KindSample:  "sample",
	KindDrop:    "drop",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// Event is a single observation made by a task.
type Event struct {
	ID        string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Kind      uint32 `protobuf:"varint,2,opt,name=kind,proto3" json:"kind,omitempty"`
	Source    string `protobuf:"bytes,3,opt,name=source,proto3" json:"source,omitempty"`
	Value     int64  `protobuf:"varint,4,opt,name=value,proto3" json:"value,omitempty"`
	Text      string `protobuf:"bytes,5,opt,name=text,proto3" json:"text,omitempty"`
	Timestamp int64  `protobuf:"varint,6,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	Device    string `protobuf:"bytes,7,opt,name=device,proto3" json:"device,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Event) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Event) Reset() { *m = Event{} }

// String implements proto.Message.
func (m *Event) String() string { return proto.CompactTextString(m) }

// Envelope wraps an encoded message with its type.
type Envelope struct {
	TypeID  uint32 `protobuf:"varint,1,opt,name=type_id,proto3" json:"type_id,omitempty"`
	Payload []byte `protobuf:"bytes,2,opt,name=payload,proto3" json:"payload,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Envelope) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Envelope) Reset() { *m = Envelope{} }

// String implements proto.Message.
func (m *Envelope) String() string { return proto.CompactTextString(m) }

// Type IDs. The high bit marks an event.
const (
	TypeIDKindEvent uint32 = 0x80000000
	EventTypeID     uint32 = TypeIDKindEvent | 0x0001
)

// ErrUnknownType indicates an envelope of another type.
var ErrUnknownType = errors.New("unknown type")

// Encode wraps the event in an envelope.
func Encode(ev *Event) ([]byte, error) {
	payload, err := proto.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(&Envelope{TypeID: EventTypeID, Payload: payload})
}

// Decode extracts an event from an envelope.
func Decode(data []byte) (*Event, error) {
	var env Envelope
	if err := proto.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.TypeID != EventTypeID {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownType, env.TypeID)
	}
	ev := &Event{}
	if err := proto.Unmarshal(env.Payload, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
