// Package bus defines the narrow contract between the device core and the
// message bus. The core publishes records by topic and receives command
// deliveries that it must acknowledge or reject; the concrete transport lives
// in infra/mqtt.
package bus

import (
	"context"
	"errors"
)

// ErrConnClosed indicates the bus connection is permanently unusable. The
// cadence loop treats it as fatal; any other publish error is transient.
var ErrConnClosed = errors.New("bus connection closed")

// Command names carried in control topics.
const (
	CmdStartRent   = "start_rent"
	CmdEndRent     = "end_rent"
	CmdKillVehicle = "kill_vehicle"
)

// Command is a control instruction addressed to a single device.
type Command struct {
	Name    string
	Device  string
	OrderID string
}

// Disposition is the outcome of processing a delivery.
type Disposition int

const (
	DispositionAck Disposition = iota
	DispositionNack
)

func (d Disposition) String() string {
	if d == DispositionAck {
		return "ack"
	}
	return "nack"
}

// Delivery wraps a command with an acknowledgment channel. The consumer must
// call Ack or Nack exactly once after processing; the transport side blocks
// on Done to settle the message with the bus.
type Delivery struct {
	Cmd  Command
	resp chan Disposition
}

// NewDelivery creates a delivery for the given command.
func NewDelivery(cmd Command) Delivery {
	return Delivery{Cmd: cmd, resp: make(chan Disposition, 1)}
}

// Ack marks the command as successfully applied.
func (d Delivery) Ack() { d.settle(DispositionAck) }

// Nack marks the command as failed so the bus may redeliver or dead-letter.
func (d Delivery) Nack() { d.settle(DispositionNack) }

func (d Delivery) settle(disp Disposition) {
	select {
	case d.resp <- disp:
	default:
	}
}

// Done returns the channel carrying the final disposition.
func (d Delivery) Done() <-chan Disposition { return d.resp }

// Publisher sends a serialized record to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Conn is a device-scoped bus connection. Commands delivers inbound control
// messages for the device the connection was opened for.
type Conn interface {
	Publisher
	Commands() <-chan Delivery
	Close()
}

// Connector opens bus connections. A connection failure is fatal for the
// device: its cadence loop never starts.
type Connector interface {
	Connect(ctx context.Context, deviceID string) (Conn, error)
}
