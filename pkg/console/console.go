// Package console connects byte streams to the simulated UART.
package console

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// UART is the line side of the simulated serial port.
type UART interface {
	// Receive delivers a byte as if it arrived on the line.
	Receive(c byte)
	// OnTransmit registers fn to observe transmitted bytes.
	OnTransmit(fn func(byte))
}

// Feeder reads bytes from Reader and delivers them to UART.
type Feeder struct {
	Reader io.Reader
	UART   UART
	// Gap paces consecutive bytes.
	Gap time.Duration

	fed atomic.Uint64
}

// Name implements framework.Named.
func (f *Feeder) Name() string {
	return "console"
}

// Fed returns the number of bytes delivered.
func (f *Feeder) Fed() uint64 {
	return f.fed.Load()
}

// Run implements framework.Runnable. It returns nil at the end of the
// input.
func (f *Feeder) Run(ctx context.Context) error {
	byteCh, errCh := make(chan byte), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.readLoop(subCtx, byteCh, errCh)
	for {
		select {
		case c := <-byteCh:
			f.UART.Receive(c)
			f.fed.Add(1)
			if f.Gap > 0 {
				time.Sleep(f.Gap)
			}
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feeder) readLoop(ctx context.Context, byteCh chan byte, errCh chan error) {
	buf := make([]byte, 1)
	for {
		n, err := f.Reader.Read(buf)
		if n > 0 {
			select {
			case byteCh <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

// Bridge serves the UART over websocket connections. Each message
// received is delivered byte by byte, transmitted bytes are sent to
// every connection. A slow connection loses bytes.
type Bridge struct {
	UART UART

	lock  sync.Mutex
	conns map[*websocket.Conn]chan byte
}

// NewBridge creates a Bridge observing the transmit side of uart.
func NewBridge(uart UART) *Bridge {
	b := &Bridge{UART: uart, conns: make(map[*websocket.Conn]chan byte)}
	uart.OnTransmit(b.transmit)
	return b
}

// Handler returns the websocket handler.
func (b *Bridge) Handler() websocket.Handler {
	return b.serve
}

// Conns returns the number of connected clients.
func (b *Bridge) Conns() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.conns)
}

func (b *Bridge) transmit(c byte) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, ch := range b.conns {
		select {
		case ch <- c:
		default:
		}
	}
}

func (b *Bridge) serve(conn *websocket.Conn) {
	tx := make(chan byte, 256)
	b.lock.Lock()
	b.conns[conn] = tx
	b.lock.Unlock()
	glog.Infof("console: %s connected", conn.Request().RemoteAddr)

	done := make(chan struct{})
	go b.writeLoop(conn, tx, done)
	defer func() {
		b.lock.Lock()
		delete(b.conns, conn)
		b.lock.Unlock()
		close(done)
		conn.Close()
		glog.Infof("console: %s disconnected", conn.Request().RemoteAddr)
	}()

	for {
		var msg []byte
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			if !errors.Is(err, io.EOF) {
				glog.Warningf("console: receive: %v", err)
			}
			return
		}
		for _, c := range msg {
			b.UART.Receive(c)
		}
	}
}

func (b *Bridge) writeLoop(conn *websocket.Conn, tx chan byte, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case c := <-tx:
			buf := []byte{c}
			for len(tx) > 0 {
				buf = append(buf, <-tx)
			}
			if err := websocket.Message.Send(conn, buf); err != nil {
				glog.Warningf("console: send: %v", err)
				return
			}
		}
	}
}
