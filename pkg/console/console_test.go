package console

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type echoUART struct {
	lock     sync.Mutex
	received []byte
	txFuncs  []func(byte)
}

func (u *echoUART) Receive(c byte) {
	u.lock.Lock()
	u.received = append(u.received, c)
	funcs := u.txFuncs
	u.lock.Unlock()
	for _, fn := range funcs {
		fn(c)
	}
}

func (u *echoUART) OnTransmit(fn func(byte)) {
	u.lock.Lock()
	u.txFuncs = append(u.txFuncs, fn)
	u.lock.Unlock()
}

func (u *echoUART) Received() string {
	u.lock.Lock()
	defer u.lock.Unlock()
	return string(u.received)
}

func TestFeeder(t *testing.T) {
	uart := &echoUART{}
	f := &Feeder{Reader: strings.NewReader("s042t"), UART: uart}
	require.NoError(t, f.Run(context.Background()))
	require.Equal(t, "s042t", uart.Received())
	require.Equal(t, uint64(5), f.Fed())
	require.Equal(t, "console", f.Name())
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}

func TestFeederCancel(t *testing.T) {
	f := &Feeder{Reader: blockingReader{}, UART: &echoUART{}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.Run(ctx), context.DeadlineExceeded)
}

func TestBridge(t *testing.T) {
	uart := &echoUART{}
	b := NewBridge(uart)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return b.Conns() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, websocket.Message.Send(conn, "e"))
	require.NoError(t, websocket.Message.Send(conn, []byte("s1")))
	require.Eventually(t, func() bool { return uart.Received() == "es1" }, time.Second, time.Millisecond)

	var echoed []byte
	for len(echoed) < 3 {
		var msg []byte
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		require.NoError(t, websocket.Message.Receive(conn, &msg))
		echoed = append(echoed, msg...)
	}
	require.Equal(t, "es1", string(echoed))

	conn.Close()
	require.Eventually(t, func() bool { return b.Conns() == 0 }, time.Second, time.Millisecond)
}
