package link

import (
	"context"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/pkg/errors"
)

// fakeConn records writes and times out every read.
type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	closed   bool
}

func (c *fakeConn) Read(b []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return 0, os.ErrDeadlineExceeded
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) nWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) LocalAddr() net.Addr                { return &net.UDPAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr               { return &net.UDPAddr{} }
func (c *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newFakeOperator(conn *fakeConn) *OperatorLink {
	l := NewOperatorLink(OperatorConfig{Addr: "vehicle:5005", SendPeriod: 2 * time.Millisecond, ReadTimeout: 5 * time.Millisecond})
	l.dial = func(addr string) (net.Conn, error) { return conn, nil }
	return l
}

func TestSendOnChange(t *testing.T) {
	conn := &fakeConn{}
	l := newFakeOperator(conn)
	l.Start(context.Background())

	c := Command{Target: ahrs.FromEuler(0, 10, 0), Throttle: 0.2, Law: 1, Gains: [3]float64{0.5, 0.5, 0.5}}
	for i := 0; i < 20; i++ {
		l.SetCommand(c)
		time.Sleep(time.Millisecond)
	}
	eventually(t, "first command", func() bool { return conn.nWrites() == 1 })
	time.Sleep(30 * time.Millisecond)
	if n := conn.nWrites(); n != 1 {
		t.Fatalf("identical command sent %d times", n)
	}

	c.Throttle = 0.3
	l.SetCommand(c)
	eventually(t, "changed command", func() bool { return conn.nWrites() == 2 })

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if conn.nWrites() != 3 || string(conn.writes[2]) != string(NeutralCommand().Encode()) {
		t.Errorf("close did not send the neutral command: %q", conn.writes)
	}
	if !conn.closed {
		t.Error("socket not closed")
	}
}

func TestNothingSentWithoutCommand(t *testing.T) {
	conn := &fakeConn{}
	l := newFakeOperator(conn)
	l.Start(context.Background())
	eventually(t, "connection", func() bool { return l.Snapshot().Connected })
	time.Sleep(20 * time.Millisecond)
	if n := l.SentCount(); n != 0 {
		t.Errorf("sent %d commands before any was set", n)
	}
	l.Close()
}

func TestSendFailureDisconnects(t *testing.T) {
	conn := &fakeConn{writeErr: errors.New("connection refused")}
	l := newFakeOperator(conn)
	dials := 0
	var mu sync.Mutex
	l.dial = func(addr string) (net.Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		return conn, nil
	}
	l.Start(context.Background())
	l.SetCommand(NeutralCommand())

	eventually(t, "disconnect", func() bool {
		s := l.Snapshot()
		return !s.Connected && s.ConnectError != nil
	})
	// The hard backoff holds off the next dial
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	if dials != 1 {
		t.Errorf("dialed %d times inside the backoff", dials)
	}
	mu.Unlock()
	if got := (Freshness{}).Status(l.Snapshot(), time.Now()); got != NotConnected {
		t.Errorf("status %s, want %s", got, NotConnected)
	}
	l.Close()
}

func TestDialFailure(t *testing.T) {
	l := NewOperatorLink(OperatorConfig{Addr: "vehicle:5005", SendPeriod: 2 * time.Millisecond})
	l.dial = func(addr string) (net.Conn, error) { return nil, errors.New("no route to host") }
	l.Start(context.Background())
	eventually(t, "dial error", func() bool { return l.Snapshot().ConnectError != nil })
	if l.Snapshot().Connected {
		t.Error("connected after a failed dial")
	}
	if err := l.Close(); err != nil {
		t.Error(err)
	}
}

func TestDialRetryInterval(t *testing.T) {
	t0 := time.Unix(1000, 0)
	now := t0
	l := NewOperatorLink(OperatorConfig{Addr: "vehicle:5005"})
	l.backoff.now = func() time.Time { return now }
	dials := 0
	l.dial = func(addr string) (net.Conn, error) {
		dials++
		return nil, errors.New("network is unreachable")
	}

	for _, at := range []time.Duration{0, 500 * time.Millisecond, 1100 * time.Millisecond} {
		now = t0.Add(at)
		l.connect()
	}
	if dials != 2 {
		t.Errorf("dialed %d times at 0, 0.5 s and 1.1 s, want 2", dials)
	}
	if s := l.Snapshot(); s.Connected || s.ConnectError == nil {
		t.Errorf("snapshot %+v after failed dials", s)
	}
}

func TestLoopback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := Listen(VehicleConfig{Addr: "127.0.0.1:0", ReadTimeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan Command, 16)
	v.OnCommand(func(c Command) { got <- c })
	v.Start(ctx)

	o := NewOperatorLink(OperatorConfig{Addr: v.LocalAddr().String(), SendPeriod: 5 * time.Millisecond, ReadTimeout: 10 * time.Millisecond})
	o.Start(ctx)

	want := Command{Target: ahrs.FromEuler(0, 10, 0), Throttle: 0.4, Law: 1, Gains: [3]float64{0.5, 0.25, 0.125}}
	o.SetCommand(want)
	select {
	case c := <-got:
		if c.Law != 1 || !near(c.Throttle, 0.4, 1e-9) || !nearQ(c.Target, want.Target, 1e-6) {
			t.Errorf("vehicle got %+v", c)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("vehicle never got the command")
	}
	snap := v.Latest()
	if !snap.HasCommand || snap.Peer == nil || snap.LastReceived.IsZero() {
		t.Errorf("vehicle snapshot %+v", snap)
	}

	est := ahrs.Estimate{Q: ahrs.FromEuler(1, 2, 3), A3: 1, B1: 4, Temp: 30}
	if err := v.SendState(est); err != nil {
		t.Fatal(err)
	}
	eventually(t, "telemetry", func() bool { return !o.Snapshot().LastReceived.IsZero() })
	s := o.Snapshot().State
	if !nearQ(s.Q, est.Q, 1e-6) || s.A3 != 1 || s.G1 != 4 || s.Temp != 30 || s.Law != 1 || !near(s.Throttle, 0.4, 1e-9) {
		t.Errorf("operator got %+v", s)
	}
	if st := (Freshness{}).Status(o.Snapshot(), time.Now()); st != Connected {
		t.Errorf("status %s, want %s", st, Connected)
	}

	// Garbage is dropped without disturbing the latest command
	raw, err := net.Dial("udp", v.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	raw.Write([]byte("hello"))
	raw.Close()
	eventually(t, "drop", func() bool { return v.drops.count() > 0 })
	if v.Latest().Command.Law != 1 {
		t.Error("malformed datagram replaced the latest command")
	}

	if err := o.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-got:
		if c != NeutralCommand() {
			t.Errorf("operator close sent %+v", c)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("vehicle never got the neutral command")
	}
	v.Close()
}

func TestVehicleCloseSendsNeutral(t *testing.T) {
	v, err := Listen(VehicleConfig{Addr: "127.0.0.1:0", ReadTimeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	v.Start(context.Background())

	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()
	if _, err := peer.WriteTo(NeutralCommand().Encode(), v.LocalAddr()); err != nil {
		t.Fatal(err)
	}
	eventually(t, "command", func() bool { return v.Latest().HasCommand })

	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, MaxDatagram)
	peer.SetReadDeadline(time.Now().Add(3 * time.Second))
	n, _, err := peer.ReadFrom(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != string(NeutralState().Encode()) {
		t.Errorf("got %q, want the neutral state", buf[:n])
	}
}

func TestListenFailure(t *testing.T) {
	if _, err := Listen(VehicleConfig{Addr: "256.0.0.1:5005"}); err == nil {
		t.Error("bind to a bad address succeeded")
	}
}
