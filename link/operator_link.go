package link

import (
	"bytes"
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultSendPeriod  = 20 * time.Millisecond
	DefaultReadTimeout = 100 * time.Millisecond
)

// OperatorConfig configures the dialing end of the link.
type OperatorConfig struct {
	Addr        string        // Vehicle address, host:port
	SendPeriod  time.Duration // How often a changed command is sent
	ReadTimeout time.Duration // Bound on every blocking read
	BackoffMin  time.Duration
	BackoffHard time.Duration
}

func (c *OperatorConfig) setDefaults() {
	if c.SendPeriod <= 0 {
		c.SendPeriod = DefaultSendPeriod
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
}

// OperatorSnapshot is a consistent copy of the operator endpoint's state.
type OperatorSnapshot struct {
	State        State
	LastReceived time.Time // Zero until the first state arrives
	Connected    bool
	ConnectError error // Why the last connection attempt or link failed
}

// OperatorLink dials the vehicle, sends the latest command whenever it
// changes and receives telemetry.
type OperatorLink struct {
	cfg     OperatorConfig
	backoff *Backoff
	drops   *dropLog
	dial    func(addr string) (net.Conn, error)
	now     func() time.Time

	mu        sync.Mutex
	conn      net.Conn
	connErr   error
	pending   Command
	hasCmd    bool
	lastSent  []byte
	state     State
	lastRecv  time.Time
	sentCount int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOperatorLink returns an endpoint that is not yet running.
func NewOperatorLink(cfg OperatorConfig) *OperatorLink {
	cfg.setDefaults()
	return &OperatorLink{
		cfg:     cfg,
		backoff: NewBackoff(cfg.BackoffMin, cfg.BackoffHard),
		drops:   newDropLog("Link"),
		dial: func(addr string) (net.Conn, error) {
			return net.Dial("udp", addr)
		},
		now: time.Now,
	}
}

// Start runs the send and receive loops until ctx is done or Close is called.
func (l *OperatorLink) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(2)
	go l.sendLoop(ctx)
	go l.recvLoop(ctx)
}

// SetCommand replaces the pending command.
func (l *OperatorLink) SetCommand(c Command) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = c
	l.hasCmd = true
}

// Snapshot returns a copy of the endpoint's state.
func (l *OperatorLink) Snapshot() OperatorSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return OperatorSnapshot{
		State:        l.state,
		LastReceived: l.lastRecv,
		Connected:    l.conn != nil,
		ConnectError: l.connErr,
	}
}

// SentCount returns the number of command datagrams sent.
func (l *OperatorLink) SentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sentCount
}

// connect dials the vehicle unless the last attempt is under Min ago. A
// failed dial only waits out Min; the hard backoff follows a dropped link.
func (l *OperatorLink) connect() {
	if !l.backoff.Attempt() {
		return
	}
	conn, err := l.dial(l.cfg.Addr)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.connErr = errors.Wrapf(err, "dial %s", l.cfg.Addr)
		log.Printf("Link: %s\n", l.connErr)
		return
	}
	l.conn = conn
	l.connErr = nil
	l.lastSent = nil
	log.Printf("Link: connected to %s\n", l.cfg.Addr)
}

// disconnect drops conn if it is still the current connection.
func (l *OperatorLink) disconnect(conn net.Conn, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != conn {
		return
	}
	conn.Close()
	l.conn = nil
	l.connErr = err
	l.backoff.Failed()
	log.Printf("Link: disconnected: %s\n", err)
}

func (l *OperatorLink) sendLoop(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.SendPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()
		if conn == nil {
			l.connect()
			continue
		}
		l.sendPending(conn)
	}
}

// sendPending writes the pending command if it differs from the last one sent.
func (l *OperatorLink) sendPending(conn net.Conn) {
	l.mu.Lock()
	if !l.hasCmd {
		l.mu.Unlock()
		return
	}
	msg := l.pending.Encode()
	if bytes.Equal(msg, l.lastSent) {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	if _, err := conn.Write(msg); err != nil {
		l.disconnect(conn, errors.Wrap(err, "send command"))
		return
	}

	l.mu.Lock()
	if l.conn == conn {
		l.lastSent = msg
	}
	l.sentCount++
	l.mu.Unlock()
}

func (l *OperatorLink) recvLoop(ctx context.Context) {
	defer l.wg.Done()
	buf := make([]byte, MaxDatagram)

	for ctx.Err() == nil {
		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.cfg.ReadTimeout):
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		n, err := conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			l.disconnect(conn, errors.Wrap(err, "receive state"))
			continue
		}

		s, err := DecodeState(buf[:n])
		if err != nil {
			l.drops.drop(l.now(), err)
			continue
		}
		l.mu.Lock()
		l.state = s
		l.lastRecv = l.now()
		l.mu.Unlock()
	}
}

// Close sends the neutral command, stops both loops and closes the socket.
func (l *OperatorLink) Close() error {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	_, werr := l.conn.Write(NeutralCommand().Encode())
	cerr := l.conn.Close()
	l.conn = nil
	if werr != nil {
		return errors.Wrap(werr, "send neutral command")
	}
	return cerr
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
