package link

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/pkg/errors"
)

// VehicleConfig configures the listening end of the link.
type VehicleConfig struct {
	Addr        string // Local address to bind, host:port
	ReadTimeout time.Duration
}

// VehicleSnapshot is a consistent copy of the vehicle endpoint's state.
type VehicleSnapshot struct {
	Command      Command // Neutral until the first command arrives
	HasCommand   bool
	Peer         net.Addr  // Sender of the latest command; telemetry goes here
	LastReceived time.Time // Zero until the first command arrives
}

// VehicleLink listens for commands and sends telemetry to whoever sent the
// latest one.
type VehicleLink struct {
	cfg   VehicleConfig
	conn  net.PacketConn
	drops *dropLog
	now   func() time.Time

	mu        sync.Mutex
	cmd       Command
	hasCmd    bool
	peer      net.Addr
	lastRecv  time.Time
	onCommand func(Command)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Listen binds the vehicle endpoint. A bind failure is returned and is fatal.
func Listen(cfg VehicleConfig) (*VehicleLink, error) {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	conn, err := net.ListenPacket("udp", cfg.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "Link: couldn't bind %s", cfg.Addr)
	}
	log.Printf("Link: listening on %s\n", conn.LocalAddr())
	return &VehicleLink{
		cfg:   cfg,
		conn:  conn,
		drops: newDropLog("Link"),
		now:   time.Now,
		cmd:   NeutralCommand(),
	}, nil
}

// LocalAddr returns the bound address.
func (v *VehicleLink) LocalAddr() net.Addr {
	return v.conn.LocalAddr()
}

// OnCommand registers f to be called, on the receive goroutine, for every
// good command.
func (v *VehicleLink) OnCommand(f func(Command)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onCommand = f
}

// Start runs the receive loop until ctx is done or Close is called.
func (v *VehicleLink) Start(ctx context.Context) {
	ctx, v.cancel = context.WithCancel(ctx)
	v.wg.Add(1)
	go v.recvLoop(ctx)
}

// Latest returns a copy of the endpoint's state.
func (v *VehicleLink) Latest() VehicleSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return VehicleSnapshot{
		Command:      v.cmd,
		HasCommand:   v.hasCmd,
		Peer:         v.peer,
		LastReceived: v.lastRecv,
	}
}

func (v *VehicleLink) recvLoop(ctx context.Context) {
	defer v.wg.Done()
	buf := make([]byte, MaxDatagram)

	for ctx.Err() == nil {
		v.conn.SetReadDeadline(time.Now().Add(v.cfg.ReadTimeout))
		n, addr, err := v.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			// Unconnected UDP reports ICMP errors here; the socket is still good
			v.drops.drop(v.now(), errors.Wrap(err, "receive command"))
			continue
		}

		c, err := DecodeCommand(buf[:n])
		if err != nil {
			v.drops.drop(v.now(), errors.Wrapf(err, "from %s", addr))
			continue
		}

		v.mu.Lock()
		if v.peer == nil || v.peer.String() != addr.String() {
			log.Printf("Link: commands now from %s\n", addr)
		}
		v.cmd = c
		v.hasCmd = true
		v.peer = addr
		v.lastRecv = v.now()
		f := v.onCommand
		v.mu.Unlock()

		if f != nil {
			f(c)
		}
	}
}

// SendState sends telemetry built from e and the command being flown to the
// latest peer. It does nothing before the first command arrives.
func (v *VehicleLink) SendState(e ahrs.Estimate) error {
	v.mu.Lock()
	peer, c := v.peer, v.cmd
	v.mu.Unlock()
	if peer == nil {
		return nil
	}
	return v.send(StateFromEstimate(e, c), peer)
}

func (v *VehicleLink) send(s State, peer net.Addr) error {
	if _, err := v.conn.WriteTo(s.Encode(), peer); err != nil {
		return errors.Wrapf(err, "send state to %s", peer)
	}
	return nil
}

// Close stops the receive loop, sends the neutral state to the peer and
// closes the socket.
func (v *VehicleLink) Close() error {
	if v.cancel != nil {
		v.cancel()
	}
	v.wg.Wait()

	v.mu.Lock()
	peer := v.peer
	v.mu.Unlock()

	var serr error
	if peer != nil {
		serr = v.send(NeutralState(), peer)
	}
	if err := v.conn.Close(); err != nil {
		return errors.Wrap(err, "close link")
	}
	return serr
}
