package recorder

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// NATSSink publishes every record as JSON on a subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to the server at url. The connection retries forever
// once established.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	opts := []nats.Option{
		nats.Name("poisson-vehicle"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("Recorder: NATS disconnected: %v\n", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("Recorder: NATS reconnected to %s\n", nc.ConnectedUrl())
		}),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "Recorder: couldn't connect to NATS at %s", url)
	}
	log.Printf("Recorder: NATS connected to %s\n", url)
	return &NATSSink{conn: conn, subject: subject}, nil
}

func (s *NATSSink) Write(r *Record) error {
	msg, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "Recorder: couldn't marshal record")
	}
	if err := s.conn.Publish(s.subject, msg); err != nil {
		return errors.Wrapf(err, "Recorder: couldn't publish on %s", s.subject)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
	}
	return nil
}
