package ahrsweb

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Listener publishes monitor frames to a room served by another process,
// redialing after a failed write.
type Listener struct {
	url string

	mu sync.Mutex
	c  *websocket.Conn
}

// NewListener returns a Listener for the room at url, e.g.
// ws://ground:8000/ahrsweb. It dials on the first Send.
func NewListener(url string) *Listener {
	return &Listener{url: url}
}

func (l *Listener) connect() (err error) {
	l.c, _, err = websocket.DefaultDialer.Dial(l.url, nil)
	return
}

// Send publishes one frame. A failed frame is dropped.
func (l *Listener) Send(d *AHRSData) error {
	msg, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "AHRSWeb: error marshalling json data")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c == nil {
		if err := l.connect(); err != nil {
			l.c = nil
			return errors.Wrapf(err, "AHRSWeb: couldn't dial %s", l.url)
		}
	}
	if err := l.c.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Println("AHRSWeb: Error writing to websocket:", err)
		l.c.Close()
		l.c = nil
		return errors.Wrap(err, "AHRSWeb: frame dropped")
	}
	return nil
}

// Close says goodbye to the room.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c == nil {
		return nil
	}
	defer func() { l.c = nil }()
	if err := l.c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		l.c.Close()
		return errors.Wrap(err, "AHRSWeb: error closing websocket")
	}
	return l.c.Close()
}
