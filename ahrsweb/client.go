package ahrsweb

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// client is a single monitor connection.
type client struct {
	id string
	// socket is the web socket for this client.
	socket *websocket.Conn
	// send is a channel on which messages are sent.
	send chan []byte
	// room is the room this client is in.
	room *Room
}

func newClient(socket *websocket.Conn, r *Room) *client {
	return &client{
		id:     uuid.NewString(),
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
		room:   r,
	}
}

// read takes key events for the operator; anything else is a frame from a
// remote publisher and is forwarded to the other clients.
func (c *client) read() {
	defer c.socket.Close()
	for {
		_, msg, err := c.socket.ReadMessage()
		if err != nil {
			return
		}
		var ev KeyEvent
		if err := json.Unmarshal(msg, &ev); err == nil && ev.Key != "" {
			select {
			case c.room.input <- ev:
			default:
				log.Printf("AHRSWeb: input backed up, dropped key %q from %s\n", ev.Key, c.id)
			}
			continue
		}
		select {
		case c.room.forward <- msg:
		default:
		}
	}
}

func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
