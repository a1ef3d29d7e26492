/*
Client-Server package adapted from Mat Ryer's Go Blueprints examples
see https://github.com/matryer/goblueprints
*/

package ahrsweb

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Room relays monitor frames to every connected client and collects the key
// events they send.
type Room struct {
	// forward is a channel that holds incoming messages
	// that should be forwarded to the other clients.
	forward chan []byte
	// join is a channel for clients wishing to join the room.
	join chan *client
	// leave is a channel for clients wishing to leave the room.
	leave chan *client
	// clients holds all current clients in this room.
	clients map[*client]bool
	// input holds key events from clients until the operator takes them.
	input chan KeyEvent
	// count reports the number of clients on request.
	count chan chan int
	// done is closed when Run returns.
	done chan struct{}
}

// NewRoom makes a new room that is ready to go.
func NewRoom() *Room {
	return &Room{
		forward: make(chan []byte, messageBufferSize),
		join:    make(chan *client),
		leave:   make(chan *client),
		clients: make(map[*client]bool),
		input:   make(chan KeyEvent, inputBufferSize),
		count:   make(chan chan int),
		done:    make(chan struct{}),
	}
}

// Run serves joins, leaves and forwards until ctx is done.
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			for client := range r.clients {
				delete(r.clients, client)
				close(client.send)
			}
			return
		case client := <-r.join:
			r.clients[client] = true
			log.Printf("AHRSWeb: client %s joined\n", client.id)
		case client := <-r.leave:
			if r.clients[client] {
				delete(r.clients, client)
				close(client.send)
				log.Printf("AHRSWeb: client %s left\n", client.id)
			}
		case msg := <-r.forward:
			for client := range r.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client; it gets the next frame
				}
			}
		case c := <-r.count:
			c <- len(r.clients)
		}
	}
}

// Publish sends v as JSON to every client. If the room is backed up the frame
// is dropped.
func (r *Room) Publish(v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "AHRSWeb: error marshalling json data")
	}
	select {
	case r.forward <- msg:
	default:
	}
	return nil
}

// Input returns the key events sent by clients.
func (r *Room) Input() <-chan KeyEvent {
	return r.input
}

// Clients returns the number of connected clients, or 0 once Run has returned.
func (r *Room) Clients() int {
	c := make(chan int)
	select {
	case r.count <- c:
		return <-c
	case <-r.done:
		return 0
	}
}

const (
	socketBufferSize  = 1024
	messageBufferSize = 10
	inputBufferSize   = 64
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Println("AHRSWeb: ServeHTTP:", err)
		return
	}
	client := newClient(socket, r)
	select {
	case r.join <- client:
	case <-r.done:
		socket.Close()
		return
	}
	defer func() {
		select {
		case r.leave <- client:
		case <-r.done:
		}
	}()
	go client.write()
	client.read()
}
