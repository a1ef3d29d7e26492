package ahrsweb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Fritz179/fhgr-poisson/ahrs"
	"github.com/gorilla/websocket"
)

func startRoom(t *testing.T) (*Room, string, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRoom()
	go r.Run(ctx)
	srv := httptest.NewServer(r)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return r, url, func() {
		cancel()
		srv.Close()
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func waitClients(t *testing.T, r *Room, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for r.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("room never reached %d clients", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRoomPublish(t *testing.T) {
	r, url, stop := startRoom(t)
	defer stop()

	c := dial(t, url)
	defer c.Close()
	waitClients(t, r, 1)

	d := &AHRSData{Source: "vehicle", Status: "Connected", Throttle: 0.5}
	d.SetOrientation(ahrs.FromEuler(10, 20, 30))
	if err := r.Publish(d); err != nil {
		t.Fatal(err)
	}

	c.SetReadDeadline(time.Now().Add(3 * time.Second))
	var got AHRSData
	if err := c.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Source != "vehicle" || got.Status != "Connected" || got.Throttle != 0.5 {
		t.Errorf("got %+v", got)
	}
	if d := got.Roll - 10; d > 1e-6 || d < -1e-6 {
		t.Errorf("roll %f, want 10", got.Roll)
	}
}

func TestRoomInput(t *testing.T) {
	r, url, stop := startRoom(t)
	defer stop()

	c := dial(t, url)
	defer c.Close()
	waitClients(t, r, 1)

	if err := c.WriteJSON(KeyEvent{Key: "w", Down: true}); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-r.Input():
		if ev.Key != "w" || !ev.Down {
			t.Errorf("got %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no key event")
	}

	c.Close()
	waitClients(t, r, 0)
}

func TestListenerForwards(t *testing.T) {
	r, url, stop := startRoom(t)
	defer stop()

	viewer := dial(t, url)
	defer viewer.Close()
	waitClients(t, r, 1)

	l := NewListener(url)
	d := &AHRSData{Source: "vehicle", Law: 2, Authority: false}
	if err := l.Send(d); err != nil {
		t.Fatal(err)
	}

	viewer.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := viewer.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var got AHRSData
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatal(err)
	}
	if got.Source != "vehicle" || got.Law != 2 {
		t.Errorf("got %+v", got)
	}
	if err := l.Close(); err != nil {
		t.Error(err)
	}
}

func TestListenerDialFailure(t *testing.T) {
	l := NewListener("ws://127.0.0.1:1/ahrsweb")
	if err := l.Send(&AHRSData{}); err == nil {
		t.Error("send to nowhere succeeded")
	}
	if err := l.Close(); err != nil {
		t.Error(err)
	}
}

func TestHandleServesPageAndRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRoom()
	go r.Run(ctx)
	mux := http.NewServeMux()
	Handle(mux, r)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Poisson Monitor") {
		t.Errorf("page: status %d", resp.StatusCode)
	}

	c := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ahrsweb")
	defer c.Close()
	waitClients(t, r, 1)
}
