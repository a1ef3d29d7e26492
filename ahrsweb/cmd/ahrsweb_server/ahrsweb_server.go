/*
Client-Server package adapted from Mat Ryer's Go Blueprints examples
see https://github.com/matryer/goblueprints
This book is highly recommended!

ahrsweb_server runs a monitor room on its own, for vehicles publishing with
monitor.remote when no operator station is running.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/Fritz179/fhgr-poisson/ahrsweb"
)

func main() {
	var addr = flag.String("addr", fmt.Sprintf(":%d", ahrsweb.Port), "The port for the AHRS data publication.")
	flag.Parse() // parse the flags

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// get the room going
	r := ahrsweb.NewRoom()
	go r.Run(ctx)
	// Nobody flies from this room
	go func() {
		for ev := range r.Input() {
			log.Printf("AHRSWeb: ignoring key %q, no operator here\n", ev.Key)
		}
	}()

	// start the web server
	mux := http.NewServeMux()
	ahrsweb.Handle(mux, r)
	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	log.Println("AHRSWeb: Starting web server on", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("AHRSWeb: ListenAndServe fatal error:", err.Error())
	}
}
