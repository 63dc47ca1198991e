package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"clipsync/signaling"
)

func main() {
	addr := flag.String("addr", "0.0.0.0:8787", "listen address for the signaling server")
	flag.Parse()

	server, err := signaling.Listen(*addr)
	if err != nil {
		log.Fatalf("startup failed while binding listener: %v", err)
	}
	defer func() {
		if err := server.Close(); err != nil {
			log.Printf("server close error: %v", err)
		}
	}()

	fmt.Printf("Signaling URL:   %s\n", server.URL())
	fmt.Println("Status:          running (press Ctrl+C to stop)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	fmt.Println("Status:          shutting down")
}
