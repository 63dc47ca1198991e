package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"clipsync/clip"
	"clipsync/config"
	"clipsync/identity"
	"clipsync/storage"
)

func main() {
	pairCreate := flag.Bool("pair-create", false, "request a pairing code on startup")
	pairJoin := flag.String("pair-join", "", "redeem a pairing code on startup")
	serverURL := flag.String("server", "", "signaling server URL (overrides config)")
	flag.Parse()

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}

	dataDir, err := config.ResolveDataDir()
	if err != nil {
		log.Fatalf("startup failed while resolving data directory: %v", err)
	}

	device, err := identity.Ensure(dataDir)
	if err != nil {
		log.Fatalf("startup failed while preparing identity: %v", err)
	}

	fmt.Printf("Device ID:       %s\n", device.DeviceID)
	fmt.Printf("Device Name:     %s\n", cfg.DeviceName)
	fmt.Printf("Server URL:      %s\n", cfg.ServerURL)
	fmt.Printf("Config File:     %s\n", cfgPath)
	fmt.Printf("Data Directory:  %s\n", dataDir)

	store, dbPath, err := storage.Open(dataDir)
	if err != nil {
		log.Fatalf("startup failed while opening database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}()
	fmt.Printf("Database File:   %s\n", dbPath)

	d := newDaemon(daemonConfig{
		Identity:   device,
		Config:     cfg,
		ICEServers: config.ResolveICEServers(cfg),
		Clipboard:  clip.NewOSClipboard(),
		History:    store,
	})
	if err := d.Start(); err != nil {
		log.Fatalf("startup failed while connecting to signaling server: %v", err)
	}
	defer d.Stop()

	if *pairCreate {
		if err := d.client.PairCreate(); err != nil {
			log.Printf("pair create request failed: %v", err)
		}
	}
	if *pairJoin != "" {
		if err := d.client.PairJoin(*pairJoin); err != nil {
			log.Printf("pair join request failed: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Status:          running (press Ctrl+C to stop)")
	<-ctx.Done()
	fmt.Println("Status:          shutting down")
}
