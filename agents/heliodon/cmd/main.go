package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"heliodon/agents/heliodon"
	"heliodon/shared/actuator"
	"heliodon/shared/config"
	"heliodon/shared/monitoring"
	"heliodon/shared/scheduler"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--list-ports" {
		ports, err := actuator.ListPorts()
		if err != nil {
			log.Fatalf("Failed to list serial ports: %v", err)
		}
		fmt.Println("Port list:")
		for i, p := range ports {
			fmt.Printf("%d -> %s\n", i, p)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create context that responds to signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	monitor := monitoring.NewMonitor()
	agent := heliodon.NewHeliodonAgent(cfg)
	defer agent.Close()
	s := scheduler.New(cfg.Schedule, agent, monitor)

	if err := agent.Initialize(); err != nil {
		log.Fatalf("Failed to initialize agent: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "--once" {
		fmt.Println("Running once...")
		if err := s.RunOnce(ctx); err != nil {
			log.Printf("Failed to run: %v", err)
		}
		return
	}

	if cfg.Tracking.Enabled {
		fmt.Println("Starting scheduler...")
		go func() {
			if err := s.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Scheduler failed: %v", err)
				cancel()
			}
		}()
	}

	server := heliodon.NewServer(agent, monitor)
	if err := server.Run(ctx, ":"+cfg.Server.Port); err != nil {
		log.Printf("Server failed: %v", err)
	}
}
