// Package main is the entry point for the Art-Net node daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bbernstein/artnetnode/internal/artnetnode"
	"github.com/bbernstein/artnetnode/internal/config"
	"github.com/bbernstein/artnetnode/internal/reactor"
	"github.com/bbernstein/artnetnode/internal/services/network"
	"github.com/bbernstein/artnetnode/internal/statusapi"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// pollInterval is how often the node broadcasts an unsolicited-reply-on-change
// ArtPoll (spec.md §4.3). Art-Net recommends controllers poll every 2-3s;
// nodes are not required to poll at all, but doing so keeps this node's own
// idea of the network fresh.
const pollInterval = 3 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	printBanner(cfg)

	iface, err := network.SelectBindInterface(cfg.BindInterface)
	if err != nil {
		log.Fatalf("Failed to select network interface: %v", err)
	}
	log.Printf("📡 Binding to interface %s (%s)", iface.Name, iface.Address)

	sched := reactor.New()
	node := artnetnode.New(artnetnode.Config{
		Interface:           *iface,
		ShortName:           cfg.ShortName,
		LongName:            cfg.LongName,
		NetAddress:          uint8(cfg.NetAddress),
		SubnetAddress:       uint8(cfg.SubnetAddress),
		OEM:                 uint16(cfg.OEM),
		ESTA:                uint16(cfg.ESTA),
		BroadcastThreshold:  cfg.BroadcastThreshold,
		AlwaysBroadcast:     cfg.AlwaysBroadcast,
		UseLimitedBroadcast: cfg.UseLimitedBroadcast,
		SendReplyOnChange:   cfg.SendReplyOnChange,
	}, sched)

	if err := applyPortConfig(node, cfg); err != nil {
		log.Fatalf("Failed to apply port configuration: %v", err)
	}

	started, err := node.Start()
	if err != nil {
		log.Fatalf("Failed to start Art-Net node: %v", err)
	}
	if !started {
		log.Fatal("Art-Net node was already running")
	}

	stopPolling := startPolling(node, sched)

	statusServer := statusapi.New(node, cfg.CORSOrigin)
	httpServer := &http.Server{
		Addr:         cfg.StatusAddr,
		Handler:      statusServer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Status API listening on http://localhost%s\n", cfg.StatusAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Status API error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	stopPolling()
	node.Stop()
	sched.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Status API shutdown error: %v", err)
	}

	log.Println("Art-Net node stopped")
}

// applyPortConfig applies the startup universe and merge-mode assignments
// from cfg to node. DisablePort entries are skipped: ports start disabled,
// so a skipped port stays disabled (its universe address keeps the zero
// value 0 rather than being set to DisablePort).
func applyPortConfig(node *artnetnode.Node, cfg *config.Config) error {
	for i, universe := range cfg.InputUniverses {
		if universe == int(artnetnode.DisablePort) {
			continue
		}
		if err := node.SetPortUniverse(artnetnode.PortInput, i, uint8(universe)); err != nil {
			return fmt.Errorf("input port %d: %w", i, err)
		}
	}

	for i, universe := range cfg.OutputUniverses {
		if universe == int(artnetnode.DisablePort) {
			continue
		}
		if err := node.SetPortUniverse(artnetnode.PortOutput, i, uint8(universe)); err != nil {
			return fmt.Errorf("output port %d: %w", i, err)
		}
	}

	for i, mode := range cfg.OutputMergeModes {
		merge := artnetnode.MergeHTP
		if mode == "LTP" {
			merge = artnetnode.MergeLTP
		}
		if err := node.SetMergeMode(i, merge); err != nil {
			return fmt.Errorf("output port %d merge mode: %w", i, err)
		}
	}

	return nil
}

// startPolling self-reschedules an ArtPoll broadcast every pollInterval
// using the node's own scheduler, rather than a stdlib ticker, so the poll
// cadence is driven by the same clock the node's timeouts are. Returns a
// stop function that cancels the chain.
func startPolling(node *artnetnode.Node, sched reactor.Scheduler) func() {
	stopped := false
	var id reactor.TimeoutID

	var tick func()
	tick = func() {
		if stopped {
			return
		}
		if err := node.SendPoll(); err != nil {
			log.Printf("artnetnoded: poll send failed: %v", err)
		}
		id = sched.RegisterSingleTimeout(pollInterval, tick)
	}
	id = sched.RegisterSingleTimeout(pollInterval, tick)

	return func() {
		stopped = true
		sched.RemoveTimeout(id)
	}
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  Art-Net Node")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment:  %s\n", cfg.Env)
	fmt.Printf("  Short name:   %s\n", cfg.ShortName)
	fmt.Printf("  Net/Subnet:   %d/%d\n", cfg.NetAddress, cfg.SubnetAddress)
	fmt.Printf("  Status addr:  %s\n", cfg.StatusAddr)
	fmt.Println("============================================")
}
