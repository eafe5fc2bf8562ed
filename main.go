package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const usage = `usage: kickoff <command> [flags]

commands:
  serve   run the lobby and relay server
  peer    play one online match with the autopilot
  sim     fast-forward an offline match`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "peer":
		err = runPeerCmd(os.Args[2:])
	case "sim":
		err = runSimCmd(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: ./kickoff.yaml if present)")
	addr := fs.String("addr", "", "HTTP listen address (overrides config)")
	fs.Parse(args)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	db, err := OpenDB(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	hub := NewHub(cfg, db)
	go hub.Run()
	defer hub.Close()

	mux := SetupRoutes(hub)
	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	// Graceful shutdown
	ctx, stop := signalContext()
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Addr)
		log.Printf("Invite links point at %s", cfg.Server.PublicURL)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runPeerCmd(args []string) error {
	fs := flag.NewFlagSet("peer", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	url := fs.String("url", "ws://localhost:8080/ws", "Relay WebSocket URL")
	name := fs.String("name", "", "Display name (default: random guest name)")
	char := fs.String("char", "BOLT", "Character: BOLT, STONE, SHADOW or BLAZE")
	lobby := fs.String("lobby", "", "Lobby to join; empty creates one")
	passcode := fs.String("passcode", "", "Lobby passcode")
	invite := fs.String("invite", "", "Signed invite token")
	seed := fs.Int64("seed", time.Now().UnixNano(), "Autopilot random seed")
	fs.Parse(args)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	kind, err := ParseCharacter(*char)
	if err != nil {
		return err
	}
	if *name == "" {
		*name = GenerateGuestName()
	}

	ctx, stop := signalContext()
	defer stop()

	return RunPeer(ctx, PeerOptions{
		URL:      *url,
		Name:     *name,
		Char:     kind,
		Lobby:    *lobby,
		Passcode: *passcode,
		Invite:   *invite,
		Seed:     *seed,
		Session:  cfg.Game.Session(),
	})
}

func runSimCmd(args []string) error {
	fs := flag.NewFlagSet("sim", flag.ExitOnError)
	p1 := fs.String("p1", "BOLT", "Character for avatar 1")
	p2 := fs.String("p2", "STONE", "Character for avatar 2")
	seed := fs.Int64("seed", 1, "Random seed")
	online := fs.Bool("online", false, "Route avatar 2 through an in-process host/joiner link")
	particles := fs.Bool("particles", false, "Simulate cosmetic particles")
	fs.Parse(args)

	k1, err := ParseCharacter(*p1)
	if err != nil {
		return err
	}
	k2, err := ParseCharacter(*p2)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	res, err := RunSim(ctx, SimOptions{P1: k1, P2: k2, Seed: *seed, Online: *online, Particles: *particles})
	if err != nil {
		return err
	}

	f := res.Final
	fmt.Printf("%s %d - %d %s  (%d ticks in %s)\n", k1, f.P1.Score, f.P2.Score, k2, res.Ticks, time.Since(start).Round(time.Millisecond))
	fmt.Printf("kicks=%d snipes=%d abilities=%v\n", res.Stats.Kicks, res.Stats.Snipes, res.Stats.Abilities)
	switch w := f.Winner(); w {
	case 0:
		fmt.Println("draw")
	default:
		fmt.Printf("winner: %s\n", f.Avatar(w).Kind)
	}
	if *online {
		s := res.Synced
		fmt.Printf("joiner saw %d-%d, snapshots applied=%d stale=%d rejected=%d\n",
			res.Mirror.P1.Score, res.Mirror.P2.Score, s.Applied, s.Stale, s.Rejected)
	}
	return nil
}
