package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mapsketch/internal/client"
	"mapsketch/internal/feature"
	"mapsketch/internal/logging"

	"github.com/joho/godotenv"
)

/*
LEARNING: HEADLESS COLLABORATOR

sketch joins a room like a browser would and reads commands from stdin.
Everything it receives is logged through LogRenderer, so two terminals in the
same room are enough to watch features, cursors and peers move around.
*/

func main() {
	_ = godotenv.Load()

	url := flag.String("url", envOr("SKETCH_URL", "ws://localhost:8080/ws"), "relay websocket URL")
	room := flag.String("room", envOr("SKETCH_ROOM", "default"), "room to join")
	name := flag.String("name", envOr("SKETCH_NAME", hostname()), "display name")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "debug, info, warn or error")
	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Format: "console"})

	c := client.New(client.Options{
		URL:      *url,
		Room:     *room,
		Name:     *name,
		Renderer: client.LogRenderer{},
		OnPeers: func(peers []client.Participant) {
			logging.Info().Int("peers", len(peers)).Msg("👥 Roster changed")
		},
		OnView: func(from client.Participant, center feature.LatLng, zoom float64) {
			logging.Info().
				Str("user", from.Name).
				Float64("lat", center.Lat).
				Float64("lng", center.Lng).
				Float64("zoom", zoom).
				Msg("🗺️ Peer shared a view")
		},
	})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := c.Connect(ctx)
	cancel()
	if err != nil {
		logging.Fatal().Err(err).Msg("❌ Failed to join room")
	}

	self := c.Self()
	logging.Info().
		Str("room", c.Room()).
		Str("user_id", self.ID).
		Str("color", self.Color).
		Msg("✓ Joined room, type help for commands")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-quit:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			done, err := execute(c, line, os.Stdout)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			if done {
				return
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "sketcher"
	}
	return h
}
