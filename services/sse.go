package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"match-escrow-system/events"

	"github.com/gofiber/fiber/v2"
)

// EventStream serves a match's events over server-sent events.
type EventStream struct {
	Broker    *events.Broker
	Matches   *MatchService
	Keepalive time.Duration
}

// StreamMatchEvents sends the current state of the match, then every event
// for it until the client disconnects or the match ends.
func (s *EventStream) StreamMatchEvents(c *fiber.Ctx) error {
	matchID := strings.Clone(c.Params("id"))

	m, err := s.Matches.Get(c.UserContext(), matchID)
	if errors.Is(err, ErrMatchNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "match not found"})
	}
	if err != nil {
		log.Printf("SSE init error for match %s: %v", matchID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load match"})
	}
	snapshot, err := json.Marshal(NewView(m))
	if err != nil {
		log.Printf("SSE snapshot encode error for match %s: %v", matchID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to encode match"})
	}

	keepalive := s.Keepalive
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	feed, unsubscribe := s.Broker.Subscribe(matchID)
	done := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()
		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()

		fmt.Fprintf(w, "event: state\ndata: %s\n\n", snapshot)
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case ev, ok := <-feed:
				if !ok {
					return
				}
				if err := writeEvent(w, ev.Type, ev); err != nil {
					// Encode failure or client disconnected
					log.Printf("SSE stream for match %s closed: %v", matchID, err)
					return
				}
				switch ev.Type {
				case "matchWon", "matchTied":
					return
				}
			case <-ticker.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})

	return nil
}

// writeEvent encodes v as one SSE frame and flushes it.
func writeEvent(w *bufio.Writer, name string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return w.Flush()
}
