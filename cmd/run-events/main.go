// Command run-events tails run lifecycle events from the NATS bus. It is the
// operator's view of what the API instances are doing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"insight-assistant-be/internal/config"
	"insight-assistant-be/pkg/events"
	pktNats "insight-assistant-be/pkg/nats"
)

func main() {
	cfg := config.Load()

	subject := flag.String("subject", events.Subject("run.>"), "subject filter")
	durable := flag.String("durable", "run-events-tail", "durable consumer name")
	session := flag.String("session", "", "only print events of this session id")
	flag.Parse()

	sub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = sub.Subscribe(ctx, *subject, *durable, func(ctx context.Context, event events.Event) error {
		payload := event.Payload()
		if *session != "" && payload["session_id"] != *session {
			return nil
		}
		fmt.Println(format(event))
		return nil
	})
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	<-ctx.Done()
}

func format(event events.Event) string {
	payload := event.Payload()
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == "occurred_at" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return fmt.Sprintf("%s %-14s %s", event.Timestamp().Format("15:04:05.000"), event.EventType(), strings.Join(parts, " "))
}
