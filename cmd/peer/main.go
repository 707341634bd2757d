package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/arbitration"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/peerclient"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

func main() {
	baseURL := os.Getenv("GATEWAY_URL")
	if baseURL == "" {
		baseURL = "ws://localhost:8080"
	}
	sessionID := os.Getenv("SESSION_ID")
	if sessionID == "" {
		fmt.Fprintln(os.Stderr, "SESSION_ID env required")
		os.Exit(1)
	}
	name := os.Getenv("PEER_NAME")
	if name == "" {
		name = "peer"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	client, err := peerclient.Dial(context.Background(), peerclient.Config{
		BaseURL:   baseURL,
		SessionID: sessionID,
		ClientID:  shared.ClientID(os.Getenv("CLIENT_ID")),
		Name:      name,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	client.OnStateChange = func(st arbitration.LocalRequestState) {
		fmt.Printf("<< request state: %s", st.Phase)
		if st.Result != "" {
			fmt.Printf(" (%s)", st.Result)
		}
		fmt.Println()
	}

	client.Scheduler.OnChange = func() {
		active := client.Scheduler.ActiveCategories()
		if len(active) == 0 {
			return
		}
		cats := make([]string, 0, len(active))
		for cat := range active {
			cats = append(cats, string(cat))
		}
		fmt.Printf("<< notifications: %s\n", strings.Join(cats, ", "))
	}

	dispatcher := arbitration.NewDispatcher(client, client.Machine, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		client.Close()
		os.Exit(0)
	}()

	fmt.Printf("connected to %s as %s (%s)\n", sessionID, name, client.ClientID())
	fmt.Println("commands: request | cancel | approve <client> | deny <client> | offer <client> | accept <client> | decline <client> | state | sync | quit")

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "request":
			err = dispatcher.RequestController(ctx)
		case "cancel":
			err = dispatcher.CancelRequest(ctx)
		case "approve":
			err = withArg(fields, func(id shared.ClientID) error { return dispatcher.ApproveRequest(ctx, id) })
		case "deny":
			err = withArg(fields, func(id shared.ClientID) error { return dispatcher.DenyRequest(ctx, id) })
		case "offer":
			err = withArg(fields, func(id shared.ClientID) error { return dispatcher.OfferController(ctx, id) })
		case "accept":
			err = withArg(fields, func(id shared.ClientID) error { return dispatcher.AcceptOffer(ctx, id) })
		case "decline":
			err = withArg(fields, func(id shared.ClientID) error { return dispatcher.DeclineOffer(ctx, id) })
		case "state":
			printState(client)
		case "sync":
			client.Sampler.ForceBatchResync()
			fmt.Println("resync scheduled")
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
		if err != nil {
			fmt.Println("error:", err)
		}
	}
}

func withArg(fields []string, fn func(shared.ClientID) error) error {
	if len(fields) < 2 {
		return fmt.Errorf("missing client id argument")
	}
	return fn(shared.ClientID(fields[1]))
}

func printState(client *peerclient.Client) {
	mirror := client.Machine.Mirror()
	local := client.Machine.Current()
	stats := client.Sampler.Stats()

	fmt.Printf("controller: %s (you: %v, epoch %d)\n",
		mirror.ControllerClientID, client.Machine.IsController(), mirror.Epoch)
	fmt.Printf("local request: %s\n", local.Phase)
	if len(mirror.PendingRequests) > 0 {
		fmt.Println("pending requests:")
		for _, r := range mirror.PendingRequests {
			fmt.Printf("  %s (%s) at %s\n", r.RequesterName, r.ClientID, r.RequestTime.Format("15:04:05"))
		}
	}
	fmt.Printf("clock: rtt=%.1fms offset=%.1fms jitter=%.1fms drift=%.1fppm\n",
		stats.RTTMs, stats.OffsetMs, stats.JitterMs, stats.DriftPPM)
}
