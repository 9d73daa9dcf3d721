// relaywatch connects to a relay server and streams channel events to console.
// Usage: go run ./cmd/relaywatch --config configs/relay.example.yaml
//
// The relay token can be supplied via the config file or expanded from an
// environment variable referenced there (e.g. ${RELAY_TOKEN}).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalpath/relay/internal/config"
	"github.com/signalpath/relay/internal/connection"
	"github.com/signalpath/relay/internal/publish"
	"github.com/signalpath/relay/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.example.yaml", "path to config file")
	channel := flag.String("channel", "", "channel to subscribe (overrides config)")
	sendEvent := flag.String("send", "", "broadcast an event to the subscribed channel and exit")
	payload := flag.String("payload", "", "payload for --send")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))

	target := *channel
	if target == "" {
		target = cfg.Relay.Channel
	}

	if *sendEvent != "" {
		os.Exit(runSend(cfg, target, *sendEvent, *payload, logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	mgr := connection.NewManager(cfg.Relay.ConnectionConfig(), nil, logger)
	defer mgr.Dispose()

	// Print everything the relay delivers.
	mgr.Messages().Listen(func(msg connection.ResponseMessage) {
		switch msg.Kind {
		case connection.KindText:
			fmt.Printf("[MESSAGE] %s\n", msg.Text)
		case connection.KindBinary:
			fmt.Printf("[MESSAGE] binary %d bytes\n", len(msg.Data))
		}
	})
	mgr.Reconnections().Listen(func(info connection.ReconnectionInfo) {
		logger.Info("connected", "reason", info.Reason)
	})
	mgr.Disconnections().Listen(func(info *connection.DisconnectionInfo) {
		logger.Warn("disconnected", "reason", info.Reason, "error", info.Err)
	})

	logger.Info("starting relay client",
		"url", cfg.Relay.URL,
		"channel", target,
		"version", version.String(),
	)
	if err := mgr.StartOrFail(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	if target != "" {
		subCtx, subCancel := context.WithTimeout(ctx, cfg.Relay.SubscribeTimeout.Std())
		err := mgr.SubscribeToChannel(subCtx, target)
		subCancel()
		if err != nil {
			logger.Error("failed to subscribe", "channel", target, "error", err)
			mgr.Dispose()
			os.Exit(1)
		}
		logger.Info("subscribed", "channel", target)
	}

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	if err := mgr.StopOrFail(1000, "client shutdown"); err != nil {
		logger.Warn("stop returned error", "error", err)
	}
	logger.Info("shutdown complete")
}

// runSend broadcasts a single event over the HTTP publish endpoint.
func runSend(cfg *config.ClientConfig, channel, event, payload string, logger *slog.Logger) int {
	if cfg.Publish.URL == "" {
		logger.Error("publish.url is not configured")
		return 1
	}
	if channel == "" {
		logger.Error("no channel to publish to; set --channel or relay.channel")
		return 1
	}

	client := publish.NewClient(cfg.Publish.URL, cfg.Publish.Token,
		publish.WithTimeout(cfg.Publish.Timeout.Std()),
		publish.WithLogger(logger),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res := client.Broadcast(ctx, publish.Request{
		Event:    event,
		Channels: []string{channel},
		Payload:  payload,
	})
	if !res.IsSuccessful {
		logger.Error("broadcast failed", "message", res.Message)
		for field, msgs := range res.Errors {
			logger.Error("validation error", "field", field, "errors", msgs)
		}
		return 1
	}
	logger.Info("broadcast delivered", "event", event, "channel", channel)
	return 0
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
