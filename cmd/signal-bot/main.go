// Package main runs a minimal command bot on top of the signal client:
// it supervises the signal-cli connection, answers a few built-in
// commands, and shuts down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benoitpetit/signal-sdk-sub001/bot"
	signalpkg "github.com/benoitpetit/signal-sdk-sub001/signal"
)

// shutdownTimeout bounds the graceful teardown of the daemon process.
const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "signal-bot.toml", "path to the TOML config file")
	historyPath := flag.String("history", "", "optional sqlite archive of all traffic")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug || os.Getenv("DEBUG_SIGNAL") == "1" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := signalpkg.LoadConfig(*configPath)
	if err != nil {
		logger.Error("loading config", "path", *configPath, "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := signalpkg.NewClient(*cfg, signalpkg.WithLogger(logger))
	if err != nil {
		logger.Error("creating client", "error", err)
		return 1
	}

	if err := client.Connect(ctx); err != nil {
		logger.Error("connecting to signal-cli", "error", err)
		return 1
	}
	logger.Info("connected", "transport", string(cfg.Transport), "account", cfg.Account)

	var botOpts []bot.Option
	if *historyPath != "" {
		history, histErr := bot.OpenHistory(*historyPath)
		if histErr != nil {
			logger.Error("opening history archive", "path", *historyPath, "error", histErr)
			return 1
		}
		botOpts = append(botOpts, bot.WithHistory(history))
	}
	botOpts = append(botOpts, bot.WithBotLogger(logger))

	b := bot.New(client, bot.Options{
		CooldownWindow: 5 * time.Second,
	}, botOpts...)

	started := time.Now()
	registerCommands(b, started)

	go logAsyncErrors(client, logger)

	runErr := b.Run(ctx, client.Events().OnMessage())
	if runErr != nil && ctx.Err() == nil {
		logger.Error("bot stopped", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := client.GracefulShutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
		return 1
	}
	logger.Info("shut down cleanly")
	return 0
}

// registerCommands wires the built-in command set.
func registerCommands(b *bot.Bot, started time.Time) {
	b.Handle(bot.Command{
		Name:        "ping",
		Description: "check that the bot is alive",
		Run: func(ctx context.Context, b *bot.Bot, msg *bot.Message) {
			b.Reply(msg, "pong")
		},
	})

	b.Handle(bot.Command{
		Name:        "uptime",
		Description: "how long the bot has been running",
		Run: func(ctx context.Context, b *bot.Bot, msg *bot.Message) {
			b.Reply(msg, fmt.Sprintf("up %s", time.Since(started).Round(time.Second)))
		},
	})

	b.Handle(bot.Command{
		Name:        "whoami",
		Description: "show your sender identity as the bot sees it",
		Run: func(ctx context.Context, b *bot.Bot, msg *bot.Message) {
			var sb strings.Builder
			fmt.Fprintf(&sb, "number: %s", msg.From)
			if msg.FromName != "" {
				fmt.Fprintf(&sb, "\nname: %s", msg.FromName)
			}
			if b.IsAdmin(msg.From) {
				sb.WriteString("\nrole: admin")
			}
			b.Reply(msg, sb.String())
		},
	})
}

// logAsyncErrors surfaces parse failures and reconnect exhaustion.
func logAsyncErrors(client *signalpkg.Client, logger *slog.Logger) {
	for err := range client.Events().OnError() {
		logger.Warn("async client error", "error", err)
	}
}
