package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clawdio/clawdio/pkg/clawdio/agent"
	"github.com/clawdio/clawdio/pkg/clawdio/bot"
	"github.com/clawdio/clawdio/pkg/clawdio/channels"
	"github.com/clawdio/clawdio/pkg/clawdio/channels/discord"
	"github.com/clawdio/clawdio/pkg/clawdio/channels/telegram"
	"github.com/clawdio/clawdio/pkg/clawdio/scheduler"
	"github.com/spf13/cobra"
)

// newServeCmd creates the `clawdio serve` command that starts the bridge.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge daemon",
		Long: `Connect the enabled chat transports and route messages to the
backends until interrupted.

Examples:
  clawdio serve
  clawdio serve --config ./clawdio.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := buildLogger(cmd, cfg)

	claude := agent.NewClaude(cfg.Claude, logger)
	ollama := agent.NewOllama(cfg.Ollama, logger)
	guard := bot.NewAccessGuard(cfg.Access, logger)

	b := bot.New(guard, claude, ollama, bot.Options{
		DefaultMode:  bot.Mode(cfg.Bot.DefaultMode),
		WorkingDir:   cfg.Claude.WorkingDir,
		MaxExchanges: cfg.Bot.MaxExchanges,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backends are probed at startup so a broken setup is visible in the
	// logs immediately; the daemon still starts either way.
	if err := claude.Healthcheck(ctx); err != nil {
		logger.Warn("claude backend not available at startup", "err", err)
	}
	if err := ollama.Healthcheck(ctx); err != nil {
		logger.Warn("ollama backend not available at startup", "err", err)
	}

	var transports []channels.Channel
	if cfg.Channels.Telegram.Enabled {
		transports = append(transports, telegram.New(telegram.Config{
			Token:       cfg.Channels.Telegram.Token,
			PollTimeout: cfg.Channels.Telegram.PollTimeout,
		}, b, logger))
	}
	if cfg.Channels.Discord.Enabled {
		transports = append(transports, discord.New(discord.Config{
			Token: cfg.Channels.Discord.Token,
		}, b, logger))
	}

	for _, ch := range transports {
		b.RegisterChannel(ch)
		if err := ch.Connect(ctx); err != nil {
			return fmt.Errorf("connecting %s: %w", ch.Name(), err)
		}
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(cfg.Scheduler, schedulerRunner(claude, ollama), schedulerDeliverer(transports), logger)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		logger.Info("scheduler started", "jobs", sched.Jobs())
	}

	logger.Info("clawdio running, press Ctrl+C to stop",
		"transports", len(transports),
		"allowed_users", guard.Count(),
		"default_mode", cfg.Bot.DefaultMode,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping")
	cancel()

	done := make(chan struct{})
	go func() {
		if sched != nil {
			sched.Stop()
		}
		for _, ch := range transports {
			if err := ch.Disconnect(); err != nil {
				logger.Warn("disconnect failed", "channel", ch.Name(), "err", err)
			}
		}
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}

// schedulerRunner routes a job's prompt to the selected backend.
func schedulerRunner(claude *agent.Claude, ollama *agent.Ollama) scheduler.Runner {
	return func(ctx context.Context, job scheduler.JobConfig) (string, error) {
		var (
			resp *agent.Response
			err  error
		)
		switch job.Agent {
		case "ollama":
			resp, err = ollama.Invoke(ctx, agent.Request{Prompt: job.Prompt})
		default:
			resp, err = claude.Invoke(ctx, agent.Request{Prompt: job.Prompt})
		}
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}
}

// schedulerDeliverer sends job results out through a connected transport.
func schedulerDeliverer(transports []channels.Channel) scheduler.Deliverer {
	byName := make(map[string]channels.Channel, len(transports))
	for _, ch := range transports {
		byName[ch.Name()] = ch
	}
	return func(ctx context.Context, channel, chatID, text string) error {
		ch, ok := byName[channel]
		if !ok {
			return fmt.Errorf("no transport %q connected", channel)
		}
		return ch.Send(ctx, chatID, &channels.OutgoingMessage{Content: text})
	}
}
