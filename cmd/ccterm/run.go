package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kinoh/ccterm/internal/chat"
	"github.com/kinoh/ccterm/internal/chat/discord"
	"github.com/kinoh/ccterm/internal/chat/slack"
	"github.com/kinoh/ccterm/internal/config"
	"github.com/kinoh/ccterm/internal/coordinator"
	"github.com/kinoh/ccterm/internal/tmux"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		once       bool
		onceText   string
		onceWait   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the coordinator daemon",
		Long:  "Connects to the configured chat platform (Slack when its bot token is set, otherwise Discord), then bridges messages to and from claude CLI sessions until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, configPath, once, onceText, onceWait)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "ccterm.yaml", "path to ccterm config file")
	cmd.Flags().BoolVar(&once, "once", false, "send a single debug message to the base conversation and exit after the first reply")
	cmd.Flags().StringVar(&onceText, "once-text", "hello", "message text to send in --once mode")
	cmd.Flags().DurationVar(&onceWait, "once-timeout", 2*time.Minute, "how long to wait for a reply in --once mode")
	return cmd
}

func runRun(cmd *cobra.Command, configPath string, once bool, onceText string, onceWait time.Duration) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if once {
		return runOnce(cfg, tmux.DefaultTmux, out, onceText, onceWait)
	}

	adapter, err := buildChatAdapter(cfg)
	if err != nil {
		return err
	}

	coord, err := coordinator.New(cfg, tmux.DefaultTmux, adapter)
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("connect chat adapter: %w", err)
	}
	defer adapter.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	fmt.Fprintln(out, "ccterm running; press Ctrl-C to stop")
	if err := coord.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	return nil
}

// runOnce drives a single debug round-trip through the same Coordinator
// machinery the daemon uses, without needing any chat platform credentials:
// it wires the Coordinator to a MockAdapter, simulates one inbound message
// to the base conversation, and waits for the first reply or onceWait to
// elapse. This lets an operator sanity-check a claude CLI + settings.json
// combination in isolation.
func runOnce(cfg *config.Config, t tmux.Tmux, out io.Writer, text string, wait time.Duration) error {
	adapter := chat.NewMockAdapter()

	coord, err := coordinator.New(cfg, t, adapter)
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	if err := adapter.Connect(runCtx); err != nil {
		return fmt.Errorf("connect debug adapter: %w", err)
	}

	go func() {
		_ = coord.Run(runCtx)
	}()

	const debugConversationID = "ccterm-debug"
	adapter.SimulateInbound(chat.InboundMessage{
		ChannelID: debugConversationID,
		Text:      text,
	})

	for {
		select {
		case <-runCtx.Done():
			fmt.Fprintln(out, "timed out waiting for a reply")
			return nil
		case <-time.After(200 * time.Millisecond):
			if last, ok := adapter.LastSent(); ok && last.ChannelID == debugConversationID {
				fmt.Fprintf(out, "reply: %s\n", last.Text)
				return nil
			}
		}
	}
}

func buildChatAdapter(cfg *config.Config) (chat.Adapter, error) {
	if cfg.Slack.BotToken != "" {
		return slack.New(slack.AdapterOpts{
			BotToken: cfg.Slack.BotToken,
			AppToken: cfg.Slack.AppToken,
		})
	}
	if cfg.Discord.BotToken != "" {
		return discord.New(discord.AdapterOpts{
			BotToken: cfg.Discord.BotToken,
		})
	}
	return nil, fmt.Errorf("run: no chat platform configured (set slack or discord credentials)")
}
