// Package config provides YAML-based configuration loading for ccterm.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config is the top-level ccterm configuration, loaded from a YAML file
// (ccterm.yaml by default).
type Config struct {
	Slack       SlackConfig       `yaml:"slack"`
	Discord     DiscordConfig     `yaml:"discord"`
	Claude      ClaudeConfig      `yaml:"claude"`
	Tmux        TmuxConfig        `yaml:"tmux"`
	Hooks       HooksConfig       `yaml:"hooks"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
}

// SlackConfig holds Slack Socket Mode credentials. Required: without a
// working Slack connection the Coordinator has no way to receive messages.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"` // xoxb-...
	AppToken string `yaml:"app_token"` // xapp-...
}

// DiscordConfig holds Discord Gateway credentials. Optional: validate still
// requires the Slack tokens, and only one chat adapter runs at a time —
// "ccterm run" builds the Discord adapter only when no Slack bot token is set.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
	GuildID  string `yaml:"guild_id"`
}

// ClaudeConfig controls how the claude CLI is launched inside each tmux
// session.
type ClaudeConfig struct {
	Command string `yaml:"command"`
	CWD     string `yaml:"cwd"`
}

// TmuxConfig controls session naming and prompt-readiness detection.
type TmuxConfig struct {
	SessionPrefix string `yaml:"session_prefix"`
	ReadyGlyph    string `yaml:"ready_glyph"`
}

// HooksConfig controls where Stop-hook events are written and read from.
// EventsPath may be absolute (one shared file) or relative to each
// workspace's cwd (one file per conversation).
type HooksConfig struct {
	EventsPath string `yaml:"events_path"`
}

// CoordinatorConfig controls the Coordinator's timeouts.
type CoordinatorConfig struct {
	HookTimeoutSecs int `yaml:"hook_timeout_secs"`
	PromptTimeoutMs int `yaml:"prompt_timeout_ms"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values, matching the original
// implementation's own defaults (claude command "claude", tmux session
// prefix "ccterm", a 10s hook timeout, a 10s prompt timeout).
func (c *Config) applyDefaults() {
	if c.Claude.Command == "" {
		c.Claude.Command = "claude"
	}
	if c.Claude.CWD == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Claude.CWD = wd
		} else {
			c.Claude.CWD = "."
		}
	}
	if c.Tmux.SessionPrefix == "" {
		c.Tmux.SessionPrefix = "ccterm"
	}
	if c.Hooks.EventsPath == "" {
		c.Hooks.EventsPath = ".claude/hooks/events.jsonl"
	}
	if c.Coordinator.HookTimeoutSecs == 0 {
		c.Coordinator.HookTimeoutSecs = 10
	}
	if c.Coordinator.PromptTimeoutMs == 0 {
		c.Coordinator.PromptTimeoutMs = 10_000
	}

	c.Slack.BotToken = resolveEnvVars(c.Slack.BotToken)
	c.Slack.AppToken = resolveEnvVars(c.Slack.AppToken)
	c.Discord.BotToken = resolveEnvVars(c.Discord.BotToken)
}

// validate checks that all required fields are present.
func (c *Config) validate() error {
	var errs []string
	if strings.TrimSpace(c.Slack.BotToken) == "" {
		errs = append(errs, "slack.bot_token is required")
	}
	if strings.TrimSpace(c.Slack.AppToken) == "" {
		errs = append(errs, "slack.app_token is required")
	}
	if c.Discord.BotToken != "" && c.Discord.GuildID == "" {
		errs = append(errs, "discord.guild_id is required when discord.bot_token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// resolveEnvVars replaces ${VAR_NAME} tokens in s with the corresponding
// environment variable value. Unset variables resolve to empty string.
func resolveEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
