// Package workspace provisions the working directories claude CLI
// processes run in: the single shared base workspace for main-channel
// conversations, and a per-thread subdirectory tree (with its own
// .claude/settings.json pointed at this binary's hook command) for
// threaded conversations.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// debugHookCommand and releaseHookCommand are the placeholder hook command
// paths baked into a freshly-built project's base settings.json. Thread
// settings rewrite these to point at the currently-running ccterm binary so
// hooks fired from a thread workspace still reach this process.
const (
	debugHookCommand   = "$CLAUDE_PROJECT_DIR/target/debug/ccterm"
	releaseHookCommand = "$CLAUDE_PROJECT_DIR/target/release/ccterm"
)

// SanitizeThreadID maps a thread id to a filesystem-safe directory name:
// ASCII alphanumerics pass through unchanged, everything else becomes '_'.
func SanitizeThreadID(threadID string) string {
	var b strings.Builder
	b.Grow(len(threadID))
	for _, r := range threadID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NormalizePath resolves path to an absolute, symlink-free form when
// possible, falling back to the unresolved absolute path if the filesystem
// lookup fails (e.g. the path does not exist yet).
func NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// EnsureThreadDir creates (if needed) the workspace directory for a thread
// conversation under baseCWD/.ccterm/threads/<sanitized thread id>, along
// with a .claude/settings.json seeded from settingsTemplate (the base
// workspace's own settings.json, read once at startup) with its hook
// commands rewritten to point at ccTermExePath. Returns the normalized
// thread workspace path.
func EnsureThreadDir(baseCWD, threadID, settingsTemplate, ccTermExePath string) (string, error) {
	dir := filepath.Join(baseCWD, ".ccterm", "threads", SanitizeThreadID(threadID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("workspace: create thread dir %s: %w", dir, err)
	}

	claudeDir := filepath.Join(dir, ".claude")
	if err := os.MkdirAll(claudeDir, 0o755); err != nil {
		return "", fmt.Errorf("workspace: create .claude dir %s: %w", claudeDir, err)
	}

	settingsPath := filepath.Join(claudeDir, "settings.json")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		rendered, err := RenderThreadSettings(settingsTemplate, ccTermExePath)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(settingsPath, []byte(rendered), 0o644); err != nil {
			return "", fmt.Errorf("workspace: write thread settings.json %s: %w", settingsPath, err)
		}
	} else if err != nil {
		return "", fmt.Errorf("workspace: stat thread settings.json %s: %w", settingsPath, err)
	}

	return NormalizePath(dir), nil
}

// RenderThreadSettings parses settingsTemplate as JSON, rewrites every hook
// command that points at the project-relative debug/release ccterm build
// output to ccTermExePath instead, and re-serializes the result, pretty
// printed with a trailing newline to match how settings.json files are
// normally written by hand.
func RenderThreadSettings(settingsTemplate, ccTermExePath string) (string, error) {
	var settings map[string]any
	if err := json.Unmarshal([]byte(settingsTemplate), &settings); err != nil {
		return "", fmt.Errorf("workspace: parse base settings.json: %w", err)
	}

	RewriteHookCommands(settings, ccTermExePath)

	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("workspace: render settings.json: %w", err)
	}
	return string(out) + "\n", nil
}

// RewriteHookCommands walks settings["hooks"][*][*]["hooks"][*]["command"]
// — the shape Claude Code's settings.json uses for hook registrations,
// grouped by event name then matcher — and replaces any literal
// debug/release ccterm build-output path with exePath. The traversal is
// done over map[string]any/[]any rather than a typed struct because the
// hook registration shape (matcher presence, hook entry fields) varies
// across Claude Code versions and isn't this package's concern to model
// fully; only the command string matters here.
func RewriteHookCommands(settings map[string]any, exePath string) {
	hooksValue, ok := settings["hooks"]
	if !ok {
		return
	}
	hooksByEvent, ok := hooksValue.(map[string]any)
	if !ok {
		return
	}

	for _, matcherEntries := range hooksByEvent {
		entries, ok := matcherEntries.([]any)
		if !ok {
			continue
		}
		for _, entry := range entries {
			entryMap, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			hookList, ok := entryMap["hooks"].([]any)
			if !ok {
				continue
			}
			for _, hook := range hookList {
				hookMap, ok := hook.(map[string]any)
				if !ok {
					continue
				}
				command, ok := hookMap["command"].(string)
				if !ok {
					continue
				}
				hookMap["command"] = replaceCCTermCommand(command, exePath)
			}
		}
	}
}

func replaceCCTermCommand(command, exePath string) string {
	if strings.Contains(command, debugHookCommand) {
		return strings.ReplaceAll(command, debugHookCommand, exePath)
	}
	if strings.Contains(command, releaseHookCommand) {
		return strings.ReplaceAll(command, releaseHookCommand, exePath)
	}
	return command
}

// HookEventsPath returns the absolute path of a conversation's hook events
// file. eventsPath comes from configuration and may itself already be
// absolute (shared across all conversations) or relative to cwd (one file
// per workspace).
func HookEventsPath(cwd, eventsPath string) string {
	if filepath.IsAbs(eventsPath) {
		return eventsPath
	}
	return filepath.Join(cwd, eventsPath)
}
