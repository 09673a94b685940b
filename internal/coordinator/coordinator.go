// Package coordinator implements the event-driven state machine that ties
// a chat platform, a fleet of claude CLI tmux sessions, and Stop-hook
// events together: one session per conversation (channel, or channel plus
// thread), with replies delivered back to the chat platform as they land
// in each session's transcript.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kinoh/ccterm/internal/chat"
	"github.com/kinoh/ccterm/internal/config"
	"github.com/kinoh/ccterm/internal/hookintake"
	"github.com/kinoh/ccterm/internal/transcript"
	"github.com/kinoh/ccterm/internal/tmux"
	"github.com/kinoh/ccterm/internal/workspace"
)

// ConversationKey identifies a single conversation: a chat channel, plus an
// optional thread within it. The zero value of ThreadID (nil) identifies
// the channel's own main conversation.
type ConversationKey struct {
	ConversationID string
	ThreadID       *string
}

func mainKey(conversationID string) ConversationKey {
	return ConversationKey{ConversationID: conversationID}
}

func threadKey(conversationID, threadID string) ConversationKey {
	t := threadID
	return ConversationKey{ConversationID: conversationID, ThreadID: &t}
}

// SessionEntry is the Coordinator's view of one live claude session.
type SessionEntry struct {
	SessionName         string
	WorkspaceDir        string
	LastTranscriptPath  *string
	LastDeliveredTurnID *string
}

// IncomingMessage is a message received from a chat adapter, already
// abstracted away from any platform-specific shape.
type IncomingMessage struct {
	Text           string
	ConversationID string
	ThreadID       *string
	Timestamp      string // chat-platform timestamp, e.g. Slack's "seconds.fractional"
}

// OutgoingMessage is a reply to be delivered back to the chat platform.
type OutgoingMessage struct {
	Text           string
	ConversationID string
	ThreadID       *string
}

// Coordinator owns all per-conversation state and drives the event loop
// that links chat messages, tmux sessions, and hook events together. It is
// not safe for concurrent use — Run's event loop is the only goroutine
// expected to touch its maps.
type Coordinator struct {
	cfg   *config.Config
	tmux  tmux.Tmux
	chat  chat.Adapter
	hooks chan hookintake.Event

	sessionsByKey      map[ConversationKey]*SessionEntry
	keyByWorkspace     map[string]ConversationKey
	mainByConversation map[string]ConversationKey
	followedWorkspaces map[string]struct{}

	settingsTemplate string
	baseCWD          string
	ccTermExePath    string
}

// New builds a Coordinator. It reads the base workspace's .claude/settings.json
// once up front — every thread workspace's own settings.json is rendered
// from this template — and resolves this binary's own executable path, so
// thread workspaces' hook commands point back at it regardless of where it
// was built or installed.
func New(cfg *config.Config, t tmux.Tmux, adapter chat.Adapter) (*Coordinator, error) {
	baseCWD := workspace.NormalizePath(cfg.Claude.CWD)

	settingsPath := filepath.Join(baseCWD, ".claude", "settings.json")
	settingsBytes, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("coordinator: read base settings.json %s: %w", settingsPath, err)
	}

	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("coordinator: resolve own executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
		exePath = resolved
	}

	return &Coordinator{
		cfg:                cfg,
		tmux:               t,
		chat:               adapter,
		hooks:              make(chan hookintake.Event, 64),
		sessionsByKey:      make(map[ConversationKey]*SessionEntry),
		keyByWorkspace:     make(map[string]ConversationKey),
		mainByConversation: make(map[string]ConversationKey),
		followedWorkspaces: make(map[string]struct{}),
		settingsTemplate:   string(settingsBytes),
		baseCWD:            baseCWD,
		ccTermExePath:      exePath,
	}, nil
}

// Run is the Coordinator's event loop: it multiplexes inbound chat
// messages and hook events until ctx is canceled or the chat adapter's
// inbound channel closes.
func (c *Coordinator) Run(ctx context.Context) error {
	promptTimeout := time.Duration(c.cfg.Coordinator.PromptTimeoutMs) * time.Millisecond

	inbound, err := c.chat.Listen(ctx)
	if err != nil {
		return fmt.Errorf("coordinator: listen: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			im := IncomingMessage{
				Text:           msg.Text,
				ConversationID: msg.ChannelID,
				Timestamp:      formatTimestamp(msg.Timestamp),
			}
			if msg.ThreadID != "" {
				t := msg.ThreadID
				im.ThreadID = &t
			}
			log.Printf("coordinator: incoming message channel=%s thread=%s text_len=%d",
				im.ConversationID, derefOr(im.ThreadID, "-"), len(im.Text))
			if err := c.handleIncoming(ctx, im, promptTimeout); err != nil {
				log.Printf("coordinator: incoming error: %v", err)
			}

		case hook := <-c.hooks:
			if err := c.handleHook(ctx, hook); err != nil {
				log.Printf("coordinator: hook error: %v", err)
			}
		}
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func (c *Coordinator) handleIncoming(ctx context.Context, msg IncomingMessage, promptTimeout time.Duration) error {
	var entry *SessionEntry
	var err error
	if msg.ThreadID == nil {
		entry, err = c.ensureMainSession(ctx, msg, promptTimeout)
	} else {
		entry, err = c.ensureThreadSession(ctx, msg, promptTimeout)
	}
	if err != nil {
		return err
	}
	return c.enqueueSend(entry, msg.Text, promptTimeout)
}

// ensureMainSession returns the (possibly newly spawned) session for a
// channel's main conversation.
func (c *Coordinator) ensureMainSession(ctx context.Context, msg IncomingMessage, promptTimeout time.Duration) (*SessionEntry, error) {
	key := mainKey(msg.ConversationID)
	c.mainByConversation[msg.ConversationID] = key

	if entry, ok := c.sessionsByKey[key]; ok {
		return entry, nil
	}

	cwd := c.baseCWD
	if err := c.registerHookReceiver(ctx, cwd); err != nil {
		return nil, err
	}

	entry, err := c.spawnSession(cwd, promptTimeout)
	if err != nil {
		return nil, fmt.Errorf("coordinator: spawn main session: %w", err)
	}
	c.sessionsByKey[key] = entry
	c.keyByWorkspace[cwd] = key
	return entry, nil
}

// ensureThreadSession returns the (possibly newly spawned) session for a
// thread conversation, provisioning its workspace and seeding CLAUDE.md
// with prior main-conversation context on first creation.
func (c *Coordinator) ensureThreadSession(ctx context.Context, msg IncomingMessage, promptTimeout time.Duration) (*SessionEntry, error) {
	threadID := *msg.ThreadID
	key := threadKey(msg.ConversationID, threadID)

	if entry, ok := c.sessionsByKey[key]; ok {
		return entry, nil
	}

	cwd, err := workspace.EnsureThreadDir(c.baseCWD, threadID, c.settingsTemplate, c.ccTermExePath)
	if err != nil {
		return nil, fmt.Errorf("coordinator: ensure thread dir: %w", err)
	}
	if err := c.registerHookReceiver(ctx, cwd); err != nil {
		return nil, err
	}

	entry, err := c.spawnSession(cwd, promptTimeout)
	if err != nil {
		return nil, fmt.Errorf("coordinator: spawn thread session: %w", err)
	}

	if err := c.ensureThreadContext(cwd, msg); err != nil {
		log.Printf("coordinator: failed to seed thread context: %v", err)
	}

	c.sessionsByKey[key] = entry
	c.keyByWorkspace[cwd] = key
	return entry, nil
}

func (c *Coordinator) spawnSession(cwd string, promptTimeout time.Duration) (*SessionEntry, error) {
	sessionName := tmux.SessionName(c.cfg.Tmux.SessionPrefix, time.Now())
	correlationID := uuid.NewString()
	log.Printf("coordinator: spawning session=%s cwd=%s correlation=%s", sessionName, cwd, correlationID)

	if err := c.tmux.SpawnIn(sessionName, cwd, c.cfg.Claude.Command); err != nil {
		return nil, err
	}
	if err := tmux.WaitForPrompt(c.tmux, sessionName, c.cfg.Tmux.ReadyGlyph, promptTimeout, 200*time.Millisecond); err != nil {
		return nil, err
	}

	return &SessionEntry{SessionName: sessionName, WorkspaceDir: cwd}, nil
}

// ensureThreadContext seeds a freshly created thread workspace's CLAUDE.md
// with recent history from the channel's main conversation, cut off at the
// timestamp of the message that created the thread. It is a no-op if
// CLAUDE.md already exists or there is no main conversation to read from.
func (c *Coordinator) ensureThreadContext(cwd string, msg IncomingMessage) error {
	claudeMD := filepath.Join(cwd, "CLAUDE.md")
	if _, err := os.Stat(claudeMD); err == nil {
		return nil
	}

	context, ok, err := c.buildThreadContext(msg)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return os.WriteFile(claudeMD, []byte(context), 0o644)
}

func (c *Coordinator) buildThreadContext(msg IncomingMessage) (string, bool, error) {
	mainKeyVal, ok := c.mainByConversation[msg.ConversationID]
	if !ok {
		return "", false, nil
	}
	mainEntry, ok := c.sessionsByKey[mainKeyVal]
	if !ok || mainEntry.LastTranscriptPath == nil {
		return "", false, nil
	}

	history, err := transcript.ReadHistory(*mainEntry.LastTranscriptPath, msg.Timestamp)
	if err != nil {
		return "", false, fmt.Errorf("coordinator: read history: %w", err)
	}
	text, ok := transcript.FormatHistoryContext(history)
	return text, ok, nil
}

func (c *Coordinator) enqueueSend(entry *SessionEntry, text string, promptTimeout time.Duration) error {
	if err := tmux.WaitForPrompt(c.tmux, entry.SessionName, c.cfg.Tmux.ReadyGlyph, promptTimeout, 200*time.Millisecond); err != nil {
		return err
	}
	if err := c.tmux.Send(entry.SessionName, text); err != nil {
		return fmt.Errorf("coordinator: send to %s: %w", entry.SessionName, err)
	}
	return nil
}

// registerHookReceiver starts (if not already running) a background
// goroutine following the hook events file for cwd and forwarding parsed
// events into c.hooks.
func (c *Coordinator) registerHookReceiver(ctx context.Context, cwd string) error {
	cwd = workspace.NormalizePath(cwd)
	if _, ok := c.followedWorkspaces[cwd]; ok {
		return nil
	}

	hookPath := workspace.HookEventsPath(cwd, c.cfg.Hooks.EventsPath)
	follower, err := hookintake.Open(hookPath, true)
	if err != nil {
		return fmt.Errorf("coordinator: open hook follower %s: %w", hookPath, err)
	}

	go func() {
		defer follower.Close()
		for {
			line, err := follower.WaitForLine(ctx, 0)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("coordinator: hook follower %s: %v", hookPath, err)
				return
			}
			event, err := hookintake.ParseEvent(line)
			if err != nil {
				log.Printf("coordinator: unparseable hook event in %s: %v", hookPath, err)
				continue
			}
			if !event.IsStop() {
				continue
			}
			select {
			case c.hooks <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	c.followedWorkspaces[cwd] = struct{}{}
	return nil
}

// handleHook processes a Stop event: it records the session's latest
// transcript path, reads the latest assistant turn, and — if it hasn't
// already been delivered — sends it back to the chat platform.
func (c *Coordinator) handleHook(ctx context.Context, event hookintake.Event) error {
	cwd := workspace.NormalizePath(event.CWD)
	key, ok := c.keyByWorkspace[cwd]
	if !ok {
		log.Printf("coordinator: hook cwd not registered: %s", cwd)
		return nil
	}

	entry, ok := c.sessionsByKey[key]
	if !ok {
		log.Printf("coordinator: hook session not registered: %s", event.SessionID)
		return nil
	}
	path := event.TranscriptPath
	entry.LastTranscriptPath = &path

	turnID, text, ok, err := transcript.LatestAssistantTurn(event.TranscriptPath)
	if err != nil {
		return fmt.Errorf("coordinator: latest assistant turn: %w", err)
	}
	if !ok {
		return nil
	}
	if entry.LastDeliveredTurnID != nil && *entry.LastDeliveredTurnID == turnID {
		return nil
	}

	out := chat.OutboundMessage{ChannelID: key.ConversationID, Text: text}
	if key.ThreadID != nil {
		out.ThreadID = *key.ThreadID
	}
	if err := c.chat.Send(ctx, out); err != nil {
		return fmt.Errorf("coordinator: send reply: %w", err)
	}
	entry.LastDeliveredTurnID = &turnID
	return nil
}
