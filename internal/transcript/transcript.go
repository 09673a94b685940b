// Package transcript reads Claude Code JSONL transcript files: the history
// of user/assistant turns for a session, and the latest assistant reply.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Role identifies the speaker of a transcript line.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single user or assistant turn extracted from a transcript.
type Message struct {
	Role Role
	Text string
}

// transcriptLine mirrors the subset of a Claude Code JSONL record this
// package cares about. message.content may be a bare string or an array of
// content blocks, hence the json.RawMessage indirection.
type transcriptLine struct {
	Type    string `json:"type"`
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
	Timestamp string `json:"timestamp"`
	UUID      string `json:"uuid"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReadHistory reads an ordered sequence of user/assistant messages from the
// transcript at path. cutoff, if non-empty, is a chat-platform timestamp in
// "seconds.fractional" format (spec ยง6); records whose own ISO-8601
// timestamp is strictly after cutoff are excluded. Lines that are not
// user/assistant type, have empty text after extraction, or fail to parse
// as JSON are skipped. An unparseable cutoff is ignored (logged) rather than
// rejected; an unparseable per-record timestamp is treated as pre-cutoff.
func ReadHistory(path string, cutoff string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: open %s: %w", path, err)
	}
	defer f.Close()

	var cutoffNanos int64
	var haveCutoff bool
	if cutoff != "" {
		if n, ok := parseSlackTimestampNanos(cutoff); ok {
			cutoffNanos = n
			haveCutoff = true
		} else {
			log.Printf("transcript: history cutoff %q ignored (invalid timestamp)", cutoff)
		}
	}

	var out []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec transcriptLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			log.Printf("transcript: skipping unparseable line in %s: %v", path, err)
			continue
		}
		if rec.Type != "user" && rec.Type != "assistant" {
			continue
		}
		if haveCutoff && rec.Timestamp != "" {
			if ts, ok := parseISOTimestampNanos(rec.Timestamp); ok && ts > cutoffNanos {
				continue
			}
		}

		var text string
		if rec.Type == "user" {
			text = extractUserText(rec.Message.Content)
		} else {
			text = extractAssistantText(rec.Message.Content)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		role := RoleUser
		if rec.Type == "assistant" {
			role = RoleAssistant
		}
		out = append(out, Message{Role: role, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("transcript: read %s: %w", path, err)
	}
	return out, nil
}

// LatestAssistantTurn returns the turn id (transcript uuid) and text of the
// last assistant record with non-empty text and a uuid. ok is false if no
// such record exists.
func LatestAssistantTurn(path string) (turnID, text string, ok bool, err error) {
	f, openErr := os.Open(path)
	if openErr != nil {
		return "", "", false, fmt.Errorf("transcript: open %s: %w", path, openErr)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec transcriptLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Type != "assistant" || rec.UUID == "" {
			continue
		}
		t := extractAssistantText(rec.Message.Content)
		if strings.TrimSpace(t) == "" {
			continue
		}
		turnID, text, ok = rec.UUID, t, true
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return "", "", false, fmt.Errorf("transcript: read %s: %w", path, scanErr)
	}
	return turnID, text, ok, nil
}

// FormatHistoryContext renders history as Markdown suitable for seeding a
// thread workspace's CLAUDE.md. Returns ok=false for empty history.
func FormatHistoryContext(history []Message) (string, bool) {
	if len(history) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString("# Optional Conversation Context\n\n")
	b.WriteString("This file provides background context to help interpret the user's next message.\n")
	b.WriteString("You do not need to focus on it unless it is useful.\n\n")
	b.WriteString("## Prior Messages\n")
	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			b.WriteString("User: ")
		case RoleAssistant:
			b.WriteString("Assistant: ")
		}
		b.WriteString(msg.Text)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String(), true
}

// extractUserText handles both string and array content shapes: any array
// item with a text field contributes, regardless of its "type".
func extractUserText(raw json.RawMessage) string {
	if s, ok := rawAsString(raw); ok {
		return s
	}
	var items []contentBlock
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString(item.Text)
	}
	return b.String()
}

// extractAssistantText handles both string and array content shapes: only
// array items with type=="text" contribute.
func extractAssistantText(raw json.RawMessage) string {
	if s, ok := rawAsString(raw); ok {
		return s
	}
	var items []contentBlock
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	var b strings.Builder
	for _, item := range items {
		if item.Type != "text" {
			continue
		}
		b.WriteString(item.Text)
	}
	return b.String()
}

func rawAsString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// parseSlackTimestampNanos parses a chat-platform "seconds.fractional"
// timestamp into nanoseconds since the epoch.
func parseSlackTimestampNanos(ts string) (int64, bool) {
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return 0, false
	}
	n, ok := parseFractionalNanos(frac)
	if !ok {
		return 0, false
	}
	return s*1_000_000_000 + n, true
}

// parseISOTimestampNanos parses an ISO-8601 "YYYY-MM-DDTHH:MM:SS[.fff]Z"
// timestamp into nanoseconds since the epoch using a proleptic Gregorian
// civil-to-days conversion, so no timezone database is needed.
func parseISOTimestampNanos(ts string) (int64, bool) {
	ts, ok := strings.CutSuffix(ts, "Z")
	if !ok {
		return 0, false
	}
	date, timePart, ok := strings.Cut(ts, "T")
	if !ok {
		return 0, false
	}
	dateParts := strings.SplitN(date, "-", 3)
	if len(dateParts) != 3 {
		return 0, false
	}
	year, err1 := strconv.Atoi(dateParts[0])
	month, err2 := strconv.Atoi(dateParts[1])
	day, err3 := strconv.Atoi(dateParts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}

	clock, frac, _ := strings.Cut(timePart, ".")
	clockParts := strings.SplitN(clock, ":", 3)
	if len(clockParts) != 3 {
		return 0, false
	}
	hour, err4 := strconv.Atoi(clockParts[0])
	minute, err5 := strconv.Atoi(clockParts[1])
	second, err6 := strconv.Atoi(clockParts[2])
	if err4 != nil || err5 != nil || err6 != nil {
		return 0, false
	}

	var nanos int64
	if frac != "" {
		n, ok := parseFractionalNanos(frac)
		if !ok {
			return 0, false
		}
		nanos = n
	}

	days := daysFromCivil(year, month, day)
	seconds := days*86_400 + int64(hour)*3_600 + int64(minute)*60 + int64(second)
	return seconds*1_000_000_000 + nanos, true
}

// parseFractionalNanos parses up to 9 digits of a fractional-second string
// into nanoseconds, truncating anything beyond that.
func parseFractionalNanos(frac string) (int64, bool) {
	if frac == "" {
		return 0, true
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	var value int64
	for _, r := range frac {
		if r < '0' || r > '9' {
			return 0, false
		}
		value = value*10 + int64(r-'0')
	}
	for i := len(frac); i < 9; i++ {
		value *= 10
	}
	return value, true
}

// daysFromCivil converts a proleptic Gregorian calendar date to a day count
// relative to the Unix epoch (1970-01-01), using Howard Hinnant's
// days_from_civil algorithm. This avoids needing a full timezone/calendar
// library just to compare two timestamps.
func daysFromCivil(year, month, day int) int64 {
	y := year
	if month <= 2 {
		y--
	}
	var m int
	if month > 2 {
		m = month - 3
	} else {
		m = month + 9
	}
	era := y
	if era < 0 {
		era -= 399
	}
	era /= 400
	yoe := y - era*400
	doy := (153*m+2)/5 + day - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return int64(era*146097 + doe - 719468)
}
