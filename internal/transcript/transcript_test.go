package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTranscript(t *testing.T, lines []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestReadHistoryStringContent(t *testing.T) {
	path := writeTranscript(t, []string{
		`{"type":"user","message":{"role":"user","content":"hello"},"timestamp":"2026-01-01T00:00:00.000Z","uuid":"u1"}`,
		`{"type":"assistant","message":{"role":"assistant","content":"hi there"},"timestamp":"2026-01-01T00:00:01.000Z","uuid":"a1"}`,
	})
	got, err := ReadHistory(path, "")
	if err != nil {
		t.Fatalf("ReadHistory() error = %v", err)
	}
	want := []Message{
		{Role: RoleUser, Text: "hello"},
		{Role: RoleAssistant, Text: "hi there"},
	}
	if len(got) != len(want) {
		t.Fatalf("ReadHistory() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadHistoryBlockContent(t *testing.T) {
	path := writeTranscript(t, []string{
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","text":"ignored"},{"type":"text","text":"the reply"}]},"timestamp":"2026-01-01T00:00:00.000Z","uuid":"a1"}`,
	})
	got, err := ReadHistory(path, "")
	if err != nil {
		t.Fatalf("ReadHistory() error = %v", err)
	}
	if len(got) != 1 || got[0].Text != "the reply" {
		t.Fatalf("ReadHistory() = %v, want single message with text %q", got, "the reply")
	}
}

func TestReadHistoryCutoffExcludesLater(t *testing.T) {
	path := writeTranscript(t, []string{
		`{"type":"user","message":{"role":"user","content":"before"},"timestamp":"2026-01-01T00:00:00.000Z","uuid":"u1"}`,
		`{"type":"user","message":{"role":"user","content":"after"},"timestamp":"2026-01-01T00:10:00.000Z","uuid":"u2"}`,
	})
	cutoff := "1767225900.000000"
	got, err := ReadHistory(path, cutoff)
	if err != nil {
		t.Fatalf("ReadHistory() error = %v", err)
	}
	if len(got) != 1 || got[0].Text != "before" {
		t.Fatalf("ReadHistory() = %v, want only the pre-cutoff message", got)
	}
}

func TestReadHistorySkipsUnparseableLines(t *testing.T) {
	path := writeTranscript(t, []string{
		`not json`,
		`{"type":"user","message":{"role":"user","content":"ok"},"timestamp":"2026-01-01T00:00:00.000Z","uuid":"u1"}`,
	})
	got, err := ReadHistory(path, "")
	if err != nil {
		t.Fatalf("ReadHistory() error = %v", err)
	}
	if len(got) != 1 || got[0].Text != "ok" {
		t.Fatalf("ReadHistory() = %v, want single message", got)
	}
}

func TestLatestAssistantTurn(t *testing.T) {
	path := writeTranscript(t, []string{
		`{"type":"assistant","message":{"role":"assistant","content":"first"},"timestamp":"2026-01-01T00:00:00.000Z","uuid":"a1"}`,
		`{"type":"user","message":{"role":"user","content":"interjection"},"timestamp":"2026-01-01T00:00:01.000Z","uuid":"u2"}`,
		`{"type":"assistant","message":{"role":"assistant","content":"second"},"timestamp":"2026-01-01T00:00:02.000Z","uuid":"a3"}`,
	})
	turnID, text, ok, err := LatestAssistantTurn(path)
	if err != nil {
		t.Fatalf("LatestAssistantTurn() error = %v", err)
	}
	if !ok || turnID != "a3" || text != "second" {
		t.Fatalf("LatestAssistantTurn() = (%q, %q, %v), want (a3, second, true)", turnID, text, ok)
	}
}

func TestLatestAssistantTurnNone(t *testing.T) {
	path := writeTranscript(t, []string{
		`{"type":"user","message":{"role":"user","content":"only user"},"timestamp":"2026-01-01T00:00:00.000Z","uuid":"u1"}`,
	})
	_, _, ok, err := LatestAssistantTurn(path)
	if err != nil {
		t.Fatalf("LatestAssistantTurn() error = %v", err)
	}
	if ok {
		t.Fatal("LatestAssistantTurn() ok = true, want false")
	}
}

func TestFormatHistoryContext(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Text: "what is the plan"},
		{Role: RoleAssistant, Text: "the plan is to ship"},
	}
	got, ok := FormatHistoryContext(history)
	if !ok {
		t.Fatal("FormatHistoryContext() ok = false, want true")
	}
	if !strings.Contains(got, "User: what is the plan") || !strings.Contains(got, "Assistant: the plan is to ship") {
		t.Fatalf("FormatHistoryContext() = %q, missing expected lines", got)
	}
}

func TestFormatHistoryContextEmpty(t *testing.T) {
	_, ok := FormatHistoryContext(nil)
	if ok {
		t.Fatal("FormatHistoryContext(nil) ok = true, want false")
	}
}

func TestParseSlackTimestampNanos(t *testing.T) {
	got, ok := parseSlackTimestampNanos("1700000000.123456")
	if !ok {
		t.Fatal("parseSlackTimestampNanos() ok = false")
	}
	want := int64(1700000000)*1_000_000_000 + 123456000
	if got != want {
		t.Errorf("parseSlackTimestampNanos() = %d, want %d", got, want)
	}
}

func TestParseISOTimestampNanosKnownEpoch(t *testing.T) {
	// 2026-01-01T00:00:00Z is 1767225600 seconds since the epoch.
	got, ok := parseISOTimestampNanos("2026-01-01T00:00:00.000Z")
	if !ok {
		t.Fatal("parseISOTimestampNanos() ok = false")
	}
	want := int64(1767225600) * 1_000_000_000
	if got != want {
		t.Errorf("parseISOTimestampNanos() = %d, want %d", got, want)
	}
}

func TestDaysFromCivilEpoch(t *testing.T) {
	if got := daysFromCivil(1970, 1, 1); got != 0 {
		t.Errorf("daysFromCivil(1970,1,1) = %d, want 0", got)
	}
	if got := daysFromCivil(1969, 12, 31); got != -1 {
		t.Errorf("daysFromCivil(1969,12,31) = %d, want -1", got)
	}
}
