package chat

import (
	"context"
	"testing"
)

func TestMockAdapterSendRequiresConnect(t *testing.T) {
	m := NewMockAdapter()
	err := m.Send(context.Background(), OutboundMessage{Text: "hi"})
	if err == nil {
		t.Fatal("Send() error = nil, want error before Connect")
	}
}

func TestMockAdapterSendAndListen(t *testing.T) {
	m := NewMockAdapter()
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ch, err := m.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	m.SimulateInbound(InboundMessage{ChannelID: "C1", Text: "hello"})
	msg := <-ch
	if msg.Text != "hello" {
		t.Errorf("msg.Text = %q, want hello", msg.Text)
	}

	if err := m.Send(context.Background(), OutboundMessage{ChannelID: "C1", Text: "reply"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	last, ok := m.LastSent()
	if !ok || last.Text != "reply" {
		t.Errorf("LastSent() = (%+v, %v), want reply message", last, ok)
	}
	if m.SentCount() != 1 {
		t.Errorf("SentCount() = %d, want 1", m.SentCount())
	}
}

func TestMockAdapterBotUserID(t *testing.T) {
	m := NewMockAdapter()
	m.SetBotUserID("U123")
	if m.BotUserID() != "U123" {
		t.Errorf("BotUserID() = %q, want U123", m.BotUserID())
	}
}

func TestMockAdapterClose(t *testing.T) {
	m := NewMockAdapter()
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Send(context.Background(), OutboundMessage{}); err == nil {
		t.Fatal("Send() error = nil, want error after Close")
	}
}
