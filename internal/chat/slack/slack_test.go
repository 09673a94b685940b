package slack

import (
	"context"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/kinoh/ccterm/internal/chat"
)

type fakeClient struct {
	authUserID string
	authErr    error
	postErr    error
	postedChan string
	userInfo   map[string]*slackapi.User
}

func (f *fakeClient) AuthTest() (*slackapi.AuthTestResponse, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &slackapi.AuthTestResponse{UserID: f.authUserID}, nil
}

func (f *fakeClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	f.postedChan = channelID
	return channelID, "123.456", f.postErr
}

func (f *fakeClient) GetUserInfo(userID string) (*slackapi.User, error) {
	if u, ok := f.userInfo[userID]; ok {
		return u, nil
	}
	return nil, errNotFound
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (e *notFoundError) Error() string { return "not found" }

type fakeSocket struct {
	events chan socketmode.Event
	acked  []socketmode.Request
}

func (f *fakeSocket) Run() error                        { <-make(chan struct{}); return nil }
func (f *fakeSocket) EventsChan() chan socketmode.Event { return f.events }
func (f *fakeSocket) Ack(req socketmode.Request, payload ...interface{}) {
	f.acked = append(f.acked, req)
}

func TestConnectSetsBotUserID(t *testing.T) {
	client := &fakeClient{authUserID: "U_BOT"}
	a, err := New(AdapterOpts{Client: client, Socket: &fakeSocket{events: make(chan socketmode.Event)}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if a.BotUserID() != "U_BOT" {
		t.Errorf("BotUserID() = %q, want U_BOT", a.BotUserID())
	}
}

func TestNewRequiresTokensWithoutInjectedClients(t *testing.T) {
	if _, err := New(AdapterOpts{}); err == nil {
		t.Fatal("New() error = nil, want error for missing tokens")
	}
}

func TestSendRequiresChannel(t *testing.T) {
	client := &fakeClient{authUserID: "U_BOT"}
	a, _ := New(AdapterOpts{Client: client, Socket: &fakeSocket{events: make(chan socketmode.Event)}})
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	err := a.Send(context.Background(), chat.OutboundMessage{Text: "hello"})
	if err == nil {
		t.Fatal("Send() error = nil, want error for missing channel")
	}
}

func TestHandleMessageFiltersSelf(t *testing.T) {
	client := &fakeClient{authUserID: "U_BOT"}
	sock := &fakeSocket{events: make(chan socketmode.Event, 1)}
	a, _ := New(AdapterOpts{Client: client, Socket: sock})
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	a.handleMessage(&slackevents.MessageEvent{User: "U_BOT", Channel: "C1", Text: "hi"})

	select {
	case <-a.inbound:
		t.Fatal("expected no inbound message from self")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHandleMessageDeliversOthers(t *testing.T) {
	client := &fakeClient{authUserID: "U_BOT", userInfo: map[string]*slackapi.User{
		"U_OTHER": {RealName: "Other User"},
	}}
	sock := &fakeSocket{events: make(chan socketmode.Event, 1)}
	a, _ := New(AdapterOpts{Client: client, Socket: sock})
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	a.handleMessage(&slackevents.MessageEvent{User: "U_OTHER", Channel: "C1", Text: "hi", TimeStamp: "1700000000.000100"})

	select {
	case msg := <-a.inbound:
		if msg.Text != "hi" || msg.UserName != "Other User" {
			t.Errorf("inbound message = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an inbound message")
	}
}

func TestParseSlackTimestamp(t *testing.T) {
	ts := parseSlackTimestamp("1700000000.123456")
	if ts.Unix() != 1700000000 {
		t.Errorf("parseSlackTimestamp() = %v, want unix 1700000000", ts)
	}
}
