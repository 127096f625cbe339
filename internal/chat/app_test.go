package chat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type fakeRepo struct {
	messages []Message
	signals  []CallSignal
	nextID   int64
}

func (f *fakeRepo) InsertMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	f.nextID++
	msg := Message{ID: f.nextID, Sender: req.Sender, Text: req.Text, CreatedAt: time.Unix(0, 0)}
	f.messages = append(f.messages, msg)
	return &msg, nil
}

func (f *fakeRepo) ListMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit > len(f.messages) {
		limit = len(f.messages)
	}
	return f.messages[len(f.messages)-limit:], nil
}

func (f *fakeRepo) DeleteMessage(ctx context.Context, id int64) error {
	kept := f.messages[:0]
	for _, msg := range f.messages {
		if msg.ID != id {
			kept = append(kept, msg)
		}
	}
	f.messages = kept
	return nil
}

func (f *fakeRepo) InsertCallSignal(ctx context.Context, req SignalCallRequest) (*CallSignal, error) {
	f.nextID++
	sig := CallSignal{ID: f.nextID, Caller: req.Caller, Kind: req.Kind, Payload: req.Payload, CreatedAt: time.Unix(0, 0)}
	f.signals = append(f.signals, sig)
	return &sig, nil
}

func (f *fakeRepo) LatestCallSignal(ctx context.Context) (*CallSignal, error) {
	if len(f.signals) == 0 {
		return nil, nil
	}
	sig := f.signals[len(f.signals)-1]
	return &sig, nil
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestSendMessage_PersistsAndFansOut(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	app := NewApp(repo, pub)

	msg, err := app.SendMessage(context.Background(), SendMessageRequest{Sender: "p1", Text: "  hi love  "})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Text != "hi love" {
		t.Fatalf("text not trimmed: %q", msg.Text)
	}
	if len(repo.messages) != 1 {
		t.Fatalf("message not persisted")
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != SubjectMessages {
		t.Fatalf("fan-out subjects = %v", pub.subjects)
	}

	var published Message
	if err := json.Unmarshal(pub.payloads[0], &published); err != nil {
		t.Fatalf("bad fan-out payload: %v", err)
	}
	if published.ID != msg.ID || published.Text != msg.Text {
		t.Fatalf("fan-out payload diverged: %+v vs %+v", published, msg)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	app := NewApp(&fakeRepo{}, nil)
	ctx := context.Background()

	if _, err := app.SendMessage(ctx, SendMessageRequest{Sender: "p3", Text: "hi"}); err == nil {
		t.Fatalf("unknown sender accepted")
	}
	if _, err := app.SendMessage(ctx, SendMessageRequest{Sender: "p1", Text: "   "}); err == nil {
		t.Fatalf("blank message accepted")
	}
	long := strings.Repeat("x", maxMessageLen+1)
	if _, err := app.SendMessage(ctx, SendMessageRequest{Sender: "p1", Text: long}); err == nil {
		t.Fatalf("oversized message accepted")
	}
}

func TestSendMessage_NilPublisherIsFine(t *testing.T) {
	repo := &fakeRepo{}
	app := NewApp(repo, nil)

	if _, err := app.SendMessage(context.Background(), SendMessageRequest{Sender: "p2", Text: "hello"}); err != nil {
		t.Fatalf("send without publisher: %v", err)
	}
	if len(repo.messages) != 1 {
		t.Fatalf("message not persisted")
	}
}

func TestHistory_ClampsLimit(t *testing.T) {
	repo := &fakeRepo{}
	app := NewApp(repo, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := app.SendMessage(ctx, SendMessageRequest{Sender: "p1", Text: "msg"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	msgs, err := app.History(ctx, -5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("history returned %d messages, want 3", len(msgs))
	}
}

func TestSignalCall_Lifecycle(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	app := NewApp(repo, pub)
	ctx := context.Background()

	state, err := app.CallState(ctx)
	if err != nil {
		t.Fatalf("call state: %v", err)
	}
	if state != nil {
		t.Fatalf("expected no call state before first signal, got %+v", state)
	}

	offer := json.RawMessage(`{"sdp":"v=0..."}`)
	answer := json.RawMessage(`{"sdp":"v=0..."}`)
	if _, err := app.SignalCall(ctx, SignalCallRequest{Caller: "p1", Kind: CallOffer, Payload: offer}); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := app.SignalCall(ctx, SignalCallRequest{Caller: "p2", Kind: CallAnswer, Payload: answer}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := app.SignalCall(ctx, SignalCallRequest{Caller: "p1", Kind: CallHangup}); err != nil {
		t.Fatalf("hangup: %v", err)
	}

	state, err = app.CallState(ctx)
	if err != nil {
		t.Fatalf("call state: %v", err)
	}
	if state == nil || state.Kind != CallHangup {
		t.Fatalf("call state = %+v, want hangup", state)
	}
	if len(pub.subjects) != 3 || pub.subjects[0] != SubjectCalls {
		t.Fatalf("fan-out subjects = %v", pub.subjects)
	}
}

func TestSignalCall_Validation(t *testing.T) {
	app := NewApp(&fakeRepo{}, nil)
	ctx := context.Background()

	if _, err := app.SignalCall(ctx, SignalCallRequest{Caller: "p1", Kind: "busy"}); err == nil {
		t.Fatalf("unknown kind accepted")
	}
	if _, err := app.SignalCall(ctx, SignalCallRequest{Caller: "p1", Kind: CallOffer}); err == nil {
		t.Fatalf("offer without payload accepted")
	}
}

func TestDeleteMessage(t *testing.T) {
	repo := &fakeRepo{}
	app := NewApp(repo, nil)
	ctx := context.Background()

	msg, err := app.SendMessage(ctx, SendMessageRequest{Sender: "p1", Text: "oops"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := app.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(repo.messages) != 0 {
		t.Fatalf("message not deleted")
	}
	if err := app.DeleteMessage(ctx, 0); err == nil {
		t.Fatalf("invalid id accepted")
	}
}
