package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Fan-out subjects. Both clients subscribe so chat and call state land
// without polling the database.
const (
	SubjectMessages = "duet.chat.messages"
	SubjectCalls    = "duet.chat.calls"
)

const maxMessageLen = 2000

// ChatRepository defines what the app layer needs from the repository.
type ChatRepository interface {
	InsertMessage(ctx context.Context, req SendMessageRequest) (*Message, error)
	ListMessages(ctx context.Context, limit int) ([]Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	InsertCallSignal(ctx context.Context, req SignalCallRequest) (*CallSignal, error)
	LatestCallSignal(ctx context.Context) (*CallSignal, error)
}

// Publisher defines what the app layer needs for fan-out. *nats.Conn
// satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// App handles chat business logic.
type App struct {
	repo ChatRepository
	pub  Publisher
}

// NewApp creates a new chat App. pub may be nil when fan-out is disabled.
func NewApp(repo ChatRepository, pub Publisher) *App {
	return &App{
		repo: repo,
		pub:  pub,
	}
}

// SendMessage validates, persists, and fans out one chat message.
func (a *App) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := a.validateSendMessageRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	msg, err := a.repo.InsertMessage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	a.publish(SubjectMessages, msg)
	return msg, nil
}

// History returns up to limit recent messages, oldest first.
func (a *App) History(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	msgs, err := a.repo.ListMessages(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return msgs, nil
}

// DeleteMessage removes one message. No fan-out: clients converge on the
// next history load.
func (a *App) DeleteMessage(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid message id %d", id)
	}
	if err := a.repo.DeleteMessage(ctx, id); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// SignalCall appends a call signaling step and fans it out.
func (a *App) SignalCall(ctx context.Context, req SignalCallRequest) (*CallSignal, error) {
	if err := a.validateSignalCallRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	sig, err := a.repo.InsertCallSignal(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to signal call: %w", err)
	}

	a.publish(SubjectCalls, sig)
	return sig, nil
}

// CallState returns the newest call signaling entry, or nil when no call
// was ever placed.
func (a *App) CallState(ctx context.Context) (*CallSignal, error) {
	sig, err := a.repo.LatestCallSignal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get call state: %w", err)
	}
	return sig, nil
}

// publish fans out over NATS. Fan-out failures are logged, not returned:
// the row is already persisted and clients recover on next history load.
func (a *App) publish(subject string, v any) {
	if a.pub == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal fan-out payload")
		return
	}
	if err := a.pub.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish fan-out")
	}
}

func (a *App) validateSendMessageRequest(req SendMessageRequest) error {
	if req.Sender != "p1" && req.Sender != "p2" {
		return fmt.Errorf("unknown sender %q", req.Sender)
	}
	if req.Text == "" {
		return fmt.Errorf("message text is required")
	}
	if len(req.Text) > maxMessageLen {
		return fmt.Errorf("message exceeds %d characters", maxMessageLen)
	}
	return nil
}

func (a *App) validateSignalCallRequest(req SignalCallRequest) error {
	if req.Caller != "p1" && req.Caller != "p2" {
		return fmt.Errorf("unknown caller %q", req.Caller)
	}
	switch req.Kind {
	case CallOffer, CallAnswer, CallCandidate:
		if len(req.Payload) == 0 {
			return fmt.Errorf("%s signal requires a payload", req.Kind)
		}
		return nil
	case CallHangup:
		return nil
	}
	return fmt.Errorf("unknown call signal kind %q", req.Kind)
}
