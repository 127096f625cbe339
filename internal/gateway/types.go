package gateway

import (
	"encoding/json"

	"github.com/duetkeys/duet/internal/chat"
	"github.com/duetkeys/duet/internal/models"
	"github.com/duetkeys/duet/internal/session"
)

// Frame types shared by both directions.
const (
	msgTypeCursor   = "cursor"
	msgTypeActivity = "activity"
	msgTypePresence = "presence"
	msgTypeSession  = "session"
	msgTypeChat     = "chat"
	msgTypeCall     = "call"
)

// clientMessage is one inbound WebSocket frame.
type clientMessage struct {
	Type      string                   `json:"type"`
	X         float64                  `json:"x"`
	Y         float64                  `json:"y"`
	Activity  string                   `json:"activity"`
	Telemetry map[string]any           `json:"telemetry"`
	Session   *sessionChanges          `json:"session"`
	Chat      *chat.SendMessageRequest `json:"chat"`
	Call      *chat.SignalCallRequest  `json:"call"`
}

// sessionChanges is the wire form of a partial session update. Absent fields
// stay nil and leave the corresponding session field untouched.
type sessionChanges struct {
	Mode      *models.Mode    `json:"mode"`
	Theme     *models.Theme   `json:"theme"`
	TimerSec  *int            `json:"timer_sec"`
	Language  *string         `json:"language"`
	Words     *string         `json:"words"`
	StartedAt *int64          `json:"started_at"`
	GameData  models.GameData `json:"game_data"`
}

func (sc *sessionChanges) toChanges() session.Changes {
	return session.Changes{
		Mode:      sc.Mode,
		Theme:     sc.Theme,
		TimerSec:  sc.TimerSec,
		Language:  sc.Language,
		Words:     sc.Words,
		StartedAt: sc.StartedAt,
		GameData:  sc.GameData,
	}
}

// serverMessage is one outbound WebSocket frame. Exactly one payload field
// is set per frame.
type serverMessage struct {
	Type         string                        `json:"type"`
	Participants map[string]models.Participant `json:"participants,omitempty"`
	Session      *models.Session               `json:"session,omitempty"`
	Raw          json.RawMessage               `json:"payload,omitempty"`
}
