package models

// Mode identifies which screen or mini-game a client is on. It is the one
// sticky field of the shared session: each client owns its local mode and
// only adopts a partner's mode when the change is fresh.
type Mode string

const (
	ModeTyping  Mode = "typing"
	ModeQuiz    Mode = "quiz"
	ModeMemory  Mode = "memory"
	ModeFinish  Mode = "finish"
	ModeStats   Mode = "stats"
	ModeSky     Mode = "sky"
	ModeBoss    Mode = "boss"
	ModeArchive Mode = "archive"
	ModeLetters Mode = "letters"
)

// Theme is a cosmetic setting, fully synced between clients.
type Theme string

const (
	ThemeLove     Theme = "love"
	ThemeMidnight Theme = "midnight"
	ThemeRetro    Theme = "retro"
)

// GameData holds per-minigame random seeds plus mutable co-op state. It is
// always merged key-by-key on update, never replaced as a whole, so one
// client refreshing the boss seed cannot clobber the other's in-flight quiz.
type GameData map[string]int64

// Well-known GameData keys.
const (
	GameKeyQuizSeed   = "quizSeed"
	GameKeyMemorySeed = "memorySeed"
	GameKeyFinishSeed = "finishSeed"
	GameKeyBossSeed   = "bossSeed"
	GameKeyBossHealth = "bossHealth"
)

// Clone returns a shallow copy so callers can hand out snapshots safely.
func (g GameData) Clone() GameData {
	out := make(GameData, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}

// Session is the singleton shared record both clients read and update.
// Mode and ModeChangedAt travel on the wire but mode adoption is gated by
// the freshness window; everything else is last-writer-wins.
type Session struct {
	Mode          Mode     `json:"mode"`
	Theme         Theme    `json:"theme"`
	TimerSec      int      `json:"timer_sec"`
	Language      string   `json:"language"` // speaker key, "p1" or "p2"
	Words         string   `json:"words"`    // shared race text
	StartedAt     int64    `json:"started_at,omitempty"` // unix millis
	GameData      GameData `json:"game_data"`
	ModeChangedAt int64    `json:"mode_changed_at,omitempty"` // unix millis
}
