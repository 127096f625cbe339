package models

// Role identifies which half of the pair a client is. It is derived from a
// client-supplied flag, never negotiated; two clients claiming the same role
// is an accepted limitation of the trusted two-user deployment.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// ParseRole maps a client-supplied flag to a role, defaulting conservatively.
func ParseRole(s string) Role {
	if s == string(RoleGuest) {
		return RoleGuest
	}
	return RoleHost
}

// Position is a normalized pointer location on a 0-100 scale.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant is the ephemeral liveness record each client publishes to the
// realtime store. It is single-writer: only the owning client writes it.
type Participant struct {
	ID        string         `json:"id"`
	Position  Position       `json:"position"`
	Role      Role           `json:"role"`
	Activity  string         `json:"activity"`
	Telemetry map[string]any `json:"telemetry,omitempty"`
	LastSeen  int64          `json:"last_seen"` // unix millis of last write
	Online    bool           `json:"online"`
}
