package games

import (
	"github.com/duetkeys/duet/internal/corpus"
	"github.com/duetkeys/duet/internal/seedrand"
)

// Boss co-op tuning. Health lives in the shared session's game data so both
// players damage the same bar.
const (
	BossMaxHealth = 100
	bossMinDamage = 10
	bossDamageVar = 20
)

// BossEncounter is one long message turned into a boss.
type BossEncounter struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Date    string `json:"date"`
}

// Boss picks the encounter for bossIndex from the shared boss seed. The
// index advances every time a boss is defeated, giving a fresh seeded pick
// without a new seed exchange.
func Boss(c *corpus.Corpus, seed int64, bossIndex int) (BossEncounter, error) {
	if len(c.Boss) == 0 {
		return BossEncounter{}, ErrNoContent
	}
	m := c.Boss[seedrand.IntN(seed+int64(bossIndex), len(c.Boss))]
	return BossEncounter{Speaker: m.Speaker, Text: m.Text, Date: m.Date}, nil
}

// BossDamage converts a random draw in [0,1) to an attack of 10-29 damage.
// The draw is the attacker's own; damage is applied through the shared
// session so it is not required to be cross-client deterministic.
func BossDamage(roll float64) int64 {
	return int64(roll*bossDamageVar) + bossMinDamage
}

// ApplyDamage clamps the co-op health bar at zero.
func ApplyDamage(health, damage int64) int64 {
	if health-damage < 0 {
		return 0
	}
	return health - damage
}
