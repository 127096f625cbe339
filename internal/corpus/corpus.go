// Package corpus loads the JSON fixtures the offline chat converter produces
// and exposes them as the opaque text pool the typing race and the seeded
// mini-games draw from.
package corpus

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Message is one chat line as the converter emitted it.
type Message struct {
	Speaker string `json:"speaker"` // "p1" or "p2"
	Text    string `json:"text"`
	Time    string `json:"time,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Corpus is the full fixture set. Missing files degrade to small built-in
// fallbacks rather than failing the whole application.
type Corpus struct {
	Speakers    map[string]string    // speaker key -> display name
	Words       map[string][]string  // speaker key -> cleaned message pool
	FullHistory []Message            // archive search material
	ByDate      map[string][]Message // memory lane material
	Dates       []string             // sorted ByDate keys; sorted so both clients index identically
	NightSky    []Message            // late-night messages
	Boss        []Message            // long messages, boss encounters
}

var fallbackWords = []string{"hello", "world", "typing", "test", "sample", "words"}

// Load reads the fixture directory. Individual missing or malformed files
// are logged and defaulted; only an unreadable directory is an error.
func Load(dir string) (*Corpus, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("corpus dir: %w", err)
	}

	c := &Corpus{
		Speakers: map[string]string{"p1": "p1", "p2": "p2"},
		Words:    map[string][]string{},
		ByDate:   map[string][]Message{},
	}

	loadJSON(dir, "speakerNames.json", &c.Speakers)
	loadJSON(dir, "rawChatData.json", &c.Words)
	loadJSON(dir, "fullHistory.json", &c.FullHistory)
	loadJSON(dir, "historyByDate.json", &c.ByDate)
	loadJSON(dir, "nightSkyData.json", &c.NightSky)
	loadJSON(dir, "bossModeData.json", &c.Boss)

	if len(c.Words["p1"]) == 0 {
		c.Words["p1"] = fallbackWords
	}
	if len(c.Words["p2"]) == 0 {
		c.Words["p2"] = fallbackWords
	}

	c.Dates = make([]string, 0, len(c.ByDate))
	for d := range c.ByDate {
		c.Dates = append(c.Dates, d)
	}
	sort.Strings(c.Dates)

	log.Info().
		Int("p1_pool", len(c.Words["p1"])).
		Int("p2_pool", len(c.Words["p2"])).
		Int("history", len(c.FullHistory)).
		Int("dates", len(c.Dates)).
		Int("night_sky", len(c.NightSky)).
		Int("boss", len(c.Boss)).
		Msg("corpus loaded")
	return c, nil
}

func loadJSON(dir, name string, out any) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		log.Warn().Err(err).Str("file", name).Msg("fixture missing, using defaults")
		return
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Warn().Err(err).Str("file", name).Msg("fixture malformed, using defaults")
	}
}

// Pool returns the message pool for a speaker key, falling back to p1.
func (c *Corpus) Pool(speaker string) []string {
	if msgs, ok := c.Words[speaker]; ok && len(msgs) > 0 {
		return msgs
	}
	return c.Words["p1"]
}

// GenerateWords samples count entries from a speaker's pool into the race
// text. The result is synced through the shared session so both clients race
// on identical material; the sampling itself doesn't need to be seeded.
func (c *Corpus) GenerateWords(speaker string, count int, rng *rand.Rand) string {
	pool := c.Pool(speaker)
	if len(pool) == 0 {
		return strings.Join(fallbackWords, " ")
	}
	parts := make([]string, count)
	for i := range parts {
		parts[i] = pool[rng.Intn(len(pool))]
	}
	return strings.Join(parts, " ")
}
