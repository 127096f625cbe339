package games

import (
	"strings"

	"github.com/duetkeys/duet/internal/corpus"
)

// WordBattle is the head-to-head count of messages mentioning a term.
type WordBattle struct {
	Term string `json:"term"`
	P1   int    `json:"p1"`
	P2   int    `json:"p2"`
}

// StatsBattle counts, per speaker, the messages containing term. Substring
// matching is intentional ("love" matches "loveyou"); each message counts
// once no matter how often it repeats the term.
func StatsBattle(c *corpus.Corpus, term string) WordBattle {
	term = strings.ToLower(strings.TrimSpace(term))
	battle := WordBattle{Term: term}
	if term == "" {
		return battle
	}
	for _, msg := range c.FullHistory {
		if !strings.Contains(strings.ToLower(msg.Text), term) {
			continue
		}
		if msg.Speaker == "p1" {
			battle.P1++
		} else {
			battle.P2++
		}
	}
	return battle
}

// SpeakerStats summarizes one side of the history for the stats screen.
type SpeakerStats struct {
	Messages   int    `json:"messages"`
	Words      int    `json:"words"`
	AvgWords   int    `json:"avg_words"`
	LongestMsg string `json:"longest_msg"`
}

// Totals computes per-speaker summary statistics over the full history.
func Totals(c *corpus.Corpus) map[string]SpeakerStats {
	out := map[string]SpeakerStats{}
	for _, msg := range c.FullHistory {
		s := out[msg.Speaker]
		s.Messages++
		s.Words += len(strings.Fields(msg.Text))
		if len(msg.Text) > len(s.LongestMsg) {
			s.LongestMsg = msg.Text
		}
		out[msg.Speaker] = s
	}
	for speaker, s := range out {
		if s.Messages > 0 {
			s.AvgWords = s.Words / s.Messages
		}
		out[speaker] = s
	}
	return out
}
