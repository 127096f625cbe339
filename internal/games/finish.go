package games

import (
	"strings"

	"github.com/duetkeys/duet/internal/corpus"
	"github.com/duetkeys/duet/internal/seedrand"
)

// Offsets carving up the per-question seed space so the three draws of a
// finish-sentence question never collide.
const (
	finishDecoyOffset   = 100
	finishShuffleOffset = 200
	finishMaxAttempts   = 50
	finishMaxDecoyTries = 20
)

// FinishQuestion shows the start of a long message and asks which ending is
// real. Answer is always one of Options.
type FinishQuestion struct {
	Speaker string   `json:"speaker"`
	Start   string   `json:"start"`
	Answer  string   `json:"answer"`
	Options []string `json:"options"`
}

// FinishSentence derives the question at questionIndex from the shared
// finish seed: seeded speaker pick, then a bounded seeded search for a
// message of at least five words, decoy endings in their own offset range,
// and a seeded shuffle of the options.
func FinishSentence(c *corpus.Corpus, seed int64, questionIndex int) (FinishQuestion, error) {
	localSeed := seed + int64(questionIndex)

	speaker := "p2"
	if seedrand.Draw(localSeed) > 0.5 {
		speaker = "p1"
	}
	pool := c.Words[speaker]
	if len(pool) == 0 {
		return FinishQuestion{}, ErrNoContent
	}

	var msg string
	for attempt := int64(0); attempt < finishMaxAttempts; attempt++ {
		candidate := pool[seedrand.IntN(localSeed+attempt, len(pool))]
		if len(strings.Fields(candidate)) >= 5 {
			msg = candidate
			break
		}
	}
	if msg == "" {
		return FinishQuestion{}, ErrNoContent
	}

	words := strings.Fields(msg)
	cut := int(float64(len(words)) * 0.6)
	start := strings.Join(words[:cut], " ")
	answer := strings.Join(words[cut:], " ")

	var decoys []string
	for attempt := int64(0); len(decoys) < 3 && attempt < finishMaxDecoyTries; attempt++ {
		candidate := pool[seedrand.IntN(localSeed+finishDecoyOffset+attempt, len(pool))]
		cw := strings.Fields(candidate)
		ending := strings.Join(cw[len(cw)/2:], " ")
		if ending != answer && len(ending) > 3 && !contains(decoys, ending) {
			decoys = append(decoys, ending)
		}
	}

	options := append(decoys, answer)
	seedrand.Shuffle(options, localSeed+finishShuffleOffset)

	return FinishQuestion{Speaker: speaker, Start: start, Answer: answer, Options: options}, nil
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
