// Package games holds the deterministic content generators behind the
// mini-games. Each generator is a pure function of the corpus, a shared base
// seed, and local offsets, so two clients holding the same seed derive
// identical content without ever exchanging it.
package games

import (
	"errors"

	"github.com/duetkeys/duet/internal/corpus"
	"github.com/duetkeys/duet/internal/seedrand"
)

// ErrNoContent is returned when the corpus has nothing usable for a game.
var ErrNoContent = errors.New("games: corpus has no usable content")

// QuizQuestion asks which speaker wrote a message.
type QuizQuestion struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker"` // the answer: "p1" or "p2"
}

// Quiz derives the question at questionIndex from the shared quiz seed:
// speaker at offset 0, message at offset +1.
func Quiz(c *corpus.Corpus, seed int64, questionIndex int) (QuizQuestion, error) {
	localSeed := seed + int64(questionIndex)

	speakers := []string{"p1", "p2"}
	speaker := speakers[seedrand.IntN(localSeed, len(speakers))]
	pool := c.Words[speaker]
	if len(pool) == 0 {
		return QuizQuestion{}, ErrNoContent
	}

	msg := pool[seedrand.IntN(localSeed+1, len(pool))]
	return QuizQuestion{Text: msg, Speaker: speaker}, nil
}
