// Package convertchat turns a raw chat export into the JSON fixture set the
// application loads at startup. It detects the two most talkative
// participants, scrubs system noise, and buckets messages for each game.
package convertchat

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/duetkeys/duet/internal/corpus"
)

// Options control the conversion.
type Options struct {
	Input     string
	OutputDir string
	MaxWords  int // cap per typing pool
	MaxStars  int // cap for late-night messages
	MaxBosses int // cap for boss messages
	Seed      int64
}

func (o *Options) applyDefaults() {
	if o.MaxWords <= 0 {
		o.MaxWords = 2500
	}
	if o.MaxStars <= 0 {
		o.MaxStars = 300
	}
	if o.MaxBosses <= 0 {
		o.MaxBosses = 100
	}
}

// Stats summarizes one conversion for the CLI report.
type Stats struct {
	PersonA  string
	PersonB  string
	Pool1    int
	Pool2    int
	History  int
	Dates    int
	NightSky int
	Bosses   int
}

var systemMessages = []string{
	"omitted", "this message was deleted", "missed voice call",
	"missed video call", "messages and calls are end-to-end encrypted",
	"waiting for this message", "security code changed", "null",
}

// Export line formats: "[date, time] name: message" and
// "date, time - name: message".
var (
	bracketLine = regexp.MustCompile(`^\[(.*?)\] (.*?): (.*)$`)
	dashLine    = regexp.MustCompile(`^(.*?) - (.*?): (.*)$`)
	timeOfDay   = regexp.MustCompile(`(\d+)[:.](\d+)`)
	allowedRune = regexp.MustCompile(`[^a-z0-9 .,?!'@#-]`)
)

type parsedLine struct {
	date    string
	timeRaw string
	name    string
	content string
}

func parseLine(line string) (parsedLine, bool) {
	match := bracketLine.FindStringSubmatch(line)
	if match == nil {
		match = dashLine.FindStringSubmatch(line)
	}
	if match == nil {
		return parsedLine{}, false
	}

	timestamp := match[1]
	date := strings.TrimSpace(strings.SplitN(timestamp, ",", 2)[0])
	timeRaw := ""
	if parts := strings.SplitN(timestamp, ",", 2); len(parts) > 1 {
		timeRaw = strings.TrimSpace(parts[1])
	} else if parts := strings.SplitN(timestamp, " ", 2); len(parts) > 1 {
		timeRaw = strings.TrimSpace(parts[1])
	}

	return parsedLine{
		date:    date,
		timeRaw: timeRaw,
		name:    strings.TrimSpace(match[2]),
		content: match[3],
	}, true
}

// cleanMessage lowercases, drops system noise and links, and strips
// everything outside the typing charset. It returns false for messages too
// short to type.
func cleanMessage(msg string) (string, bool) {
	clean := strings.ToLower(msg)
	for _, sys := range systemMessages {
		if strings.Contains(clean, sys) {
			return "", false
		}
	}
	if strings.Contains(clean, "http") {
		return "", false
	}
	clean = strings.TrimSpace(allowedRune.ReplaceAllString(clean, ""))
	if len(clean) < 2 && clean != "i" && clean != "u" && clean != "y" {
		return "", false
	}
	return clean, true
}

// isLateNight reports whether a timestamp falls between 23:00 and 05:00.
// Both "17:21" and "17.21" separators appear in the wild, as does AM/PM.
func isLateNight(timeStr string) bool {
	match := timeOfDay.FindStringSubmatch(timeStr)
	if match == nil {
		return false
	}
	hour, err := strconv.Atoi(match[1])
	if err != nil {
		return false
	}
	lower := strings.ToLower(timeStr)
	if strings.Contains(lower, "pm") && hour < 12 {
		hour += 12
	}
	if strings.Contains(lower, "am") && hour == 12 {
		hour = 0
	}
	return hour >= 23 || hour < 5
}

func containsSystemMessage(content string) bool {
	lower := strings.ToLower(content)
	for _, sys := range systemMessages {
		if strings.Contains(lower, sys) {
			return true
		}
	}
	return false
}

// Convert reads the export at opts.Input and writes the six fixture files
// into opts.OutputDir.
func Convert(opts Options) (*Stats, error) {
	opts.applyDefaults()

	f, err := os.Open(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat export: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chat export: %w", err)
	}

	personA, personB, err := detectSpeakers(lines)
	if err != nil {
		return nil, err
	}
	log.Info().Str("p1", personA).Str("p2", personB).Msg("detected speakers")

	pools := map[string][]string{"p1": {}, "p2": {}}
	byDate := map[string][]corpus.Message{}
	var fullHistory, nightSky, bosses []corpus.Message

	for _, line := range lines {
		parsed, ok := parseLine(line)
		if !ok {
			continue
		}
		cleaned, ok := cleanMessage(parsed.content)
		if !ok {
			continue
		}

		var key string
		switch parsed.name {
		case personA:
			key = "p1"
		case personB:
			key = "p2"
		default:
			continue
		}

		pools[key] = append(pools[key], cleaned)
		fullHistory = append(fullHistory, corpus.Message{Speaker: key, Text: cleaned})
		byDate[parsed.date] = append(byDate[parsed.date], corpus.Message{
			Speaker: key, Text: parsed.content, Time: parsed.timeRaw,
		})
		if isLateNight(parsed.timeRaw) {
			nightSky = append(nightSky, corpus.Message{
				Speaker: key, Text: parsed.content, Time: parsed.timeRaw, Date: parsed.date,
			})
		}
		if (len(parsed.content) > 200 || len(strings.Fields(parsed.content)) > 40) &&
			!containsSystemMessage(parsed.content) {
			bosses = append(bosses, corpus.Message{Speaker: key, Text: parsed.content, Date: parsed.date})
		}
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	shuffleStrings(pools["p1"], rng)
	shuffleStrings(pools["p2"], rng)
	shuffleMessages(nightSky, rng)
	shuffleMessages(bosses, rng)

	pools["p1"] = capStrings(pools["p1"], opts.MaxWords)
	pools["p2"] = capStrings(pools["p2"], opts.MaxWords)
	nightSky = capMessages(nightSky, opts.MaxStars)
	bosses = capMessages(bosses, opts.MaxBosses)

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	outputs := map[string]any{
		"speakerNames.json":  map[string]string{"p1": personA, "p2": personB},
		"rawChatData.json":   pools,
		"fullHistory.json":   fullHistory,
		"historyByDate.json": byDate,
		"nightSkyData.json":  nightSky,
		"bossModeData.json":  bosses,
	}
	for name, v := range outputs {
		if err := writeJSON(filepath.Join(opts.OutputDir, name), v); err != nil {
			return nil, err
		}
	}

	return &Stats{
		PersonA:  personA,
		PersonB:  personB,
		Pool1:    len(pools["p1"]),
		Pool2:    len(pools["p2"]),
		History:  len(fullHistory),
		Dates:    len(byDate),
		NightSky: len(nightSky),
		Bosses:   len(bosses),
	}, nil
}

// detectSpeakers picks the two most frequent senders. Ties break
// alphabetically so reruns are stable.
func detectSpeakers(lines []string) (string, string, error) {
	counts := map[string]int{}
	for _, line := range lines {
		if parsed, ok := parseLine(line); ok {
			counts[parsed.name]++
		}
	}
	if len(counts) < 2 {
		return "", "", fmt.Errorf("need two participants, found %d", len(counts))
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	return names[0], names[1], nil
}

func shuffleStrings(items []string, rng *rand.Rand) {
	rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

func shuffleMessages(items []corpus.Message, rng *rand.Rand) {
	rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

func capStrings(items []string, limit int) []string {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func capMessages(items []corpus.Message, limit int) []corpus.Message {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
