package gateway

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/duetkeys/duet/internal/archive"
	"github.com/duetkeys/duet/internal/chat"
	"github.com/duetkeys/duet/internal/corpus"
	"github.com/duetkeys/duet/internal/games"
)

// API is the HTTP surface next to the WebSocket: archive search, chat
// history, game content, and health.
type API struct {
	manager *Manager
	chatApp *chat.App
	archive *archive.App
	corpus  *corpus.Corpus
}

// NewAPI creates the HTTP API. chatApp and archiveApp may be nil when those
// features are disabled; their routes then return 404.
func NewAPI(manager *Manager, chatApp *chat.App, archiveApp *archive.App, c *corpus.Corpus) *API {
	return &API{
		manager: manager,
		chatApp: chatApp,
		archive: archiveApp,
		corpus:  c,
	}
}

// Routes builds the full handler, CORS wrapped.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/ws", a.handleWS)
	mux.HandleFunc("/api/stats/connections", a.handleConnectionStats)

	mux.HandleFunc("/api/words", a.handleWords)
	mux.HandleFunc("/api/games/quiz", a.handleQuiz)
	mux.HandleFunc("/api/games/finish", a.handleFinish)
	mux.HandleFunc("/api/games/memory", a.handleMemory)
	mux.HandleFunc("/api/games/boss", a.handleBoss)
	mux.HandleFunc("/api/sky", a.handleNightSky)
	mux.HandleFunc("/api/stats/battle", a.handleBattle)
	mux.HandleFunc("/api/stats/totals", a.handleTotals)

	if a.archive != nil {
		mux.HandleFunc("/api/archive/search", a.handleArchiveSearch)
	}
	if a.chatApp != nil {
		mux.HandleFunc("/api/chat/history", a.handleChatHistory)
		mux.HandleFunc("/api/chat/delete", a.handleDeleteMessage)
		mux.HandleFunc("/api/chat/call", a.handleCallState)
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Warn().Err(err).Msg("failed to write health check response")
	}
}

func (a *API) handleWS(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.UpgradeConnection(w, r); err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
	}
}

func (a *API) handleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.manager.ConnectionStats())
}

func (a *API) handleWords(w http.ResponseWriter, r *http.Request) {
	speaker := r.URL.Query().Get("speaker")
	count := queryInt(r, "count", 30)
	seed := queryInt64(r, "seed", 1)

	rng := rand.New(rand.NewSource(seed))
	words := a.corpus.GenerateWords(speaker, count, rng)
	writeJSON(w, http.StatusOK, map[string]string{"words": words})
}

func (a *API) handleQuiz(w http.ResponseWriter, r *http.Request) {
	q, err := games.Quiz(a.corpus, queryInt64(r, "seed", 1), queryInt(r, "index", 0))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *API) handleFinish(w http.ResponseWriter, r *http.Request) {
	q, err := games.FinishSentence(a.corpus, queryInt64(r, "seed", 1), queryInt(r, "index", 0))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *API) handleMemory(w http.ResponseWriter, r *http.Request) {
	day, err := games.MemoryLane(a.corpus, queryInt64(r, "seed", 1))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (a *API) handleBoss(w http.ResponseWriter, r *http.Request) {
	boss, err := games.Boss(a.corpus, queryInt64(r, "seed", 1), queryInt(r, "index", 0))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, boss)
}

// handleNightSky returns every late-night message; the sky screen renders
// them all as stars, no seeded pick involved.
func (a *API) handleNightSky(w http.ResponseWriter, r *http.Request) {
	msgs := a.corpus.NightSky
	if msgs == nil {
		msgs = []corpus.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *API) handleBattle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, games.StatsBattle(a.corpus, r.URL.Query().Get("term")))
}

func (a *API) handleTotals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, games.Totals(a.corpus))
}

func (a *API) handleArchiveSearch(w http.ResponseWriter, r *http.Request) {
	page := a.archive.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "page", 0))
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.chatApp.History(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *API) handleCallState(w http.ResponseWriter, r *http.Request) {
	sig, err := a.chatApp.CallState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sig == nil {
		writeJSON(w, http.StatusOK, map[string]any{"kind": "none"})
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

func (a *API) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := a.chatApp.DeleteMessage(r.Context(), queryInt64(r, "id", 0)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryInt64(r *http.Request, name string, def int64) int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
