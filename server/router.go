// server/router.go
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"geoduel/server/appcheck"
	"geoduel/server/duel"
	"geoduel/server/images"
	"geoduel/server/store"
)

// app bundles the router's collaborators.
type app struct {
	cfg     appConfig
	engine  *duel.Engine
	guesser *duel.Guesser
	source  images.Source
	db      *store.DB
	check   *appcheck.Verifier
}

func (a *app) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second)) // bounded; covers one inference call
	r.Use(jsonContentType)
	r.Use(corsFromOrigin(a.cfg.ClientOrigin))

	// Public
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})
	r.Get("/getImage", a.handleGetImage)
	r.Get("/leaderboard/top", a.handleLeaderboard)
	r.Get("/test-ai", a.handleTestAI)

	// Gated behind the attestation check
	r.Group(func(r chi.Router) {
		r.Use(a.check.Middleware)
		r.Post("/ai-duel/start", a.handleDuelStart)
		r.Post("/ai-duel/guess", a.handleDuelGuess)
		r.Post("/game/start", a.handleGameStart)
		r.Post("/game/submit", a.handleGameSubmit)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, "not_found", nil)
	})

	return r
}

// ------------------------------ images -------------------------------------

func (a *app) handleGetImage(w http.ResponseWriter, r *http.Request) {
	img, err := a.source.Next(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("image fetch failed")
		writeErr(w, http.StatusInternalServerError, "image_unavailable", nil)
		return
	}
	writeJSON(w, img)
}

// ------------------------------ AI duel ------------------------------------

func (a *app) handleDuelStart(w http.ResponseWriter, r *http.Request) {
	resp, err := a.engine.CreateMatch(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to start AI duel")
		writeErr(w, http.StatusInternalServerError, "ai_duel_start_failed", nil)
		return
	}
	writeJSON(w, resp)
}

type duelGuessReq struct {
	MatchID    string `json:"matchId"`
	RoundIndex *int   `json:"roundIndex"`
	Guess      string `json:"guess"`
}

func (a *app) handleDuelGuess(w http.ResponseWriter, r *http.Request) {
	var req duelGuessReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.MatchID == "" || req.RoundIndex == nil || *req.RoundIndex < 0 {
		writeErr(w, http.StatusBadRequest, "invalid_request", nil)
		return
	}

	resp, err := a.engine.SubmitGuess(r.Context(), req.MatchID, *req.RoundIndex, req.Guess)
	if err != nil {
		var completed *duel.CompletedError
		var outOfSync *duel.OutOfSyncError
		switch {
		case errors.Is(err, duel.ErrMatchNotFound):
			writeErr(w, http.StatusNotFound, "match_not_found", nil)
		case errors.As(err, &completed):
			writeErr(w, http.StatusConflict, "match_completed", map[string]any{
				"scores":  completed.Scores,
				"history": completed.History,
			})
		case errors.As(err, &outOfSync):
			writeErr(w, http.StatusConflict, "round_out_of_sync", map[string]any{
				"expectedRound": outOfSync.Expected,
			})
		case errors.Is(err, duel.ErrRoundNotFound):
			writeErr(w, http.StatusBadRequest, "round_not_found", nil)
		default:
			log.Error().Err(err).Str("matchId", req.MatchID).Msg("failed to process AI duel guess")
			writeErr(w, http.StatusInternalServerError, "ai_duel_guess_failed", nil)
		}
		return
	}
	writeJSON(w, resp)
}

// --------------------- single-player sessions / scores ----------------------

func (a *app) handleGameStart(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		writeErr(w, http.StatusInternalServerError, "server_error", nil)
		return
	}
	ctx := r.Context()

	if _, err := a.db.DeleteExpiredSessions(ctx, time.Now()); err != nil {
		log.Warn().Err(err).Msg("session sweep failed")
	}

	seed := randomSeed()
	expiresAt := time.Now().Add(time.Hour)
	id, err := a.db.CreateSession(ctx, seed, expiresAt)
	if err != nil {
		log.Error().Err(err).Msg("error starting game")
		writeErr(w, http.StatusInternalServerError, "server_error", nil)
		return
	}
	writeJSON(w, map[string]any{
		"gameSessionId": id,
		"seed":          seed,
		"expiresAt":     expiresAt.UTC().Format(time.RFC3339),
	})
}

type submitScoreReq struct {
	GameSessionID string         `json:"gameSessionId"`
	Score         *int           `json:"score"`
	Metadata      map[string]any `json:"metadata"`
}

const maxPossibleScore = 100000

func (a *app) handleGameSubmit(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		writeErr(w, http.StatusInternalServerError, "server_error", nil)
		return
	}
	ctx := r.Context()

	var req submitScoreReq
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.GameSessionID == "" || req.Score == nil {
		writeErr(w, http.StatusBadRequest, "bad_request", nil)
		return
	}
	if _, err := uuid.Parse(req.GameSessionID); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_game_session_id", nil)
		return
	}

	if err := a.db.LookupSession(ctx, req.GameSessionID); err != nil {
		a.writeSessionErr(w, err)
		return
	}
	if *req.Score < 0 {
		writeErr(w, http.StatusBadRequest, "invalid_score", nil)
		return
	}
	if *req.Score > maxPossibleScore {
		writeErr(w, http.StatusBadRequest, "impossible_score", nil)
		return
	}

	// Re-validates under lock; a racing submission loses here.
	if err := a.db.ConsumeSession(ctx, req.GameSessionID); err != nil {
		a.writeSessionErr(w, err)
		return
	}
	if err := a.db.InsertScore(ctx, req.GameSessionID, *req.Score, req.Metadata); err != nil {
		log.Error().Err(err).Msg("error submitting score")
		writeErr(w, http.StatusInternalServerError, "server_error", nil)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (a *app) writeSessionErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSessionMissing):
		writeErr(w, http.StatusBadRequest, "session_missing", nil)
	case errors.Is(err, store.ErrSessionUsed):
		writeErr(w, http.StatusBadRequest, "session_already_used", nil)
	case errors.Is(err, store.ErrSessionExpired):
		writeErr(w, http.StatusBadRequest, "session_expired", nil)
	default:
		log.Error().Err(err).Msg("session check failed")
		writeErr(w, http.StatusInternalServerError, "server_error", nil)
	}
}

func (a *app) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		writeErr(w, http.StatusInternalServerError, "server_error", nil)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	rows, err := a.db.TopScores(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("error fetching leaderboard")
		writeErr(w, http.StatusInternalServerError, "server_error", nil)
		return
	}
	writeJSON(w, rows)
}

// ------------------------------ diagnostics --------------------------------

// handleTestAI runs the guesser against a fresh image. Guarded by a shared
// key so it never becomes a free inference proxy.
func (a *app) handleTestAI(w http.ResponseWriter, r *http.Request) {
	if a.cfg.AITestingKey == "" || r.URL.Query().Get("key") != a.cfg.AITestingKey {
		writeErr(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}
	img, err := a.source.Next(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("test-ai image fetch failed")
		writeErr(w, http.StatusInternalServerError, "image_unavailable", nil)
		return
	}
	round := &duel.Round{
		ImageURL:    img.ImageURL,
		Coordinates: duel.Coordinates{Lat: img.Coordinates.Lat, Lon: img.Coordinates.Lon},
		CountryName: img.CountryName,
		CountryCode: img.CountryCode,
	}
	guess := a.guesser.Guess(r.Context(), round)
	writeJSON(w, struct {
		*duel.GuessResult
		ImageURL string `json:"imageUrl"`
	}{guess, img.ImageURL})
}

// ------------------------------ helpers ------------------------------------

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code string, extra map[string]any) {
	body := map[string]any{"error": code}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// randomSeed mirrors the session seed shape the web client expects: a
// short opaque alphanumeric string.
func randomSeed() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromOrigin enables credentialed CORS for the configured web origin.
func corsFromOrigin(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else if o := r.Header.Get("Origin"); o != "" {
				w.Header().Set("Access-Control-Allow-Origin", o)
			}
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+appcheck.TokenHeader)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
