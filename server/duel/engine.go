package duel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"geoduel/server/geo"
	"geoduel/server/images"
)

// Addressing failures surfaced to the caller as structured 4xx responses.
var (
	ErrMatchNotFound = errors.New("match not found")
	ErrRoundNotFound = errors.New("round not found")
)

// OutOfSyncError rejects a submission that does not target the current
// round. Expected carries the round the client must catch up to.
type OutOfSyncError struct {
	Expected *RoundView
}

func (e *OutOfSyncError) Error() string { return "round out of sync" }

// CompletedError rejects submissions against a finished match, carrying
// the final state so the client can self-correct.
type CompletedError struct {
	Scores  Scores
	History []RoundSummary
}

func (e *CompletedError) Error() string { return "match completed" }

// Config holds the engine's tunable knobs.
type Config struct {
	Rounds int
	Expiry time.Duration
}

// Engine owns match lifecycles. Every external entry point sweeps expired
// matches first; per-match mutation is serialized by the match's lock.
type Engine struct {
	cfg     Config
	store   *MatchStore
	source  images.Source
	guesser *Guesser
}

func NewEngine(cfg Config, store *MatchStore, source images.Source, guesser *Guesser) *Engine {
	return &Engine{cfg: cfg, store: store, source: source, guesser: guesser}
}

// Store exposes the engine's match store, mainly for tests.
func (e *Engine) Store() *MatchStore { return e.store }

// CreateMatch materializes a full match up front: every round's ground
// truth is fetched before the match id is handed out, so a started match
// can always run to completion without the image source.
func (e *Engine) CreateMatch(ctx context.Context) (*StartResponse, error) {
	e.prune()

	rounds := make([]*Round, 0, e.cfg.Rounds)
	for i := 0; i < e.cfg.Rounds; i++ {
		img, err := e.source.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch round %d: %w", i, err)
		}
		rounds = append(rounds, &Round{
			Index:       i,
			ImageURL:    img.ImageURL,
			Coordinates: Coordinates{Lat: img.Coordinates.Lat, Lon: img.Coordinates.Lon},
			CountryName: img.CountryName,
			CountryCode: img.CountryCode,
		})
	}

	m := &Match{
		ID:          uuid.NewString(),
		Rounds:      rounds,
		TotalRounds: len(rounds),
		Status:      StatusInProgress,
		CreatedAt:   time.Now(),
		History:     []RoundSummary{},
	}
	e.store.Put(m)
	log.Info().Str("matchId", m.ID).Int("rounds", m.TotalRounds).Msg("match created")

	return &StartResponse{
		MatchID:     m.ID,
		TotalRounds: m.TotalRounds,
		Round:       roundView(m.Rounds[0]),
		Scores:      Scores{Player: m.PlayerScore, AI: m.AIScore},
		Status:      m.Status,
	}, nil
}

// SubmitGuess resolves one round: scores the human guess, obtains the AI
// guess, appends history, and advances the match. A resolved round is
// never re-resolved; retries return the same observable result.
func (e *Engine) SubmitGuess(ctx context.Context, matchID string, roundIndex int, guess string) (*GuessResponse, error) {
	e.prune()

	m := e.store.Get(matchID)
	if m == nil {
		return nil, ErrMatchNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status == StatusCompleted {
		return nil, &CompletedError{
			Scores:  Scores{Player: m.PlayerScore, AI: m.AIScore},
			History: copyHistory(m.History),
		}
	}
	if roundIndex != m.CurrentRound {
		return nil, &OutOfSyncError{Expected: roundView(m.Rounds[m.CurrentRound])}
	}
	// The ordering guard above pins roundIndex to CurrentRound, which an
	// in-progress match keeps inside bounds; this only trips on a
	// corrupted match.
	if roundIndex < 0 || roundIndex >= len(m.Rounds) {
		return nil, ErrRoundNotFound
	}
	round := m.Rounds[roundIndex]

	if !round.Resolved {
		playerIsCorrect := geo.Matches(guess, round.CountryName, round.CountryCode)
		round.Player = &PlayerGuess{Guess: guess, IsCorrect: playerIsCorrect}
		if playerIsCorrect {
			m.PlayerScore++
		}

		if round.AIGuess == nil {
			round.AIGuess = e.guesser.Guess(ctx, round)
			if round.AIGuess.IsCorrect {
				m.AIScore++
			}
		}

		m.History = append(m.History, summarize(round))
		round.Resolved = true

		if round.Index+1 >= m.TotalRounds {
			m.Status = StatusCompleted
			log.Info().Str("matchId", m.ID).
				Int("playerScore", m.PlayerScore).Int("aiScore", m.AIScore).
				Msg("match completed")
		} else {
			m.CurrentRound = round.Index + 1
		}
	}

	resp := &GuessResponse{
		MatchID:        m.ID,
		RoundIndex:     round.Index,
		TotalRounds:    m.TotalRounds,
		PlayerResult:   playerResult(round),
		AIResult:       round.AIGuess,
		CorrectCountry: CountryRef{Name: round.CountryName, Code: round.CountryCode},
		Coordinates:    round.Coordinates,
		Scores:         Scores{Player: m.PlayerScore, AI: m.AIScore},
		Status:         m.Status,
		History:        copyHistory(m.History),
	}
	if m.Status != StatusCompleted {
		resp.NextRound = roundView(m.Rounds[m.CurrentRound])
	}
	return resp, nil
}

func (e *Engine) prune() {
	if removed := e.store.PruneExpired(time.Now(), e.cfg.Expiry); removed > 0 {
		log.Debug().Int("removed", removed).Msg("pruned expired matches")
	}
}

func roundView(r *Round) *RoundView {
	if r == nil {
		return nil
	}
	return &RoundView{RoundIndex: r.Index, ImageURL: r.ImageURL}
}

func playerResult(r *Round) *PlayerResult {
	if r.Player == nil {
		return nil
	}
	return &PlayerResult{
		Guess:           r.Player.Guess,
		NormalizedGuess: geo.Normalize(r.Player.Guess),
		IsCorrect:       r.Player.IsCorrect,
	}
}

func summarize(r *Round) RoundSummary {
	return RoundSummary{
		RoundIndex:     r.Index,
		CorrectCountry: CountryRef{Name: r.CountryName, Code: r.CountryCode},
		Coordinates:    r.Coordinates,
		Player:         playerResult(r),
		AI:             r.AIGuess,
	}
}

func copyHistory(h []RoundSummary) []RoundSummary {
	out := make([]RoundSummary, len(h))
	copy(out, h)
	return out
}
