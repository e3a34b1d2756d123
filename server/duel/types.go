// Package duel implements the AI duel match engine: multi-round matches
// between a human player and a model-backed opponent, resolved one round
// at a time against fuzzy country matching.
package duel

import (
	"sync"
	"time"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PlayerGuess records the human side of a resolved round.
type PlayerGuess struct {
	Guess     string
	IsCorrect bool
}

// FallbackReason labels why the fallback synthesizer produced a guess
// instead of the inference endpoint.
type FallbackReason string

const (
	ReasonMissingAPIKey  FallbackReason = "missing_api_key"
	ReasonRequestFailure FallbackReason = "request_failure"
	ReasonBadResponse    FallbackReason = "bad_response"
	ReasonEmptyResponse  FallbackReason = "empty_response"
	ReasonParseError     FallbackReason = "parse_error"
	ReasonInvalidPayload FallbackReason = "invalid_payload"
)

// Candidate is one AI-proposed country with a resolved confidence.
type Candidate struct {
	CountryName string  `json:"countryName"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	IsCorrect   bool    `json:"isCorrect"`
}

// GuessResult is the AI opponent's answer for one round: the selected
// candidate's fields plus the full candidate list for transparency.
type GuessResult struct {
	CountryName    string         `json:"countryName"`
	Confidence     float64        `json:"confidence"`
	Explanation    string         `json:"explanation"`
	IsCorrect      bool           `json:"isCorrect"`
	Candidates     []Candidate    `json:"candidates"`
	FallbackReason FallbackReason `json:"fallbackReason,omitempty"`
}

// Round holds one image-guessing exchange. Ground truth is fixed at
// creation; Player and AIGuess are set exactly once, when the round
// resolves.
type Round struct {
	Index       int
	ImageURL    string
	Coordinates Coordinates
	CountryName string
	CountryCode string
	Resolved    bool
	Player      *PlayerGuess
	AIGuess     *GuessResult
}

// MatchStatus is the match lifecycle state.
type MatchStatus string

const (
	StatusInProgress MatchStatus = "in-progress"
	StatusCompleted  MatchStatus = "completed"
)

// Match is one full duel session. All mutation goes through the engine
// while mu is held, so a round resolves atomically from the caller's
// perspective.
type Match struct {
	mu sync.Mutex

	ID           string
	Rounds       []*Round
	TotalRounds  int
	CurrentRound int
	PlayerScore  int
	AIScore      int
	Status       MatchStatus
	CreatedAt    time.Time
	History      []RoundSummary
}

// CountryRef names the ground-truth country of a round.
type CountryRef struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// PlayerResult is the human result as serialized to clients.
type PlayerResult struct {
	Guess           string `json:"guess"`
	NormalizedGuess string `json:"normalizedGuess"`
	IsCorrect       bool   `json:"isCorrect"`
}

// RoundSummary is the per-round history entry appended at resolution.
type RoundSummary struct {
	RoundIndex     int           `json:"roundIndex"`
	CorrectCountry CountryRef    `json:"correctCountry"`
	Coordinates    Coordinates   `json:"coordinates"`
	Player         *PlayerResult `json:"player"`
	AI             *GuessResult  `json:"ai"`
}

// RoundView is the client-facing shape of an unresolved round. Ground
// truth is never sent ahead of resolution.
type RoundView struct {
	RoundIndex int    `json:"roundIndex"`
	ImageURL   string `json:"imageUrl"`
}

// Scores is the running player/AI tally.
type Scores struct {
	Player int `json:"player"`
	AI     int `json:"ai"`
}

// StartResponse is the payload for a freshly created match.
type StartResponse struct {
	MatchID     string      `json:"matchId"`
	TotalRounds int         `json:"totalRounds"`
	Round       *RoundView  `json:"round"`
	Scores      Scores      `json:"scores"`
	Status      MatchStatus `json:"status"`
}

// GuessResponse is the full resolution payload for a submitted guess.
type GuessResponse struct {
	MatchID        string         `json:"matchId"`
	RoundIndex     int            `json:"roundIndex"`
	TotalRounds    int            `json:"totalRounds"`
	PlayerResult   *PlayerResult  `json:"playerResult"`
	AIResult       *GuessResult   `json:"aiResult"`
	CorrectCountry CountryRef     `json:"correctCountry"`
	Coordinates    Coordinates    `json:"coordinates"`
	Scores         Scores         `json:"scores"`
	Status         MatchStatus    `json:"status"`
	History        []RoundSummary `json:"history"`
	NextRound      *RoundView     `json:"nextRound,omitempty"`
}
