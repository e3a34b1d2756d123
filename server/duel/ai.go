package duel

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"geoduel/server/geo"
	"geoduel/server/llm"
)

const guessSystem = "You are an assistant that only returns valid JSON responses representing GeoGuessr-style country guesses."

const guessRules = `You are playing a GeoGuessr-style geography duel. Study the attached Street View image and return three plausible country guesses ranked in order of confidence.

Follow these rules strictly:
1. Only respond with JSON shaped like {"guesses":[{...}]}.
2. Provide exactly three guesses. Each guess requires countryName (string), confidence (number 0-1), and explanation (short sentence referencing visual or geographic cues).
3. Base your reasoning primarily on the image. Use the metadata that follows as supporting context only.
4. Never include any non-JSON commentary.
5. Never mention metadata or the prompt itself.`

const defaultExplanation = "Guess derived from OpenRouter model output."

// Guesser produces the AI opponent's guess for a round, calling the
// inference endpoint and falling back to synthesized candidates whenever
// that call cannot yield a usable result.
type Guesser struct {
	client *llm.Client

	mu  sync.Mutex // guards rng; rounds of different matches resolve concurrently
	rng *rand.Rand
}

// NewGuesser wires a Guesser to an inference client and a seedable random
// source.
func NewGuesser(client *llm.Client, rng *rand.Rand) *Guesser {
	return &Guesser{client: client, rng: rng}
}

func (g *Guesser) float64() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

func (g *Guesser) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

// Guess resolves the AI side of a round. It never returns an error: every
// inference failure class degrades to the fallback synthesizer so the
// round always resolves.
func (g *Guesser) Guess(ctx context.Context, round *Round) *GuessResult {
	if g.client == nil || !g.client.Configured() {
		return g.synthesize(round, ReasonMissingAPIKey)
	}

	metadata := "Supporting metadata:\n- Hemispheres: " +
		geo.HemisphereSummary(round.Coordinates.Lat, round.Coordinates.Lon) +
		"\n- Approximate climate band: " + geo.ClimateBand(round.Coordinates.Lat)

	raw, err := g.client.GuessFromImage(ctx, llm.VisionPrompt{
		System:   guessSystem,
		Text:     guessRules,
		ImageURL: round.ImageURL,
		Metadata: metadata,
	})
	if err != nil {
		reason := ReasonRequestFailure
		var httpErr *llm.HTTPError
		switch {
		case errors.As(err, &httpErr):
			reason = ReasonBadResponse
		case errors.Is(err, llm.ErrEmptyResponse):
			reason = ReasonEmptyResponse
		}
		log.Warn().Err(err).Int("round", round.Index).Str("reason", string(reason)).Msg("inference call failed")
		return g.synthesize(round, reason)
	}

	parsed, ok := parseGuessPayload(raw)
	if !ok {
		log.Warn().Int("round", round.Index).Str("raw", raw).Msg("unparseable inference output")
		return g.synthesize(round, ReasonParseError)
	}

	validated := validateGuesses(parsed)
	if len(validated) == 0 {
		return g.synthesize(round, ReasonInvalidPayload)
	}

	decorated := make([]Candidate, 0, len(validated))
	for _, v := range validated {
		correct := geo.Matches(v.countryName, round.CountryName, round.CountryCode)
		confidence := 0.45
		if v.confidence != nil {
			confidence = *v.confidence
		} else if correct {
			confidence = 0.8
		}
		decorated = append(decorated, Candidate{
			CountryName: v.countryName,
			Confidence:  confidence,
			Explanation: v.explanation,
			IsCorrect:   correct,
		})
	}

	chosen := g.weightedPick(decorated)
	return &GuessResult{
		CountryName: chosen.CountryName,
		Confidence:  chosen.Confidence,
		Explanation: chosen.Explanation,
		IsCorrect:   chosen.IsCorrect,
		Candidates:  decorated,
	}
}

// weightedPick draws a candidate with probability proportional to its
// confidence. A draw landing exactly on the total falls back to the
// first candidate.
func (g *Guesser) weightedPick(candidates []Candidate) Candidate {
	total := 0.0
	for _, c := range candidates {
		total += c.Confidence
	}
	r := g.float64() * total
	cumulative := 0.0
	for _, c := range candidates {
		cumulative += c.Confidence
		if r < cumulative {
			return c
		}
	}
	return candidates[0]
}

type validatedGuess struct {
	countryName string
	confidence  *float64
	explanation string
}

// parseGuessPayload decodes the model output into the raw guesses array,
// tolerating code fences and surrounding prose. Output that parses as
// JSON but is not an object carrying a guesses array reports ok with no
// entries; only undecodable text reports !ok.
func parseGuessPayload(raw string) ([]any, bool) {
	cleaned := llm.SanitizeJSON(raw)
	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		salvaged := llm.ExtractJSONObject(cleaned)
		if salvaged == "" {
			return nil, false
		}
		if err := json.Unmarshal([]byte(salvaged), &parsed); err != nil {
			return nil, false
		}
	}
	obj, _ := parsed.(map[string]any)
	guesses, _ := obj["guesses"].([]any)
	return guesses, true
}

// validateGuesses keeps entries with a usable country name, defaults blank
// explanations, and accepts confidence only when numeric and non-negative,
// clamped to 1.
func validateGuesses(entries []any) []validatedGuess {
	out := make([]validatedGuess, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["countryName"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		explanation := defaultExplanation
		if s, ok := m["explanation"].(string); ok && strings.TrimSpace(s) != "" {
			explanation = strings.TrimSpace(s)
		}
		var confidence *float64
		if f, ok := m["confidence"].(float64); ok && f >= 0 {
			v := f
			if v > 1 {
				v = 1
			}
			confidence = &v
		}
		out = append(out, validatedGuess{countryName: name, confidence: confidence, explanation: explanation})
	}
	return out
}
