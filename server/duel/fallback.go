package duel

import "geoduel/server/geo"

// fallbackPool holds common countries used to pad synthesized candidate
// lists. Order matters only for tests with a fixed seed.
var fallbackPool = []string{
	"Brazil",
	"United States",
	"Canada",
	"France",
	"Germany",
	"South Africa",
	"Australia",
	"Japan",
	"India",
	"Argentina",
}

const (
	fallbackCorrectConfidence = 0.85
	fallbackFillerConfidence  = 0.35
)

// synthesize builds a structurally-identical guess result without the
// inference endpoint: the correct country plus random fillers, three
// unique candidates total, chosen uniformly. The correct country is always
// present so fallback behavior stays statistically plausible.
func (g *Guesser) synthesize(round *Round, reason FallbackReason) *GuessResult {
	fillerExplanation := "Random fallback guess because the OpenRouter request failed."
	if reason == ReasonMissingAPIKey {
		fillerExplanation = "Random fallback guess because no OpenRouter API key is configured."
	}

	candidates := make([]Candidate, 0, 3)
	seen := make(map[string]struct{})

	if round.CountryName != "" {
		seen[round.CountryName] = struct{}{}
		candidates = append(candidates, Candidate{
			CountryName: round.CountryName,
			Confidence:  fallbackCorrectConfidence,
			Explanation: "Correct country included to keep fallback behaviour plausible.",
		})
	}

	for len(candidates) < 3 {
		pick := fallbackPool[g.intn(len(fallbackPool))]
		if _, dup := seen[pick]; dup {
			continue
		}
		seen[pick] = struct{}{}
		candidates = append(candidates, Candidate{
			CountryName: pick,
			Confidence:  fallbackFillerConfidence,
			Explanation: fillerExplanation,
		})
	}

	for i := range candidates {
		candidates[i].IsCorrect = geo.Matches(candidates[i].CountryName, round.CountryName, round.CountryCode)
	}

	chosen := candidates[g.intn(len(candidates))]
	return &GuessResult{
		CountryName:    chosen.CountryName,
		Confidence:     chosen.Confidence,
		Explanation:    chosen.Explanation,
		IsCorrect:      chosen.IsCorrect,
		Candidates:     candidates,
		FallbackReason: reason,
	}
}
