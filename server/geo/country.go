// Country name normalization and fuzzy matching for guess evaluation.
//
// A guess counts as correct when its normalized form equals the truth
// country's ISO code or any entry in the country's alias set. The alias
// table is hand-maintained; keep it in sync with the web client.
package geo

import (
	"regexp"
	"strings"
)

var (
	nonAlpha   = regexp.MustCompile(`[^a-z\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Normalize lowercases text, strips everything outside [a-z\s], and
// collapses runs of whitespace. Idempotent.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = nonAlpha.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Aliases builds the set of normalized strings accepted as equivalent to
// the given country. Seeded with the country name and code, then extended
// with historically common alternate names.
func Aliases(country, code string) []string {
	base := make(map[string]struct{})
	c := strings.ToLower(country)
	cc := strings.ToLower(code)

	add := func(s string) { base[s] = struct{}{} }

	if c != "" {
		add(c)
	}
	if cc != "" {
		add(cc)
	}

	if strings.Contains(c, "united states") {
		add("usa")
		add("us")
		add("united states of america")
		add("america")
	}
	if strings.Contains(c, "united kingdom") {
		add("uk")
		add("great britain")
		add("britain")
		add("england")
	}
	if strings.Contains(c, "russia") {
		add("russian federation")
	}
	if strings.Contains(c, "south korea") {
		add("korea")
		add("republic of korea")
	}
	if strings.Contains(c, "north korea") {
		add("dprk")
		add("democratic peoples republic of korea")
	}
	if strings.Contains(c, "united arab emirates") || c == "uae" {
		add("united arab emirates")
		add("uae")
	}
	if strings.Contains(c, "czechia") {
		add("czech republic")
	}
	if strings.Contains(c, "eswatini") {
		add("swaziland")
	}
	if strings.Contains(c, "east timor") {
		add("timor leste")
	}
	if strings.Contains(c, "ivory coast") || strings.Contains(c, "côte d'ivoire") || strings.Contains(c, "cote divoire") {
		add("cote divoire")
		add("cote d'ivoire")
		add("ivory coast")
	}

	out := make([]string, 0, len(base))
	for alias := range base {
		out = append(out, alias)
	}
	return out
}

// Matches reports whether a free-text guess names the truth country.
func Matches(guess, country, code string) bool {
	if guess == "" {
		return false
	}
	normalizedGuess := Normalize(guess)
	if normalizedGuess == "" {
		return false
	}
	if code != "" && normalizedGuess == strings.ToLower(strings.TrimSpace(code)) {
		return true
	}
	normalizedCountry := Normalize(country)
	if normalizedCountry == "" {
		return false
	}
	for _, alias := range Aliases(normalizedCountry, code) {
		if normalizedGuess == alias {
			return true
		}
	}
	return false
}
