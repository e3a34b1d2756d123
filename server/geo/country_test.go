package geo

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  United  States ", "united states"},
		{"Côte d'Ivoire", "cte divoire"},
		{"U.S.A.", "usa"},
		{"BRAZIL", "brazil"},
		{"12345", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"  United  States ", "Côte d'Ivoire", "south-korea!!"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestMatchesAliases(t *testing.T) {
	cases := []struct {
		guess   string
		country string
		code    string
		want    bool
	}{
		{"USA", "United States", "US", true},
		{"us", "United States", "US", true},
		{"America", "United States", "US", true},
		{"united states of america", "United States", "US", true},
		{"England", "United Kingdom", "GB", true},
		{"great britain", "United Kingdom", "GB", true},
		{"Korea", "South Korea", "KR", true},
		{"republic of korea", "South Korea", "KR", true},
		{"DPRK", "North Korea", "KP", true},
		{"russian federation", "Russia", "RU", true},
		{"Czech Republic", "Czechia", "CZ", true},
		{"Swaziland", "Eswatini", "SZ", true},
		{"Timor Leste", "East Timor", "TL", true},
		{"ivory coast", "Ivory Coast", "CI", true},
		{"Canada", "United States", "US", false},
		{"korea", "North Korea", "KP", false},
	}
	for _, c := range cases {
		if got := Matches(c.guess, c.country, c.code); got != c.want {
			t.Errorf("Matches(%q, %q, %q) = %v, want %v", c.guess, c.country, c.code, got, c.want)
		}
	}
}

func TestMatchesCode(t *testing.T) {
	if !Matches("br", "Brazil", "BR") {
		t.Error("lowercase ISO code should match")
	}
	if !Matches("BR", "Brazil", "BR") {
		t.Error("uppercase ISO code should match")
	}
}

func TestMatchesExactName(t *testing.T) {
	if !Matches("  japan ", "Japan", "JP") {
		t.Error("padded exact name should match")
	}
	if Matches("jap", "Japan", "JP") {
		t.Error("prefix must not match")
	}
}

func TestMatchesEmptyInputs(t *testing.T) {
	if Matches("", "Brazil", "BR") {
		t.Error("empty guess must not match")
	}
	if Matches("...", "Brazil", "BR") {
		t.Error("guess normalizing to empty must not match")
	}
	if Matches("brazil", "", "") {
		t.Error("empty truth must not match")
	}
}

func TestHemisphereSummary(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     string
	}{
		{48.8, 2.3, "Northern Hemisphere & Eastern Hemisphere"},
		{40.7, -74.0, "Northern Hemisphere & Western Hemisphere"},
		{-33.9, 151.2, "Southern Hemisphere & Eastern Hemisphere"},
		{-23.5, -46.6, "Southern Hemisphere & Western Hemisphere"},
		{0, 0, "Northern Hemisphere & Eastern Hemisphere"},
	}
	for _, c := range cases {
		if got := HemisphereSummary(c.lat, c.lon); got != c.want {
			t.Errorf("HemisphereSummary(%v, %v) = %q, want %q", c.lat, c.lon, got, c.want)
		}
	}
}

func TestClimateBand(t *testing.T) {
	cases := []struct {
		lat  float64
		want string
	}{
		{0, "tropical"},
		{14.9, "tropical"},
		{-14.9, "tropical"},
		{15, "subtropical"},
		{34.9, "subtropical"},
		{35, "temperate"},
		{54.9, "temperate"},
		{55, "cool temperate"},
		{65.9, "cool temperate"},
		{66, "polar"},
		{-80, "polar"},
	}
	for _, c := range cases {
		if got := ClimateBand(c.lat); got != c.want {
			t.Errorf("ClimateBand(%v) = %q, want %q", c.lat, got, c.want)
		}
	}
}
