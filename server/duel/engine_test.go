package duel

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"geoduel/server/images"
)

// stubSource hands out a fixed rotation of images.
type stubSource struct {
	imgs []images.Image
	next int
	errs bool
}

func (s *stubSource) Next(ctx context.Context) (images.Image, error) {
	if s.errs {
		return images.Image{}, errors.New("source down")
	}
	img := s.imgs[s.next%len(s.imgs)]
	s.next++
	return img, nil
}

func newStubSource() *stubSource {
	return &stubSource{imgs: []images.Image{
		{ImageURL: "https://images.example/fr.jpg", Coordinates: images.LatLon{Lat: 48.85, Lon: 2.35}, CountryName: "France", CountryCode: "FR"},
		{ImageURL: "https://images.example/jp.jpg", Coordinates: images.LatLon{Lat: 35.68, Lon: 139.69}, CountryName: "Japan", CountryCode: "JP"},
		{ImageURL: "https://images.example/br.jpg", Coordinates: images.LatLon{Lat: -23.55, Lon: -46.63}, CountryName: "Brazil", CountryCode: "BR"},
	}}
}

func newTestEngine(t *testing.T, rounds int) *Engine {
	t.Helper()
	guesser := NewGuesser(nil, rand.New(rand.NewSource(9)))
	return NewEngine(Config{Rounds: rounds, Expiry: time.Hour}, NewMatchStore(), newStubSource(), guesser)
}

func TestCreateMatch(t *testing.T) {
	e := newTestEngine(t, 5)
	resp, err := e.CreateMatch(context.Background())
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if resp.MatchID == "" {
		t.Error("empty match id")
	}
	if resp.TotalRounds != 5 {
		t.Errorf("totalRounds = %d, want 5", resp.TotalRounds)
	}
	if resp.Status != StatusInProgress {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Round == nil || resp.Round.RoundIndex != 0 {
		t.Fatalf("first round view = %+v", resp.Round)
	}
	if resp.Round.ImageURL != "https://images.example/fr.jpg" {
		t.Errorf("round image = %q", resp.Round.ImageURL)
	}
	if resp.Scores.Player != 0 || resp.Scores.AI != 0 {
		t.Errorf("scores = %+v, want zero", resp.Scores)
	}
}

func TestCreateMatchSourceFailure(t *testing.T) {
	guesser := NewGuesser(nil, rand.New(rand.NewSource(9)))
	e := NewEngine(Config{Rounds: 3, Expiry: time.Hour}, NewMatchStore(), &stubSource{errs: true}, guesser)
	if _, err := e.CreateMatch(context.Background()); err == nil {
		t.Fatal("expected error when the image source fails")
	}
	if e.Store().Len() != 0 {
		t.Error("failed match must not be stored")
	}
}

func TestFullMatchFlow(t *testing.T) {
	e := newTestEngine(t, 3)
	start, err := e.CreateMatch(context.Background())
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	guesses := []string{"France", "wrong", "Brazil"}
	var last *GuessResponse
	for i, guess := range guesses {
		resp, err := e.SubmitGuess(context.Background(), start.MatchID, i, guess)
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if resp.RoundIndex != i {
			t.Errorf("round %d: roundIndex = %d", i, resp.RoundIndex)
		}
		if len(resp.History) != i+1 {
			t.Errorf("round %d: history length = %d", i, len(resp.History))
		}
		last = resp
	}

	if last.Status != StatusCompleted {
		t.Fatalf("final status = %q", last.Status)
	}
	if last.NextRound != nil {
		t.Error("completed match must not advertise a next round")
	}
	if last.Scores.Player != 2 {
		t.Errorf("player score = %d, want 2", last.Scores.Player)
	}
	// Fallback guesses always carry three candidates.
	if last.AIResult == nil || len(last.AIResult.Candidates) != 3 {
		t.Fatalf("aiResult = %+v", last.AIResult)
	}
}

func TestSubmitGuessRevealsGroundTruth(t *testing.T) {
	e := newTestEngine(t, 2)
	start, _ := e.CreateMatch(context.Background())

	resp, err := e.SubmitGuess(context.Background(), start.MatchID, 0, "fr")
	if err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}
	if resp.CorrectCountry.Name != "France" || resp.CorrectCountry.Code != "FR" {
		t.Errorf("correctCountry = %+v", resp.CorrectCountry)
	}
	if resp.Coordinates.Lat != 48.85 {
		t.Errorf("coordinates = %+v", resp.Coordinates)
	}
	if resp.PlayerResult == nil || !resp.PlayerResult.IsCorrect {
		t.Fatalf("playerResult = %+v", resp.PlayerResult)
	}
	if resp.PlayerResult.NormalizedGuess != "fr" {
		t.Errorf("normalizedGuess = %q", resp.PlayerResult.NormalizedGuess)
	}
	if resp.NextRound == nil || resp.NextRound.RoundIndex != 1 {
		t.Fatalf("nextRound = %+v", resp.NextRound)
	}
}

func TestSubmitGuessUnknownMatch(t *testing.T) {
	e := newTestEngine(t, 2)
	if _, err := e.SubmitGuess(context.Background(), "nope", 0, "France"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("err = %v, want ErrMatchNotFound", err)
	}
}

func TestSubmitGuessOutOfSync(t *testing.T) {
	e := newTestEngine(t, 3)
	start, _ := e.CreateMatch(context.Background())

	_, err := e.SubmitGuess(context.Background(), start.MatchID, 2, "France")
	var oos *OutOfSyncError
	if !errors.As(err, &oos) {
		t.Fatalf("err = %v, want OutOfSyncError", err)
	}
	if oos.Expected == nil || oos.Expected.RoundIndex != 0 {
		t.Fatalf("expected round = %+v", oos.Expected)
	}

	// The rejected submission must not have touched the match.
	resp, err := e.SubmitGuess(context.Background(), start.MatchID, 0, "France")
	if err != nil {
		t.Fatalf("valid submission after rejection: %v", err)
	}
	if resp.Scores.Player != 1 {
		t.Errorf("player score = %d, want 1", resp.Scores.Player)
	}
}

func TestSubmitGuessAfterCompletion(t *testing.T) {
	e := newTestEngine(t, 1)
	start, _ := e.CreateMatch(context.Background())

	first, err := e.SubmitGuess(context.Background(), start.MatchID, 0, "France")
	if err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}
	if first.Status != StatusCompleted {
		t.Fatalf("status = %q", first.Status)
	}

	_, err = e.SubmitGuess(context.Background(), start.MatchID, 0, "France")
	var done *CompletedError
	if !errors.As(err, &done) {
		t.Fatalf("err = %v, want CompletedError", err)
	}
	if done.Scores != first.Scores {
		t.Errorf("completed scores = %+v, want %+v", done.Scores, first.Scores)
	}
	if len(done.History) != 1 {
		t.Errorf("history length = %d", len(done.History))
	}
}

func TestExpiredMatchPrunedOnSubmit(t *testing.T) {
	guesser := NewGuesser(nil, rand.New(rand.NewSource(9)))
	e := NewEngine(Config{Rounds: 2, Expiry: time.Minute}, NewMatchStore(), newStubSource(), guesser)
	start, _ := e.CreateMatch(context.Background())

	m := e.Store().Get(start.MatchID)
	m.CreatedAt = time.Now().Add(-2 * time.Minute)

	if _, err := e.SubmitGuess(context.Background(), start.MatchID, 0, "France"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("err = %v, want ErrMatchNotFound after expiry", err)
	}
}

func TestConcurrentSubmitsResolveRoundOnce(t *testing.T) {
	e := newTestEngine(t, 1)
	start, _ := e.CreateMatch(context.Background())

	const workers = 8
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := e.SubmitGuess(context.Background(), start.MatchID, 0, "France")
			results <- err
		}()
	}

	ok := 0
	for i := 0; i < workers; i++ {
		if err := <-results; err == nil {
			ok++
		} else {
			var done *CompletedError
			if !errors.As(err, &done) {
				t.Errorf("unexpected error: %v", err)
			}
		}
	}
	if ok < 1 {
		t.Fatal("no submission succeeded")
	}

	m := e.Store().Get(start.MatchID)
	if m.PlayerScore != 1 {
		t.Errorf("player score = %d, want 1 (round resolved once)", m.PlayerScore)
	}
	if len(m.History) != 1 {
		t.Errorf("history length = %d, want 1", len(m.History))
	}
}

func TestMatchesAreIndependent(t *testing.T) {
	e := newTestEngine(t, 1)
	ctx := context.Background()

	ids := make([]string, 4)
	for i := range ids {
		start, err := e.CreateMatch(ctx)
		if err != nil {
			t.Fatalf("CreateMatch %d: %v", i, err)
		}
		ids[i] = start.MatchID
	}
	// Complete the first match; the rest must be untouched.
	if _, err := e.SubmitGuess(ctx, ids[0], 0, "France"); err != nil {
		t.Fatalf("match 0: %v", err)
	}
	if m := e.Store().Get(ids[0]); m.Status != StatusCompleted {
		t.Errorf("match 0 status = %q", m.Status)
	}
	for i := 1; i < len(ids); i++ {
		m := e.Store().Get(ids[i])
		if m.Status != StatusInProgress {
			t.Errorf("match %d status = %q, want in-progress", i, m.Status)
		}
		if len(m.History) != 0 {
			t.Errorf("match %d history length = %d, want 0", i, len(m.History))
		}
	}
	if e.Store().Len() != 4 {
		t.Errorf("store length = %d, want 4", e.Store().Len())
	}
}
