package main

import (
	"context"
	"errors"
	mrand "math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"geoduel/server/appcheck"
	"geoduel/server/duel"
	"geoduel/server/images"
	"geoduel/server/llm"
	"geoduel/server/store"
)

type appConfig struct {
	Port         string
	ClientOrigin string
	AITestingKey string
	MatchRounds  int
	MatchExpiry  time.Duration
}

// Tries: env var file, ./secrets/openrouter_api_key.txt, ./server/openrouter_api_key.txt,
// ./openrouter_api_key.txt, and /run/secrets/openrouter_api_key.
func loadAPIKeyFromSecret() {
	if os.Getenv("OPENROUTER_API_KEY") != "" {
		return
	}
	var candidates []string
	if p := os.Getenv("OPENROUTER_API_KEY_FILE"); strings.TrimSpace(p) != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates,
		"./secrets/openrouter_api_key.txt",
		"server/openrouter_api_key.txt",
		"./server/openrouter_api_key.txt",
		"./openrouter_api_key.txt",
		"/run/secrets/openrouter_api_key",
	)
	for _, path := range candidates {
		if b, err := os.ReadFile(path); err == nil {
			key := strings.TrimSpace(string(b))
			if key != "" {
				os.Setenv("OPENROUTER_API_KEY", key)
				return
			}
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// newRandSources returns separate sources for the image provider and the
// guesser. They guard their draws with separate mutexes, so a shared
// *rand.Rand would race between the cache's refill goroutine and guess
// resolution.
func newRandSources() (providerRNG, guessRNG *mrand.Rand) {
	base := time.Now().UnixNano()
	return mrand.New(mrand.NewSource(base)), mrand.New(mrand.NewSource(base + 1))
}

func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func main() {
	_ = godotenv.Load()
	loadAPIKeyFromSecret()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if lvl, err := zerolog.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	var migrate bool
	for _, a := range os.Args[1:] {
		if a == "--migrate" {
			migrate = true
		}
	}

	cfg := appConfig{
		Port:         getenv("PORT", "8080"),
		ClientOrigin: os.Getenv("CLIENT_ORIGIN"),
		AITestingKey: os.Getenv("AI_TESTING_KEY"),
		MatchRounds:  atoiDef(os.Getenv("AI_MATCH_ROUNDS"), 5),
		MatchExpiry:  time.Duration(atoiDef(os.Getenv("AI_MATCH_EXPIRY_MINUTES"), 60)) * time.Minute,
	}
	if cfg.MatchRounds < 1 {
		cfg.MatchRounds = 5
	}

	ctx := context.Background()

	// Sessions and the leaderboard need Postgres; the AI duel runs without it.
	var db *store.DB
	if dsn := getenv("DATABASE_URL", ""); dsn != "" {
		p, err := store.Open(dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("database open failed")
		}
		db = p
		defer db.Close(ctx)
		if migrate || asBool(os.Getenv("AUTO_MIGRATE")) {
			if err := store.Migrate(ctx, db); err != nil {
				log.Fatal().Err(err).Msg("migrate failed")
			}
			log.Info().Msg("migrated")
			if migrate {
				return
			}
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set; sessions and leaderboard disabled")
	}

	llmCfg, err := llm.ResolveConfig(getenv("OPENROUTER_MODEL", "mistralai/mistral-small-3.2-24b-instruct:free"))
	if err != nil {
		log.Fatal().Err(err).Msg("bad model configuration")
	}
	client := llm.New(llmCfg)
	if !client.Configured() {
		log.Warn().Msg("OPENROUTER_API_KEY not set; AI guesses fall back to synthesized candidates")
	}

	providerRNG, guessRNG := newRandSources()

	provider := images.NewMapillaryProvider(os.Getenv("MAP_API_KEY"), providerRNG)
	cacheSize := atoiDef(os.Getenv("IMAGE_CACHE_SIZE"), 15)
	cache := images.NewCache(provider, cacheSize)
	go func() {
		fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := cache.Fill(fillCtx, cacheSize); err != nil {
			log.Warn().Err(err).Msg("image prefill stopped early")
		}
	}()

	guesser := duel.NewGuesser(client, guessRNG)
	engine := duel.NewEngine(duel.Config{Rounds: cfg.MatchRounds, Expiry: cfg.MatchExpiry}, duel.NewMatchStore(), cache, guesser)

	check := appcheck.New(os.Getenv("APP_CHECK_SECRET"), os.Getenv("APP_CHECK_APP_IDS"))
	if !check.Configured() {
		log.Warn().Msg("APP_CHECK_SECRET not set; gated routes will reject requests")
	}

	a := &app{cfg: cfg, engine: engine, guesser: guesser, source: cache, db: db, check: check}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
