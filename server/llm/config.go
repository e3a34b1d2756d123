package llm

import (
	"errors"
	"os"
	"strings"
	"time"
)

// Config holds everything needed to reach an OpenAI-compatible
// chat/completions endpoint. OpenRouter is the primary target; settings
// fall back to the OPENAI_* variables so either credential works.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	HeaderName   string
	HeaderPrefix string
	ExtraHeaders map[string]string
	Timeout      time.Duration
}

const defaultBaseURL = "https://openrouter.ai/api/v1"

// ResolveConfig builds a Config from the environment. model overrides the
// OPENROUTER_MODEL / OPENAI_MODEL variables when non-empty. A missing model
// is an error; a missing API key is not, so callers can detect an
// unconfigured client and degrade instead of failing.
func ResolveConfig(model string) (Config, error) {
	cfg := Config{
		Model:        strings.TrimSpace(model),
		ExtraHeaders: map[string]string{},
	}

	if cfg.Model == "" {
		cfg.Model = firstNonEmpty(os.Getenv("OPENROUTER_MODEL"), os.Getenv("OPENAI_MODEL"))
	}
	if cfg.Model == "" {
		return Config{}, errors.New("model missing: set OPENROUTER_MODEL/OPENAI_MODEL or pass a value")
	}

	base := firstNonEmpty(
		os.Getenv("OPENROUTER_BASE_URL"),
		os.Getenv("OPENROUTER_API_BASE"),
		os.Getenv("OPENAI_BASE_URL"),
		os.Getenv("OPENAI_API_BASE"),
	)
	if base == "" {
		base = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(base, "/")

	cfg.APIKey = firstNonEmpty(os.Getenv("OPENROUTER_API_KEY"), os.Getenv("OPENAI_API_KEY"))

	headerName := firstNonEmpty(os.Getenv("OPENROUTER_API_KEY_HEADER"), os.Getenv("OPENAI_API_KEY_HEADER"))
	if headerName == "" {
		headerName = "Authorization"
	}
	prefix := os.Getenv("OPENROUTER_API_KEY_PREFIX")
	if prefix == "" {
		prefix = os.Getenv("OPENAI_API_KEY_PREFIX")
	}
	if headerName == "Authorization" && strings.TrimSpace(prefix) == "" {
		prefix = "Bearer "
	}
	cfg.HeaderName = headerName
	cfg.HeaderPrefix = prefix

	if v := strings.TrimSpace(os.Getenv("OPENROUTER_SITE_URL")); v != "" {
		cfg.ExtraHeaders["HTTP-Referer"] = v
		cfg.ExtraHeaders["Referer"] = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENROUTER_TITLE")); v != "" {
		cfg.ExtraHeaders["X-Title"] = v
	}

	cfg.Timeout = 45 * time.Second
	if v := strings.TrimSpace(os.Getenv("OPENROUTER_TIMEOUT_SECONDS")); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
