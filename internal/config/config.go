package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ProviderConfig struct {
	BaseURL    string `json:"base_url"`
	Model      string `json:"model"`
	APIKey     string `json:"api_key"`
	TimeoutMS  int    `json:"timeout_ms"`
	MaxRetries int    `json:"max_retries"`
}

// LimitsConfig carries the guardrails of the resolver and agent paths. The
// agent path accumulates conversation history, so its ceiling is higher while
// the effective per-turn budget is stricter.
type LimitsConfig struct {
	MaxQuestionLen    int `json:"max_question_len"`
	QueryTokenCeiling int `json:"query_token_ceiling"`
	AgentTokenCeiling int `json:"agent_token_ceiling"`
	AnswerMaxLen      int `json:"answer_max_len"`
}

// PricingConfig is the published per-million-token pricing used for cost
// telemetry.
type PricingConfig struct {
	PromptPerMillionUSD     float64 `json:"prompt_per_million_usd"`
	CompletionPerMillionUSD float64 `json:"completion_per_million_usd"`
}

// StorageConfig locates the SQLite database. An empty path selects the
// in-memory cache with no persistence.
type StorageConfig struct {
	DBPath string `json:"db_path"`
}

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Limits   LimitsConfig   `json:"limits"`
	Pricing  PricingConfig  `json:"pricing"`
	Storage  StorageConfig  `json:"storage"`
}

type fileConfig struct {
	Provider *ProviderConfig `json:"provider"`
	Limits   *LimitsConfig   `json:"limits"`
	Pricing  *PricingConfig  `json:"pricing"`
	Storage  *StorageConfig  `json:"storage"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			TimeoutMS:  45000,
			MaxRetries: 3,
		},
		Limits: LimitsConfig{
			MaxQuestionLen:    500,
			QueryTokenCeiling: 15000,
			AgentTokenCeiling: 30000,
			AnswerMaxLen:      2000,
		},
		Pricing: PricingConfig{
			PromptPerMillionUSD:     0.15,
			CompletionPerMillionUSD: 0.60,
		},
		Storage: StorageConfig{
			DBPath: "~/.tripagent/tripagent.db",
		},
	}
}

// Load merges defaults, the global config, an optional project config (or the
// explicit path argument) and environment overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		if err := mergeFromFile(&cfg, filepath.Join(home, ".tripagent", "config.json")); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("TRIPAGENT_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		if _, err := os.Stat("tripagent.config.json"); err == nil {
			resolvedPath = "tripagent.config.json"
		}
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)
	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(stripJSONComments(data), &fc); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if fc.Limits != nil {
		cfg.Limits = mergeLimits(cfg.Limits, *fc.Limits)
	}
	if fc.Pricing != nil {
		if fc.Pricing.PromptPerMillionUSD > 0 {
			cfg.Pricing.PromptPerMillionUSD = fc.Pricing.PromptPerMillionUSD
		}
		if fc.Pricing.CompletionPerMillionUSD > 0 {
			cfg.Pricing.CompletionPerMillionUSD = fc.Pricing.CompletionPerMillionUSD
		}
	}
	if fc.Storage != nil && strings.TrimSpace(fc.Storage.DBPath) != "" {
		cfg.Storage.DBPath = fc.Storage.DBPath
	}
	return nil
}

func mergeProvider(base, override ProviderConfig) ProviderConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if override.MaxRetries > 0 {
		base.MaxRetries = override.MaxRetries
	}
	return base
}

func mergeLimits(base, override LimitsConfig) LimitsConfig {
	if override.MaxQuestionLen > 0 {
		base.MaxQuestionLen = override.MaxQuestionLen
	}
	if override.QueryTokenCeiling > 0 {
		base.QueryTokenCeiling = override.QueryTokenCeiling
	}
	if override.AgentTokenCeiling > 0 {
		base.AgentTokenCeiling = override.AgentTokenCeiling
	}
	if override.AnswerMaxLen > 0 {
		base.AnswerMaxLen = override.AnswerMaxLen
	}
	return base
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("TRIPAGENT_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TRIPAGENT_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("TRIPAGENT_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	} else if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("TRIPAGENT_DB_PATH")); v != "" {
		cfg.Storage.DBPath = v
	}
}

func normalize(cfg *Config) error {
	def := Default()
	if strings.TrimSpace(cfg.Provider.BaseURL) == "" {
		cfg.Provider.BaseURL = def.Provider.BaseURL
	}
	if strings.TrimSpace(cfg.Provider.Model) == "" {
		cfg.Provider.Model = def.Provider.Model
	}
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = def.Provider.TimeoutMS
	}
	if cfg.Provider.MaxRetries <= 0 {
		cfg.Provider.MaxRetries = def.Provider.MaxRetries
	}
	if cfg.Limits.MaxQuestionLen <= 0 {
		cfg.Limits.MaxQuestionLen = def.Limits.MaxQuestionLen
	}
	if cfg.Limits.QueryTokenCeiling <= 0 {
		cfg.Limits.QueryTokenCeiling = def.Limits.QueryTokenCeiling
	}
	if cfg.Limits.AgentTokenCeiling <= 0 {
		cfg.Limits.AgentTokenCeiling = def.Limits.AgentTokenCeiling
	}
	if cfg.Limits.AnswerMaxLen <= 0 {
		cfg.Limits.AnswerMaxLen = def.Limits.AnswerMaxLen
	}
	if cfg.Pricing.PromptPerMillionUSD <= 0 {
		cfg.Pricing.PromptPerMillionUSD = def.Pricing.PromptPerMillionUSD
	}
	if cfg.Pricing.CompletionPerMillionUSD <= 0 {
		cfg.Pricing.CompletionPerMillionUSD = def.Pricing.CompletionPerMillionUSD
	}

	dbPath, err := expandPath(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	cfg.Storage.DBPath = dbPath
	return nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

// stripJSONComments removes // and /* */ comments so config files can be
// annotated. String contents are never touched.
func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
