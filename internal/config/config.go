// Package config loads the typed configuration for a confidant daemon from
// YAML plus environment-sourced secrets, rejecting unknown providers and
// model roles at load time rather than defaulting them silently.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// ModelRole names one of the eight named roles spec.md §6 lists.
type ModelRole string

const (
	RoleOrganizer          ModelRole = "organizer"
	RoleKnowledgeOrganizer ModelRole = "knowledge_organizer"
	RoleGenerator          ModelRole = "generator"
	RoleEmbedding          ModelRole = "embedding"
	RoleVision             ModelRole = "vision"
	RoleVisionCaption      ModelRole = "vision_caption"
	RoleGuard              ModelRole = "guard"
	RoleUtility            ModelRole = "utility"
)

var allRoles = []ModelRole{
	RoleOrganizer, RoleKnowledgeOrganizer, RoleGenerator, RoleEmbedding,
	RoleVision, RoleVisionCaption, RoleGuard, RoleUtility,
}

// Provider is one OpenAI-compatible endpoint.
type Provider struct {
	APIBase string        `yaml:"api_base"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ModelBinding binds a role to a provider, model name, and call defaults.
type ModelBinding struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// Required is not loaded from YAML and not read by validate, which
	// requires every role except knowledge_organizer regardless.
	Required bool `yaml:"-"`
}

// AffectionConfig configures the relationship-state engine (§4.4).
type AffectionConfig struct {
	DefaultTemperature float64            `yaml:"default_temperature"`
	// LevelTempEnv is parsed from YAML but not read by any code: per-level
	// temperature overrides come from the fixed environment variable names
	// in affection.TempEnvKeys.
	LevelTempEnv map[string]string `yaml:"level_temp_env"`
}

// GuardConfig configures the injection guard (§4.5).
type GuardConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SkipThreshold int           `yaml:"skip_threshold"`
	BanMinutes    int           `yaml:"ban_minutes"`
	Timeout       time.Duration `yaml:"timeout"`
}

// BlacklistConfig configures the temporary blacklist (§4.6).
type BlacklistConfig struct {
	DBPath       string        `yaml:"db_path"`
	SweepEvery   time.Duration `yaml:"sweep_every"`
}

// SplitterConfig configures the message splitter (§4.8).
type SplitterConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Threshold   int           `yaml:"threshold"`
	TypingSpeed time.Duration `yaml:"typing_speed"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// MemoryGCConfig configures the memory GC job (§4.10).
type MemoryGCConfig struct {
	Every             time.Duration `yaml:"every"`
	DeleteAboveCount  int           `yaml:"delete_above_count"`
	DeleteFraction    float64       `yaml:"delete_fraction"`
	SummarizeAbove    int           `yaml:"summarize_above"`
	SummarizeFraction float64       `yaml:"summarize_fraction"`
	BatchSize         int           `yaml:"batch_size"`
	// RebuildIndexInline resolves spec.md §9's open question: when false
	// (default), GC leaves the deleted rows' vectors in the index and logs
	// a warning, and a later manual rebuild compacts the index; when true,
	// GC deletes from the index synchronously.
	RebuildIndexInline bool `yaml:"rebuild_index_inline"`
}

// OrganizerConfig configures the memory-summary stage (§4.1 step 5).
type OrganizerConfig struct {
	// SkipOnFailure, when true, replaces the organizer's output with a
	// trivial summary instead of failing the turn when the model call
	// errors (spec.md §7 "organizer errors respect skip_organizer_on_failure").
	SkipOnFailure bool `yaml:"skip_on_failure"`
}

// RetrievalConfig bounds stage 4's memory/knowledge fan-out (§4.1 step 4).
type RetrievalConfig struct {
	TopK             int     `yaml:"top_k"`
	ScoreThreshold   float64 `yaml:"score_threshold"`
	MaxChars         int     `yaml:"max_chars"`
	CrossScope       bool    `yaml:"cross_scope"`
	KnowledgeTopK    int     `yaml:"knowledge_top_k"`
	KnowledgeMaxChars int    `yaml:"knowledge_max_chars"`
	// ShortQueryRunes below which stage 4 skips retrieval entirely
	// (spec.md §4.1 algorithmic notes, §8 "query length < 4").
	ShortQueryRunes int `yaml:"short_query_runes"`
}

// GraphCleanupConfig configures the scheduled AI-driven graph cleanup (§4.3).
type GraphCleanupConfig struct {
	Every        time.Duration `yaml:"every"`
	UsersPerRun  int           `yaml:"users_per_run"`
}

// VectorStoreConfig configures the dual-scope vector index (§4.2).
type VectorStoreConfig struct {
	Dir     string `yaml:"dir"`
	// Backend selects "hnsw" (default) or "flat" (brute-force, for small
	// per-scope vector counts where HNSW's build overhead isn't worth it).
	Backend string `yaml:"backend"`
}

// SchedulerConfig configures job timers (§4.11).
type SchedulerConfig struct {
	WarmupUsers int `yaml:"warmup_users"`
	WarmupN     int `yaml:"warmup_n"`
}

// AdminHTTPConfig configures the admin HTTP surface (§6).
type AdminHTTPConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

// PersonaConfig carries the fixed reply text and prompt fragments used by
// the generator and persona guard (§4.9).
type PersonaConfig struct {
	RoleProfile      string   `yaml:"role_profile"`
	ExpressionStyle  string   `yaml:"expression_style"`
	ConversationRules string  `yaml:"conversation_rules"`
	AnchorParagraph  string   `yaml:"anchor_paragraph"`
	FallbackReply    string   `yaml:"fallback_reply"`
	GreetingDefault  string   `yaml:"greeting_default"`
	BanNoticeFormat  string   `yaml:"ban_notice_format"`
	DriftPhrases     []string `yaml:"drift_phrases"`
}

// Config is the full daemon configuration.
type Config struct {
	DataDir   string                       `yaml:"data_dir"`
	Providers map[string]Provider          `yaml:"providers"`
	Models    map[ModelRole]ModelBinding   `yaml:"models"`
	Affection AffectionConfig              `yaml:"affection"`
	Guard     GuardConfig                  `yaml:"guard"`
	Blacklist BlacklistConfig              `yaml:"blacklist"`
	Splitter  SplitterConfig               `yaml:"splitter"`
	Organizer OrganizerConfig              `yaml:"organizer"`
	Retrieval RetrievalConfig              `yaml:"retrieval"`
	MemoryGC  MemoryGCConfig               `yaml:"memory_gc"`
	GraphGC   GraphCleanupConfig           `yaml:"graph_cleanup"`
	VecStore  VectorStoreConfig            `yaml:"vector_store"`
	Scheduler SchedulerConfig              `yaml:"scheduler"`
	AdminHTTP AdminHTTPConfig              `yaml:"admin_http"`
	Persona   PersonaConfig                `yaml:"persona"`
}

// Load reads a YAML config file at path, then applies environment-sourced
// secret overrides (provider api keys, admin token) loaded from envPath via godotenv if it exists. It validates the model role
// bindings and provider references before returning.
func Load(path, envPath string) (*Config, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("config: load env %s: %w", envPath, err)
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides fills provider API keys from PROVIDER_<NAME>_API_KEY
// when the YAML value is empty, and the admin token from ADMIN_TOKEN.
func (c *Config) applyEnvOverrides() {
	for name, p := range c.Providers {
		if p.APIKey == "" {
			if v := os.Getenv(envKeyFor(name)); v != "" {
				p.APIKey = v
				c.Providers[name] = p
			}
		}
	}
	if c.AdminHTTP.Token == "" {
		c.AdminHTTP.Token = os.Getenv("ADMIN_TOKEN")
	}
}

func envKeyFor(provider string) string {
	out := make([]byte, 0, len(provider)+14)
	out = append(out, "PROVIDER_"...)
	for _, r := range provider {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		out = append(out, byte(r))
	}
	return string(append(out, "_API_KEY"...))
}

// validate checks that every required model role resolves to a declared
// provider and that no role names an unknown provider.
func (c *Config) validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one provider is required")
	}
	for _, role := range allRoles {
		binding, ok := c.Models[role]
		if !ok {
			if role == RoleKnowledgeOrganizer {
				continue // optional per §4.1 step 6
			}
			return fmt.Errorf("config: missing required model role %q", role)
		}
		if _, ok := c.Providers[binding.Provider]; !ok {
			return fmt.Errorf("config: role %q references unknown provider %q", role, binding.Provider)
		}
	}
	return nil
}
