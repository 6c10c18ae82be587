package convogen

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ──────────────────────────────────────────────
// Run configuration — YAML file merged with CLI flags
// ──────────────────────────────────────────────

// Policy names accepted in configuration.
const (
	PolicyReflection = "reflection"
	PolicyHeuristic  = "heuristic"
	PolicyJudge      = "judge"
	PolicyLua        = "lua"
)

// RedisConfig configures the optional Redis checkpoint sink.
type RedisConfig struct {
	Addr   string        `yaml:"addr"`
	Prefix string        `yaml:"prefix"`
	TTL    time.Duration `yaml:"ttl"`
}

// LogConfig configures run logging.
type LogConfig struct {
	Level     string `yaml:"level"`       // logrus level name, default "info"
	File      string `yaml:"file"`        // rotating log file; empty = stderr only
	MaxSizeMB int    `yaml:"max_size_mb"` // rotation threshold, default 50
}

// Config is the full run configuration.
type Config struct {
	Iterations     int      `yaml:"iterations"`
	MinTurns       int      `yaml:"min_turns"`
	MaxTurns       int      `yaml:"max_turns"`
	Output         string   `yaml:"output"`
	OutputDir      string   `yaml:"output_dir"`
	SeedDir        string   `yaml:"seed_dir"`
	Models         []string `yaml:"models"`
	ReasoningModel string   `yaml:"reasoning_model"`
	JudgeModel     string   `yaml:"judge_model"`
	Policy         string   `yaml:"policy"`
	LuaScript      string   `yaml:"lua_script"` // used when policy is "lua"
	Temperature    float64  `yaml:"temperature"`
	MaxTokens      int      `yaml:"max_tokens"`
	Seed           int64    `yaml:"seed"` // 0 = time-seeded

	Endpoint string `yaml:"endpoint"` // OpenAI-compatible chat endpoint
	APIKey   string `yaml:"api_key"`  // falls back to CONVOGEN_API_KEY

	SQLite string       `yaml:"sqlite"` // optional SQLite mirror path
	Redis  *RedisConfig `yaml:"redis"`  // optional Redis checkpoint
	Log    LogConfig    `yaml:"log"`
}

// DefaultConfig returns the defaults applied before file and flags.
func DefaultConfig() Config {
	return Config{
		Iterations:     10,
		MinTurns:       5,
		MaxTurns:       7,
		Output:         "role_based_conversations.json",
		OutputDir:      "generations",
		SeedDir:        "seed_data",
		Models:         []string{"gpt-4o"},
		ReasoningModel: "deepseek-r1",
		Policy:         PolicyReflection,
		Temperature:    0.7,
		Log:            LogConfig{Level: "info", MaxSizeMB: 50},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the cross-field constraints that would otherwise only
// surface mid-run.
func (c *Config) Validate() error {
	if c.Iterations < 1 {
		return configErrorf("iterations must be >= 1, got %d", c.Iterations)
	}
	if c.MinTurns < 1 || c.MaxTurns < c.MinTurns {
		return configErrorf("invalid turn bounds: min=%d max=%d", c.MinTurns, c.MaxTurns)
	}
	if len(c.Models) == 0 {
		return configErrorf("at least one model is required")
	}
	switch c.Policy {
	case PolicyReflection, PolicyHeuristic, PolicyJudge:
	case PolicyLua:
		if c.LuaScript == "" {
			return configErrorf("policy %q requires lua_script", c.Policy)
		}
	default:
		return configErrorf("unknown policy %q", c.Policy)
	}
	return nil
}

// ChatModel is the primary model driving both simulated sides.
func (c *Config) ChatModel() string {
	return c.Models[0]
}

// AllModels lists every model a run may touch, for the metadata.
func (c *Config) AllModels() []string {
	models := append([]string(nil), c.Models...)
	switch c.Policy {
	case PolicyReflection:
		models = append(models, c.ReasoningModel)
	case PolicyJudge:
		judge := c.JudgeModel
		if judge == "" {
			judge = c.ChatModel()
		}
		models = append(models, judge)
	}
	return models
}
