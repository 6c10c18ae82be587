package convogen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Iterations)
	assert.Equal(t, 5, cfg.MinTurns)
	assert.Equal(t, 7, cfg.MaxTurns)
	assert.Equal(t, "gpt-4o", cfg.ChatModel())
	assert.Equal(t, PolicyReflection, cfg.Policy)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convogen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
iterations: 3
min_turns: 2
max_turns: 4
models:
  - claude-sonnet
policy: judge
judge_model: gpt-4o-mini
redis:
  addr: localhost:6379
  prefix: synth
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Iterations)
	assert.Equal(t, 2, cfg.MinTurns)
	assert.Equal(t, []string{"claude-sonnet"}, cfg.Models)
	assert.Equal(t, PolicyJudge, cfg.Policy)

	// Untouched keys keep their defaults.
	assert.Equal(t, "role_based_conversations.json", cfg.Output)
	assert.Equal(t, "deepseek-r1", cfg.ReasoningModel)

	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "synth", cfg.Redis.Prefix)
}

func TestLoadConfig_MissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfigValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Iterations = 0 }},
		{"min above max", func(c *Config) { c.MinTurns = 8 }},
		{"zero min turns", func(c *Config) { c.MinTurns = 0 }},
		{"no models", func(c *Config) { c.Models = nil }},
		{"unknown policy", func(c *Config) { c.Policy = "oracle" }},
		{"lua without script", func(c *Config) { c.Policy = PolicyLua }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestConfigAllModels(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"gpt-4o", "deepseek-r1"}, cfg.AllModels())

	cfg.Policy = PolicyJudge
	assert.Equal(t, []string{"gpt-4o", "gpt-4o"}, cfg.AllModels())
	cfg.JudgeModel = "judge-1"
	assert.Equal(t, []string{"gpt-4o", "judge-1"}, cfg.AllModels())

	cfg.Policy = PolicyHeuristic
	assert.Equal(t, []string{"gpt-4o"}, cfg.AllModels())
}
