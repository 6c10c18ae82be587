package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/luminalab/convogen"
)

var (
	genConfigFile     string
	genIterations     int
	genMinTurns       int
	genMaxTurns       int
	genOutput         string
	genOutputDir      string
	genSeedDir        string
	genModels         []string
	genReasoningModel string
	genPolicy         string
	genSeed           int64
	genEndpoint       string
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a conversation dataset",
		Long: `Generate conversations by sampling scenarios, personas, and styles
from the seed catalogs and alternating model calls for the user and
chatbot sides. The dataset is re-persisted after every turn, so an
interrupted run loses at most the in-flight turn.`,
		RunE: runGenerate,
	}

	cmd.Flags().StringVarP(&genConfigFile, "config", "c", "", "YAML config file")
	cmd.Flags().IntVarP(&genIterations, "iterations", "n", 0, "Number of conversations to generate")
	cmd.Flags().IntVar(&genMinTurns, "min-turns", 0, "Minimum turns per conversation")
	cmd.Flags().IntVar(&genMaxTurns, "max-turns", 0, "Maximum turns per conversation")
	cmd.Flags().StringVarP(&genOutput, "output", "o", "", "Output file name")
	cmd.Flags().StringVar(&genOutputDir, "output-dir", "", "Output directory")
	cmd.Flags().StringVar(&genSeedDir, "seed-dir", "", "Seed data directory")
	cmd.Flags().StringSliceVarP(&genModels, "models", "m", nil, "Models for conversation generation (first drives both sides)")
	cmd.Flags().StringVar(&genReasoningModel, "reasoning-model", "", "Model for user reflection")
	cmd.Flags().StringVar(&genPolicy, "policy", "", "Continuation policy: reflection, heuristic, judge, or lua")
	cmd.Flags().Int64Var(&genSeed, "seed", 0, "Random seed (0 = time-seeded)")
	cmd.Flags().StringVar(&genEndpoint, "endpoint", "", "OpenAI-compatible chat-completions endpoint")

	return cmd
}

// loadRunConfig layers CLI flags over the config file over the defaults.
func loadRunConfig() (convogen.Config, error) {
	cfg := convogen.DefaultConfig()
	if genConfigFile != "" {
		loaded, err := convogen.LoadConfig(genConfigFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if genIterations > 0 {
		cfg.Iterations = genIterations
	}
	if genMinTurns > 0 {
		cfg.MinTurns = genMinTurns
	}
	if genMaxTurns > 0 {
		cfg.MaxTurns = genMaxTurns
	}
	if genOutput != "" {
		cfg.Output = genOutput
	}
	if genOutputDir != "" {
		cfg.OutputDir = genOutputDir
	}
	if genSeedDir != "" {
		cfg.SeedDir = genSeedDir
	}
	if len(genModels) > 0 {
		cfg.Models = genModels
	}
	if genReasoningModel != "" {
		cfg.ReasoningModel = genReasoningModel
	}
	if genPolicy != "" {
		cfg.Policy = genPolicy
	}
	if genSeed != 0 {
		cfg.Seed = genSeed
	}
	if genEndpoint != "" {
		cfg.Endpoint = genEndpoint
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("CONVOGEN_API_KEY")
	}

	return cfg, cfg.Validate()
}

func newLogger(cfg convogen.LogConfig) *logrus.Entry {
	l := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: 3,
		}
		l.SetOutput(io.MultiWriter(os.Stderr, rotating))
	}
	return logrus.NewEntry(l)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log)
	runID := uuid.NewString()

	seeds, err := convogen.LoadSeedStore(cfg.SeedDir)
	if err != nil {
		return fmt.Errorf("load seed data: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	gateway := convogen.NewHTTPGateway(convogen.HTTPGatewayConfig{
		EndpointURL: cfg.Endpoint,
		APIKey:      cfg.APIKey,
	}, log)

	params := convogen.Params{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}

	policy, err := buildPolicy(cfg, gateway, rng, params, log)
	if err != nil {
		return err
	}

	sink, err := buildSink(cfg, runID)
	if err != nil {
		return err
	}

	gen := convogen.NewGenerator(gateway, seeds, policy, rng, log)
	driver := convogen.NewDriver(gen, sink, convogen.DriverConfig{
		Iterations: cfg.Iterations,
		MinTurns:   cfg.MinTurns,
		MaxTurns:   cfg.MaxTurns,
		ChatModel:  cfg.ChatModel(),
		Models:     cfg.AllModels(),
		Params:     params,
		Seed:       cfg.Seed,
		Policy:     cfg.Policy,
	}, log)

	_, stats, err := driver.Run(cmd.Context())
	if err != nil {
		return err
	}

	stats.Print(os.Stdout)
	if fs, ok := sink.(convogen.MultiSink); ok && len(fs) > 0 {
		if file, ok := fs[0].(*convogen.FileSink); ok {
			fmt.Printf("Dataset saved to %s\n", file.Path)
		}
	}
	return nil
}

func buildPolicy(cfg convogen.Config, gateway convogen.Gateway, rng *rand.Rand, params convogen.Params, log *logrus.Entry) (convogen.ContinuationPolicy, error) {
	switch cfg.Policy {
	case convogen.PolicyReflection:
		return convogen.NewReflectionPolicy(gateway, rng, convogen.ReflectionPolicyConfig{
			ReasoningModel: cfg.ReasoningModel,
			Params:         params,
		}, log), nil

	case convogen.PolicyHeuristic:
		estimator := convogen.NewHeuristicEstimator(rng)
		return convogen.NewSatisfactionPolicy(gateway, estimator, rng, convogen.SatisfactionPolicyConfig{
			UserModel: cfg.ChatModel(),
			Params:    params,
		}, log), nil

	case convogen.PolicyJudge:
		judge := cfg.JudgeModel
		if judge == "" {
			judge = cfg.ChatModel()
		}
		estimator := convogen.NewModelEstimator(gateway, convogen.ModelEstimatorConfig{
			Model:  judge,
			Params: params,
		}, log)
		return convogen.NewSatisfactionPolicy(gateway, estimator, rng, convogen.SatisfactionPolicyConfig{
			UserModel: cfg.ChatModel(),
			Params:    params,
		}, log), nil

	case convogen.PolicyLua:
		estimator, err := convogen.NewLuaEstimatorFromFile(cfg.LuaScript, 0.5, log)
		if err != nil {
			return nil, err
		}
		return convogen.NewSatisfactionPolicy(gateway, estimator, rng, convogen.SatisfactionPolicyConfig{
			UserModel: cfg.ChatModel(),
			Params:    params,
		}, log), nil
	}
	return nil, fmt.Errorf("unknown policy %q", cfg.Policy)
}

func buildSink(cfg convogen.Config, runID string) (convogen.Sink, error) {
	sinks := convogen.MultiSink{
		convogen.NewFileSink(cfg.OutputDir, cfg.Output, time.Now()),
	}

	if cfg.SQLite != "" {
		s, err := convogen.NewSQLiteSink(cfg.SQLite, runID)
		if err != nil {
			return nil, fmt.Errorf("sqlite sink: %w", err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Redis != nil && cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		s, err := convogen.NewRedisSink(client, convogen.RedisSinkConfig{
			Prefix: cfg.Redis.Prefix,
			RunID:  runID,
			TTL:    cfg.Redis.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		sinks = append(sinks, s)
	}

	return sinks, nil
}
