package convogen

import (
	"context"
	"math/rand"
	"strings"

	"github.com/sirupsen/logrus"
)

// ──────────────────────────────────────────────
// Satisfaction Estimator — heuristic and model-judged strategies
// ──────────────────────────────────────────────

// Estimator scores how well the latest chatbot turn met the user's
// expectation, in [0,1], with an optional explanation. Implementations
// recover locally from their own failures; Estimate never errors.
type Estimator interface {
	Estimate(ctx context.Context, history []Turn, exp *Expectation, turnIndex int) (score float64, explanation string)
}

// HeuristicConfig tunes the rule-based estimator.
type HeuristicConfig struct {
	BaseScore        float64 // returned outright on turn 1 or without an expectation, default 0.7
	FrustrationHit   float64 // per matched frustration keyword, default 0.1
	ManyHitsPenalty  float64 // extra when more than 2 distinct keywords match, default 0.2
	CoveragePenalty  float64 // when under half the expectation keywords appear, default 0.3
	FatiguePerTurn   float64 // per turn past the first, default 0.1
	LateFatigue      float64 // extra past turn 4, default 0.2
	ShortReplyWords  int     // default 15
	LongReplyWords   int     // default 150
	ShortPenalty     float64 // default 0.15
	LongPenalty      float64 // default 0.1
	NoiseLow         float64 // default -0.2
	NoiseHigh        float64 // default +0.1
}

// DefaultHeuristicConfig returns the standard scoring constants.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		BaseScore:       0.7,
		FrustrationHit:  0.1,
		ManyHitsPenalty: 0.2,
		CoveragePenalty: 0.3,
		FatiguePerTurn:  0.1,
		LateFatigue:     0.2,
		ShortReplyWords: 15,
		LongReplyWords:  150,
		ShortPenalty:    0.15,
		LongPenalty:     0.1,
		NoiseLow:        -0.2,
		NoiseHigh:       0.1,
	}
}

// HeuristicEstimator scores replies from keyword overlap, reply length
// and conversational fatigue. No model calls, no explanations.
type HeuristicEstimator struct {
	config HeuristicConfig
	rng    *rand.Rand
}

// NewHeuristicEstimator creates the rule-based estimator. rng must be
// non-nil; seed it for reproducible runs.
func NewHeuristicEstimator(rng *rand.Rand, config ...HeuristicConfig) *HeuristicEstimator {
	cfg := DefaultHeuristicConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	return &HeuristicEstimator{config: cfg, rng: rng}
}

func (h *HeuristicEstimator) Estimate(ctx context.Context, history []Turn, exp *Expectation, turnIndex int) (float64, string) {
	cfg := h.config
	if turnIndex < 1 || exp == nil {
		return cfg.BaseScore, ""
	}

	reply := lastMessage(history, SpeakerChatbot)
	lowerReply := strings.ToLower(reply)
	score := cfg.BaseScore

	// Frustration keyword hits, substring-matched.
	hits := 0
	for _, kw := range keywords(exp.FrustrationTrigger) {
		if strings.Contains(lowerReply, kw) {
			hits++
		}
	}
	score -= cfg.FrustrationHit * float64(hits)
	if hits > 2 {
		score -= cfg.ManyHitsPenalty
	}

	// Expectation coverage: penalize when most of what the user expected
	// never shows up in the reply.
	if expKw := keywords(exp.Expectation); len(expKw) > 0 {
		found := 0
		for _, kw := range expKw {
			if strings.Contains(lowerReply, kw) {
				found++
			}
		}
		if found*2 < len(expKw) {
			score -= cfg.CoveragePenalty
		}
	}

	// Fatigue: patience drains as turns accumulate.
	if turnIndex > 1 {
		score -= cfg.FatiguePerTurn * float64(turnIndex-1)
	}
	if turnIndex > 4 {
		score -= cfg.LateFatigue
	}

	score += cfg.NoiseLow + h.rng.Float64()*(cfg.NoiseHigh-cfg.NoiseLow)

	words := len(strings.Fields(reply))
	if words < cfg.ShortReplyWords {
		score -= cfg.ShortPenalty
	} else if words > cfg.LongReplyWords {
		score -= cfg.LongPenalty
	}

	return clamp(score, 0.0, 1.0), ""
}

// keywords lowers and splits a phrase into word tokens.
func keywords(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// ModelEstimatorConfig tunes the model-judged estimator.
type ModelEstimatorConfig struct {
	Model        string
	NeutralScore float64 // fallback on decode failure, default 0.5
	Params       Params
}

// ModelEstimator delegates scoring to a judge model and decodes its JSON
// verdict. A failed call or unusable verdict falls back to the neutral
// score; the failure never escapes.
type ModelEstimator struct {
	gateway Gateway
	config  ModelEstimatorConfig
	log     *logrus.Entry
}

// NewModelEstimator creates a model-judged estimator.
func NewModelEstimator(gateway Gateway, config ModelEstimatorConfig, log *logrus.Entry) *ModelEstimator {
	if config.NeutralScore == 0 {
		config.NeutralScore = 0.5
	}
	if log == nil {
		log = discardLogger()
	}
	return &ModelEstimator{gateway: gateway, config: config, log: log}
}

func (m *ModelEstimator) Estimate(ctx context.Context, history []Turn, exp *Expectation, turnIndex int) (float64, string) {
	userMsg := lastMessage(history, SpeakerUser)
	botMsg := lastMessage(history, SpeakerChatbot)

	prompt := SatisfactionPrompt(userMsg, botMsg, exp, turnIndex)
	raw, err := m.gateway.Generate(ctx, m.config.Model, prompt, m.config.Params)
	if err != nil {
		m.log.WithError(err).Warn("satisfaction judge call failed, using neutral score")
		return m.config.NeutralScore, "Satisfaction evaluation failed; using neutral score."
	}

	j := DecodeJudgment(raw, m.config.NeutralScore)
	if !j.OK {
		m.log.WithField("raw_len", len(raw)).Warn("satisfaction judge returned no usable JSON")
	}
	return j.Score, j.Explanation
}
