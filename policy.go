package convogen

import (
	"context"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// ──────────────────────────────────────────────
// Continuation Policy — one interface, pluggable stopping variants
// ──────────────────────────────────────────────
//
// The loop never decides whether the user keeps talking; it only asks the
// policy for the next user message plus a continuation decision. The
// satisfaction-driven and reflection-driven designs plug in behind the
// same interface instead of forking the loop.

// Decision is the continuation signal attached to a freshly generated
// user turn. It is a value, never an error.
type Decision struct {
	ShouldContinue bool
	// EndingReason is only meaningful when ShouldContinue is false.
	EndingReason string
	// Satisfaction/Explanation are recorded when HasSatisfaction is set.
	HasSatisfaction bool
	Satisfaction    float64
	Explanation     string
	// Reflection carries the structured reflection for policies that
	// produce one.
	Reflection *Reflection
}

// TurnContext is everything a policy may condition on when producing
// turn number Turn's user message.
type TurnContext struct {
	Scenario *Scenario
	Style    StyleProfile
	History  []Turn
	Turn     int
}

// ContinuationPolicy produces the next user message and the decision of
// whether the simulated user keeps going.
type ContinuationPolicy interface {
	NextUserTurn(ctx context.Context, tc *TurnContext) (string, Decision, error)
}

// SatisfactionPolicyConfig tunes the satisfaction-driven policy.
type SatisfactionPolicyConfig struct {
	UserModel string
	Params    Params
	// StopThreshold ends the conversation when the evaluated score falls
	// below it (only honored by the loop at/after min turns). Default 0.25.
	StopThreshold float64
}

// SatisfactionPolicy scores the previous exchange with an Estimator,
// feeds the score into the user prompt, and stops once satisfaction
// falls below the threshold.
type SatisfactionPolicy struct {
	gateway   Gateway
	estimator Estimator
	config    SatisfactionPolicyConfig
	rng       *rand.Rand
	log       *logrus.Entry
}

// NewSatisfactionPolicy creates a satisfaction-driven policy.
func NewSatisfactionPolicy(gateway Gateway, estimator Estimator, rng *rand.Rand, config SatisfactionPolicyConfig, log *logrus.Entry) *SatisfactionPolicy {
	if config.StopThreshold == 0 {
		config.StopThreshold = 0.25
	}
	if log == nil {
		log = discardLogger()
	}
	return &SatisfactionPolicy{
		gateway:   gateway,
		estimator: estimator,
		config:    config,
		rng:       rng,
		log:       log,
	}
}

func (p *SatisfactionPolicy) NextUserTurn(ctx context.Context, tc *TurnContext) (string, Decision, error) {
	// Evaluate the turn just completed, so its score feeds this prompt.
	score, explanation := p.estimator.Estimate(ctx, tc.History, tc.Scenario.Expectation, tc.Turn-1)

	prompt := UserMessagePrompt(tc.Scenario, tc.History, tc.Style, score, explanation, p.rng)
	message, err := p.gateway.Generate(ctx, p.config.UserModel, prompt, p.config.Params)
	if err != nil {
		return "", Decision{}, generationErr("user message", err)
	}

	d := Decision{
		ShouldContinue:  score >= p.config.StopThreshold,
		HasSatisfaction: true,
		Satisfaction:    score,
		Explanation:     explanation,
	}
	if !d.ShouldContinue {
		d.EndingReason = EndingUserEnded
		p.log.WithFields(logrus.Fields{
			"turn":  tc.Turn,
			"score": score,
		}).Debug("satisfaction below threshold, user ends conversation")
	}
	return message, d, nil
}
