package convogen

import (
	"context"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// ──────────────────────────────────────────────
// Reflection Policy — single-call roleplay with continuation decision
// ──────────────────────────────────────────────

// ReflectionPolicyConfig tunes the reflection-driven policy.
type ReflectionPolicyConfig struct {
	// ReasoningModel performs the roleplay reflection; typically a
	// different (cheaper or more deliberate) model than the chatbot's.
	ReasoningModel string
	Params         Params
}

// ReflectionPolicy asks one model call to think as the user and emit the
// next message together with should_continue/ending_reason, decoded
// defensively from JSON-in-prose.
type ReflectionPolicy struct {
	gateway Gateway
	config  ReflectionPolicyConfig
	rng     *rand.Rand
	log     *logrus.Entry
}

// NewReflectionPolicy creates a reflection-driven policy.
func NewReflectionPolicy(gateway Gateway, rng *rand.Rand, config ReflectionPolicyConfig, log *logrus.Entry) *ReflectionPolicy {
	if log == nil {
		log = discardLogger()
	}
	return &ReflectionPolicy{gateway: gateway, config: config, rng: rng, log: log}
}

func (p *ReflectionPolicy) NextUserTurn(ctx context.Context, tc *TurnContext) (string, Decision, error) {
	lastBot := lastMessage(tc.History, SpeakerChatbot)

	prompt := ReflectionPrompt(
		tc.Scenario,
		tc.History,
		LengthGuidance(tc.Turn, tc.Style, lastBot, p.rng),
		BehaviorGuidance(tc.Turn),
		GoalGuidance(tc.Scenario.UserGoal, tc.Turn),
	)

	raw, err := p.gateway.Generate(ctx, p.config.ReasoningModel, prompt, p.config.Params)
	if err != nil {
		return "", Decision{}, generationErr("user reflection", err)
	}

	r := DecodeReflection(raw)
	d := Decision{
		ShouldContinue: r.ShouldContinue,
		Reflection:     &r,
	}
	if !r.ShouldContinue {
		d.EndingReason = r.EndingReason
		if d.EndingReason == "" {
			d.EndingReason = EndingUserEnded
		}
		p.log.WithFields(logrus.Fields{
			"turn":   tc.Turn,
			"reason": d.EndingReason,
		}).Debug("reflection ends conversation")
	}
	return r.NextMessage, d, nil
}
