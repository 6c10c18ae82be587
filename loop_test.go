package convogen

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ══════════════════════════════════════════════
// Test helpers
// ══════════════════════════════════════════════

func testScenario() *Scenario {
	return &Scenario{
		Category:        "Career Advice",
		Name:            "Choosing between two job offers",
		Topic:           "Choosing between two job offers",
		RoleDescription: "You are deciding between a stable corporate role and a startup offer.",
		EmotionalTraits: "Torn, anxious about making the wrong call",
		Expectation: &Expectation{
			Intent:             "Decide between two offers",
			Expectation:        "structured comparison of salary risk and growth",
			FrustrationTrigger: "follow your passion",
		},
	}
}

func testStyle() StyleProfile {
	return StyleProfile{
		DimensionMessageLength: {Type: "medium", Description: "moderate detail", MinWords: 20, MaxWords: 40},
		"Formality":            {Type: "casual", Description: "informal language"},
	}
}

func testPersona() *Persona {
	return &Persona{Type: "Pragmatist", Traits: []string{"Direct", "Solution-Focused"}}
}

// scriptedGateway returns canned responses in order and fails at the
// call index set in failAt (1-based, 0 = never).
type scriptedGateway struct {
	calls   int
	failAt  int
	respond func(call int, prompt string) string
}

func (g *scriptedGateway) Generate(ctx context.Context, model, prompt string, params Params) (string, error) {
	g.calls++
	if g.failAt > 0 && g.calls == g.failAt {
		return "", errors.New("model unavailable")
	}
	if g.respond != nil {
		return g.respond(g.calls, prompt), nil
	}
	return fmt.Sprintf("message %d", g.calls), nil
}

// policyFunc adapts a function to ContinuationPolicy.
type policyFunc func(ctx context.Context, tc *TurnContext) (string, Decision, error)

func (f policyFunc) NextUserTurn(ctx context.Context, tc *TurnContext) (string, Decision, error) {
	return f(ctx, tc)
}

func continuePolicy() ContinuationPolicy {
	return policyFunc(func(ctx context.Context, tc *TurnContext) (string, Decision, error) {
		return fmt.Sprintf("user turn %d", tc.Turn), Decision{ShouldContinue: true}, nil
	})
}

func newTestGenerator(gw Gateway, policy ContinuationPolicy) *Generator {
	return NewGenerator(gw, &SeedStore{}, policy, rand.New(rand.NewSource(1)), nil)
}

func pinnedConfig(minTurns, maxTurns int) LoopConfig {
	return LoopConfig{
		MinTurns:  minTurns,
		MaxTurns:  maxTurns,
		ChatModel: "test-model",
		Persona:   testPersona(),
		Style:     testStyle(),
	}
}

// ══════════════════════════════════════════════
// Core behavior
// ══════════════════════════════════════════════

func TestLoop_StopsExactlyAtMaxTurns(t *testing.T) {
	gw := &scriptedGateway{}
	gen := newTestGenerator(gw, continuePolicy())

	r, err := gen.GenerateConversation(context.Background(), testScenario(), pinnedConfig(3, 3))
	require.NoError(t, err)

	assert.Equal(t, EndingMaxTurns, r.EndingReason)
	assert.Equal(t, 3, r.Turns)
	assert.Len(t, r.Conversation, 6)
}

func TestLoop_MaxTurnsWinsOverContinuationSignal(t *testing.T) {
	// Policy never wants to stop; the cap must still hold.
	gw := &scriptedGateway{}
	gen := newTestGenerator(gw, continuePolicy())

	r, err := gen.GenerateConversation(context.Background(), testScenario(), pinnedConfig(2, 5))
	require.NoError(t, err)

	assert.Equal(t, EndingMaxTurns, r.EndingReason)
	assert.Equal(t, 5, r.Turns)
}

func TestLoop_EarlyStopSkipsFinalChatbotReply(t *testing.T) {
	gw := &scriptedGateway{}
	policy := policyFunc(func(ctx context.Context, tc *TurnContext) (string, Decision, error) {
		return "thanks, that settles it", Decision{
			ShouldContinue: false,
			EndingReason:   "Got what I needed",
		}, nil
	})
	gen := newTestGenerator(gw, policy)

	r, err := gen.GenerateConversation(context.Background(), testScenario(), pinnedConfig(2, 10))
	require.NoError(t, err)

	require.Len(t, r.Conversation, 3)
	assert.Equal(t, SpeakerUser, r.Conversation[0].Speaker)
	assert.Equal(t, SpeakerChatbot, r.Conversation[1].Speaker)
	assert.Equal(t, SpeakerUser, r.Conversation[2].Speaker)
	assert.Equal(t, "Got what I needed", r.EndingReason)
	// The trailing unanswered user turn rounds up to a full turn.
	assert.Equal(t, 2, r.Turns)
}

func TestLoop_StopSignalIgnoredBeforeMinTurns(t *testing.T) {
	gw := &scriptedGateway{}
	stops := 0
	policy := policyFunc(func(ctx context.Context, tc *TurnContext) (string, Decision, error) {
		stops++
		return "still here", Decision{ShouldContinue: false, EndingReason: "Bored"}, nil
	})
	gen := newTestGenerator(gw, policy)

	r, err := gen.GenerateConversation(context.Background(), testScenario(), pinnedConfig(4, 10))
	require.NoError(t, err)

	// Turns 2 and 3 want to stop but min_turns holds the loop open;
	// the stop at turn 4 is honored.
	assert.Equal(t, "Bored", r.EndingReason)
	assert.Equal(t, 4, r.Turns)
	assert.Equal(t, 3, stops)
}

func TestLoop_DefaultEndingReasonOnEarlyStop(t *testing.T) {
	gw := &scriptedGateway{}
	policy := policyFunc(func(ctx context.Context, tc *TurnContext) (string, Decision, error) {
		return "bye", Decision{ShouldContinue: false}, nil
	})
	gen := newTestGenerator(gw, policy)

	r, err := gen.GenerateConversation(context.Background(), testScenario(), pinnedConfig(2, 10))
	require.NoError(t, err)
	assert.Equal(t, EndingUserEnded, r.EndingReason)
}

func TestLoop_AlternationInvariant(t *testing.T) {
	gw := &scriptedGateway{}
	gen := newTestGenerator(gw, continuePolicy())

	r, err := gen.GenerateConversation(context.Background(), testScenario(), pinnedConfig(3, 6))
	require.NoError(t, err)

	for i, turn := range r.Conversation {
		want := SpeakerUser
		if i%2 == 1 {
			want = SpeakerChatbot
		}
		assert.Equalf(t, want, turn.Speaker, "entry %d", i)
	}
}

func TestLoop_GenerationErrorFreezesPartialResult(t *testing.T) {
	// Calls: 1 opening, 2 chatbot, 3 chatbot (turn 2) — fail there.
	gw := &scriptedGateway{failAt: 3}
	gen := newTestGenerator(gw, continuePolicy())

	r, err := gen.GenerateConversation(context.Background(), testScenario(), pinnedConfig(3, 5))
	require.NoError(t, err, "generation failures must not escape the loop")

	assert.Equal(t, EndingError, r.EndingReason)
	assert.Len(t, r.Conversation, 3) // U1, C1, U2 — C2 failed
	assert.Equal(t, 2, r.Turns)
}

func TestLoop_PolicyErrorFreezesPartialResult(t *testing.T) {
	gw := &scriptedGateway{}
	policy := policyFunc(func(ctx context.Context, tc *TurnContext) (string, Decision, error) {
		return "", Decision{}, generationErr("user message", errors.New("boom"))
	})
	gen := newTestGenerator(gw, policy)

	r, err := gen.GenerateConversation(context.Background(), testScenario(), pinnedConfig(2, 5))
	require.NoError(t, err)

	assert.Equal(t, EndingError, r.EndingReason)
	assert.Len(t, r.Conversation, 2)
	assert.Equal(t, 1, r.Turns)
}

func TestLoop_InvalidTurnBoundsIsConfigurationError(t *testing.T) {
	gw := &scriptedGateway{}
	gen := newTestGenerator(gw, continuePolicy())

	_, err := gen.GenerateConversation(context.Background(), testScenario(), pinnedConfig(5, 3))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Zero(t, gw.calls, "no generation may start on bad bounds")
}

func TestLoop_SatisfactionRecordedPerNonInitialTurn(t *testing.T) {
	gw := &scriptedGateway{}
	policy := policyFunc(func(ctx context.Context, tc *TurnContext) (string, Decision, error) {
		return "next", Decision{
			ShouldContinue:  true,
			HasSatisfaction: true,
			Satisfaction:    0.4,
			Explanation:     "partially addressed",
		}, nil
	})
	gen := newTestGenerator(gw, policy)

	r, err := gen.GenerateConversation(context.Background(), testScenario(), pinnedConfig(3, 4))
	require.NoError(t, err)

	// Turns 2..4 each carry exactly one record; turn 1 has none.
	require.Len(t, r.Satisfaction, 3)
	for i, rec := range r.Satisfaction {
		assert.Equal(t, i+2, rec.Turn)
		assert.InDelta(t, 0.4, rec.Score, 1e-9)
	}
	// The explanation annotates the evaluated chatbot turn.
	assert.Equal(t, "partially addressed", r.Conversation[1].SatisfactionExplanation)
}

func TestLoop_CheckpointCalledPerCompletedExchange(t *testing.T) {
	gw := &scriptedGateway{}
	gen := newTestGenerator(gw, continuePolicy())

	r := NewConversationShell(testScenario())
	persisted := 0
	checkpoint := func(ctx context.Context) error {
		persisted++
		return nil
	}
	err := gen.Run(context.Background(), testScenario(), pinnedConfig(3, 3), r, checkpoint)
	require.NoError(t, err)

	// One checkpoint per completed exchange plus the terminal one.
	assert.Equal(t, 4, persisted)
}

func TestLoop_CheckpointFailureSurfaces(t *testing.T) {
	gw := &scriptedGateway{}
	gen := newTestGenerator(gw, continuePolicy())

	r := NewConversationShell(testScenario())
	sinkErr := errors.New("disk full")
	err := gen.Run(context.Background(), testScenario(), pinnedConfig(2, 3), r, func(ctx context.Context) error {
		return sinkErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sinkErr)
}

func TestLoop_SelectsStyleAndPersonaWhenNotPinned(t *testing.T) {
	seeds := &SeedStore{
		Personas: []Persona{{Type: "Pragmatist", Traits: []string{"Direct"}, Weight: 1}},
		Styles: StyleCatalog{
			DimensionMessageLength: {Variations: map[string]StyleVariation{
				"short": {Weight: 1, Description: "brief", MinWords: 10, MaxWords: 20},
			}},
		},
	}
	gen := NewGenerator(&scriptedGateway{}, seeds, continuePolicy(), rand.New(rand.NewSource(7)), nil)

	cfg := LoopConfig{MinTurns: 2, MaxTurns: 2, ChatModel: "test-model"}
	r, err := gen.GenerateConversation(context.Background(), testScenario(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "Pragmatist", r.Persona.Type)
	assert.Equal(t, "short", r.Style[DimensionMessageLength].Type)
	assert.Equal(t, 10, r.Style[DimensionMessageLength].MinWords)
}
