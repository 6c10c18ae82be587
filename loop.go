package convogen

import (
	"context"
	"errors"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ──────────────────────────────────────────────
// Conversation Loop — the turn-taking state machine
// ──────────────────────────────────────────────
//
// Turn order within one conversation: opening user message, chatbot
// reply, then repeated (policy → user message → stop check → chatbot
// reply) until max turns. The continuation decision is always evaluated
// on the user message it was produced with, after that message is
// appended; on an early stop the chatbot gets no final reply.

// LoopConfig configures one conversation.
type LoopConfig struct {
	MinTurns  int
	MaxTurns  int
	ChatModel string
	Params    Params
	// Persona/Style pin the selection; when nil/empty the loop draws
	// them from the seed catalogs.
	Persona *Persona
	Style   StyleProfile
}

// Generator runs conversation loops against one gateway and policy.
type Generator struct {
	gateway Gateway
	seeds   *SeedStore
	policy  ContinuationPolicy
	rng     *rand.Rand
	log     *logrus.Entry
}

// NewGenerator creates a conversation generator. rng must be non-nil;
// seed it for reproducible runs. A nil logger discards logs.
func NewGenerator(gateway Gateway, seeds *SeedStore, policy ContinuationPolicy, rng *rand.Rand, log *logrus.Entry) *Generator {
	if log == nil {
		log = discardLogger()
	}
	return &Generator{
		gateway: gateway,
		seeds:   seeds,
		policy:  policy,
		rng:     rng,
		log:     log,
	}
}

// NewConversationShell creates the result the loop will own, marked
// in-progress. The driver appends it to the dataset before running the
// loop so every incremental snapshot includes the in-flight conversation.
func NewConversationShell(sc *Scenario) *ConversationResult {
	return &ConversationResult{
		ID:              uuid.NewString(),
		Category:        sc.Category,
		Topic:           sc.Topic,
		RoleDescription: sc.RoleDescription,
		EmotionalTraits: sc.EmotionalTraits,
		EndingReason:    EndingInProgress,
	}
}

// GenerateConversation runs one complete conversation without a
// persistence checkpoint.
func (g *Generator) GenerateConversation(ctx context.Context, sc *Scenario, cfg LoopConfig) (*ConversationResult, error) {
	r := NewConversationShell(sc)
	if err := g.Run(ctx, sc, cfg, r, nil); err != nil {
		return r, err
	}
	return r, nil
}

// persistError marks a checkpoint failure so Run can tell data-loss risk
// apart from a failed model call.
type persistError struct{ err error }

func (e *persistError) Error() string { return e.err.Error() }
func (e *persistError) Unwrap() error { return e.err }

// Run executes the loop, mutating r in place. checkpoint, when non-nil,
// is invoked after every mutation of r that completes a message.
//
// Errors: a ConfigurationError (bad turn bounds, empty catalogs) is
// returned before any generation starts. A checkpoint failure is
// returned as-is — it implies data-loss risk. A generation failure is
// NOT returned: it freezes r with ending reason "Encountered error" so
// one bad conversation never aborts a batch.
func (g *Generator) Run(ctx context.Context, sc *Scenario, cfg LoopConfig, r *ConversationResult, checkpoint func(context.Context) error) error {
	if cfg.MinTurns < 1 || cfg.MaxTurns < cfg.MinTurns {
		return configErrorf("invalid turn bounds: min=%d max=%d", cfg.MinTurns, cfg.MaxTurns)
	}

	if err := g.prepare(cfg, r); err != nil {
		return err
	}

	persist := func() error {
		if checkpoint == nil {
			return nil
		}
		if err := checkpoint(ctx); err != nil {
			return &persistError{err: err}
		}
		return nil
	}

	err := g.converse(ctx, sc, cfg, r, persist)
	if err == nil {
		return nil
	}

	var pe *persistError
	if errors.As(err, &pe) {
		return pe.err
	}

	// Generation failed mid-conversation: freeze the partial result.
	g.log.WithError(err).WithField("conversation", r.ID).Warn("conversation aborted by generation error")
	r.EndingReason = EndingError
	r.Turns = r.turnCount()
	if perr := persist(); perr != nil {
		return errors.Unwrap(perr)
	}
	return nil
}

// prepare selects style and persona unless the caller pinned them.
func (g *Generator) prepare(cfg LoopConfig, r *ConversationResult) error {
	if cfg.Style != nil {
		r.Style = cfg.Style
	} else {
		style, err := g.seeds.SelectStyleProfile(g.rng)
		if err != nil {
			return err
		}
		r.Style = style
	}

	if cfg.Persona != nil {
		r.Persona = *cfg.Persona
	} else {
		persona, err := g.seeds.SelectPersona(g.rng)
		if err != nil {
			return err
		}
		r.Persona = persona
	}
	return nil
}

func (g *Generator) converse(ctx context.Context, sc *Scenario, cfg LoopConfig, r *ConversationResult, persist func() error) error {
	currentTurn := 1
	g.log.WithFields(logrus.Fields{"conversation": r.ID, "turn": currentTurn}).Info("generating turn")

	// Turn 1: opening user message, generated from the scenario alone.
	// No satisfaction evaluation exists for it by definition.
	opening, err := g.gateway.Generate(ctx, cfg.ChatModel, OpeningMessagePrompt(sc, r.Style), cfg.Params)
	if err != nil {
		return generationErr("opening user message", err)
	}
	r.Conversation = append(r.Conversation, Turn{Speaker: SpeakerUser, Message: strings.TrimSpace(opening)})
	r.Turns = r.turnCount()

	if err := g.chatbotReply(ctx, sc, cfg, r); err != nil {
		return err
	}
	if err := persist(); err != nil {
		return err
	}

	for currentTurn < cfg.MaxTurns {
		currentTurn++
		g.log.WithFields(logrus.Fields{"conversation": r.ID, "turn": currentTurn}).Info("generating turn")

		tc := &TurnContext{
			Scenario: sc,
			Style:    r.Style,
			History:  r.Conversation,
			Turn:     currentTurn,
		}
		message, decision, err := g.policy.NextUserTurn(ctx, tc)
		if err != nil {
			return err
		}

		g.recordDecision(r, currentTurn, decision)
		r.Conversation = append(r.Conversation, Turn{Speaker: SpeakerUser, Message: strings.TrimSpace(message)})
		r.Turns = r.turnCount()

		if currentTurn >= cfg.MinTurns && !decision.ShouldContinue {
			r.EndingReason = decision.EndingReason
			if r.EndingReason == "" {
				r.EndingReason = EndingUserEnded
			}
			return persist()
		}

		if err := g.chatbotReply(ctx, sc, cfg, r); err != nil {
			return err
		}
		if err := persist(); err != nil {
			return err
		}
	}

	r.EndingReason = EndingMaxTurns
	return persist()
}

// chatbotReply generates and appends the chatbot's answer to the latest
// user message.
func (g *Generator) chatbotReply(ctx context.Context, sc *Scenario, cfg LoopConfig, r *ConversationResult) error {
	reply, err := g.gateway.Generate(ctx, cfg.ChatModel, ChatbotPrompt(sc, r.Conversation, r.Persona), cfg.Params)
	if err != nil {
		return generationErr("chatbot reply", err)
	}
	r.Conversation = append(r.Conversation, Turn{Speaker: SpeakerChatbot, Message: strings.TrimSpace(reply)})
	r.Turns = r.turnCount()
	return nil
}

// recordDecision folds the policy's decision into the result: the
// satisfaction record for this turn, the explanation annotation on the
// just-evaluated chatbot turn, and any reflection.
func (g *Generator) recordDecision(r *ConversationResult, turn int, d Decision) {
	if d.HasSatisfaction {
		r.Satisfaction = append(r.Satisfaction, SatisfactionRecord{
			Turn:        turn,
			Score:       d.Satisfaction,
			Explanation: d.Explanation,
		})
		if d.Explanation != "" {
			for i := len(r.Conversation) - 1; i >= 0; i-- {
				if r.Conversation[i].Speaker == SpeakerChatbot {
					r.Conversation[i].SatisfactionExplanation = d.Explanation
					break
				}
			}
		}
	}
	if d.Reflection != nil {
		r.Reflections = append(r.Reflections, *d.Reflection)
	}
}
