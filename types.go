package convogen

// ──────────────────────────────────────────────
// Core data model — scenarios, personas, styles, turns
// ──────────────────────────────────────────────

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser    Speaker = "User"
	SpeakerChatbot Speaker = "Chatbot"
)

// Ending reasons recorded on a finished conversation.
const (
	EndingMaxTurns   = "Max Turns Reached"
	EndingUserEnded  = "User ended the conversation"
	EndingError      = "Encountered error"
	EndingInProgress = "In Progress"
)

// Expectation describes what a simulated user wants from the conversation
// and what would frustrate them.
type Expectation struct {
	Intent             string `json:"intent"`
	Expectation        string `json:"expectation"`
	FrustrationTrigger string `json:"frustration_trigger"`
}

// Scenario is the canonical, normalized form of one seeded situation.
// The on-disk catalogs come in several legacy shapes; the seed loader
// flattens all of them into this struct so nothing downstream has to
// branch on shape.
type Scenario struct {
	Category        string       `json:"category"`
	Name            string       `json:"name"`
	Topic           string       `json:"topic"`
	RoleDescription string       `json:"role_description"`
	EmotionalTraits string       `json:"emotional_traits"`
	UserGoal        string       `json:"user_goal,omitempty"`
	Expectation     *Expectation `json:"expectation,omitempty"`
}

// Persona is a chatbot behavioral archetype.
type Persona struct {
	Type   string   `json:"type"`
	Traits []string `json:"traits"`
	Weight float64  `json:"-"`
}

// StyleChoice is one selected variation of a style dimension.
// MinWords/MaxWords are only populated for the message-length dimension.
type StyleChoice struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	MinWords    int    `json:"min_words,omitempty"`
	MaxWords    int    `json:"max_words,omitempty"`
}

// StyleProfile maps style dimension name to the variation chosen for one
// conversation. Fixed once selected.
type StyleProfile map[string]StyleChoice

// DimensionMessageLength is the style dimension carrying word-count bounds.
const DimensionMessageLength = "Message Length"

// Turn is one message from either side. SatisfactionExplanation is an
// annotation attached to the most recent chatbot turn after evaluation;
// the message text itself is never rewritten.
type Turn struct {
	Speaker                 Speaker `json:"speaker"`
	Message                 string  `json:"message"`
	SatisfactionExplanation string  `json:"satisfaction_explanation,omitempty"`
}

// SatisfactionRecord captures the evaluated satisfaction for one turn.
// Turn 1 never has a record; every later turn has exactly one.
type SatisfactionRecord struct {
	Turn        int     `json:"turn"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation,omitempty"`
}

// Reflection is the structured output of a user-reflection call: the
// simulated user's private reasoning plus the continuation decision.
type Reflection struct {
	Reasoning      string `json:"reasoning"`
	NextMessage    string `json:"next_message"`
	ShouldContinue bool   `json:"should_continue"`
	EndingReason   string `json:"ending_reason,omitempty"`
	RawResponse    string `json:"raw_response,omitempty"`
}

// ConversationResult aggregates everything produced for one conversation.
// Owned and mutated by the conversation loop, frozen at termination.
type ConversationResult struct {
	ID              string               `json:"id"`
	Category        string               `json:"category"`
	Topic           string               `json:"topic"`
	RoleDescription string               `json:"role_description"`
	EmotionalTraits string               `json:"emotional_traits,omitempty"`
	Style           StyleProfile         `json:"conversation_style"`
	Persona         Persona              `json:"chatbot_persona"`
	Conversation    []Turn               `json:"conversation"`
	Reflections     []Reflection         `json:"reflections,omitempty"`
	Satisfaction    []SatisfactionRecord `json:"satisfaction,omitempty"`
	EndingReason    string               `json:"ending_reason"`
	Turns           int                  `json:"turns"`
}

// turnCount is the number of completed user/chatbot pairs; a trailing
// unanswered user turn rounds up to a full turn.
func (r *ConversationResult) turnCount() int {
	return (len(r.Conversation) + 1) / 2
}

// lastMessage returns the most recent message from the given speaker,
// or "" if that speaker has not spoken yet.
func lastMessage(history []Turn, who Speaker) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Speaker == who {
			return history[i].Message
		}
	}
	return ""
}
