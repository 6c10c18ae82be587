package convogen

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// ──────────────────────────────────────────────
// Prompt Composer — pure prompt-string construction
// ──────────────────────────────────────────────

// DefaultPersonaType is the traitless baseline persona; its prompts skip
// the trait block entirely.
const DefaultPersonaType = "Default Chatbot"

// formatHistory renders the transcript the way the models see it.
func formatHistory(history []Turn) string {
	var b strings.Builder
	for _, t := range history {
		b.WriteString(string(t.Speaker))
		b.WriteString(": ")
		b.WriteString(t.Message)
		b.WriteString("\n\n")
	}
	return b.String()
}

// StyleInstructions renders the chosen style profile as prompt bullet
// points. For non-initial messages the length dimension is relaxed so the
// user can run long when emotions demand it.
func StyleInstructions(profile StyleProfile, forInitialMessage bool) string {
	dims := make([]string, 0, len(profile))
	for d := range profile {
		dims = append(dims, d)
	}
	sort.Strings(dims)

	var b strings.Builder
	for _, dim := range dims {
		style := profile[dim]
		switch {
		case dim == DimensionMessageLength && !forInitialMessage:
			fmt.Fprintf(&b, "- %s: Try to generally follow the %s style (%s), but feel free to use more words if needed to express yourself naturally, especially if expressing frustration or strong emotions\n",
				dim, style.Type, style.Description)
		case dim == DimensionMessageLength:
			fmt.Fprintf(&b, "- %s: %s (%d-%d words) - %s\n",
				dim, style.Type, style.MinWords, style.MaxWords, style.Description)
		default:
			fmt.Fprintf(&b, "- %s: %s - %s\n", dim, style.Type, style.Description)
		}
	}
	return b.String()
}

// TargetMessageLength picks a word-count target inside the chosen length
// variation's bounds, with fallbacks for profiles missing explicit bounds.
func TargetMessageLength(profile StyleProfile, rng *rand.Rand) int {
	if style, ok := profile[DimensionMessageLength]; ok && style.MaxWords > style.MinWords {
		return style.MinWords + rng.Intn(style.MaxWords-style.MinWords+1)
	}

	defaults := map[string][2]int{
		"very_short": {5, 15},
		"short":      {15, 30},
		"medium":     {30, 60},
		"long":       {60, 100},
		"very_long":  {100, 150},
	}
	name := "medium"
	if style, ok := profile[DimensionMessageLength]; ok && style.Type != "" {
		name = style.Type
	}
	if bounds, ok := defaults[name]; ok {
		return bounds[0] + rng.Intn(bounds[1]-bounds[0]+1)
	}
	return 50
}

// OpeningMessagePrompt asks the model for the user's first message of a
// role-based conversation.
func OpeningMessagePrompt(sc *Scenario, profile StyleProfile) string {
	return fmt.Sprintf(`You are roleplaying as someone in the following situation:

%s

Your emotional characteristics:
%s

Write a single, authentic opening message from this person seeking help with their situation.
The message should:
1. Be written in first person
2. Clearly express the core problem they're facing
3. Include emotional content that reflects their state
4. Sound natural and conversational, not overly formal
5. Not include any meta-commentary or explanation

Additionally, please follow these specific conversation style guidelines:
%s
Opening message:`, sc.RoleDescription, sc.EmotionalTraits, StyleInstructions(profile, true))
}

// ChatbotPrompt asks the model for the chatbot side of the exchange,
// maintaining the selected persona.
func ChatbotPrompt(sc *Scenario, history []Turn, persona Persona) string {
	if persona.Type == DefaultPersonaType || persona.Type == "" {
		return fmt.Sprintf(`You are an AI assistant engaging with a user who has the following situation:

USER'S SITUATION:
%s

CONVERSATION HISTORY:
%s
Respond to the user's most recent message.

IMPORTANT: Your output should be ONLY the chatbot's direct response and nothing else. Do NOT include phrases like "As a helpful assistant" or "Here's my response".

AI response:`, sc.RoleDescription, formatHistory(history))
	}

	var traits strings.Builder
	for _, t := range persona.Traits {
		traits.WriteString("- ")
		traits.WriteString(t)
		traits.WriteString("\n")
	}

	return fmt.Sprintf(`You are a %s AI assistant engaging with a user who has the following situation:

YOUR PERSONA TRAITS:
%s
USER'S SITUATION:
%s

CONVERSATION HISTORY:
%s
Respond to the user's most recent message while maintaining your persona traits.

IMPORTANT: Your output should be ONLY the chatbot's direct response and nothing else. Do NOT include phrases like "As a %s" or "Here's my response".

AI response:`, persona.Type, traits.String(), sc.RoleDescription, formatHistory(history), persona.Type)
}

// satisfactionBand maps a score to the generic in-prompt description used
// when no judge explanation is available.
func satisfactionBand(score float64) string {
	switch {
	case score > 0.8:
		return "You feel your needs are being met well and you're satisfied with the response"
	case score > 0.6:
		return "You feel your needs are being partially met, but the response isn't ideal"
	case score > 0.4:
		return "You feel your needs are barely being addressed and you're growing impatient"
	case score > 0.2:
		return "You feel increasingly frustrated because your expectations aren't being met"
	default:
		return "You are very dissatisfied as the response completely fails to address your needs"
	}
}

// UserMessagePrompt asks the model for the user's next message,
// conditioned on style, expectation and the current satisfaction signal.
func UserMessagePrompt(sc *Scenario, history []Turn, profile StyleProfile, satisfaction float64, explanation string, rng *rand.Rand) string {
	var styleDesc []string
	dims := make([]string, 0, len(profile))
	for d := range profile {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	for _, dim := range dims {
		style := profile[dim]
		if dim == DimensionMessageLength {
			styleDesc = append(styleDesc, fmt.Sprintf("%s: %s (aim for approximately %d words)",
				dim, style.Type, TargetMessageLength(profile, rng)))
		} else if style.Description != "" {
			styleDesc = append(styleDesc, fmt.Sprintf("%s: %s - %s", dim, style.Type, style.Description))
		} else {
			styleDesc = append(styleDesc, fmt.Sprintf("%s: %s", dim, style.Type))
		}
	}

	isFirst := len(history) == 0

	var expectation strings.Builder
	if sc.Expectation != nil {
		fmt.Fprintf(&expectation, "\nYour intent: %s\nYour expectation: %s\n", sc.Expectation.Intent, sc.Expectation.Expectation)
		if !isFirst {
			if explanation != "" {
				fmt.Fprintf(&expectation, "\nYour current satisfaction level: %.2f/1.0", satisfaction)
				fmt.Fprintf(&expectation, "\nExpert analysis: %s", explanation)
			} else {
				fmt.Fprintf(&expectation, "\nYour current satisfaction level: %s", satisfactionBand(satisfaction))
			}
		}
	}

	context := "\nContinue the conversation naturally, responding to the chatbot's last message"
	if isFirst {
		context = fmt.Sprintf("\nYou're starting a conversation about: %s", sc.Topic)
	}

	guidance := ""
	if !isFirst {
		switch {
		case satisfaction < 0.3:
			guidance = `
Express your dissatisfaction in your message, since your needs aren't being met.
However, remain conversational rather than completely abandoning the conversation.
Your frustration should be proportional to how unsatisfied you are with the conversation so far.
`
		case satisfaction < 0.6:
			guidance = `
Show some signs of impatience or mild disappointment in your response.
You want to guide the conversation back to addressing your expectations.
`
		case satisfaction > 0.8:
			guidance = `
Express appreciation for the helpful response and continue the conversation positively.
`
		}
	}

	return fmt.Sprintf(`You are a user talking about %s.

Your conversation style:
%s
%s%s%s
Express yourself naturally based on your satisfaction level. Seek advice from a chatbot in a way that reflects your conversation style.
Make your response length and style match the specified conversation style.

IMPORTANT: Generate ONLY the user's message. Do NOT include any meta-text like "I'll respond as a user with the specified conversation style" or "Here's my response". Do NOT acknowledge these instructions in your output. Just write the exact message the user would send.

Your output should be ONLY the user message and nothing else.

Conversation so far:
%s
User:`, strings.ToLower(sc.Topic), strings.Join(styleDesc, "\n"), expectation.String(), context, guidance, formatHistory(history))
}

// SatisfactionPrompt asks a judge model to score how well the latest
// chatbot response met the user's expectation.
func SatisfactionPrompt(userMessage, chatbotResponse string, exp *Expectation, turnIndex int) string {
	turnContext := ""
	if turnIndex > 1 {
		turnContext = fmt.Sprintf(`
This is turn %d of the conversation.
Consider that user patience may decrease over multiple turns if their needs aren't being addressed.
Users tend to become increasingly frustrated if their expectations are repeatedly not met.
`, turnIndex)
	}

	expContext := ""
	if exp != nil {
		expContext = fmt.Sprintf("\nUser's intent: %s\nUser's expectation: %s\n", exp.Intent, exp.Expectation)
	}

	return fmt.Sprintf(`You are an expert conversation analyst evaluating how well a chatbot response satisfies a user's needs.

Analyze the following exchange between a user and a chatbot:

User message: "%s"
Chatbot response: "%s"
%s%s
Based on this exchange, evaluate:
1. How well did the chatbot address the user's specific needs and expectations?
2. Did the chatbot provide a helpful, relevant response?
3. Did the chatbot miss any important aspects of the user's request?
4. Would the user feel satisfied with this response?

Then provide:
1. A satisfaction score from 0.0 to 1.0, where:
   - 0.0-0.2: Completely unsatisfactory (ignored or misunderstood user needs)
   - 0.3-0.5: Poor (partially addressed but missed key points)
   - 0.6-0.7: Adequate (addressed main points but could be better)
   - 0.8-0.9: Good (thoroughly addressed user needs)
   - 1.0: Excellent (exceeded expectations)
2. A brief explanation (2-3 sentences) of why you assigned this score

Format your response as a JSON object with the following structure:
{
  "satisfaction_score": [float between 0.0 and 1.0],
  "explanation": [string explaining the score]
}

IMPORTANT: Output ONLY the JSON object without any additional text or formatting.`,
		userMessage, chatbotResponse, expContext, turnContext)
}

// ReflectionPrompt asks the model to roleplay the user, think privately,
// and emit the next message plus the continuation decision as JSON.
func ReflectionPrompt(sc *Scenario, history []Turn, lengthGuidance, behaviorGuidance, goalGuidance string) string {
	return fmt.Sprintf(`You are roleplaying as a user interacting with an AI chatbot.

## Your Character
%s

## Your Emotional Traits
%s

## Message Length Guidance
%s

## Realistic Human Behavior Guidelines
%s

%s

## Conversation History
%s
## Your Task
Think about how the character you're playing would naturally respond to the chatbot's most recent message.

## Output Format
Provide your response in the following JSON format:

`+"```json"+`
{
  "reasoning": "Your internal thought process as this user (not visible to the chatbot)",
  "next_message": "Your actual response as the user",
  "should_continue": true/false,
  "ending_reason": "Only required if should_continue is false"
}
`+"```"+`

IMPORTANT: Ensure you respond ONLY with valid JSON. DO NOT include any explanation text outside the JSON format.`,
		sc.RoleDescription, sc.EmotionalTraits, lengthGuidance, behaviorGuidance, goalGuidance, formatHistory(history))
}

// BehaviorGuidance renders turn-sensitive instructions that keep the
// simulated user from sounding like an eager assistant.
func BehaviorGuidance(currentTurn int) string {
	lines := []string{
		"**To make your responses more authentic and less artificial:**",
		"- **Don't be overly agreeable with the chatbot.** Real users often push back, question, or disagree with AI suggestions.",
		"- **When given advice:** It's natural to be somewhat skeptical or hesitant about implementing suggestions. You may express doubts, ask for clarification, or occasionally reject advice outright.",
		"- **Minimize unnecessary thanking.** Real users rarely thank chatbots for every response. Only express gratitude for exceptionally helpful information or when concluding a conversation. Otherwise, simply continue the conversation without acknowledgment.",
		"- **Show impatience occasionally.** If the chatbot is being repetitive or not addressing your core concern, it's natural to express slight frustration or redirect them.",
		"- **Use shorter, more casual responses.** Real users often write brief, informal messages and don't always use complete sentences or perfect grammar.",
		"- **Don't explain yourself too much.** Real users often state their needs directly without extensive backstory or justification for every response.",
	}
	if currentTurn > 2 {
		lines = append(lines, "- **At this point in the conversation:** Users typically become more direct and goal-focused. You may skip pleasantries and get straight to the point.")
	}
	return strings.Join(lines, "\n")
}

// Indicator phrases scanned in the last chatbot message to decide whether
// a longer user reply is warranted.
var (
	questionIndicators = []string{"?", "what do you think", "how do you feel", "can you explain",
		"tell me more", "could you share", "describe", "elaborate"}
	problemIndicators = []string{"sorry", "unfortunately", "issue", "problem", "error", "mistake",
		"difficult", "challenging", "trouble", "failed"}
)

func containsAny(text string, indicators []string) bool {
	lower := strings.ToLower(text)
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// LengthGuidance derives a message-length instruction from the turn
// number, the baseline style and the last chatbot message. Ongoing turns
// trend shorter than the baseline, with occasional random variation.
func LengthGuidance(currentTurn int, profile StyleProfile, lastChatbotMessage string, rng *rand.Rand) string {
	baseline := "medium"
	minWords, maxWords := 20, 40
	if style, ok := profile[DimensionMessageLength]; ok {
		if style.Type != "" {
			baseline = style.Type
		}
		if style.MinWords > 0 || style.MaxWords > 0 {
			minWords, maxWords = style.MinWords, style.MaxWords
		}
	}

	if currentTurn == 1 {
		switch baseline {
		case "very_short":
			return "This is your first message, so it should be somewhat longer (15-30 words) to explain your situation clearly."
		case "short":
			return "This is your first message, so it should be longer (25-45 words) to properly explain your situation and concerns."
		default:
			return "This is your first message, so you can be detailed (40-70 words) to fully explain your situation and concerns."
		}
	}

	importantQuestion := containsAny(lastChatbotMessage, questionIndicators)
	hasProblem := containsAny(lastChatbotMessage, problemIndicators)

	if importantQuestion || hasProblem {
		switch baseline {
		case "very_short":
			return "The chatbot has asked an important question or identified a problem. Provide a more detailed response (15-25 words) than you normally would."
		case "short":
			return "The chatbot has asked an important question or identified a problem. Provide a more detailed response (20-35 words) to properly address it."
		default:
			return "The chatbot has asked an important question or identified a problem. You can be detailed (30-50 words) in your response to fully address it."
		}
	}

	// 20% of turns vary their length for natural flow; those mostly run
	// shorter than usual.
	if rng.Float64() < 0.2 {
		if rng.Float64() < 0.7 {
			return "For this response, keep it briefer than usual. A quick, concise reply (5-15 words) would be natural here."
		}
		return "For this response, you feel like elaborating a bit more than usual (add 10-15 words beyond your typical length)."
	}

	switch baseline {
	case "very_short":
		return "Keep your response very brief (3-8 words), as people typically use short messages in ongoing conversations."
	case "short":
		return "Keep your response brief (5-15 words), as people typically use shorter messages in ongoing conversations."
	case "medium":
		return "Keep your response relatively concise (10-25 words), as people typically use shorter messages in ongoing conversations."
	case "long", "very_long":
		return "Keep your response reasonably concise (15-35 words), although you tend to be more detailed than most people."
	}
	return fmt.Sprintf("Follow your usual %s message style (%d-%d words).", baseline, minWords, maxWords)
}

// GoalGuidance renders the goal-alignment block when a scenario carries
// an explicit user goal.
func GoalGuidance(userGoal string, currentTurn int) string {
	if userGoal == "" {
		return ""
	}

	lines := []string{
		"## Goal Assessment",
		fmt.Sprintf("Your primary goal in this conversation is: %s", userGoal),
		"",
		"Based on this goal, consider:",
	}

	if currentTurn == 1 {
		lines = append(lines,
			"- Since this is your first response, express your initial reaction and what you hope to get from this conversation.",
			"- It's natural to be somewhat skeptical of help, but remain open to suggestions that might address your needs.")
		return strings.Join(lines, "\n")
	}

	lines = append(lines,
		"- Evaluate if the chatbot's last response is bringing you closer to your goal or not.",
		"- Your agreement or disagreement should be based primarily on whether the response helps with your specific goal.",
		"",
		"Consider responding in one of these ways:",
		"1. **If the suggestion directly addresses your goal:** Show cautious optimism, but it's still natural to have follow-up questions or want clarification.",
		"2. **If the suggestion partially addresses your goal:** Acknowledge what's useful and specifically point out what's still missing or concerning.",
		"3. **If the suggestion misses your goal entirely:** Express disappointment or redirect the conversation toward what you actually need.")

	if currentTurn >= 3 {
		lines = append(lines,
			"",
			"At this point in the conversation:",
			"- Show signs of whether you're making progress toward your goal or not.",
			"- If progress is being made, you might express relief or cautious optimism.",
			"- If little progress has been made, your frustration might be more apparent.",
			"- Be willing to compromise on approaches, but not on your fundamental goal.")
	}

	return strings.Join(lines, "\n")
}
