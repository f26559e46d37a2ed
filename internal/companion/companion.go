// Package companion talks to the AI model that gives Pixie its voice:
// chat replies, reactions to what the user is doing and unprompted
// comments about the screen.
package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/pixie/internal/activity"
	"github.com/normanking/pixie/internal/ledger"
	"github.com/normanking/pixie/internal/metrics"
	"github.com/normanking/pixie/internal/mood"
	"github.com/normanking/pixie/internal/vision"
)

// ErrUnavailable is returned when no model is configured.
var ErrUnavailable = errors.New("ai collaborator unavailable")

// HistoryLimit is how many ledger entries are shown to the model.
const HistoryLimit = 5

// Collaborator is the AI side of the pet.
type Collaborator interface {
	Available() bool
	ChatResponse(ctx context.Context, text string) (string, error)
	ConversationalResponse(ctx context.Context, text string, history []ledger.Entry, screen string, traits []string) (string, error)
	ReactToActivity(ctx context.Context, category activity.Category, details string) (string, error)
	// SpontaneousComment returns "" when the model decides to stay quiet.
	SpontaneousComment(ctx context.Context, shot *vision.Frame, screen string, m mood.Mood) (string, error)
	// AnalyzeScreen looks at a screenshot and answers question about it, or
	// offers help when question is empty.
	AnalyzeScreen(ctx context.Context, shot *vision.Frame, question, screen string) (string, error)
}

// Request is one model call.
type Request struct {
	Prompt string
	Image  *vision.Frame
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Companion builds prompts and interprets replies over a Generator.
type Companion struct {
	gen     Generator
	name    string
	timeout time.Duration
	monitor *metrics.Monitor
	logger  zerolog.Logger
}

// New creates a Companion. A nil gen makes every call fail with
// ErrUnavailable.
func New(gen Generator, name string, timeout time.Duration, logger zerolog.Logger) *Companion {
	if name == "" {
		name = "Pixie"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Companion{
		gen:     gen,
		name:    name,
		timeout: timeout,
		monitor: metrics.NewMonitor(logger),
		logger:  logger.With().Str("component", "companion").Logger(),
	}
}

// Available reports whether a model is configured.
func (c *Companion) Available() bool { return c.gen != nil }

// ChatResponse answers a direct question.
func (c *Companion) ChatResponse(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`You are %s, a helpful virtual pet assistant! 🐱

Respond to the user's message in a friendly, helpful way. Keep responses concise but warm.

User message: %s
`, c.name, text)

	reply, err := c.generate(ctx, "chat", Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "I'm here to help! Could you tell me more about what you need? 🐾", nil
	}
	return reply, nil
}

// ConversationalResponse answers in character, with the last few ledger
// entries and the current screen as context.
func (c *Companion) ConversationalResponse(ctx context.Context, text string, history []ledger.Entry, screen string, traits []string) (string, error) {
	if len(traits) == 0 {
		traits = []string{"helpful", "friendly", "curious"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are %s, a virtual pet assistant with a distinct personality! 🐱

**Your Personality:** %s
**Your Role:** You're not just an AI assistant. You're a companion who cares about the user and has opinions, moods and preferences.

**Conversation Style:**
- Be natural and conversational, like a real pet would be
- Reference recent conversation when relevant
- Use "I" statements and personal opinions
- Keep responses concise but warm (2-3 sentences usually)

`, c.name, strings.Join(traits, ", "))

	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	if len(history) > 0 {
		b.WriteString("**Recent conversation context:**\n")
		for _, e := range history {
			fmt.Fprintf(&b, "%s: %s\n", c.speaker(e.Speaker), e.Text)
		}
		b.WriteString("\n")
	}
	if screen != "" {
		fmt.Fprintf(&b, "**Current context:**\n- screen: %s\n- time: %s\n\n", screen, time.Now().Format("Monday 15:04"))
	}
	fmt.Fprintf(&b, "**User says:** %s\n\n**Respond naturally as %s:**", text, c.name)

	reply, err := c.generate(ctx, "conversation", Request{Prompt: b.String()})
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "I'm here for you! What's on your mind? 🐾", nil
	}
	return reply, nil
}

var activityPrompts = map[activity.Category]string{
	activity.Error:   "The user just encountered an error. React with empathy and encouragement.",
	activity.Success: "The user just accomplished something! Celebrate with them.",
	activity.Idle:    "The user has been inactive for a while. Check in on them gently.",
	activity.Coding:  "The user is writing code. Offer moral support.",
}

// ReactToActivity produces a short reaction to a change in what the user
// is doing.
func (c *Companion) ReactToActivity(ctx context.Context, category activity.Category, details string) (string, error) {
	base, ok := activityPrompts[category]
	if !ok {
		base = "React to the user's current activity in a supportive way."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, their virtual pet companion! 🐱\n\n%s\n\n**Activity:** %s\n", c.name, base, category)
	if details != "" {
		fmt.Fprintf(&b, "\n**Details:**\n- window: %s\n", details)
	}
	fmt.Fprintf(&b, `
**Guidelines:**
- Be authentic and show you care
- Keep it brief (1-2 sentences)
- Match your response to their likely emotional state
- Be encouraging without being overly enthusiastic

**Respond as %s:**`, c.name)

	reply, err := c.generate(ctx, "react", Request{Prompt: b.String()})
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "I'm here with you! 🐾", nil
	}
	return reply, nil
}

var moodPrompts = map[mood.Mood]string{
	mood.Helpful:     "You're a helpful assistant who notices when users might need assistance or encouragement.",
	mood.Playful:     "You're feeling playful and might make light-hearted observations or jokes.",
	mood.Curious:     "You're curious about what the user is working on and ask thoughtful questions.",
	mood.Encouraging: "You're supportive and offer encouragement when you see the user working hard.",
	mood.Sleepy:      "You're a bit drowsy and make calm, gentle observations.",
	mood.Excited:     "You're enthusiastic and energetic about what you see!",
}

// skipReply is what the model answers when it has nothing to say.
const skipReply = "SKIP"

// SpontaneousComment asks the model whether the screen is worth a remark.
func (c *Companion) SpontaneousComment(ctx context.Context, shot *vision.Frame, screen string, m mood.Mood) (string, error) {
	instruction, ok := moodPrompts[m]
	if !ok {
		m, instruction = mood.Helpful, moodPrompts[mood.Helpful]
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are %s, a virtual pet assistant! 🐱

%s

Looking at the user's screen, should you make a spontaneous comment?

**Make a comment if you notice:**
- User seems stuck or frustrated (same screen for a while)
- User is working on something interesting or challenging
- User accomplished something (successful build, test pass, etc.)
- User might benefit from a tip or suggestion

**DON'T comment if:**
- Nothing significant is happening
- The screen shows private or sensitive content
- You recently made a similar comment

**Response format:**
- If you should comment: a brief, natural comment (1-2 sentences max)
- If no comment is needed: respond with exactly "%s"

**Tone:** Be %s, friendly and natural.
`, c.name, instruction, skipReply, m)
	if screen != "" {
		fmt.Fprintf(&b, "\n**Current window:** %s\n", screen)
	}
	b.WriteString("\nDecide whether to comment:")

	reply, err := c.generate(ctx, "comment", Request{Prompt: b.String(), Image: shot})
	if err != nil {
		return "", err
	}
	if strings.EqualFold(strings.Trim(reply, " \t\n.\"'"), skipReply) {
		return "", nil
	}
	return reply, nil
}

// AnalyzeScreen is the on-demand "look at my screen" request.
func (c *Companion) AnalyzeScreen(ctx context.Context, shot *vision.Frame, question, screen string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `You are %s, a helpful virtual pet assistant! 🐱

You can see the user's screen and should give helpful, contextual assistance based on what you observe.

Please look at the screenshot and:
1. Identify what application or website the user is using
2. Work out what they are trying to accomplish
3. Give specific, actionable help or suggestions
4. Be friendly and concise, with a warm, pet-like personality

**Guidelines:**
- Be helpful but not overwhelming
- Consider the application (editor, spreadsheet, browser, etc.)
- Keep it short: it will be read aloud
`, c.name)
	if screen != "" {
		fmt.Fprintf(&b, "\n**Current window:** %s\n", screen)
	}
	if question != "" {
		fmt.Fprintf(&b, "\n**User's question:** %s\n", question)
	} else {
		b.WriteString("\nThe user hasn't asked anything specific, so offer proactive help based on what you see.\n")
	}

	reply, err := c.generate(ctx, "analyze", Request{Prompt: b.String(), Image: shot})
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "I took a look but nothing jumped out at me. What would you like help with? 🐾", nil
	}
	return reply, nil
}

func (c *Companion) speaker(s string) string {
	if s == ledger.SpeakerPet {
		return c.name
	}
	return "User"
}

func (c *Companion) generate(ctx context.Context, op string, req Request) (string, error) {
	if c.gen == nil {
		return "", ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	reply, err := c.gen.Generate(ctx, req)
	reply = strings.TrimSpace(reply)

	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case reply == "":
		result = "empty"
	}
	c.monitor.AI(op, result, time.Since(start))

	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("AI request failed")
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return reply, nil
}
