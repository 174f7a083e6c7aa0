// Package dm implements the AI Dungeon Master narration pipeline: input
// moderation, prompt assembly, provider calls with retry, output moderation,
// and suggested-action extraction.
package dm

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"dnd-dm-bot/game"
	"dnd-dm-bot/llm"
	"dnd-dm-bot/moderation"
	"dnd-dm-bot/prompt"
)

const (
	// costPerToken is a flat GPT-4 average of $0.03 per 1K tokens.
	costPerToken = 0.03 / 1000

	maxSuggestedActions = 3
	maxRetries          = 3

	npcSystemPrompt = "You are a skilled actor playing an NPC in a D&D game. " +
		"Stay in character and respond naturally to the player."
	sceneSystemPrompt = "You are an expert at creating vivid, immersive scene descriptions " +
		"for D&D games. Paint a picture with words that engages all the senses."
)

// combatKeywords is the fallback heuristic used when no InCombat world flag
// is present.
var combatKeywords = []string{"attack", "combat", "initiative", "damage"}

// Response is the assembled DM reply handed back to the caller. It is not
// persisted by the pipeline itself.
type Response struct {
	Content          string
	SuggestedActions []string
	TokensUsed       int
	ResponseTime     time.Duration
	EstimatedCost    float64
	WasModerated     bool
}

// RejectionError reports player input blocked by content moderation. It is
// distinct from system errors so callers can explain why the input was
// refused.
type RejectionError struct {
	Violations []string
}

func (e *RejectionError) Error() string {
	return "content moderation failed: " + strings.Join(e.Violations, ", ")
}

// Orchestrator ties the moderator, the prompt assembler, and the provider
// together into the narration pipeline.
type Orchestrator struct {
	provider  llm.Provider
	moderator *moderation.Moderator
}

// NewOrchestrator creates a narration orchestrator.
func NewOrchestrator(provider llm.Provider, moderator *moderation.Moderator) *Orchestrator {
	return &Orchestrator{provider: provider, moderator: moderator}
}

// GenerateResponse produces a DM narration for a player action. Unsafe input
// is rejected with a RejectionError; unsafe output is replaced by its
// sanitized form. Transient provider failures are retried with exponential
// backoff before the final failure surfaces.
func (o *Orchestrator) GenerateResponse(ctx context.Context, sc game.SessionContext, playerAction string) (Response, error) {
	log.Printf("[DM] Generating response for session %d (action length %d)", sc.SessionID, len(playerAction))
	start := time.Now()

	input := o.moderator.ModerateInput(playerAction)
	if !input.IsSafe {
		log.Printf("[DM] Player input blocked: %s", strings.Join(input.Violations, ", "))
		return Response{}, &RejectionError{Violations: input.Violations}
	}

	systemPrompt := prompt.SystemPrompt(sessionMode(sc))
	userMessage := buildUserMessage(sc, playerAction)

	completion, err := o.complete(ctx, systemPrompt, userMessage)
	if err != nil {
		return Response{}, fmt.Errorf("generate response: %w", err)
	}

	response := o.finish(completion, start)
	response.SuggestedActions = extractSuggestedActions(response.Content)

	log.Printf("[DM] Response generated for session %d (tokens %d, %s)", sc.SessionID, completion.TokensUsed, response.ResponseTime)
	return response, nil
}

// StreamResponse relays provider chunks to the caller in arrival order. A
// moderation rejection yields a single explanatory chunk and a closed
// channel instead of an error. Output moderation runs after the stream
// completes and is logged only: delivered chunks cannot be retracted.
// Cancellation stops chunk emission without a final error chunk.
func (o *Orchestrator) StreamResponse(ctx context.Context, sc game.SessionContext, playerAction string) (<-chan string, error) {
	log.Printf("[DM] Starting streaming response for session %d", sc.SessionID)

	input := o.moderator.ModerateInput(playerAction)
	if !input.IsSafe {
		log.Printf("[DM] Player input blocked during streaming: %s", strings.Join(input.Violations, ", "))
		ch := make(chan string, 1)
		ch <- fmt.Sprintf("[Content blocked: %s]", strings.Join(input.Violations, ", "))
		close(ch)
		return ch, nil
	}

	systemPrompt := prompt.SystemPrompt(sessionMode(sc))
	userMessage := buildUserMessage(sc, playerAction)

	stream, err := o.stream(ctx, systemPrompt, userMessage)
	if err != nil {
		return nil, fmt.Errorf("stream response: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)

		var full strings.Builder
		for chunk := range stream {
			full.WriteString(chunk)
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		output := o.moderator.ModerateOutput(full.String())
		if output.HasViolations() {
			log.Printf("[DM] Streamed output contained violations: %s", strings.Join(output.Violations, ", "))
		}
		log.Printf("[DM] Streaming response completed for session %d", sc.SessionID)
	}()

	return out, nil
}

// GenerateNpcDialogue produces an in-character NPC reply to a player
// utterance. The scenario branch logic does not apply.
func (o *Orchestrator) GenerateNpcDialogue(ctx context.Context, sc game.SessionContext, npc game.NpcContext, playerMessage string) (Response, error) {
	log.Printf("[DM] Generating NPC dialogue for %s in session %d", npc.Name, sc.SessionID)
	start := time.Now()

	input := o.moderator.ModerateInput(playerMessage)
	if !input.IsSafe {
		return Response{}, &RejectionError{Violations: input.Violations}
	}

	completion, err := o.complete(ctx, npcSystemPrompt, prompt.NpcPrompt(npc, playerMessage))
	if err != nil {
		return Response{}, fmt.Errorf("npc dialogue: %w", err)
	}

	return o.finish(completion, start), nil
}

// DescribeScene produces a narrated description of a location. There is no
// player utterance to moderate.
func (o *Orchestrator) DescribeScene(ctx context.Context, sc game.SessionContext, location game.LocationContext) (Response, error) {
	log.Printf("[DM] Generating scene description for %s in session %d", location.Name, sc.SessionID)
	start := time.Now()

	completion, err := o.complete(ctx, sceneSystemPrompt, prompt.ScenePrompt(location))
	if err != nil {
		return Response{}, fmt.Errorf("describe scene: %w", err)
	}

	return o.finish(completion, start), nil
}

// complete calls the provider, retrying transient failures with exponential
// backoff. Fatal failures and cancellation surface immediately and are never
// retried.
func (o *Orchestrator) complete(ctx context.Context, systemPrompt, userMessage string) (llm.Response, error) {
	var response llm.Response
	operation := func() error {
		var err error
		response, err = o.provider.Complete(ctx, systemPrompt, userMessage)
		if err == nil {
			return nil
		}
		if llm.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.RetryNotify(operation, retryPolicy(ctx), logRetry); err != nil {
		return llm.Response{}, err
	}
	return response, nil
}

// stream opens the provider stream, retrying transient setup failures. Once
// chunks flow, failures are no longer retried.
func (o *Orchestrator) stream(ctx context.Context, systemPrompt, userMessage string) (<-chan string, error) {
	var stream <-chan string
	operation := func() error {
		var err error
		stream, err = o.provider.StreamComplete(ctx, systemPrompt, userMessage)
		if err == nil {
			return nil
		}
		if llm.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.RetryNotify(operation, retryPolicy(ctx), logRetry); err != nil {
		return nil, err
	}
	return stream, nil
}

func retryPolicy(ctx context.Context) backoff.BackOffContext {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
}

func logRetry(err error, wait time.Duration) {
	log.Printf("[DM] Provider call failed, retrying in %s: %v", wait, err)
}

// finish moderates the completion output and assembles the response record.
func (o *Orchestrator) finish(completion llm.Response, start time.Time) Response {
	content := completion.Content

	output := o.moderator.ModerateOutput(content)
	if output.WasSanitized() {
		content = output.SanitizedContent
	}
	if output.HasViolations() {
		log.Printf("[DM] Output sanitized: %s", strings.Join(output.Violations, ", "))
	}

	return Response{
		Content:       content,
		TokensUsed:    completion.TokensUsed,
		ResponseTime:  time.Since(start),
		EstimatedCost: float64(completion.TokensUsed) * costPerToken,
		WasModerated:  output.HasViolations(),
	}
}

// sessionMode treats a single-character party as a solo adventure.
func sessionMode(sc game.SessionContext) prompt.SessionMode {
	if len(sc.ActiveCharacters) == 1 {
		return prompt.SoloMode
	}
	return prompt.MultiplayerMode
}

// buildUserMessage combines the formatted context, the scenario supplement,
// and the player action into the user-turn prompt.
func buildUserMessage(sc game.SessionContext, playerAction string) string {
	var b strings.Builder
	b.WriteString(prompt.FormatContext(sc))
	b.WriteString("\n")

	if inCombat(sc) {
		b.WriteString(prompt.CombatPrompt(sc))
	} else {
		b.WriteString(prompt.ExplorationPrompt(sc))
	}

	b.WriteString("\n=== PLAYER ACTION ===\n")
	b.WriteString(playerAction)
	return b.String()
}

// inCombat prefers the InCombat world flag and falls back to a keyword scan
// over the last three messages.
func inCombat(sc game.SessionContext) bool {
	if value, ok := sc.WorldFlag("InCombat"); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}

	messages := sc.RecentMessages
	if len(messages) > 3 {
		messages = messages[len(messages)-3:]
	}

	var recent strings.Builder
	for _, message := range messages {
		recent.WriteString(strings.ToLower(message.Content))
		recent.WriteString(" ")
	}

	for _, keyword := range combatKeywords {
		if strings.Contains(recent.String(), keyword) {
			return true
		}
	}
	return false
}

// extractSuggestedActions keeps up to three sentences that address the
// player in a question or offer form.
func extractSuggestedActions(content string) []string {
	var suggestions []string

	sentences := strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})

	for _, sentence := range sentences {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if !strings.Contains(lower, "you") {
			continue
		}
		if strings.Contains(lower, "do") || strings.Contains(lower, "want") || strings.Contains(lower, "could") {
			suggestions = append(suggestions, trimmed)
			if len(suggestions) >= maxSuggestedActions {
				break
			}
		}
	}
	return suggestions
}
