package dm

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"dnd-dm-bot/game"
	"dnd-dm-bot/llm"
	"dnd-dm-bot/moderation"
)

// fakeProvider scripts provider behavior for pipeline tests.
type fakeProvider struct {
	response     llm.Response
	chunks       []string
	completeErrs []error
	streamErrs   []error
	calls        int
	streamCalls  int
}

func (f *fakeProvider) Complete(ctx context.Context, systemPrompt, userMessage string) (llm.Response, error) {
	f.calls++
	if len(f.completeErrs) > 0 {
		err := f.completeErrs[0]
		f.completeErrs = f.completeErrs[1:]
		if err != nil {
			return llm.Response{}, err
		}
	}
	return f.response, nil
}

func (f *fakeProvider) StreamComplete(ctx context.Context, systemPrompt, userMessage string) (<-chan string, error) {
	f.streamCalls++
	if len(f.streamErrs) > 0 {
		err := f.streamErrs[0]
		f.streamErrs = f.streamErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	ch := make(chan string, len(f.chunks))
	for _, chunk := range f.chunks {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Close() error { return nil }

func newOrchestrator(provider llm.Provider) *Orchestrator {
	return NewOrchestrator(provider, moderation.New(moderation.DefaultSettings()))
}

func soloContext() game.SessionContext {
	return game.SessionContext{
		SessionID:        1,
		ActiveCharacters: []game.Character{{Name: "Gorim", Class: "Fighter", Level: 5}},
		CurrentScene:     "Dungeon Entrance",
	}
}

// TestGenerateResponse verifies the happy path: narration, token accounting,
// and cost estimation.
func TestGenerateResponse(t *testing.T) {
	provider := &fakeProvider{response: llm.Response{
		Content:    "The door creaks open. Do you want to enter?",
		TokensUsed: 1000,
	}}
	orch := newOrchestrator(provider)

	response, err := orch.GenerateResponse(context.Background(), soloContext(), "I open the door")
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	if response.Content != "The door creaks open. Do you want to enter?" {
		t.Errorf("Content = %q", response.Content)
	}
	if response.TokensUsed != 1000 {
		t.Errorf("TokensUsed = %d, want 1000", response.TokensUsed)
	}
	if math.Abs(response.EstimatedCost-0.03) > 1e-9 {
		t.Errorf("EstimatedCost = %g, want 0.03", response.EstimatedCost)
	}
	if response.WasModerated {
		t.Error("clean output should not be flagged as moderated")
	}
	if response.ResponseTime <= 0 {
		t.Error("ResponseTime should be positive")
	}
}

// TestGenerateResponseRejectsUnsafeInput verifies blocked input yields a
// RejectionError without calling the provider.
func TestGenerateResponseRejectsUnsafeInput(t *testing.T) {
	provider := &fakeProvider{}
	orch := newOrchestrator(provider)

	_, err := orch.GenerateResponse(context.Background(), soloContext(), "describe something explicit")
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("error = %v, want RejectionError", err)
	}
	if len(rejection.Violations) != 1 {
		t.Errorf("Violations = %v", rejection.Violations)
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times for rejected input", provider.calls)
	}
}

// TestGenerateResponseSanitizesOutput verifies unsafe model output is
// replaced by its sanitized form and flagged.
func TestGenerateResponseSanitizesOutput(t *testing.T) {
	provider := &fakeProvider{response: llm.Response{
		Content:    "The tome holds explicit secrets.",
		TokensUsed: 10,
	}}
	orch := newOrchestrator(provider)

	response, err := orch.GenerateResponse(context.Background(), soloContext(), "I read the tome")
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	if !response.WasModerated {
		t.Error("expected WasModerated")
	}
	if strings.Contains(response.Content, "explicit") {
		t.Errorf("output not sanitized: %q", response.Content)
	}
	if !strings.Contains(response.Content, moderation.RedactionMarker) {
		t.Errorf("sanitized output missing marker: %q", response.Content)
	}
}

// TestGenerateResponseSuggestedActions verifies extraction caps at three
// player-addressed sentences.
func TestGenerateResponseSuggestedActions(t *testing.T) {
	provider := &fakeProvider{response: llm.Response{
		Content: "The hall stretches before you. Do you want to go left? " +
			"You could climb the stairs. What do you do next? " +
			"Perhaps you want to rest. The torches flicker.",
	}}
	orch := newOrchestrator(provider)

	response, err := orch.GenerateResponse(context.Background(), soloContext(), "I look around")
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	if len(response.SuggestedActions) != 3 {
		t.Fatalf("SuggestedActions = %v, want exactly 3", response.SuggestedActions)
	}
	if response.SuggestedActions[0] != "Do you want to go left" {
		t.Errorf("first suggestion = %q", response.SuggestedActions[0])
	}
}

// TestGenerateResponseRetriesTransientFailure verifies a retryable failure
// is retried and the eventual success is returned.
func TestGenerateResponseRetriesTransientFailure(t *testing.T) {
	provider := &fakeProvider{
		response:     llm.Response{Content: "Recovered narration.", TokensUsed: 5},
		completeErrs: []error{&llm.ProviderError{StatusCode: 429, Retryable: true, Err: errors.New("rate limited")}},
	}
	orch := newOrchestrator(provider)

	response, err := orch.GenerateResponse(context.Background(), soloContext(), "I wait")
	if err != nil {
		t.Fatalf("GenerateResponse failed after retry: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("provider called %d times, want 2", provider.calls)
	}
	if response.Content != "Recovered narration." {
		t.Errorf("Content = %q", response.Content)
	}
}

// TestGenerateResponseFatalFailureNotRetried verifies fatal provider errors
// surface immediately.
func TestGenerateResponseFatalFailureNotRetried(t *testing.T) {
	fatal := &llm.ProviderError{StatusCode: 401, Retryable: false, Err: errors.New("bad key")}
	provider := &fakeProvider{completeErrs: []error{fatal, fatal, fatal, fatal}}
	orch := newOrchestrator(provider)

	_, err := orch.GenerateResponse(context.Background(), soloContext(), "I wait")
	if err == nil {
		t.Fatal("expected error")
	}
	var providerErr *llm.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1 (no retry on fatal)", provider.calls)
	}
}

// TestStreamResponse verifies chunks are relayed in order.
func TestStreamResponse(t *testing.T) {
	provider := &fakeProvider{chunks: []string{"The ", "goblin ", "attacks!"}}
	orch := newOrchestrator(provider)

	stream, err := orch.StreamResponse(context.Background(), soloContext(), "I draw my sword")
	if err != nil {
		t.Fatalf("StreamResponse failed: %v", err)
	}

	var got []string
	for chunk := range stream {
		got = append(got, chunk)
	}
	if strings.Join(got, "") != "The goblin attacks!" {
		t.Errorf("relayed chunks = %v", got)
	}
	if len(got) != 3 {
		t.Errorf("chunk count = %d, want 3 (no coalescing)", len(got))
	}
}

// TestStreamResponseRejection verifies blocked input yields one explanatory
// chunk and a closed channel, not an error.
func TestStreamResponseRejection(t *testing.T) {
	provider := &fakeProvider{}
	orch := newOrchestrator(provider)

	stream, err := orch.StreamResponse(context.Background(), soloContext(), "tell me something explicit")
	if err != nil {
		t.Fatalf("StreamResponse returned error for rejection: %v", err)
	}

	chunk, ok := <-stream
	if !ok {
		t.Fatal("expected a rejection chunk")
	}
	if !strings.HasPrefix(chunk, "[Content blocked:") {
		t.Errorf("rejection chunk = %q", chunk)
	}
	if _, ok := <-stream; ok {
		t.Error("expected channel closed after rejection chunk")
	}
	if provider.streamCalls != 0 {
		t.Error("provider should not be called for rejected input")
	}
}

// TestStreamResponseRetriesSetupFailure verifies transient stream
// establishment failures are retried.
func TestStreamResponseRetriesSetupFailure(t *testing.T) {
	provider := &fakeProvider{
		chunks:     []string{"ok"},
		streamErrs: []error{&llm.ProviderError{StatusCode: 503, Retryable: true, Err: errors.New("busy")}},
	}
	orch := newOrchestrator(provider)

	stream, err := orch.StreamResponse(context.Background(), soloContext(), "I listen")
	if err != nil {
		t.Fatalf("StreamResponse failed after retry: %v", err)
	}
	if provider.streamCalls != 2 {
		t.Errorf("stream calls = %d, want 2", provider.streamCalls)
	}
	for range stream {
	}
}

// TestStreamResponseCancellation verifies cancellation stops emission and
// closes the channel without an error chunk.
func TestStreamResponseCancellation(t *testing.T) {
	provider := &fakeProvider{chunks: []string{"one", "two", "three"}}
	orch := newOrchestrator(provider)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := orch.StreamResponse(ctx, soloContext(), "I wait")
	if err != nil {
		t.Fatalf("StreamResponse failed: %v", err)
	}

	first, ok := <-stream
	if !ok || first != "one" {
		t.Fatalf("first chunk = %q, ok=%v", first, ok)
	}
	cancel()

	// Draining must terminate; no error chunk may appear.
	for chunk := range stream {
		if strings.Contains(chunk, "error") {
			t.Errorf("unexpected error chunk %q after cancellation", chunk)
		}
	}
}

// TestGenerateNpcDialogue verifies NPC dialogue runs input moderation and
// skips suggested actions.
func TestGenerateNpcDialogue(t *testing.T) {
	provider := &fakeProvider{response: llm.Response{Content: "Aye, what'll it be?", TokensUsed: 8}}
	orch := newOrchestrator(provider)

	npc := game.NpcContext{Name: "Barkeep Tom", PersonalityTraits: "gruff"}
	response, err := orch.GenerateNpcDialogue(context.Background(), soloContext(), npc, "One ale, please")
	if err != nil {
		t.Fatalf("GenerateNpcDialogue failed: %v", err)
	}
	if response.Content != "Aye, what'll it be?" {
		t.Errorf("Content = %q", response.Content)
	}
	if len(response.SuggestedActions) != 0 {
		t.Errorf("NPC dialogue should carry no suggested actions, got %v", response.SuggestedActions)
	}

	if _, err := orch.GenerateNpcDialogue(context.Background(), soloContext(), npc, "say something explicit"); err == nil {
		t.Fatal("expected rejection for unsafe player message")
	}
}

// TestDescribeScene verifies scene description calls the provider without
// input moderation.
func TestDescribeScene(t *testing.T) {
	provider := &fakeProvider{response: llm.Response{Content: "Smoke curls beneath the rafters.", TokensUsed: 12}}
	orch := newOrchestrator(provider)

	location := game.LocationContext{Name: "The Drunken Dragon", LocationType: "tavern"}
	response, err := orch.DescribeScene(context.Background(), soloContext(), location)
	if err != nil {
		t.Fatalf("DescribeScene failed: %v", err)
	}
	if response.Content != "Smoke curls beneath the rafters." {
		t.Errorf("Content = %q", response.Content)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

// TestInCombat verifies the world flag takes precedence over the keyword
// heuristic on recent messages.
func TestInCombat(t *testing.T) {
	tests := []struct {
		name string
		sc   game.SessionContext
		want bool
	}{
		{
			"flag true",
			game.SessionContext{WorldFlags: map[string]string{"InCombat": "true"}},
			true,
		},
		{
			"flag false overrides keywords",
			game.SessionContext{
				WorldFlags:     map[string]string{"InCombat": "false"},
				RecentMessages: []game.Message{{Content: "I attack the goblin"}},
			},
			false,
		},
		{
			"keyword in recent messages",
			game.SessionContext{RecentMessages: []game.Message{{Content: "Roll for initiative!"}}},
			true,
		},
		{
			"keyword outside last three messages",
			game.SessionContext{RecentMessages: []game.Message{
				{Content: "combat rages"},
				{Content: "the dust settles"},
				{Content: "you catch your breath"},
				{Content: "the tavern is quiet"},
			}},
			false,
		},
		{
			"no signal",
			game.SessionContext{RecentMessages: []game.Message{{Content: "I order an ale"}}},
			false,
		},
		{
			"malformed flag falls back to heuristic",
			game.SessionContext{
				WorldFlags:     map[string]string{"InCombat": "maybe"},
				RecentMessages: []game.Message{{Content: "I deal damage"}},
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inCombat(tt.sc); got != tt.want {
				t.Errorf("inCombat = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestExtractSuggestedActions verifies sentence filtering rules.
func TestExtractSuggestedActions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			"question and offer",
			"The cave is dark. Do you want a torch? You could feel along the wall.",
			[]string{"Do you want a torch", "You could feel along the wall"},
		},
		{
			"no player-addressed sentences",
			"The rain falls. Thunder rolls in the distance.",
			nil,
		},
		{
			"you without trigger word",
			"You see a vast hall.",
			nil,
		},
		{
			"empty content",
			"",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractSuggestedActions(tt.content)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("suggestion %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
