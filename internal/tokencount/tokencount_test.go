package tokencount

import "testing"

func TestHeuristicCounter_EstimateChatTokens(t *testing.T) {
	t.Parallel()
	c := NewHeuristicCounter()

	tests := []struct {
		name     string
		model    string
		messages []any
		wantMin  int
		wantMax  int
	}{
		{
			name:     "single short message",
			model:    "gpt-4o",
			messages: []any{map[string]any{"role": "user", "content": "hello"}},
			wantMin:  5,
			wantMax:  20,
		},
		{
			name:  "multiple messages",
			model: "gpt-4o",
			messages: []any{
				map[string]any{"role": "system", "content": "You are helpful."},
				map[string]any{"role": "user", "content": "Explain quantum computing."},
			},
			wantMin: 15,
			wantMax: 40,
		},
		{
			name:     "empty messages",
			model:    "gpt-4o",
			messages: nil,
			wantMin:  1,
			wantMax:  10,
		},
		{
			name:     "unknown model fallback",
			model:    "claude-3-opus",
			messages: []any{map[string]any{"role": "user", "content": "test"}},
			wantMin:  5,
			wantMax:  20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := c.EstimateChatTokens(tt.model, tt.messages)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("EstimateChatTokens() = %d, want [%d, %d]", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestHeuristicCounter_EstimateTextTokens(t *testing.T) {
	t.Parallel()
	c := NewHeuristicCounter()

	got := c.EstimateTextTokens("gpt-4o", "Hello, world!")
	if got < 1 {
		t.Errorf("EstimateTextTokens() = %d, want >= 1", got)
	}
}

func TestHeuristicCounter_EstimateTextTokensEmpty(t *testing.T) {
	t.Parallel()
	c := NewHeuristicCounter()

	got := c.EstimateTextTokens("gpt-4o", "")
	if got != 1 {
		t.Errorf("EstimateTextTokens('') = %d, want 1 (min)", got)
	}
}

func TestHeuristicCounter_MessageWithName(t *testing.T) {
	t.Parallel()
	c := NewHeuristicCounter()

	msgs := []any{map[string]any{"role": "user", "content": "hello", "name": "alice"}}
	got := c.EstimateChatTokens("gpt-4o", msgs)
	if got < 5 {
		t.Errorf("EstimateChatTokens with name = %d, want >= 5", got)
	}
}
