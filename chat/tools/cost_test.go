package tools

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPayloadTokens(t *testing.T) {
	require.Equal(t, 0, payloadTokens(""))
	require.Equal(t, 1, payloadTokens("2+2"))
	require.Equal(t, 1, payloadTokens("abcd"))
	require.Equal(t, 2, payloadTokens("abcde"))
}

func TestCostFormulas(t *testing.T) {
	// One input token, one output token.
	tokenCost := 2 * perTokenRate

	tests := []struct {
		name         string
		tool         string
		credentialed bool
		expected     float64
	}{
		{"calculator has no flat fee", ToolCalculator, false, tokenCost * 1.1},
		{"web search adds flat fee", ToolWebSearch, false, (0.01 + tokenCost) * 1.1},
		{"web search credentialed waives fee", ToolWebSearch, true, tokenCost * 1.1},
		{"image adds flat fee", ToolGenerateImage, false, (0.06 + tokenCost) * 1.1},
		{"image credentialed waives fee", ToolGenerateImage, true, tokenCost * 1.1},
		{"fs ops carry storage surcharge", ToolFSRead, false, (tokenCost + 0.005) * 1.1},
		{"memory ops carry storage surcharge", ToolMemorySave, false, (tokenCost + 0.005) * 1.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cost(tt.tool, "2+2", "4", tt.credentialed)
			require.InDelta(t, tt.expected, got, 1e-12)
		})
	}
}

func TestAudioCostCountsWords(t *testing.T) {
	input := "hello there world" // 3 words, 17 bytes -> 5 tokens
	output := "ok"               // 1 token
	tokenCost := 6 * perTokenRate

	got := Cost(ToolGenerateAudio, input, output, false)
	require.InDelta(t, (0.01+tokenCost+3*0.005)*1.1, got, 1e-12)

	// Credentialed callers pay only the token cost.
	got = Cost(ToolGenerateAudio, input, output, true)
	require.InDelta(t, tokenCost*1.1, got, 1e-12)
}

func TestMarkupSkippedWhenCostIsZero(t *testing.T) {
	require.Equal(t, 0.0, Cost(ToolCalculator, "", "", false))
	require.Equal(t, 0.0, Cost(ToolWebSearch, "", "", true))
}

func TestGenerationCost(t *testing.T) {
	// 100 prompt + 50 completion tokens at uniform pricing.
	got := GenerationCost(100, 50, 0.0000025, 0.0000025, false)
	require.InDelta(t, 150*0.0000025*1.1, got, 1e-12)

	// A text-model credential makes generation free.
	require.Equal(t, 0.0, GenerationCost(100, 50, 0.0000025, 0.0000025, true))

	// Zero usage never picks up the markup.
	require.Equal(t, 0.0, GenerationCost(0, 0, 0.0000025, 0.0000025, false))
}

func TestCostNeverNegative(t *testing.T) {
	for _, tool := range []string{ToolCalculator, ToolWebSearch, ToolGenerateImage, ToolGenerateAudio, ToolFSCreate, ToolMemoryDelete} {
		require.GreaterOrEqual(t, Cost(tool, "payload", "result", false), 0.0)
		require.GreaterOrEqual(t, Cost(tool, "payload", "result", true), 0.0)
	}
}
