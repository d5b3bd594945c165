package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculatorEvaluates(t *testing.T) {
	calc, err := NewCalculator()
	require.NoError(t, err)

	tests := []struct {
		expression string
		expected   any
	}{
		{"2+2", int64(4)},
		{"(3 * 4) - 2", int64(10)},
		{"10.0 / 4.0", 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := calc.Execute(context.Background(), map[string]any{"expression": tt.expression})
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestCalculatorRejectsBadInput(t *testing.T) {
	calc, err := NewCalculator()
	require.NoError(t, err)

	_, err = calc.Execute(context.Background(), map[string]any{})
	require.Error(t, err)

	_, err = calc.Execute(context.Background(), map[string]any{"expression": "2 +"})
	require.Error(t, err)
}

func TestCalculatorPayloadIsTheExpression(t *testing.T) {
	calc, err := NewCalculator()
	require.NoError(t, err)
	require.Equal(t, "2+2", calc.Payload(map[string]any{"expression": "2+2"}))
}
