package tools

import (
	"encoding/json"
	"strings"
)

// Pricing constants for tool execution. The markup is a flat 10% service
// fee applied exactly once per charge; a caller-supplied credential for a
// capability waives the flat surcharge but not the token cost.
const (
	perTokenRate  = 0.0000025
	serviceMarkup = 1.1

	searchFee     = 0.01
	imageFee      = 0.06
	audioFee      = 0.01
	audioWordRate = 0.005
	storageFee    = 0.005
)

// payloadTokens estimates tokens as ceil(len/4).
func payloadTokens(payload string) int {
	return (len(payload) + 3) / 4
}

// serializeResult renders a tool result for token accounting: strings pass
// through raw, everything else is JSON-encoded.
func serializeResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(data)
}

// Cost computes the charge for one tool execution from its canonical input
// payload and serialized result. For audio the word count comes from
// splitting the input payload on whitespace.
func Cost(tool, inputPayload, outputPayload string, credentialed bool) float64 {
	tokenCost := float64(payloadTokens(inputPayload)+payloadTokens(outputPayload)) * perTokenRate

	var cost float64
	switch tool {
	case ToolWebSearch:
		cost = tokenCost
		if !credentialed {
			cost += searchFee
		}
	case ToolCalculator:
		cost = tokenCost
	case ToolGenerateImage:
		cost = tokenCost
		if !credentialed {
			cost += imageFee
		}
	case ToolGenerateAudio:
		cost = tokenCost
		if !credentialed {
			words := len(strings.Fields(inputPayload))
			cost += audioFee + float64(words)*audioWordRate
		}
	default:
		// Filesystem and memory operations all carry the storage surcharge.
		cost = tokenCost + storageFee
	}

	if cost == 0 {
		return 0
	}
	return cost * serviceMarkup
}

// GenerationCost computes the charge for a plain text generation. A
// caller-supplied text-model credential makes generation free.
func GenerationCost(promptTokens, completionTokens int, inPrice, outPrice float64, credentialed bool) float64 {
	if credentialed {
		return 0
	}
	cost := float64(promptTokens)*inPrice + float64(completionTokens)*outPrice
	if cost == 0 {
		return 0
	}
	return cost * serviceMarkup
}
