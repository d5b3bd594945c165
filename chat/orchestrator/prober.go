package orchestrator

import (
	"context"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/errgroup"

	"github.com/parleyhq/parley/chat"
	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/metrics"
)

// probeTones are the two fixed style directives the prober compares. The
// winning tone is recorded as a durable preference.
var probeTones = [2]string{"concise and analytical", "warm and detailed"}

// runProbe runs two non-streaming generations concurrently against the same
// history. Both must succeed before the message offers the variants; either
// failure fails the whole probe with no partial variant shown.
func (o *Orchestrator) runProbe(ctx context.Context, conversationID, messageID string) {
	start := time.Now()
	req, err := o.buildRequest(conversationID, messageID)
	if err != nil {
		o.finishError(conversationID, messageID, err, time.Since(start))
		metrics.ProbesTotal.WithLabelValues("error").Inc()
		return
	}
	// The prober never offers tools; it compares plain answers.
	req.Tools = nil

	results := make([]*llm.Result, len(probeTones))
	g, groupCtx := errgroup.WithContext(ctx)
	for i, tone := range probeTones {
		variant := *req
		if variant.System != "" {
			variant.System += "\n"
		}
		variant.System += "Respond in a " + tone + " style."

		g.Go(func() error {
			result, err := o.llm.Generate(groupCtx, &variant)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		duration := time.Since(start)
		if ctx.Err() != nil {
			o.finishAborted(conversationID, messageID, "", duration)
			metrics.ProbesTotal.WithLabelValues("aborted").Inc()
			return
		}
		o.finishError(conversationID, messageID, err, duration)
		metrics.ProbesTotal.WithLabelValues("error").Inc()
		return
	}

	variants := make([]chat.Variant, len(results))
	var prompt, completion int
	for i, result := range results {
		variants[i] = chat.Variant{
			ID:   shortuuid.New(),
			Tone: probeTones[i],
			Text: result.Content,
		}
		usage := result.Usage
		if usage.PromptTokens == 0 {
			usage.PromptTokens = llm.EstimateTokens(req.Messages)
		}
		if usage.CompletionTokens == 0 {
			usage.CompletionTokens = llm.EstimateTextTokens(result.Content)
		}
		prompt += usage.PromptTokens
		completion += usage.CompletionTokens
	}

	waiting := chat.StatusWaitingVariantSelection
	durationMs := time.Since(start).Milliseconds()
	if err := o.messages.Replace(conversationID, messageID, &chat.MessagePatch{
		Status:           &waiting,
		Variants:         variants,
		PromptTokens:     &prompt,
		CompletionTokens: &completion,
		DurationMs:       &durationMs,
	}); err != nil {
		o.logger.Error("failed to publish probe variants", "error", err)
		return
	}
	o.notify(conversationID, messageID)
	metrics.ProbesTotal.WithLabelValues("offered").Inc()
}
