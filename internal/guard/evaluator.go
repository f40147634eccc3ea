// Package guard implements the two-tier guardrail layer: LLM-backed content
// evaluators that screen messages before any responder touches them, and the
// deterministic name validator used by the notification responder.
package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"ecodesk/internal/logging"
	"ecodesk/internal/perception"
	"ecodesk/internal/types"
)

// verdictSchema constrains the evaluator's response to exactly the two
// fields the protocol defines.
const verdictSchema = `{
	"type": "object",
	"properties": {
		"is_question_unsafe": {"type": "boolean"},
		"reasoning": {"type": "string"}
	},
	"required": ["is_question_unsafe", "reasoning"]
}`

const globalInstructions = `Analyze the following user message. Your response must be a JSON object with two fields:
'is_question_unsafe': a boolean, true if the message is unsafe; false otherwise.
'reasoning': a brief string explanation of your decision.

A message is considered unsafe if it:
1. Asks to write, generate, or produce any kind of code (e.g., Python, SQL, HTML).
2. Requests information about unannounced products, features, or confidential business strategy.
3. Asks for confidential support procedures, internal troubleshooting steps, or sensitive customer data.
4. Contains harmful, unethical, or inappropriate content.

Example for unsafe input: {"is_question_unsafe": true, "reasoning": "The user is asking to write a Python script."}
Example for safe input: {"is_question_unsafe": false, "reasoning": "The question is a safe product-related query."}

Always ensure your response is a valid JSON object matching this schema.`

const productInstructions = `Analyze the following user message. Your response must be a JSON object with two fields:
'is_question_unsafe': a boolean, true if the message appears to request unannounced products, features, or confidential business strategy; false otherwise.
'reasoning': a brief string explanation of your decision.

Example for unsafe input: {"is_question_unsafe": true, "reasoning": "The question asks for unannounced product details."}
Example for safe input: {"is_question_unsafe": false, "reasoning": "The question is safe to answer."}

Always ensure your response is a valid JSON object matching this schema.`

const supportInstructions = `Analyze the following user message. Your response must be a JSON object with two fields:
'is_question_unsafe': a boolean, true if the message appears to request confidential support procedures, internal troubleshooting steps, or sensitive customer data; false otherwise.
'reasoning': a brief string explanation of your decision.

Example for unsafe input: {"is_question_unsafe": true, "reasoning": "The question asks for confidential support procedures."}
Example for safe input: {"is_question_unsafe": false, "reasoning": "The question is safe to answer."}

Always ensure your response is a valid JSON object matching this schema.`

// Evaluator screens a message against one policy via a schema-constrained
// generation call.
type Evaluator struct {
	name         string
	instructions string
	client       perception.LLMClient
	timeout      time.Duration
}

// NewEvaluator creates an evaluator with a custom policy.
func NewEvaluator(name, instructions string, client perception.LLMClient, timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Evaluator{
		name:         name,
		instructions: instructions,
		client:       client,
		timeout:      timeout,
	}
}

// NewGlobalEvaluator screens for the generic content policy: code
// generation requests, confidential information, harmful content.
func NewGlobalEvaluator(client perception.LLMClient, timeout time.Duration) *Evaluator {
	return NewEvaluator("global", globalInstructions, client, timeout)
}

// NewProductEvaluator screens for unannounced-product and business-strategy
// leakage.
func NewProductEvaluator(client perception.LLMClient, timeout time.Duration) *Evaluator {
	return NewEvaluator("product", productInstructions, client, timeout)
}

// NewSupportEvaluator screens for confidential support procedure and
// customer data leakage.
func NewSupportEvaluator(client perception.LLMClient, timeout time.Duration) *Evaluator {
	return NewEvaluator("support", supportInstructions, client, timeout)
}

// Name returns the evaluator's policy name.
func (e *Evaluator) Name() string {
	return e.name
}

type verdictPayload struct {
	Unsafe *bool   `json:"is_question_unsafe"`
	Reason *string `json:"reasoning"`
}

// Evaluate runs the policy against a message. A malformed model response is
// ErrClassificationMalformed, never coerced to safe.
func (e *Evaluator) Evaluate(ctx context.Context, text string) (types.GuardrailVerdict, error) {
	log := logging.Get(logging.CategoryGuard)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.client.CompleteWithSchema(ctx, e.instructions, text, verdictSchema)
	if err != nil {
		return types.GuardrailVerdict{}, fmt.Errorf("guardrail %q evaluation failed: %w", e.name, err)
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		log.Warn("Guardrail %q returned malformed verdict: %v", e.name, err)
		return types.GuardrailVerdict{}, fmt.Errorf("guardrail %q verdict unparseable: %w", e.name, types.ErrClassificationMalformed)
	}
	if payload.Unsafe == nil || payload.Reason == nil {
		log.Warn("Guardrail %q verdict missing required fields: %s", e.name, raw)
		return types.GuardrailVerdict{}, fmt.Errorf("guardrail %q verdict incomplete: %w", e.name, types.ErrClassificationMalformed)
	}

	verdict := types.GuardrailVerdict{
		Unsafe: *payload.Unsafe,
		Reason: *payload.Reason,
	}
	log.Debug("Guardrail %q: unsafe=%v reason=%q", e.name, verdict.Unsafe, verdict.Reason)
	return verdict, nil
}

// RunAll evaluates a message against every evaluator concurrently and waits
// for all of them. Any trip aborts: the returned verdict is the tripped
// verdict from the earliest evaluator in the given order, regardless of
// completion order. Any evaluation error fails the whole screen.
func RunAll(ctx context.Context, evaluators []*Evaluator, text string) (types.GuardrailVerdict, error) {
	if len(evaluators) == 0 {
		return types.GuardrailVerdict{}, nil
	}

	verdicts := make([]types.GuardrailVerdict, len(evaluators))

	g, gctx := errgroup.WithContext(ctx)
	for i, ev := range evaluators {
		g.Go(func() error {
			v, err := ev.Evaluate(gctx, text)
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.GuardrailVerdict{}, err
	}

	for _, v := range verdicts {
		if v.Unsafe {
			return v, nil
		}
	}
	return types.GuardrailVerdict{}, nil
}

// DefaultNameDenylist lists tokens rejected in welcome-message names.
var DefaultNameDenylist = []string{"bad", "wrong", "error", "fail", "invalid"}

// ValidateName validates a recipient name for the notification responder.
// The three failure modes carry distinct user-facing reasons, all wrapping
// ErrValidationFailed. Length bounds count characters, not bytes.
func ValidateName(input string, denylist []string) error {
	if denylist == nil {
		denylist = DefaultNameDenylist
	}

	if utf8.RuneCountInString(strings.TrimSpace(input)) < 2 {
		return &types.ValidationError{Reason: "input must contain a valid name (at least 2 characters)"}
	}

	lower := strings.ToLower(input)
	for _, word := range denylist {
		if strings.Contains(lower, word) {
			return &types.ValidationError{Reason: "input contains inappropriate content for a welcome message"}
		}
	}

	if utf8.RuneCountInString(input) > 100 {
		return &types.ValidationError{Reason: "input is too long, please provide just the name"}
	}

	return nil
}
