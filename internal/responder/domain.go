// Package responder implements the two responder kinds the dispatcher can
// hand a message to: RAG-backed domain responders and the notification
// (transfer) responder.
package responder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ecodesk/internal/guard"
	"ecodesk/internal/logging"
	"ecodesk/internal/perception"
	"ecodesk/internal/retrieval"
	"ecodesk/internal/types"
)

const productInstructions = `You are the EcoHarvest Product Information Agent. Your primary role is to provide detailed and accurate information about all EcoHarvest products, including the GrowPod models, app features, seed pod varieties, pricing, and general policies (warranty, returns, compatibility).

Answer ONLY from the context segments provided with the question. Never invent information.
If the context contains no relevant information, state that you cannot find the answer and suggest the user rephrase their question.
Be helpful and engaging, aiming to fully answer product-related queries.
Do NOT attempt to provide technical troubleshooting steps or assist with billing/subscription issues. If a user asks about these, politely redirect them by suggesting they speak to the "Customer Support Agent" (without performing a handoff yourself).`

const supportInstructions = `You are the EcoHarvest Support Information Agent. Your primary role is to provide detailed and accurate information about EcoHarvest support services, troubleshooting steps, maintenance procedures, and technical assistance.

Answer ONLY from the context segments provided with the question. Never invent information.
If the context contains no relevant information, state that you cannot find the answer and suggest the user rephrase their question.
Be helpful and engaging, aiming to fully answer support-related queries.
Do NOT attempt to provide product information or handle sales inquiries. If a user asks about these, politely redirect them by suggesting they speak to the "Product Information Agent" (without performing a handoff yourself).`

// Fixed user-facing strings for locally recovered failures.
const (
	refusalPrefix   = "I'm sorry, I cannot process this request."
	storeDownText   = "I cannot find the information needed to answer that right now. Please try rephrasing your question."
	generationRetry = "I'm having trouble answering right now. Please try again."
)

// RetrievalTool is the slice of the retrieval layer a domain responder uses.
type RetrievalTool interface {
	Query(ctx context.Context, text string) ([]types.RetrievedPassage, error)
}

// DomainResponder answers questions for one knowledge domain, grounded in
// retrieved passages and screened by its attached guardrail evaluators.
type DomainResponder struct {
	domainID     string
	displayName  string
	instructions string
	guards       []*guard.Evaluator
	client       perception.LLMClient
	echoReason   bool
	timeout      time.Duration

	// tool construction is deferred until the first query so an
	// unprovisioned store never blocks startup
	newTool  func() (RetrievalTool, error)
	toolOnce sync.Once
	tool     RetrievalTool
	toolErr  error
}

// Option configures a DomainResponder.
type Option func(*DomainResponder)

// WithEchoReason includes the guardrail's reasoning in refusal text.
func WithEchoReason(echo bool) Option {
	return func(r *DomainResponder) { r.echoReason = echo }
}

// WithTimeout sets the grounded-generation timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *DomainResponder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a domain responder. newTool runs lazily exactly once on the
// first query, even under concurrent callers.
func New(domainID, displayName, instructions string, newTool func() (RetrievalTool, error), guards []*guard.Evaluator, client perception.LLMClient, opts ...Option) *DomainResponder {
	r := &DomainResponder{
		domainID:     domainID,
		displayName:  displayName,
		instructions: instructions,
		guards:       guards,
		client:       client,
		timeout:      60 * time.Second,
		newTool:      newTool,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewProduct creates the product domain responder.
func NewProduct(newTool func() (RetrievalTool, error), guards []*guard.Evaluator, client perception.LLMClient, opts ...Option) *DomainResponder {
	return New("product", "Product Information Agent", productInstructions, newTool, guards, client, opts...)
}

// NewSupport creates the support domain responder.
func NewSupport(newTool func() (RetrievalTool, error), guards []*guard.Evaluator, client perception.LLMClient, opts ...Option) *DomainResponder {
	return New("support", "Support Information Agent", supportInstructions, newTool, guards, client, opts...)
}

// DomainID returns the responder's collection/domain id.
func (r *DomainResponder) DomainID() string { return r.domainID }

// DisplayName returns the responder's user-visible name.
func (r *DomainResponder) DisplayName() string { return r.displayName }

// Respond screens, retrieves, and answers one query. Every path returns an
// Outcome: unsafe input is Refused, recoverable retrieval trouble becomes
// fixed Ok text, and only unrecoverable faults are Failed.
func (r *DomainResponder) Respond(ctx context.Context, query string, user *types.UserContext) types.Outcome {
	log := logging.Get(logging.CategoryResponder)
	log.Info("[%s] responding to query (len=%d)", r.domainID, len(query))

	verdict, err := guard.RunAll(ctx, r.guards, query)
	if err != nil {
		log.Warn("[%s] guardrail evaluation failed: %v", r.domainID, err)
		return types.Failed(types.ClassifyError(err), err)
	}
	if verdict.Unsafe {
		log.Info("[%s] guardrail tripped: %s", r.domainID, verdict.Reason)
		text := refusalPrefix
		if r.echoReason && verdict.Reason != "" {
			text = fmt.Sprintf("%s Reason: %s", refusalPrefix, verdict.Reason)
		}
		return types.Refused(text)
	}

	tool, err := r.retrievalTool()
	if err != nil {
		log.Warn("[%s] store unavailable: %v", r.domainID, err)
		return types.Ok(storeDownText)
	}

	passages, err := tool.Query(ctx, query)
	if err != nil {
		if errors.Is(err, types.ErrStoreUnavailable) {
			log.Warn("[%s] store unavailable during query: %v", r.domainID, err)
			return types.Ok(storeDownText)
		}
		log.Error("[%s] retrieval failed: %v", r.domainID, err)
		return types.Failed(types.ClassifyError(err), err)
	}
	if len(passages) == 0 {
		log.Info("[%s] no passages retrieved", r.domainID)
		return types.Ok(retrieval.NotFoundSentinel(r.displayName))
	}

	genCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Question: %s\n\n%s", query, retrieval.FormatPassages(passages))
	answer, err := r.client.CompleteWithSystem(genCtx, r.instructions, prompt)
	if err != nil {
		if errors.Is(err, types.ErrExternalCallTimeout) || errors.Is(err, context.DeadlineExceeded) {
			log.Warn("[%s] generation timed out", r.domainID)
			return types.Ok(generationRetry)
		}
		log.Error("[%s] generation failed: %v", r.domainID, err)
		return types.Failed(types.ClassifyError(err), err)
	}

	log.Info("[%s] answered (len=%d, passages=%d)", r.domainID, len(answer), len(passages))
	return types.Ok(answer)
}

// retrievalTool resolves the lazily built tool exactly once.
func (r *DomainResponder) retrievalTool() (RetrievalTool, error) {
	r.toolOnce.Do(func() {
		r.tool, r.toolErr = r.newTool()
	})
	return r.tool, r.toolErr
}
