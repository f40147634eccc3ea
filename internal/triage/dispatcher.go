// Package triage implements the central dispatcher: classify one incoming
// message, then decline it, delegate it to a domain responder, or transfer
// ownership to the notification responder.
package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecodesk/internal/logging"
	"ecodesk/internal/perception"
	"ecodesk/internal/responder"
	"ecodesk/internal/types"
)

// State tracks a message through the dispatch lifecycle.
type State int

const (
	StateReceived State = iota
	StateScreening
	StateDeclined
	StateDelegating
	StateTransferring
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateScreening:
		return "screening"
	case StateDeclined:
		return "declined"
	case StateDelegating:
		return "delegating"
	case StateTransferring:
		return "transferring"
	case StateCompleted:
		return "completed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Fixed user-facing strings.
const (
	// DeclineText is the verbatim reply for out-of-scope messages.
	DeclineText = "I can only answer questions about the supported domains."

	genericErrorText = "An error occurred while processing your request. Please try again."
	timeoutText      = "I'm having trouble answering right now. Please try again."
)

const classifySchema = `{
	"type": "object",
	"properties": {
		"target": {"type": "string", "enum": ["product", "support", "notification", "none"]},
		"secondary_target": {"type": "string", "enum": ["product", "support", "notification", "none"]},
		"reasoning": {"type": "string"},
		"query": {"type": "string"},
		"recipient": {"type": "string"}
	},
	"required": ["target", "reasoning", "query"]
}`

const classifyInstructions = `You are the central Triage Agent for EcoHarvest customer inquiries. Analyze the user's message and select exactly one target to handle it.

Targets:
- "product": questions strictly related to EcoHarvest products. This includes GrowPod models, app features, seed pod varieties, pricing, compatibility, warranty, returns, and general sales inquiries.
- "support": questions about troubleshooting, technical support, maintenance procedures, and technical assistance.
- "notification": ONLY for explicit requests to send a welcome message to a named new user. Extract the recipient's name into the "recipient" field.
- "none": anything that fits no target.

Respond with a JSON object:
- "target": the selected target.
- "secondary_target": if the message could plausibly also fit another target, name it here; otherwise omit it.
- "reasoning": a concise explanation of your selection.
- "query": the user's query to forward to the selected target.
- "recipient": the name to welcome, only when target is "notification".`

// DomainHandler is the dispatcher's view of a domain responder.
type DomainHandler interface {
	Respond(ctx context.Context, query string, user *types.UserContext) types.Outcome
	DisplayName() string
}

// TransferHandler is the dispatcher's view of the notification responder.
type TransferHandler interface {
	Handle(ctx context.Context, name string) (responder.Receipt, error)
}

// Dispatcher routes messages. It holds no per-message state; independent
// messages dispatch fully in parallel.
type Dispatcher struct {
	client          perception.LLMClient
	domains         map[string]DomainHandler
	transfer        TransferHandler
	classifyTimeout time.Duration
}

// NewDispatcher wires the dispatcher to its responders.
func NewDispatcher(client perception.LLMClient, domains map[string]DomainHandler, transfer TransferHandler, classifyTimeout time.Duration) *Dispatcher {
	if classifyTimeout <= 0 {
		classifyTimeout = 15 * time.Second
	}
	return &Dispatcher{
		client:          client,
		domains:         domains,
		transfer:        transfer,
		classifyTimeout: classifyTimeout,
	}
}

type classification struct {
	Target          *string `json:"target"`
	SecondaryTarget *string `json:"secondary_target"`
	Reasoning       *string `json:"reasoning"`
	Query           *string `json:"query"`
	Recipient       *string `json:"recipient"`
}

// Classify runs the screening step and returns the routing decision.
// Identical text and context always produce the same decision kind.
func (d *Dispatcher) Classify(ctx context.Context, text string) (types.DispatchDecision, error) {
	log := logging.Get(logging.CategoryTriage)

	ctx, cancel := context.WithTimeout(ctx, d.classifyTimeout)
	defer cancel()

	raw, err := d.client.CompleteWithSchema(ctx, classifyInstructions, text, classifySchema)
	if err != nil {
		return types.DispatchDecision{}, fmt.Errorf("classification call failed: %w", err)
	}

	var c classification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		log.Warn("Classification unparseable: %v (raw: %s)", err, raw)
		return types.DispatchDecision{}, fmt.Errorf("classification unparseable: %w", types.ErrClassificationMalformed)
	}
	if c.Target == nil || c.Query == nil {
		log.Warn("Classification missing required fields: %s", raw)
		return types.DispatchDecision{}, fmt.Errorf("classification incomplete: %w", types.ErrClassificationMalformed)
	}

	target := strings.ToLower(strings.TrimSpace(*c.Target))
	query := *c.Query
	reasoning := ""
	if c.Reasoning != nil {
		reasoning = *c.Reasoning
	}
	log.Info("Classified target=%q reasoning=%q", target, reasoning)

	// Ambiguity between a domain and the transfer target resolves to the
	// domain: transfers are reserved for explicit, narrow intents.
	if target == "notification" && c.SecondaryTarget != nil {
		if sec := strings.ToLower(strings.TrimSpace(*c.SecondaryTarget)); d.isDomain(sec) {
			log.Info("Ambiguous notification/%s classification, domain wins", sec)
			target = sec
		}
	}

	switch {
	case d.isDomain(target):
		return types.DelegateToDomain(target, query), nil
	case target == "notification":
		recipient := ""
		if c.Recipient != nil {
			recipient = strings.TrimSpace(*c.Recipient)
		}
		if recipient == "" {
			recipient = strings.TrimSpace(query)
		}
		return types.TransferTo("notification", recipient), nil
	case target == "none":
		return types.Decline(), nil
	default:
		log.Warn("Classification named unknown target %q", target)
		return types.DispatchDecision{}, fmt.Errorf("unknown classification target %q: %w", target, types.ErrClassificationMalformed)
	}
}

func (d *Dispatcher) isDomain(id string) bool {
	_, ok := d.domains[id]
	return ok
}

// HandleMessage dispatches one message and returns the reply plus the
// history with this exchange appended. The input history is never mutated.
func (d *Dispatcher) HandleMessage(ctx context.Context, text string, history types.History, user *types.UserContext) (string, types.History, error) {
	log := logging.Get(logging.CategoryTriage)

	state := StateReceived
	log.Debug("State %s: message received (len=%d)", state, len(text))

	greeting := ""
	if user != nil && user.FirstInteraction() {
		greeting = user.Greeting()
	}
	if user != nil {
		user.Touch()
	}

	state = StateScreening
	log.Debug("State %s", state)

	reply := ""
	decision, err := d.Classify(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return "", history, ctx.Err()
		}
		// Malformed classification surfaces as a generic error; the
		// detail stays in the logs.
		log.Error("Screening failed: %v", err)
		reply = genericErrorText
	} else {
		switch decision.Kind() {
		case types.KindDecline:
			state = StateDeclined
			log.Info("State %s", state)
			reply = DeclineText

		case types.KindDelegate:
			state = StateDelegating
			log.Info("State %s: domain=%s", state, decision.DomainID)
			reply = d.delegate(ctx, decision, user)

		case types.KindTransfer:
			state = StateTransferring
			log.Info("State %s: responder=%s", state, decision.ResponderID)
			reply = d.transferOwnership(ctx, decision)
		}
	}

	state = StateCompleted
	log.Debug("State %s", state)

	if greeting != "" {
		reply = greeting + "\n\n" + reply
	}
	return reply, history.Append(text, reply), nil
}

// delegate calls the matching domain responder synchronously and converts
// its outcome to user-facing text.
func (d *Dispatcher) delegate(ctx context.Context, decision types.DispatchDecision, user *types.UserContext) string {
	log := logging.Get(logging.CategoryTriage)

	handler := d.domains[decision.DomainID]
	outcome := handler.Respond(ctx, decision.Query, user)

	switch {
	case outcome.IsRefused():
		return outcome.Reason()
	case outcome.IsFailed():
		log.Error("Domain %s failed (%s): %v", decision.DomainID, outcome.FailureKind(), outcome.Err())
		if outcome.FailureKind() == types.FailureExternalCallTimeout {
			return timeoutText
		}
		return genericErrorText
	default:
		return outcome.Text()
	}
}

// transferOwnership hands the interaction to the notification responder and
// relays its output verbatim.
func (d *Dispatcher) transferOwnership(ctx context.Context, decision types.DispatchDecision) string {
	log := logging.Get(logging.CategoryTriage)

	receipt, err := d.transfer.Handle(ctx, decision.Query)
	if err != nil {
		// Validation failures are user-facing and non-retriable.
		log.Info("Transfer rejected: %v", err)
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			return ve.Reason
		}
		return genericErrorText
	}
	return receipt.String()
}
