// Package types defines the shared data model for ecodesk: user context,
// guardrail verdicts, retrieved passages, dispatch decisions, and the outcome
// union that carries results up the dispatch path without unwind-based
// control transfer.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Sentinel errors for the dispatch path. Each maps to a distinct recovery
// behavior; see the Outcome union below for how they surface to callers.
var (
	// ErrGuardrailTripped signals a policy refusal. Expected, user-facing,
	// non-retriable.
	ErrGuardrailTripped = errors.New("guardrail tripped")

	// ErrStoreUnavailable signals a missing or unreachable knowledge store.
	// Recovered locally into a "cannot find information" response.
	ErrStoreUnavailable = errors.New("knowledge store unavailable")

	// ErrClassificationMalformed signals an unparseable classification or
	// guardrail response. Fatal to the current dispatch; surfaced as a
	// generic error while the detail is logged.
	ErrClassificationMalformed = errors.New("classification response malformed")

	// ErrExternalCallTimeout signals a backend call that exceeded its
	// deadline. Recoverable per call site.
	ErrExternalCallTimeout = errors.New("external call timed out")

	// ErrValidationFailed signals a rejected transfer-responder input.
	// User-facing, non-retriable.
	ErrValidationFailed = errors.New("input validation failed")
)

// ValidationError carries the user-facing reason for a rejected input.
// Callers that only classify use errors.Is(err, ErrValidationFailed);
// callers that reply to the user pull Reason via errors.As.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason + ": " + ErrValidationFailed.Error()
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// =============================================================================
// USER CONTEXT
// =============================================================================

// Role is the closed set of user roles known to the system.
type Role int

const (
	RoleChatUser Role = iota
	RoleAdmin
	RoleDeveloper
	RoleSupport
	RoleSales
)

// String returns the wire/config name of the role.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleDeveloper:
		return "developer"
	case RoleSupport:
		return "support"
	case RoleSales:
		return "sales"
	case RoleChatUser:
		return "chat_user"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// knownUsers maps display names to their company roles. Anyone not listed
// gets RoleChatUser.
var knownUsers = map[string]Role{
	"John Smith":    RoleAdmin,
	"Alice Johnson": RoleDeveloper,
	"Bob Wilson":    RoleSupport,
	"Emma Davis":    RoleSales,
}

// UserContext identifies the requester for the duration of a session.
// It is created once per session, mutated only to refresh LastInteraction,
// and never persisted beyond the process.
type UserContext struct {
	UserID          string
	UserName        string
	Role            Role
	IsPremium       bool
	LastInteraction time.Time
	Preferences     map[string]string
}

// NewUserContext builds a session context for the named user, looking the
// name up against the known-users table. Known users are premium.
func NewUserContext(name string) *UserContext {
	role, known := knownUsers[name]
	if !known {
		role = RoleChatUser
	}
	id := "user_" + strings.ReplaceAll(strings.ToLower(name), " ", "_")
	return &UserContext{
		UserID:      id,
		UserName:    name,
		Role:        role,
		IsPremium:   known,
		Preferences: map[string]string{},
	}
}

// Touch refreshes the last-interaction timestamp.
func (u *UserContext) Touch() {
	u.LastInteraction = time.Now()
}

// FirstInteraction reports whether the user has interacted yet this session.
func (u *UserContext) FirstInteraction() bool {
	return u.LastInteraction.IsZero()
}

// Greeting returns the role-specific greeting. The switch is exhaustive over
// the Role enum.
func (u *UserContext) Greeting() string {
	switch u.Role {
	case RoleAdmin:
		return fmt.Sprintf("Welcome back, %s! Your administrative privileges are active.", u.UserName)
	case RoleDeveloper:
		return fmt.Sprintf("Hello %s! Ready to tackle some development tasks?", u.UserName)
	case RoleSupport:
		return fmt.Sprintf("Hi %s! How can we help our users today?", u.UserName)
	case RoleSales:
		return fmt.Sprintf("Welcome %s! Let's make some sales magic happen!", u.UserName)
	case RoleChatUser:
		return fmt.Sprintf("Hello %s! How can I assist you today?", u.UserName)
	}
	return fmt.Sprintf("Hello %s!", u.UserName)
}

// =============================================================================
// CONVERSATION HISTORY
// =============================================================================

// Exchange is one completed (query, response) pair.
type Exchange struct {
	Query    string
	Response string
}

// History is the ordered sequence of prior exchanges. It is owned by the
// caller and read-only to the core for the duration of one dispatch.
type History []Exchange

// Append returns a new history with the exchange added; the receiver is not
// mutated.
func (h History) Append(query, response string) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, Exchange{Query: query, Response: response})
}

// =============================================================================
// GUARDRAIL VERDICT
// =============================================================================

// GuardrailVerdict is the result of one guardrail evaluation. Produced fresh
// per evaluation, never cached, immutable once produced.
type GuardrailVerdict struct {
	Unsafe bool
	Reason string
}

// =============================================================================
// RETRIEVED PASSAGE
// =============================================================================

// RetrievedPassage is a source-attributed unit of knowledge-base text
// returned by the store at query time.
type RetrievedPassage struct {
	Text           string
	SourceDocument string
	SectionTitle   string
	Ordinal        int
}

// =============================================================================
// DISPATCH DECISION
// =============================================================================

// DecisionKind tags the three possible routing outcomes.
type DecisionKind int

const (
	// KindDecline rejects the message as out of scope.
	KindDecline DecisionKind = iota
	// KindDelegate invokes a domain responder call-and-return; the
	// dispatcher keeps ownership of the conversation.
	KindDelegate
	// KindTransfer hands conversation ownership to a transfer responder,
	// which completes the interaction independently.
	KindTransfer
)

func (k DecisionKind) String() string {
	switch k {
	case KindDecline:
		return "decline"
	case KindDelegate:
		return "delegate"
	case KindTransfer:
		return "transfer"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DispatchDecision is the dispatcher's routing choice for one message. It
// exists only for the duration of one dispatch.
type DispatchDecision struct {
	kind DecisionKind

	// DomainID is set for delegate decisions.
	DomainID string
	// ResponderID is set for transfer decisions.
	ResponderID string
	// Query is the text forwarded to the selected responder (for a
	// transfer to the notification responder this is the recipient name).
	Query string
}

// Decline builds a decline decision.
func Decline() DispatchDecision {
	return DispatchDecision{kind: KindDecline}
}

// DelegateToDomain builds a call-and-return delegation decision.
func DelegateToDomain(domainID, query string) DispatchDecision {
	return DispatchDecision{kind: KindDelegate, DomainID: domainID, Query: query}
}

// TransferTo builds an ownership-handoff decision.
func TransferTo(responderID, query string) DispatchDecision {
	return DispatchDecision{kind: KindTransfer, ResponderID: responderID, Query: query}
}

// Kind returns the decision tag.
func (d DispatchDecision) Kind() DecisionKind { return d.kind }

// =============================================================================
// OUTCOME
// =============================================================================

// FailureKind classifies a failed outcome for user-facing conversion.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureStoreUnavailable
	FailureClassificationMalformed
	FailureExternalCallTimeout
	FailureValidation
	FailureInternal
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureStoreUnavailable:
		return "store_unavailable"
	case FailureClassificationMalformed:
		return "classification_malformed"
	case FailureExternalCallTimeout:
		return "external_call_timeout"
	case FailureValidation:
		return "validation_failed"
	case FailureInternal:
		return "internal"
	}
	return fmt.Sprintf("failure(%d)", int(k))
}

// Outcome is the explicit result type returned up the dispatch chain:
// Ok(text) for a produced answer, Refused(reason) for a guardrail trip,
// Failed(kind, err) for an operational failure. Each layer pattern-matches
// on the state instead of propagating tripwires as raised errors.
type Outcome struct {
	text    string
	reason  string
	kind    FailureKind
	err     error
	refused bool
	failed  bool
}

// Ok wraps produced answer text.
func Ok(text string) Outcome { return Outcome{text: text} }

// Refused wraps a guardrail refusal with the evaluator's stated reason.
func Refused(reason string) Outcome { return Outcome{refused: true, reason: reason} }

// Failed wraps an operational failure.
func Failed(kind FailureKind, err error) Outcome {
	return Outcome{failed: true, kind: kind, err: err}
}

// IsOk reports whether the outcome carries answer text.
func (o Outcome) IsOk() bool { return !o.refused && !o.failed }

// IsRefused reports whether a guardrail refused the input.
func (o Outcome) IsRefused() bool { return o.refused }

// IsFailed reports whether an operational failure occurred.
func (o Outcome) IsFailed() bool { return o.failed }

// Text returns the answer text for Ok outcomes.
func (o Outcome) Text() string { return o.text }

// Reason returns the refusal reason for Refused outcomes.
func (o Outcome) Reason() string { return o.reason }

// FailureKind returns the failure classification for Failed outcomes.
func (o Outcome) FailureKind() FailureKind { return o.kind }

// Err returns the underlying error for Failed outcomes.
func (o Outcome) Err() error { return o.err }

// ClassifyError maps an error to its failure kind via the sentinel taxonomy.
func ClassifyError(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrStoreUnavailable):
		return FailureStoreUnavailable
	case errors.Is(err, ErrClassificationMalformed):
		return FailureClassificationMalformed
	case errors.Is(err, ErrExternalCallTimeout):
		return FailureExternalCallTimeout
	case errors.Is(err, ErrValidationFailed):
		return FailureValidation
	default:
		return FailureInternal
	}
}
