// Package toolserver is the tool-surface boundary: it maps the fixed set of
// named operations an agent-facing client can invoke onto this system's
// services, and guarantees every call returns a JSON-encoded string — a
// handler failure renders as {"error": "<message>"}, never a panic or a Go
// error value escaping to the transport.
package toolserver

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/VibeTensor/attestix/pkg/anchor"
	"github.com/VibeTensor/attestix/pkg/compliance"
	"github.com/VibeTensor/attestix/pkg/credential"
	"github.com/VibeTensor/attestix/pkg/delegation"
	"github.com/VibeTensor/attestix/pkg/errs"
	"github.com/VibeTensor/attestix/pkg/identity"
	"github.com/VibeTensor/attestix/pkg/provenance"
	"github.com/VibeTensor/attestix/pkg/reputation"
	"github.com/VibeTensor/attestix/pkg/resolver"
)

// Handler executes one named tool call against its arguments and returns
// its JSON-encoded result.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Registry dispatches the tool surface to the underlying services. It holds
// no state of its own beyond the handler map: every operation is delegated.
type Registry struct {
	identity    *identity.Service
	credential  *credential.Service
	delegation  *delegation.Service
	reputation  *reputation.Service
	provenance  *provenance.Service
	compliance  *compliance.Service
	anchor      *anchor.Service
	resolver    *resolver.Resolver
	keyMinter   *resolver.KeyMinter

	handlers map[string]Handler
}

// New builds a Registry wired to every service and registers its full tool
// surface. Every argument must be non-nil — cmd/attestixd constructs all of
// them before the tool loop starts.
func New(
	idSvc *identity.Service,
	credSvc *credential.Service,
	delSvc *delegation.Service,
	repSvc *reputation.Service,
	provSvc *provenance.Service,
	compSvc *compliance.Service,
	anchorSvc *anchor.Service,
	res *resolver.Resolver,
	keyMinter *resolver.KeyMinter,
) *Registry {
	r := &Registry{
		identity:   idSvc,
		credential: credSvc,
		delegation: delSvc,
		reputation: repSvc,
		provenance: provSvc,
		compliance: compSvc,
		anchor:     anchorSvc,
		resolver:   res,
		keyMinter:  keyMinter,
		handlers:   map[string]Handler{},
	}
	r.registerIdentity()
	r.registerDelegation()
	r.registerReputation()
	r.registerCompliance()
	r.registerCredential()
	r.registerProvenance()
	r.registerBlockchain()
	return r
}

func (r *Registry) register(name string, h Handler) {
	r.handlers[name] = h
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the named tool against args and always returns a
// JSON-encoded string: an unknown tool name and a handler error both
// collapse to the same {"error": "..."} envelope a caller can parse
// unconditionally.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) string {
	h, ok := r.handlers[name]
	if !ok {
		return encodeError(errs.Newf(errs.Validation, "unknown tool %q", name))
	}
	out, err := h(ctx, args)
	if err != nil {
		return encodeError(err)
	}
	return out
}

func encodeError(err error) string {
	b, marshalErr := json.Marshal(errs.ToToolResponse(err))
	if marshalErr != nil {
		return `{"error":"failed to encode error response"}`
	}
	return string(b)
}

func encodeResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errs.Wrap(errs.Validation, "failed to encode tool result", err)
	}
	return string(b), nil
}

// decodeInto round-trips an untyped JSON object into T, since arguments
// arrive off the tool surface as map[string]any rather than already-typed
// structs.
func decodeInto[T any](raw map[string]any) (*T, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "failed to encode argument", err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errs.Wrap(errs.Validation, "argument did not match the expected shape", err)
	}
	return &out, nil
}
