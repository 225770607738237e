// Package bridge defines the integration bridge the engine uses to reach
// external capability providers, and the adapters that implement it.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Capability is a fully qualified capability tag.
type Capability string

const (
	CapabilityMessagingSend    Capability = "messaging.send"
	CapabilityAIRequest        Capability = "ai.request"
	CapabilityCRMWrite         Capability = "crm.write"
	CapabilitySchedulingCreate Capability = "scheduling.create"
)

// Capabilities lists every capability the engine may request.
var Capabilities = []Capability{
	CapabilityMessagingSend,
	CapabilityAIRequest,
	CapabilityCRMWrite,
	CapabilitySchedulingCreate,
}

var shortTags = map[string]Capability{
	"messaging":  CapabilityMessagingSend,
	"ai":         CapabilityAIRequest,
	"crm":        CapabilityCRMWrite,
	"scheduling": CapabilitySchedulingCreate,
}

// Normalize resolves short tags such as "ai" to their full capability.
func Normalize(tag string) Capability {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if c, ok := shortTags[tag]; ok {
		return c
	}

	return Capability(tag)
}

// IsAI reports whether the capability is an AI request. Only AI results may
// drive routing decisions.
func (c Capability) IsAI() bool {
	return c == CapabilityAIRequest || strings.HasPrefix(string(c), "ai.")
}

var (
	ErrUnsupportedCapability = errors.New("unsupported capability")
	ErrInvocationFailed      = errors.New("capability invocation failed")
)

// Result is what a capability provider returns. Data is opaque to the bridge.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Failed builds an unsuccessful result.
func Failed(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Bridge invokes external capabilities. Implementations must honour ctx
// cancellation; retries, if any, are their own concern.
type Bridge interface {
	Invoke(ctx context.Context, capability Capability, config map[string]any, variables map[string]any) (Result, error)
}

// Func adapts a function to the Bridge interface.
type Func func(ctx context.Context, capability Capability, config map[string]any, variables map[string]any) (Result, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, capability Capability, config map[string]any, variables map[string]any) (Result, error) {
	return f(ctx, capability, config, variables)
}

// Router dispatches each capability to the adapter registered for it.
type Router struct {
	adapters map[Capability]Bridge
	fallback Bridge
	logger   *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		adapters: make(map[Capability]Bridge),
		logger:   logger.With("module", "bridge"),
	}
}

// Handle registers adapter for capability. Short tags are accepted.
func (r *Router) Handle(capability Capability, adapter Bridge) *Router {
	r.adapters[Normalize(string(capability))] = adapter

	return r
}

// Fallback sets the adapter used for capabilities with no registration.
func (r *Router) Fallback(adapter Bridge) *Router {
	r.fallback = adapter

	return r
}

// Supports reports whether the router can serve capability.
func (r *Router) Supports(capability Capability) bool {
	_, ok := r.adapters[Normalize(string(capability))]

	return ok || r.fallback != nil
}

// Invoke implements Bridge.
func (r *Router) Invoke(ctx context.Context, capability Capability, config map[string]any, variables map[string]any) (Result, error) {
	capability = Normalize(string(capability))

	adapter, ok := r.adapters[capability]
	if !ok {
		adapter = r.fallback
	}

	if adapter == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedCapability, capability)
	}

	r.logger.DebugContext(ctx, "Invoking capability", "capability", capability)

	result, err := adapter.Invoke(ctx, capability, config, variables)
	if err != nil {
		r.logger.WarnContext(ctx, "Capability invocation failed", "capability", capability, "error", err)

		return Result{}, err
	}

	if !result.Success {
		r.logger.InfoContext(ctx, "Capability reported failure", "capability", capability, "error", result.Error)
	}

	return result, nil
}
