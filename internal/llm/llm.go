// Package llm defines the text-generation contract the sales flow depends on
// and routes each session's experiment group to a backend and model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"sales-agent/internal/domain"
)

const (
	GroupA = "A"
	GroupB = "B"
)

// Request is one generation call. History holds the conversation so far,
// ending with the latest user turn.
type Request struct {
	Model       string
	System      string
	Instruction string
	History     []domain.ChatMessage
}

// Prompt joins the system prompt and the per-turn instruction the way both
// backends receive them.
func (r Request) Prompt() string {
	if strings.TrimSpace(r.Instruction) == "" {
		return r.System
	}
	return r.System + "\n\n" + r.Instruction
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Route binds an experiment group to the backend and model that serve it.
type Route struct {
	Generator Generator
	Model     string
}

type Router struct {
	routes    map[string]Route
	abEnabled bool
}

// pickGroup draws the experiment group for a new session.
var pickGroup = func() string {
	if rand.IntN(2) == 0 {
		return GroupA
	}
	return GroupB
}

// NewRouter requires a route for group A. When abEnabled is set group B must
// be routed too.
func NewRouter(routes map[string]Route, abEnabled bool) (*Router, error) {
	a, ok := routes[GroupA]
	if !ok || a.Generator == nil || a.Model == "" {
		return nil, errors.New("llm: group A route must have a generator and a model")
	}
	if abEnabled {
		b, ok := routes[GroupB]
		if !ok || b.Generator == nil || b.Model == "" {
			return nil, errors.New("llm: group B route must have a generator and a model when the experiment is enabled")
		}
	}
	copied := make(map[string]Route, len(routes))
	for k, v := range routes {
		copied[k] = v
	}
	return &Router{routes: copied, abEnabled: abEnabled}, nil
}

// AssignGroup returns the group for a new session: always A unless the
// experiment is enabled.
func (r *Router) AssignGroup() string {
	if !r.abEnabled {
		return GroupA
	}
	return pickGroup()
}

// ModelFor names the model that serves group. Unknown groups fall back to A.
func (r *Router) ModelFor(group string) string {
	return r.route(group).Model
}

// Generate sends req to the backend of group with the group's model.
func (r *Router) Generate(ctx context.Context, group string, req Request) (string, error) {
	rt := r.route(group)
	req.Model = rt.Model
	out, err := rt.Generator.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm: generate with %s: %w", rt.Model, err)
	}
	return out, nil
}

func (r *Router) route(group string) Route {
	if r.abEnabled {
		if rt, ok := r.routes[group]; ok {
			return rt
		}
	}
	return r.routes[GroupA]
}
