// Package reconcile is the trust boundary between model text and session data.
// It recovers the JSON payload a model was asked to return, keeps the fields
// that survive validation and hands state proposals to the flow machine.
package reconcile

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"sales-agent/internal/catalog"
	"sales-agent/internal/domain"
	"sales-agent/internal/flow"
)

var objectSpan = regexp.MustCompile(`(?s)\{.*\}`)

var replyKeys = []string{"resposta", "reply", "response", "message"}

// Outcome is what a model reply contributes to a turn, already validated
// against the catalog.
type Outcome struct {
	Reply         string
	Parsed        bool
	DeclaredState domain.State
	Pending       *domain.Product
	// Cart is a validated replacement; nil means the cart is left as is.
	Cart         []domain.LineItem
	CartRejected bool
	ModelTotal   *decimal.Decimal
	InputInvalid bool
}

// Reconciler folds model output into a session. Model-declared states go
// through machine, which owns every transition.
type Reconciler struct {
	machine *flow.Machine
}

// New creates a Reconciler backed by machine.
func New(machine *flow.Machine) (*Reconciler, error) {
	if machine == nil {
		return nil, errors.New("reconcile: flow machine must not be nil")
	}
	return &Reconciler{machine: machine}, nil
}

// Parse extracts an Outcome from raw model text. It never fails: text that
// holds no JSON object becomes the reply verbatim.
func (r *Reconciler) Parse(raw string, products []domain.Product) Outcome {
	fields, span, ok := extractObject(raw)
	if !ok {
		return Outcome{Reply: strings.TrimSpace(raw)}
	}

	out := Outcome{Parsed: true}
	for _, k := range replyKeys {
		if v, ok := fields[k].(string); ok && strings.TrimSpace(v) != "" {
			out.Reply = strings.TrimSpace(v)
			break
		}
	}
	if out.Reply == "" {
		out.Reply = strings.TrimSpace(strings.Replace(raw, span, "", 1))
	}
	if out.Reply == "" {
		out.Reply = strings.TrimSpace(raw)
	}

	if v, ok := fields["chat_state"].(string); ok {
		st := domain.State(strings.ToUpper(strings.TrimSpace(v)))
		if st.Valid() {
			out.DeclaredState = st
		}
	}

	if name := productName(fields["product_selected_for_cart"]); name != "" {
		if p, ok := catalog.FindByName(products, name); ok {
			out.Pending = &p
		}
	}

	out.Cart, out.CartRejected = parseCart(fields["cart"], products)
	out.ModelTotal = parseAmount(fields["total_value"])
	out.InputInvalid = parseBool(fields["last_input_invalid"])
	return out
}

// Apply merges out into s. step is what the deterministic layer did this turn:
// when it was decisive, the model's declared state is ignored.
// The reply is appended to the history as the assistant turn.
func (r *Reconciler) Apply(s *domain.Session, out Outcome, step flow.Step) {
	if out.Parsed {
		if out.DeclaredState != "" && out.DeclaredState != s.State && !step.Decisive() {
			if !r.machine.Propose(s, out.DeclaredState, out.Pending) {
				slog.Debug("reconcile: model state proposal rejected", "session_id", s.ID, "state", s.State, "proposed", out.DeclaredState)
			}
		}
		if out.Cart != nil {
			s.Cart = append([]domain.LineItem(nil), out.Cart...)
		} else if out.CartRejected {
			slog.Warn("reconcile: model cart rejected, keeping session cart", "session_id", s.ID, "cart_items", len(s.Cart))
		}
	}

	s.RecomputeTotal()
	if out.ModelTotal != nil && !out.ModelTotal.Equal(s.TotalValue) {
		slog.Info("reconcile: model total differs from cart total", "session_id", s.ID, "model_total", out.ModelTotal.String(), "cart_total", s.TotalValue.String())
	}
	r.machine.Repair(s)
	r.machine.Finalize(s, out.Reply)
	s.LastInputInvalid = step.Invalid || (out.Parsed && out.InputInvalid)
	s.AppendTurn(domain.RoleAssistant, out.Reply)
}

// Reconcile parses raw and applies it to s, returning the reply for the user.
func (r *Reconciler) Reconcile(s *domain.Session, raw string, products []domain.Product, step flow.Step) string {
	out := r.Parse(raw, products)
	r.Apply(s, out, step)
	return out.Reply
}

func extractObject(raw string) (map[string]any, string, bool) {
	trimmed := strings.TrimSpace(raw)
	if fields, ok := decodeObject(trimmed); ok {
		return fields, raw, true
	}
	span := objectSpan.FindString(raw)
	if span == "" {
		return nil, "", false
	}
	if fields, ok := decodeObject(span); ok {
		return fields, span, true
	}
	return nil, "", false
}

func decodeObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var fields map[string]any
	if err := sonic.UnmarshalString(s, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func productName(v any) string {
	switch p := v.(type) {
	case string:
		return strings.TrimSpace(p)
	case map[string]any:
		for _, k := range []string{"nome", "name", "produto", "product"} {
			if s, ok := p[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// parseCart accepts a replacement only when it is a non-empty list whose
// every entry resolves to a catalog product. Prices come from the catalog.
func parseCart(v any, products []domain.Product) ([]domain.LineItem, bool) {
	entries, ok := v.([]any)
	if !ok || len(entries) == 0 {
		return nil, v != nil && !ok
	}
	items := make([]domain.LineItem, 0, len(entries))
	for _, e := range entries {
		p, found := catalog.FindByName(products, productName(e))
		if !found {
			return nil, true
		}
		item, err := catalog.LineItem(p)
		if err != nil {
			return nil, true
		}
		items = append(items, item)
	}
	return items, false
}

func parseAmount(v any) *decimal.Decimal {
	var d decimal.Decimal
	switch x := v.(type) {
	case float64:
		d = decimal.NewFromFloat(x)
	case string:
		parsed, err := catalog.ParsePrice(x)
		if err != nil {
			return nil
		}
		d = parsed
	default:
		return nil
	}
	return &d
}

func parseBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(strings.TrimSpace(x), "true")
	}
	return false
}
