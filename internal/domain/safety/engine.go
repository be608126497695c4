// Package safety adjudicates resolved medicine requests against prescription
// and stock rules. The engine is a pure function of its inputs: it never
// mutates stock and never performs I/O.
package safety

import (
	"fmt"

	"github.com/pharmguard/pharmguard/internal/domain/catalog"
)

// DispositionKind is the adjudication outcome of one request.
type DispositionKind string

const (
	AutoApprove         DispositionKind = "auto_approve"
	RequirePrescription DispositionKind = "require_prescription"
	Reject              DispositionKind = "reject"
	PartialFulfillment  DispositionKind = "partial_fulfillment_and_procure"
)

// Disposition is the engine's verdict, including the audit trail fields the
// trace recorder depends on.
type Disposition struct {
	Kind DispositionKind `json:"kind"`
	// Rationale names the matched rule and the numeric values that triggered it.
	Rationale string `json:"rationale"`
	// Rule is the name of the first matching rule.
	Rule string `json:"rule"`
	// FulfillQty is the quantity to dispense now (0 unless approving).
	FulfillQty int `json:"fulfill_qty"`
	// ProcureQty is the shortfall to restock (0 unless partial).
	ProcureQty int `json:"procure_qty"`
}

// Approving reports whether the disposition lets an order be created.
func (d Disposition) Approving() bool {
	return d.Kind == AutoApprove || d.Kind == PartialFulfillment
}

// Request is the engine input: a resolved medicine snapshot, the requested
// quantity, and whether the caller attached a prescription reference.
type Request struct {
	Medicine             *catalog.Medicine
	Quantity             int
	PrescriptionProvided bool
}

// rule is one predicate in the ordered evaluation chain. match returns the
// zero Disposition and false when the rule does not apply.
type rule struct {
	name  string
	match func(Request) (Disposition, bool)
}

// Engine evaluates an ordered rule list, first match wins.
type Engine struct {
	rules []rule
}

// NewEngine constructs the engine with the standard rule order:
// prescription gate, full stock, partial stock, out of stock.
func NewEngine() *Engine {
	return &Engine{rules: []rule{
		{
			name: "rx_required_without_prescription",
			match: func(r Request) (Disposition, bool) {
				if !r.Medicine.RxRequired || r.PrescriptionProvided {
					return Disposition{}, false
				}
				return Disposition{
					Kind: RequirePrescription,
					Rationale: fmt.Sprintf(
						"%s requires a prescription and none was provided",
						r.Medicine.DisplayName()),
				}, true
			},
		},
		{
			name: "stock_covers_request",
			match: func(r Request) (Disposition, bool) {
				if r.Medicine.StockQty < r.Quantity {
					return Disposition{}, false
				}
				return Disposition{
					Kind:       AutoApprove,
					FulfillQty: r.Quantity,
					Rationale: fmt.Sprintf(
						"stock %d covers requested quantity %d",
						r.Medicine.StockQty, r.Quantity),
				}, true
			},
		},
		{
			name: "partial_stock",
			match: func(r Request) (Disposition, bool) {
				if r.Medicine.StockQty <= 0 {
					return Disposition{}, false
				}
				shortfall := r.Quantity - r.Medicine.StockQty
				return Disposition{
					Kind:       PartialFulfillment,
					FulfillQty: r.Medicine.StockQty,
					ProcureQty: shortfall,
					Rationale: fmt.Sprintf(
						"stock %d is below requested quantity %d, fulfilling %d and procuring %d",
						r.Medicine.StockQty, r.Quantity, r.Medicine.StockQty, shortfall),
				}, true
			},
		},
		{
			name: "out_of_stock",
			match: func(r Request) (Disposition, bool) {
				return Disposition{
					Kind: Reject,
					Rationale: fmt.Sprintf(
						"stock is 0 for %s, requested %d",
						r.Medicine.DisplayName(), r.Quantity),
				}, true
			},
		},
	}}
}

// Decide runs the rule chain against the given request. The medicine snapshot
// is read as-is; callers are responsible for passing current stock.
func (e *Engine) Decide(req Request) Disposition {
	for _, rl := range e.rules {
		if d, ok := rl.match(req); ok {
			d.Rule = rl.name
			return d
		}
	}
	// The final rule always matches, so this is unreachable.
	return Disposition{Kind: Reject, Rule: "fallthrough", Rationale: "no rule matched"}
}
