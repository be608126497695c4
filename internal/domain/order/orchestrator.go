// Package order runs the conversation pipeline: slot extraction, safety
// adjudication, stock reservation, persistence, and trace sealing.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pharmguard/pharmguard/internal/domain/catalog"
	"github.com/pharmguard/pharmguard/internal/domain/nlu"
	"github.com/pharmguard/pharmguard/internal/domain/safety"
	"github.com/pharmguard/pharmguard/internal/domain/trace"
	"github.com/pharmguard/pharmguard/internal/platform/webhook"
)

// Pipeline stage names recorded in the trace.
const (
	stageReceived = "received"
	stageExtract  = "extract"
	stageDecide   = "decide"
	stageFulfill  = "fulfill"
	stageProcure  = "procure"
)

// Terminal dispositions for turns that never reach the safety engine.
const (
	outcomeUnresolved = "unresolved_medicine"
	outcomeAmbiguous  = "needs_disambiguation"
)

// Notifier publishes fulfillment events to the partner endpoint. The
// implementation must not block the pipeline; Orchestrator calls it from a
// goroutine.
type Notifier interface {
	Notify(ctx context.Context, eventType, orderID string, payload interface{})
}

// TxRunner executes fn inside one database transaction. Repositories called
// with the derived context share it, so the statements inside fn commit or
// roll back together.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// noTx runs fn on the caller's context without transactional guarantees.
type noTx struct{}

func (noTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ConverseRequest is one conversation turn.
type ConverseRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	// PrescriptionRef attaches a prescription to this turn.
	PrescriptionRef string `json:"prescription_ref,omitempty"`
	// ChosenMedicineID resolves a previous turn's disambiguation question.
	ChosenMedicineID string `json:"chosen_medicine_id,omitempty"`
}

// ConverseResult is the pipeline outcome surfaced to the caller.
type ConverseResult struct {
	Reply       string                   `json:"reply"`
	Disposition string                   `json:"disposition"`
	Rationale   string                   `json:"rationale,omitempty"`
	Order       *Order                   `json:"order,omitempty"`
	Candidates  []catalog.ScoredMedicine `json:"candidates,omitempty"`
	TraceID     string                   `json:"trace_id"`
}

// PlaceOrderRequest is a direct order that skips slot extraction.
type PlaceOrderRequest struct {
	UserID          string `json:"user_id"`
	MedicineID      string `json:"medicine_id"`
	Quantity        int    `json:"quantity"`
	PrescriptionRef string `json:"prescription_ref,omitempty"`
}

// Orchestrator wires the extractor, the safety engine, the catalog, and the
// stores into the order pipeline.
type Orchestrator struct {
	extractor    *nlu.Extractor
	engine       *safety.Engine
	catalog      *catalog.Service
	orders       Repository
	history      HistoryRepository
	procurements ProcurementRepository
	tx           TxRunner
	tracer       *trace.Recorder
	notifier     Notifier
	logger       zerolog.Logger
}

// NewOrchestrator creates an Orchestrator. notifier may be nil; a nil tx runs
// statements without a shared transaction.
func NewOrchestrator(
	extractor *nlu.Extractor,
	engine *safety.Engine,
	cat *catalog.Service,
	orders Repository,
	history HistoryRepository,
	procurements ProcurementRepository,
	tx TxRunner,
	tracer *trace.Recorder,
	notifier Notifier,
	logger zerolog.Logger,
) *Orchestrator {
	if tx == nil {
		tx = noTx{}
	}
	return &Orchestrator{
		extractor:    extractor,
		engine:       engine,
		catalog:      cat,
		orders:       orders,
		history:      history,
		procurements: procurements,
		tx:           tx,
		tracer:       tracer,
		notifier:     notifier,
		logger:       logger,
	}
}

// Converse runs one conversation turn end to end. Every terminal path seals
// the trace except malformed input, which is the caller's error to fix.
func (o *Orchestrator) Converse(ctx context.Context, req ConverseRequest) (*ConverseResult, error) {
	turn := o.tracer.Begin(req.UserID)
	turn.Record(stageReceived, req.Text, nil)

	turnCtx := &nlu.TurnContext{
		PrescriptionRef:  req.PrescriptionRef,
		ChosenMedicineID: req.ChosenMedicineID,
	}

	parsed, err := o.extractor.Extract(ctx, req.Text, turnCtx)
	if err != nil {
		if errors.Is(err, nlu.ErrInvalidQuantity) {
			return nil, err
		}
		if errors.Is(err, nlu.ErrUnresolvedMedicine) {
			turn.Record(stageExtract, req.Text, parsed)
			rec := o.tracer.Seal(ctx, turn, outcomeUnresolved)
			return &ConverseResult{
				Reply:       "I could not find that medicine in our catalog. Could you spell out its name?",
				Disposition: outcomeUnresolved,
				Candidates:  parsed.Candidates,
				TraceID:     rec.TraceID,
			}, nil
		}
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, err
		}
		return nil, err
	}
	turn.Record(stageExtract, req.Text, parsed)

	if !parsed.Resolved() {
		rec := o.tracer.Seal(ctx, turn, outcomeAmbiguous)
		return &ConverseResult{
			Reply:       clarificationReply(parsed.Candidates),
			Disposition: outcomeAmbiguous,
			Candidates:  parsed.Candidates,
			TraceID:     rec.TraceID,
		}, nil
	}

	return o.adjudicate(ctx, turn, req.UserID, parsed.MedicineID, parsed.Quantity, req.PrescriptionRef)
}

// PlaceOrder adjudicates a direct order request against the same pipeline,
// minus extraction.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*ConverseResult, error) {
	if req.Quantity <= 0 {
		return nil, nlu.ErrInvalidQuantity
	}
	if _, err := o.catalog.Get(ctx, req.MedicineID); err != nil {
		return nil, err
	}

	turn := o.tracer.Begin(req.UserID)
	turn.Record(stageReceived, req, nil)

	return o.adjudicate(ctx, turn, req.UserID, req.MedicineID, req.Quantity, req.PrescriptionRef)
}

// adjudicate runs decide plus fulfill for a resolved medicine and seals the
// trace with the final disposition.
func (o *Orchestrator) adjudicate(ctx context.Context, turn *trace.Turn, userID, medicineID string, qty int, prescriptionRef string) (*ConverseResult, error) {
	med, err := o.catalog.Get(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	disp := o.engine.Decide(safety.Request{
		Medicine:             med,
		Quantity:             qty,
		PrescriptionProvided: prescriptionRef != "",
	})
	turn.Record(stageDecide, map[string]interface{}{
		"medicine_id": med.ID,
		"quantity":    qty,
		"stock":       med.StockQty,
	}, disp)

	switch disp.Kind {
	case safety.RequirePrescription:
		rec := o.tracer.Seal(ctx, turn, string(disp.Kind))
		return &ConverseResult{
			Reply:       fmt.Sprintf("%s needs a valid prescription. Please attach one and retry.", med.DisplayName()),
			Disposition: string(disp.Kind),
			Rationale:   disp.Rationale,
			TraceID:     rec.TraceID,
		}, nil

	case safety.Reject:
		o.scheduleProcurement(ctx, turn, nil, med.ID, qty)
		rec := o.tracer.Seal(ctx, turn, string(disp.Kind))
		return &ConverseResult{
			Reply:       fmt.Sprintf("%s is out of stock. We have scheduled a restock.", med.DisplayName()),
			Disposition: string(disp.Kind),
			Rationale:   disp.Rationale,
			TraceID:     rec.TraceID,
		}, nil
	}

	return o.fulfill(ctx, turn, userID, med, qty, prescriptionRef, disp)
}

// fulfill reserves stock and persists the order. A reservation lost to a
// concurrent request triggers one re-decide against fresh stock before giving
// up.
func (o *Orchestrator) fulfill(ctx context.Context, turn *trace.Turn, userID string, med *catalog.Medicine, qty int, prescriptionRef string, disp safety.Disposition) (*ConverseResult, error) {
	// Reservation can lose to a concurrent turn between decide and reserve;
	// re-read stock and re-decide until the reservation lands or the engine
	// stops approving. Stock only shrinks under contention, so this settles.
	for {
		err := o.catalog.ReserveStock(ctx, med.ID, disp.FulfillQty)
		if err == nil {
			break
		}
		if !errors.Is(err, catalog.ErrInsufficientStock) {
			return nil, err
		}
		fresh, err := o.catalog.Get(ctx, med.ID)
		if err != nil {
			return nil, err
		}
		disp = o.engine.Decide(safety.Request{
			Medicine:             fresh,
			Quantity:             qty,
			PrescriptionProvided: prescriptionRef != "",
		})
		turn.Record(stageDecide, map[string]interface{}{
			"medicine_id": fresh.ID,
			"quantity":    qty,
			"stock":       fresh.StockQty,
			"retry":       true,
		}, disp)
		if !disp.Approving() {
			o.scheduleProcurement(ctx, turn, nil, fresh.ID, qty)
			rec := o.tracer.Seal(ctx, turn, string(disp.Kind))
			return &ConverseResult{
				Reply:       fmt.Sprintf("%s just sold out. We have scheduled a restock.", fresh.DisplayName()),
				Disposition: string(disp.Kind),
				Rationale:   disp.Rationale,
				TraceID:     rec.TraceID,
			}, nil
		}
		med = fresh
	}

	var presRef *string
	if prescriptionRef != "" {
		presRef = &prescriptionRef
	}
	ord := &Order{
		PublicID:        NewPublicID(),
		UserID:          userID,
		MedicineID:      med.ID,
		Quantity:        qty,
		FulfilledQty:    disp.FulfillQty,
		Disposition:     string(disp.Kind),
		Rationale:       disp.Rationale,
		PrescriptionRef: presRef,
		Status:          StatusCreated,
		TraceID:         turn.TraceID(),
	}
	// The durable stock decrement and the order row commit or roll back
	// together; a crash between them can never leave a decrement without
	// its order.
	if err := o.tx.InTx(ctx, func(txCtx context.Context) error {
		if err := o.catalog.MirrorReservation(txCtx, med.ID, disp.FulfillQty); err != nil {
			return err
		}
		return o.orders.Create(txCtx, ord)
	}); err != nil {
		// The index reservation still stands; give it back.
		o.catalog.ReleaseReservation(med.ID, disp.FulfillQty)
		return nil, err
	}
	turn.Record(stageFulfill, map[string]interface{}{
		"medicine_id": med.ID,
		"quantity":    disp.FulfillQty,
	}, ord.PublicID)

	if err := o.history.Append(ctx, &HistoryEntry{
		UserID:       userID,
		MedicineID:   med.ID,
		Quantity:     disp.FulfillQty,
		PurchaseDate: time.Now().UTC(),
	}); err != nil {
		o.logger.Error().Err(err).Str("order_id", ord.PublicID).Msg("history append failed")
	}

	if disp.Kind == safety.PartialFulfillment {
		o.scheduleProcurement(ctx, turn, &ord.ID, med.ID, disp.ProcureQty)
	}

	o.publish(ord, disp)

	rec := o.tracer.Seal(ctx, turn, string(disp.Kind))
	return &ConverseResult{
		Reply:       fulfillmentReply(med, disp),
		Disposition: string(disp.Kind),
		Rationale:   disp.Rationale,
		Order:       ord,
		TraceID:     rec.TraceID,
	}, nil
}

// scheduleProcurement persists a restock entry. Failure is logged, never
// fatal; the decision already stands.
func (o *Orchestrator) scheduleProcurement(ctx context.Context, turn *trace.Turn, orderID *uuid.UUID, medicineID string, qty int) {
	p := &Procurement{
		OrderID:    orderID,
		MedicineID: medicineID,
		Quantity:   qty,
		Status:     ProcurementPending,
	}
	if err := o.procurements.Create(ctx, p); err != nil {
		o.logger.Error().Err(err).Str("medicine_id", medicineID).Msg("procurement create failed")
		return
	}
	turn.Record(stageProcure, map[string]interface{}{
		"medicine_id": medicineID,
		"quantity":    qty,
	}, p.ID)

	if o.notifier != nil {
		go o.notifier.Notify(context.Background(), webhook.EventProcurementCreated, publicIDOrEmpty(orderID), p)
	}
}

// publish ships the order event to the fulfillment partner off the hot path.
func (o *Orchestrator) publish(ord *Order, disp safety.Disposition) {
	if o.notifier == nil {
		return
	}
	eventType := webhook.EventOrderCreated
	if disp.Kind == safety.PartialFulfillment {
		eventType = webhook.EventOrderPartial
	}
	go o.notifier.Notify(context.Background(), eventType, ord.PublicID, ord)
}

// GetOrder returns one order by its public id.
func (o *Orchestrator) GetOrder(ctx context.Context, publicID string) (*Order, error) {
	return o.orders.GetByPublicID(ctx, publicID)
}

// ListOrders returns a user's orders, newest first.
func (o *Orchestrator) ListOrders(ctx context.Context, userID string, limit, offset int) ([]*Order, int, error) {
	return o.orders.ListByUser(ctx, userID, limit, offset)
}

// ListHistory returns a user's purchase history in chronological order.
func (o *Orchestrator) ListHistory(ctx context.Context, userID string) ([]*HistoryEntry, error) {
	return o.history.ListByUser(ctx, userID)
}

// ListPendingProcurements returns restocks awaiting action.
func (o *Orchestrator) ListPendingProcurements(ctx context.Context, limit, offset int) ([]*Procurement, int, error) {
	return o.procurements.ListPending(ctx, limit, offset)
}

// UpdateProcurement applies an operator status change to a procurement.
// Marking a procurement received puts its quantity back into stock.
func (o *Orchestrator) UpdateProcurement(ctx context.Context, id uuid.UUID, status string) error {
	if !ValidProcurementStatus(status) {
		return fmt.Errorf("unknown procurement status %q", status)
	}
	p, err := o.procurements.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == status {
		return nil
	}
	if err := o.procurements.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	if status == ProcurementReceived {
		if err := o.catalog.Restock(ctx, p.MedicineID, p.Quantity); err != nil {
			o.logger.Error().Err(err).Str("medicine_id", p.MedicineID).Msg("restock after procurement receipt failed")
		}
	}
	return nil
}

// AdvanceOrder applies a fulfillment status update from the partner webhook.
func (o *Orchestrator) AdvanceOrder(ctx context.Context, publicID, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("unknown order status %q", status)
	}
	return o.orders.UpdateStatus(ctx, publicID, status)
}

func clarificationReply(candidates []catalog.ScoredMedicine) string {
	if len(candidates) == 0 {
		return "Which medicine did you mean?"
	}
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Medicine.DisplayName())
	}
	return fmt.Sprintf("Did you mean one of: %s?", joinNames(names))
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

func fulfillmentReply(med *catalog.Medicine, disp safety.Disposition) string {
	if disp.Kind == safety.PartialFulfillment {
		return fmt.Sprintf("We can send %d of %s now; the remaining %d will ship after restock.",
			disp.FulfillQty, med.DisplayName(), disp.ProcureQty)
	}
	return fmt.Sprintf("Order confirmed: %d of %s.", disp.FulfillQty, med.DisplayName())
}

func publicIDOrEmpty(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
