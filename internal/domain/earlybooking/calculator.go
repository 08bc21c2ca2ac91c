// Package earlybooking computes early-booking discounts from per-event rule
// tables. All selection and clamping here is revenue-affecting and must stay
// stable: tie-breaks, rounding and caps are contractual.
package earlybooking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/veloevents/service-booking-flow/internal/domain/event"
	"github.com/veloevents/service-booking-flow/internal/money"
)

const daySeconds = 86400

// Result is the outcome of applying one step to a monetary base.
type Result struct {
	Amount       float64
	EffectivePct float64
}

// SelectStep returns the first step matching daysBefore. Steps are sorted
// descending by MinDaysBefore, so the first match is the largest qualifying
// threshold: the longest qualifying lead time wins, not the closest.
func SelectStep(daysBefore int, steps []event.Step) (event.Step, bool) {
	for _, s := range steps {
		if daysBefore >= s.MinDaysBefore {
			return s, true
		}
	}
	return event.Step{}, false
}

// ComputeAmount applies a step to baseTotal and clamps the result by the
// step cap, then the global cap, then the base itself. The tightest cap
// wins; a discount can never exceed the base it applies to.
func ComputeAmount(baseTotal float64, step event.Step, globalCap event.Cap) Result {
	if baseTotal <= 0 || step.Value <= 0 {
		return Result{}
	}

	var amount float64
	if step.Type == event.StepFixed {
		amount = step.Value
	} else {
		amount = baseTotal * (step.Value / 100)
	}

	if step.Cap.Enabled && step.Cap.Amount > 0 && amount > step.Cap.Amount {
		amount = step.Cap.Amount
	}
	if globalCap.Enabled && globalCap.Amount > 0 && amount > globalCap.Amount {
		amount = globalCap.Amount
	}
	if amount > baseTotal {
		amount = baseTotal
	}

	return Result{
		Amount:       amount,
		EffectivePct: amount / baseTotal * 100,
	}
}

// DaysBefore returns the whole days between now and the event start,
// clamped at zero. An event that has already started yields 0.
func DaysBefore(startTS, nowTS int64) int {
	if startTS <= 0 {
		return 0
	}
	days := int((startTS - nowTS) / daySeconds)
	if startTS-nowTS < 0 {
		return 0
	}
	if days < 0 {
		days = 0
	}
	return days
}

// Distribute splits a combined discount proportionally across the eligible
// bases, rounding each share to cents and adding any residual to the
// designated drift scope so the shares sum exactly to total.
func Distribute(total float64, bases map[string]float64, driftScope string) map[string]float64 {
	out := make(map[string]float64, len(bases))
	if total <= 0 {
		return out
	}
	var sum float64
	for _, b := range bases {
		sum += b
	}
	if sum <= 0 {
		return out
	}

	var allocated float64
	for scope, base := range bases {
		share := money.Round(total * (base / sum))
		out[scope] = share
		allocated += share
	}

	drift := money.Round(total - allocated)
	if drift > 0.0001 || drift < -0.0001 {
		if _, ok := out[driftScope]; !ok {
			// Fall back to any eligible scope.
			for scope := range out {
				driftScope = scope
				break
			}
		}
		adjusted := out[driftScope] + drift
		if adjusted < 0 {
			adjusted = 0
		}
		out[driftScope] = adjusted
	}
	return out
}

// Calculation is the memoized per-event result used by form rendering and
// cart snapshotting within one request.
type Calculation struct {
	Enabled      bool
	Pct          float64
	DaysBefore   int
	EventStartTS int64
	Config       event.DiscountConfig
	Step         *event.Step
}

// Calculator memoizes per-event calculations for the life of one request so
// repeated reads cannot observe shifting external state mid-flight. Create
// one per request; it is not safe for concurrent use.
type Calculator struct {
	repo   event.Repository
	now    func() time.Time
	logger *zap.Logger
	cache  map[int64]Calculation
}

// NewCalculator returns a request-scoped calculator.
func NewCalculator(repo event.Repository, now func() time.Time, logger *zap.Logger) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{
		repo:   repo,
		now:    now,
		logger: logger,
		cache:  make(map[int64]Calculation),
	}
}

// ForEvent loads the event's discount config and selects the applicable
// step. Only percent steps surface a display percentage; fixed steps are
// applied server-side at snapshot time.
func (c *Calculator) ForEvent(ctx context.Context, eventID int64) (Calculation, error) {
	if eventID <= 0 {
		return Calculation{}, nil
	}
	if calc, ok := c.cache[eventID]; ok {
		return calc, nil
	}

	cfg, err := event.LoadDiscountConfig(ctx, c.repo, eventID)
	if err != nil {
		return Calculation{}, err
	}
	if !cfg.Enabled {
		calc := Calculation{Config: cfg}
		c.cache[eventID] = calc
		return calc, nil
	}

	ev, err := c.repo.FindByID(ctx, eventID)
	if err != nil {
		return Calculation{}, err
	}

	days := DaysBefore(ev.StartTS, c.now().Unix())

	calc := Calculation{
		Enabled:      true,
		DaysBefore:   days,
		EventStartTS: ev.StartTS,
		Config:       cfg,
	}
	if step, ok := SelectStep(days, cfg.Steps); ok {
		calc.Step = &step
		if step.Type == event.StepPercent && step.Value > 0 {
			calc.Pct = step.Value
		}
	}

	c.logger.Debug("early booking calculated",
		zap.Int64("event_id", eventID),
		zap.Int("days_before", days),
		zap.Float64("pct", calc.Pct),
	)

	c.cache[eventID] = calc
	return calc, nil
}
