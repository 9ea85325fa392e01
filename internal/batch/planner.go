// Package batch packs question units into token-budgeted batches.
package batch

import (
	"log/slog"
	"math"
	"strings"

	"github.com/FreelineGuide/ExamBulldozer/internal/common"
	"github.com/FreelineGuide/ExamBulldozer/internal/splitter"
	"github.com/FreelineGuide/ExamBulldozer/internal/tokenizer"
)

// Separator joins unit texts inside one batch prompt.
const Separator = "\n\n"

// Limits are the model-side constraints of a run.
type Limits struct {
	MaxModelTokens int
	SafetyMargin   float64 // fraction of MaxModelTokens held back, in [0, 1)
}

// Budget is the token allowance left for batch text once the fixed prompt
// cost is paid: floor(max * (1 - margin)) - fixedCost.
func (l Limits) Budget(fixedCost int) (int, error) {
	if l.MaxModelTokens <= 0 {
		return 0, common.ConfigErrorf("max model tokens must be positive, got %d", l.MaxModelTokens)
	}
	if l.SafetyMargin < 0 || l.SafetyMargin >= 1 || math.IsNaN(l.SafetyMargin) {
		return 0, common.ConfigErrorf("safety margin must be in [0, 1), got %g", l.SafetyMargin)
	}
	budget := int(math.Floor(float64(l.MaxModelTokens)*(1-l.SafetyMargin))) - fixedCost
	if budget <= 0 {
		return budget, common.ConfigErrorf(
			"token budget %d is not positive (max_tokens=%d margin=%g fixed_cost=%d)",
			budget, l.MaxModelTokens, l.SafetyMargin, fixedCost)
	}
	return budget, nil
}

// Batch is an immutable group of units sent in one completion request.
type Batch struct {
	Index     int
	Units     []splitter.Unit
	Tokens    int  // estimated cost of the units
	Oversized bool // a single unit whose cost alone exceeds the budget
}

// Text is the batch body substituted into the prompt template.
func (b Batch) Text() string {
	parts := make([]string, len(b.Units))
	for i, u := range b.Units {
		parts[i] = u.Text
	}
	return strings.Join(parts, Separator)
}

// Plan is the output of one planning pass.
type Plan struct {
	Batches   []Batch
	FixedCost int
	Budget    int
}

// Planner greedily packs units under a token budget.
type Planner struct {
	estimate tokenizer.Estimator
	logger   *slog.Logger
}

// NewPlanner returns a Planner; a nil estimator uses tokenizer.Overestimate.
func NewPlanner(estimate tokenizer.Estimator, logger *slog.Logger) *Planner {
	if estimate == nil {
		estimate = tokenizer.Overestimate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{estimate: estimate, logger: logger}
}

// FixedCost is tokens(promptTemplate) + tokens(schemaDoc).
func (p *Planner) FixedCost(promptTemplate string, schemaDoc []byte) int {
	return p.estimate(promptTemplate) + p.estimate(string(schemaDoc))
}

// Plan partitions units, in order, into batches. A non-positive budget is a
// configuration error. A unit that alone exceeds the budget is placed in a
// batch of its own and never split.
func (p *Planner) Plan(units []splitter.Unit, promptTemplate string, schemaDoc []byte, limits Limits) (Plan, error) {
	fixed := p.FixedCost(promptTemplate, schemaDoc)
	budget, err := limits.Budget(fixed)
	if err != nil {
		p.logger.Error("batch.plan.config_error", "error", err)
		return Plan{FixedCost: fixed, Budget: budget}, err
	}

	plan := Plan{FixedCost: fixed, Budget: budget}
	var cur Batch
	flush := func() {
		if len(cur.Units) == 0 {
			return
		}
		cur.Index = len(plan.Batches)
		plan.Batches = append(plan.Batches, cur)
		cur = Batch{}
	}

	for _, u := range units {
		cost := p.estimate(u.Text)
		if cost > budget {
			flush()
			cur = Batch{Units: []splitter.Unit{u}, Tokens: cost, Oversized: true}
			flush()
			p.logger.Warn("batch.plan.oversized_unit", "unit_index", u.Index, "tokens", cost, "budget", budget)
			continue
		}
		if cur.Tokens+cost > budget {
			flush()
		}
		cur.Units = append(cur.Units, u)
		cur.Tokens += cost
	}
	flush()

	p.logger.Debug("batch.plan.ok",
		"units", len(units),
		"batches", len(plan.Batches),
		"fixed_cost", fixed,
		"budget", budget,
	)
	return plan, nil
}
