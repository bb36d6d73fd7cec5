// Package rules provides the CEL-Go based criteria evaluation engine used
// to decide whether a provider network is actionable.
package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Engine is the CEL-based criteria evaluation engine.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*CompiledCriterion
}

// CompiledCriterion holds a pre-compiled CEL program.
type CompiledCriterion struct {
	Criterion domain.Criterion
	Program   cel.Program
}

// Vars is the activation for one network.
type Vars struct {
	PeakRiskTier         domain.RiskTier
	CombinedOverpayment  float64
	MemberCount          int
	SignalTypeCount      int
	FindingCount         int
	CovidEraFindingCount int
}

func (v Vars) activation() map[string]any {
	ratio := 0.0
	if v.FindingCount > 0 {
		ratio = float64(v.CovidEraFindingCount) / float64(v.FindingCount)
	}
	return map[string]any{
		"peak_risk_tier":          string(v.PeakRiskTier),
		"peak_tier_rank":          int64(v.PeakRiskTier.Rank()),
		"combined_overpayment":    v.CombinedOverpayment,
		"member_count":            int64(v.MemberCount),
		"signal_type_count":       int64(v.SignalTypeCount),
		"finding_count":           int64(v.FindingCount),
		"covid_era_finding_count": int64(v.CovidEraFindingCount),
		"covid_era_ratio":         ratio,
	}
}

// NewEngine creates an engine with the network variables declared.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("peak_risk_tier", cel.StringType),
		cel.Variable("peak_tier_rank", cel.IntType),
		cel.Variable("combined_overpayment", cel.DoubleType),
		cel.Variable("member_count", cel.IntType),
		cel.Variable("signal_type_count", cel.IntType),
		cel.Variable("finding_count", cel.IntType),
		cel.Variable("covid_era_finding_count", cel.IntType),
		cel.Variable("covid_era_ratio", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// Validate compiles a criterion without loading it.
func (e *Engine) Validate(c domain.Criterion) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(c)
	return err
}

// LoadCriteria replaces the loaded criteria. Either all compile or none load.
func (e *Engine) LoadCriteria(criteria []domain.Criterion) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled := make([]*CompiledCriterion, 0, len(criteria))
	for _, c := range criteria {
		cc, err := e.compile(c)
		if err != nil {
			return err
		}
		compiled = append(compiled, cc)
	}
	e.compiled = compiled
	return nil
}

// CriteriaCount returns the number of loaded criteria.
func (e *Engine) CriteriaCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Evaluate runs every loaded criterion in load order.
// Evaluation errors are reported as failures.
func (e *Engine) Evaluate(v Vars) []domain.CriterionResult {
	e.mu.RLock()
	compiled := e.compiled
	e.mu.RUnlock()

	activation := v.activation()
	results := make([]domain.CriterionResult, 0, len(compiled))
	for _, cc := range compiled {
		results = append(results, evaluate(cc, activation))
	}
	return results
}

// Allows reports whether every criterion passed, and the failure reasons.
func (e *Engine) Allows(v Vars) (bool, []string) {
	var reasons []string
	for _, r := range e.Evaluate(v) {
		if !r.Passed() {
			reasons = append(reasons, r.Reason)
		}
	}
	return len(reasons) == 0, reasons
}

func evaluate(cc *CompiledCriterion, activation map[string]any) domain.CriterionResult {
	result := domain.CriterionResult{CriterionID: cc.Criterion.ID}

	out, _, err := cc.Program.Eval(activation)
	if err != nil {
		result.Outcome = domain.OutcomeError
		result.Reason = fmt.Sprintf("%s: evaluation error: %v", cc.Criterion.ID, err)
		return result
	}

	if b, ok := out.(types.Bool); ok && bool(b) {
		result.Outcome = domain.OutcomePass
		return result
	}

	result.Outcome = domain.OutcomeFail
	result.Reason = cc.Criterion.Reason
	if result.Reason == "" {
		result.Reason = cc.Criterion.ID
	}
	return result
}

func (e *Engine) compile(c domain.Criterion) (*CompiledCriterion, error) {
	ast, issues := e.env.Compile(c.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile criterion %s: %w", c.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("criterion %s: expression must return bool, got %s", c.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for criterion %s: %w", c.ID, err)
	}

	return &CompiledCriterion{Criterion: c, Program: program}, nil
}
