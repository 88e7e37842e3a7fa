package eligibility

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/cel-go/cel"

	"jansahay/internal/domain"
)

// Reason names the rule that rejected a scheme. The empty Reason means accepted.
type Reason string

const (
	Accepted         Reason = ""
	RejectMinAge     Reason = "min_age"
	RejectMaxAge     Reason = "max_age"
	RejectMaxIncome  Reason = "max_income"
	RejectGender     Reason = "gender"
	RejectCategory   Reason = "category_allowed"
	RejectOccupation Reason = "occupation"
	RejectExpression Reason = "expression"
)

const expressionCostCap = 100000

// Evaluator decides whether a user profile satisfies a scheme's rule set.
// Compiled expression programs are cached per expression source.
type Evaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEvaluator creates an evaluator with a CEL environment exposing `user`.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Evaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

var defaultEvaluator = sync.OnceValues(NewEvaluator)

// IsEligible reports whether user satisfies every present rule of scheme.
func IsEligible(user domain.UserProfile, scheme domain.SchemeRecord) bool {
	ev, err := defaultEvaluator()
	if err != nil {
		return false
	}
	return ev.IsEligible(user, scheme)
}

// IsEligible reports whether user satisfies every present rule of scheme.
func (e *Evaluator) IsEligible(user domain.UserProfile, scheme domain.SchemeRecord) bool {
	return e.Check(user, scheme) == Accepted
}

// Check returns the first rule that rejects user, or Accepted.
// Absent rule fields never reject.
func (e *Evaluator) Check(user domain.UserProfile, scheme domain.SchemeRecord) Reason {
	r := scheme.Eligibility
	if r.MinAge != nil && user.Age < *r.MinAge {
		return RejectMinAge
	}
	if r.MaxAge != nil && user.Age > *r.MaxAge {
		return RejectMaxAge
	}
	if r.MaxIncome != nil && user.Income > *r.MaxIncome {
		return RejectMaxIncome
	}
	if r.Gender != nil && *r.Gender != domain.AnyGender && user.Gender != *r.Gender {
		return RejectGender
	}
	if r.CategoryAllowed != nil && !slices.Contains(r.CategoryAllowed, user.Category) {
		return RejectCategory
	}
	if r.Occupation != nil && user.Occupation != *r.Occupation {
		return RejectOccupation
	}
	if r.Expression != nil && !e.matchExpression(*r.Expression, user) {
		return RejectExpression
	}
	return Accepted
}

// Compile validates every expression in schemes and caches the programs.
func (e *Evaluator) Compile(schemes []domain.SchemeRecord) error {
	for _, s := range schemes {
		if s.Eligibility.Expression == nil {
			continue
		}
		if _, err := e.program(*s.Eligibility.Expression); err != nil {
			return fmt.Errorf("%w: scheme %q: %v", domain.ErrMalformedInput, s.SchemeName, err)
		}
	}
	return nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prog, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prog, err := e.env.Program(ast, cel.CostLimit(expressionCostCap))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	e.mu.Lock()
	e.programs[expr] = prog
	e.mu.Unlock()
	return prog, nil
}

// matchExpression treats compile errors, evaluation errors and non-bool results as a rejection.
func (e *Evaluator) matchExpression(expr string, user domain.UserProfile) bool {
	prog, err := e.program(expr)
	if err != nil {
		return false
	}
	out, _, err := prog.Eval(map[string]any{"user": facts(user)})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

func facts(user domain.UserProfile) map[string]any {
	return map[string]any{
		"age":        int64(user.Age),
		"gender":     user.Gender,
		"income":     int64(user.Income),
		"state":      user.State,
		"category":   user.Category,
		"occupation": user.Occupation,
	}
}
