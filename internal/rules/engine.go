// Package rules provides the CEL-Go based screening rule engine.
package rules

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/merlin/internal/domain"
)

// DefaultCostLimit bounds the runtime cost of a single condition.
const DefaultCostLimit = 10000

// Engine screens profiles against an immutable rule set.
// It is safe for concurrent use.
type Engine struct {
	env        *cel.Env
	costLimit  uint64
	categories []compiledCategory
	invalid    []RuleError
	total      int
}

type compiledCategory struct {
	name  string
	rules []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program for one rule.
// Program is nil when the condition failed to compile.
type CompiledRule struct {
	Rule     domain.Rule
	Category string
	Program  cel.Program

	// Vars are the profile fields referenced by the condition.
	Vars []string
}

// RuleError describes a rule whose condition could not be compiled.
type RuleError struct {
	Category string
	Rule     string
	Err      error
}

func (e RuleError) Error() string {
	return fmt.Sprintf("rule %s/%s: %v", e.Category, e.Rule, e.Err)
}

// NewEngine compiles every rule in doc. A condition that fails to compile
// never matches; it is logged and reported by Invalid. Unknown actions are an error.
func NewEngine(doc *domain.RuleDocument, costLimit uint64) (*Engine, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: rule document is required", ErrRuleDocument)
	}

	env, err := cel.NewEnv(
		cel.ClearMacros(),
		cel.CrossTypeNumericComparisons(true),
		regexFunction(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env, costLimit: costLimit}
	for _, cat := range doc.Categories {
		cc := compiledCategory{name: cat.Category}
		for _, rule := range cat.Rules {
			if !rule.Action.Valid() {
				return nil, fmt.Errorf("%w: rule %s has unknown action %q", ErrRuleDocument, rule.Name, rule.Action)
			}
			compiled, err := e.compileRule(cat.Category, rule)
			if err != nil {
				slog.Warn("rule condition does not compile, rule will never match",
					"category", cat.Category,
					"rule", rule.Name,
					"error", err,
				)
				e.invalid = append(e.invalid, RuleError{Category: cat.Category, Rule: rule.Name, Err: err})
			}
			cc.rules = append(cc.rules, compiled)
			e.total++
		}
		e.categories = append(e.categories, cc)
	}

	return e, nil
}

// Evaluate screens a profile. Categories are visited in configured order and
// rules in declaration order. The first matching reject rule ends evaluation;
// matching flag rules accumulate. A condition that errors does not match.
func (e *Engine) Evaluate(profile domain.Profile) domain.Verdict {
	var verdict domain.Verdict

	for _, cat := range e.categories {
		for _, rule := range cat.rules {
			verdict.RulesEvaluated++
			if !rule.Matches(profile) {
				continue
			}

			if rule.Rule.Action == domain.ActionReject {
				return domain.Verdict{
					Rejected:       true,
					Rule:           rule.Rule.Name,
					Category:       cat.name,
					Description:    rule.Rule.Description,
					RulesEvaluated: verdict.RulesEvaluated,
				}
			}

			verdict.Flags = append(verdict.Flags, domain.Flag{
				Rule:        rule.Rule.Name,
				Category:    cat.name,
				Description: rule.Rule.Description,
			})
		}
	}

	return verdict
}

// Matches reports whether the rule's condition holds for profile.
func (r *CompiledRule) Matches(profile domain.Profile) bool {
	if r.Program == nil {
		return false
	}

	activation := make(map[string]any, len(r.Vars))
	for _, name := range r.Vars {
		raw, ok := profile.Lookup(name)
		activation[name] = bindValue(raw, ok)
	}

	out, _, err := r.Program.Eval(activation)
	if err != nil {
		slog.Debug("rule evaluation failed", "rule", r.Rule.Name, "error", err)
		return false
	}

	b, ok := out.(types.Bool)
	return ok && bool(b)
}

// Categories returns the loaded rule set in evaluation order.
func (e *Engine) Categories() []domain.RuleCategory {
	out := make([]domain.RuleCategory, 0, len(e.categories))
	for _, cat := range e.categories {
		rc := domain.RuleCategory{Category: cat.name, Rules: make([]domain.Rule, 0, len(cat.rules))}
		for _, r := range cat.rules {
			rc.Rules = append(rc.Rules, r.Rule)
		}
		out = append(out, rc)
	}
	return out
}

// RulesCount returns the number of loaded rules, including ones that failed to compile.
func (e *Engine) RulesCount() int {
	return e.total
}

// Invalid returns the rules whose conditions failed to compile.
func (e *Engine) Invalid() []RuleError {
	return e.invalid
}

func (e *Engine) compileRule(category string, rule domain.Rule) (*CompiledRule, error) {
	compiled := &CompiledRule{
		Rule:     rule,
		Category: category,
		Vars:     freeIdentifiers(rule.Condition),
	}

	decls := make([]cel.EnvOption, 0, len(compiled.Vars))
	for _, name := range compiled.Vars {
		decls = append(decls, cel.Variable(name, cel.DynType))
	}

	env, err := e.env.Extend(decls...)
	if err != nil {
		return compiled, fmt.Errorf("failed to declare variables: %w", err)
	}

	ast, issues := env.Compile(normalizeNumbers(rule.Condition))
	if issues != nil && issues.Err() != nil {
		return compiled, fmt.Errorf("failed to compile rule %s: %w", rule.Name, issues.Err())
	}

	outputType := ast.OutputType()
	if !outputType.IsExactType(cel.BoolType) && !outputType.IsExactType(cel.DynType) {
		return compiled, fmt.Errorf("rule %s: condition must return bool, got %s", rule.Name, outputType)
	}

	var progOpts []cel.ProgramOption
	if e.costLimit > 0 {
		progOpts = append(progOpts, cel.CostLimit(e.costLimit))
	}

	program, err := env.Program(ast, progOpts...)
	if err != nil {
		return compiled, fmt.Errorf("failed to create program for rule %s: %w", rule.Name, err)
	}

	compiled.Program = program
	return compiled, nil
}
