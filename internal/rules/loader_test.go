package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/merlin/internal/domain"
)

const sampleDocument = `{
  "RuleBasedScreeningRules": [
    {
      "category": "Income Validation",
      "rules": [
        {"name": "NegativeIncome", "description": "Annual income cannot be negative", "condition": "annual_income < 0", "action": "reject"}
      ]
    },
    {
      "category": "Credit Behaviour",
      "rules": [
        {"name": "HighUtilization", "description": "Utilization above 80%", "condition": "credit_utilization_ratio > 80", "action": "flag"}
      ]
    }
  ]
}`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("failed to parse document: %v", err)
	}

	if len(doc.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(doc.Categories))
	}
	if doc.Categories[0].Category != "Income Validation" {
		t.Errorf("unexpected first category: %s", doc.Categories[0].Category)
	}
	r := doc.Categories[0].Rules[0]
	if r.Name != "NegativeIncome" || r.Action != domain.ActionReject || r.Condition != "annual_income < 0" {
		t.Errorf("unexpected rule: %+v", r)
	}
}

func TestParseInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"RuleBasedScreeningRules": [`},
		{"missing root", `{"rules": []}`},
		{"unknown action", `{"RuleBasedScreeningRules": [{"category": "c", "rules": [{"name": "n", "condition": "true", "action": "approve"}]}]}`},
		{"missing condition", `{"RuleBasedScreeningRules": [{"category": "c", "rules": [{"name": "n", "action": "flag"}]}]}`},
		{"empty name", `{"RuleBasedScreeningRules": [{"category": "c", "rules": [{"name": "", "condition": "true", "action": "flag"}]}]}`},
		{"rules not a list", `{"RuleBasedScreeningRules": [{"category": "c", "rules": {}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, ErrRuleDocument) {
				t.Errorf("expected ErrRuleDocument, got %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(sampleDocument), 0o600); err != nil {
		t.Fatalf("failed to write rules: %v", err)
	}

	engine, err := Load(path, DefaultCostLimit)
	if err != nil {
		t.Fatalf("failed to load engine: %v", err)
	}
	if engine.RulesCount() != 2 {
		t.Errorf("expected 2 rules, got %d", engine.RulesCount())
	}

	verdict := engine.Evaluate(domain.Profile{"annual_income": "-5", "credit_utilization_ratio": "90"})
	if !verdict.Rejected || verdict.Rule != "NegativeIncome" {
		t.Errorf("expected NegativeIncome rejection, got %+v", verdict)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), DefaultCostLimit)
	if !errors.Is(err, ErrRuleDocument) {
		t.Errorf("expected ErrRuleDocument, got %v", err)
	}
}

func TestShippedRuleDocument(t *testing.T) {
	engine, err := Load(filepath.Join("..", "..", "config", "screening_rules.json"), DefaultCostLimit)
	if err != nil {
		t.Fatalf("shipped rules must load: %v", err)
	}
	if len(engine.Invalid()) != 0 {
		t.Errorf("shipped rules must all compile, got %v", engine.Invalid())
	}
}
