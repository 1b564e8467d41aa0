package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/xeipuuv/gojsonschema"
)

// ErrRuleDocument is returned for a rule source that cannot be loaded.
var ErrRuleDocument = errors.New("invalid rule document")

const documentSchema = `{
  "type": "object",
  "required": ["RuleBasedScreeningRules"],
  "properties": {
    "RuleBasedScreeningRules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["category", "rules"],
        "properties": {
          "category": {"type": "string"},
          "rules": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "condition", "action"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "description": {"type": "string"},
                "condition": {"type": "string"},
                "action": {"enum": ["reject", "flag"]}
              }
            }
          }
        }
      }
    }
  }
}`

// LoadFile reads and validates a rule document from path.
func LoadFile(path string) (*domain.RuleDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleDocument, err)
	}
	return Parse(data)
}

// Parse validates data against the rule document schema and decodes it.
func Parse(data []byte) (*domain.RuleDocument, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleDocument, err)
	}

	schemaLoader := gojsonschema.NewStringLoader(documentSchema)
	documentLoader := gojsonschema.NewGoLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("%w: validation error: %v", ErrRuleDocument, err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrRuleDocument, strings.Join(errs, "; "))
	}

	var doc domain.RuleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleDocument, err)
	}
	return &doc, nil
}

// Load reads the rule document at path and compiles it into an Engine.
func Load(path string, costLimit uint64) (*Engine, error) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewEngine(doc, costLimit)
}
