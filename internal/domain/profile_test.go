package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewProfile(t *testing.T) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(`{
		"name": "Alice",
		"age": 34,
		"annual_income": 52000.5,
		"active": true,
		"nickname": null
	}`), &raw); err != nil {
		t.Fatal(err)
	}

	p, err := NewProfile(raw)
	if err != nil {
		t.Fatalf("NewProfile failed: %v", err)
	}

	want := map[string]string{
		"name":          "Alice",
		"age":           "34",
		"annual_income": "52000.5",
		"active":        "true",
	}
	for k, v := range want {
		if p[k] != v {
			t.Errorf("%s = %q, want %q", k, p[k], v)
		}
	}
	if _, ok := p["nickname"]; ok {
		t.Error("null values must be dropped")
	}

	for _, bad := range []map[string]any{
		{"address": map[string]any{"city": "x"}},
		{"loans": []any{"auto"}},
	} {
		if _, err := NewProfile(bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%v: expected ErrInvalidInput, got %v", bad, err)
		}
	}
}

func TestProfileLookup(t *testing.T) {
	p := Profile{"Annual_Income": "1000", "annual_income": "2000", "Age": "40"}

	if v, _ := p.Lookup("annual_income"); v != "2000" {
		t.Errorf("exact key must win, got %q", v)
	}
	if v, ok := p.Lookup("age"); !ok || v != "40" {
		t.Errorf("expected case-insensitive match, got %q %v", v, ok)
	}
	variants := Profile{"AGE": "1", "Age": "2", "aGe": "3"}
	for i := 0; i < 20; i++ {
		if v, _ := variants.Lookup("age"); v != "1" {
			t.Fatalf("expected the smallest case variant AGE, got %q", v)
		}
	}
	if v, _ := (Profile{"AGE": "1", "age": "4"}).Lookup("Age"); v != "4" {
		t.Errorf("expected the lower-case key to win, got %q", v)
	}

	if _, ok := p.Lookup("missing"); ok {
		t.Error("expected missing field")
	}
	if p.Get("missing") != "" {
		t.Error("Get on a missing field must be empty")
	}
}

func TestProfileNumbers(t *testing.T) {
	p := Profile{
		"whole":    "3",
		"decimal":  "3.0",
		"fraction": "3.5",
		"padded":   " 7 ",
		"text":     "abc",
		"nan":      "NaN",
		"inf":      "+Inf",
		"huge":     "1e300",
	}

	tests := []struct {
		field   string
		want    int
		wantErr bool
	}{
		{"whole", 3, false},
		{"decimal", 3, false},
		{"padded", 7, false},
		{"fraction", 0, true},
		{"text", 0, true},
		{"missing", 0, true},
		{"nan", 0, true},
		{"inf", 0, true},
		{"huge", 0, true},
	}
	for _, tt := range tests {
		got, err := p.Int(tt.field)
		if (err != nil) != tt.wantErr {
			t.Errorf("Int(%s) error = %v, wantErr %v", tt.field, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Int(%s) error must wrap ErrInvalidInput", tt.field)
		}
		if got != tt.want {
			t.Errorf("Int(%s) = %d, want %d", tt.field, got, tt.want)
		}
	}

	if f, err := p.Float("fraction"); err != nil || f != 3.5 {
		t.Errorf("Float(fraction) = %v, %v", f, err)
	}
	for _, field := range []string{"text", "nan", "inf"} {
		if _, err := p.Float(field); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Float(%s) must wrap ErrInvalidInput, got %v", field, err)
		}
	}
}

func TestProfileApplicant(t *testing.T) {
	tests := []struct {
		name string
		p    Profile
		want string
	}{
		{"CustomerID", Profile{"customer_id": "CUS_1", "name": "Alice"}, "CUS_1"},
		{"NameFallback", Profile{"name": " Alice "}, "Alice"},
		{"BlankCustomerID", Profile{"customer_id": "  ", "name": "Bob"}, "Bob"},
		{"CaseInsensitive", Profile{"Customer_ID": "CUS_2"}, "CUS_2"},
		{"Anonymous", Profile{"age": "30"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Applicant(); got != tt.want {
				t.Errorf("Applicant() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProfileWith(t *testing.T) {
	p := Profile{"age": "30"}
	q := p.With(FieldRecentApplications, "4")

	if q[FieldRecentApplications] != "4" || q["age"] != "30" {
		t.Errorf("unexpected copy: %v", q)
	}
	if _, ok := p[FieldRecentApplications]; ok {
		t.Error("With must not modify the original profile")
	}
}
