package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const sampleCSV = `Customer_ID,Name,Annual_Income,Credit_Score
CUS_1,Alice,52000,Good
CUS_2,Bob,18000,Poor
broken,row
CUS_3,Carol,31000,Standard
`

func TestReadSamples(t *testing.T) {
	samples, err := readSamples(strings.NewReader(sampleCSV), "credit_score", 0)
	if err != nil {
		t.Fatalf("readSamples failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples (malformed row skipped), got %d", len(samples))
	}
	if samples[0].Label != "Good" || samples[1].Label != "Poor" {
		t.Errorf("unexpected labels: %q %q", samples[0].Label, samples[1].Label)
	}
	if _, ok := samples[0].Profile["Credit_Score"]; ok {
		t.Error("label column must be withheld from the profile")
	}
	if samples[2].Profile["Annual_Income"] != "31000" {
		t.Errorf("unexpected profile: %v", samples[2].Profile)
	}

	limited, _ := readSamples(strings.NewReader(sampleCSV), "Credit_Score", 2)
	if len(limited) != 2 {
		t.Errorf("expected limit of 2, got %d", len(limited))
	}

	if _, err := readSamples(strings.NewReader(""), "Credit_Score", 0); err == nil {
		t.Error("expected an error for a missing header")
	}
}

func intPtr(v int) *int { return &v }

func TestRunAggregates(t *testing.T) {
	samples := []Sample{
		{Label: "Good", Profile: map[string]string{"id": "1"}},
		{Label: "Good", Profile: map[string]string{"id": "2"}},
		{Label: "Poor", Profile: map[string]string{"id": "3"}},
		{Label: "Poor", Profile: map[string]string{"id": "4"}},
	}

	report := run(samples, 3, func(s Sample) Result {
		switch s.Profile["id"] {
		case "1":
			return Result{Label: s.Label, Latency: time.Millisecond, Response: &ScoreResponse{Status: "ok", CreditScore: intPtr(700), SummaryStatus: "generated"}}
		case "2":
			return Result{Label: s.Label, Latency: 2 * time.Millisecond, Response: &ScoreResponse{Status: "ok", CreditScore: intPtr(600), SummaryStatus: "generated"}}
		case "3":
			return Result{Label: s.Label, Latency: 3 * time.Millisecond, Response: &ScoreResponse{Status: "rejected", Reason: "NegativeIncome"}}
		default:
			return Result{Label: s.Label, Latency: 4 * time.Millisecond, Err: errors.New("status 500")}
		}
	}, false)

	if report.Total != 4 || report.Errors != 1 {
		t.Errorf("expected 4 total and 1 error, got %d and %d", report.Total, report.Errors)
	}
	if report.Statuses["ok"] != 2 || report.Statuses["rejected"] != 1 {
		t.Errorf("unexpected statuses: %v", report.Statuses)
	}
	if report.Rules["NegativeIncome"] != 1 {
		t.Errorf("unexpected rules: %v", report.Rules)
	}
	if got := mean(report.Scores["Good"]); got != 650 {
		t.Errorf("expected mean 650 for Good, got %v", got)
	}
	if _, ok := report.Scores["Poor"]; ok {
		t.Error("rejected profiles carry no score")
	}

	var out bytes.Buffer
	printReport(&out, report, time.Second)
	for _, want := range []string{"Requests:  4", "Errors:    1", "NegativeIncome", "mean=650.0"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}
}

func TestPercentile(t *testing.T) {
	var lat []time.Duration
	for i := 1; i <= 100; i++ {
		lat = append(lat, time.Duration(i)*time.Millisecond)
	}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{50, 50 * time.Millisecond},
		{95, 95 * time.Millisecond},
		{99, 99 * time.Millisecond},
		{100, 100 * time.Millisecond},
		{0, time.Millisecond},
	}
	for _, tt := range tests {
		if got := percentile(lat, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if percentile(nil, 50) != 0 {
		t.Error("expected zero for no samples")
	}
}

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var profile map[string]string
		json.NewDecoder(r.Body).Decode(&profile)
		if profile["Annual_Income"] == "-1" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"error":"invalid input"}`))
			return
		}
		w.Write([]byte(`{"status":"flagged","flags":[{"rule":"HighUtilization"}]}`))
	}))
	defer srv.Close()

	res := send(srv.Client(), srv.URL, Sample{Label: "Good", Profile: map[string]string{"Annual_Income": "1"}})
	if res.Err != nil {
		t.Fatalf("send failed: %v", res.Err)
	}
	if res.Response.Status != "flagged" || res.Response.Flags[0].Rule != "HighUtilization" {
		t.Errorf("unexpected response: %+v", res.Response)
	}
	if res.Latency <= 0 {
		t.Error("expected latency to be recorded")
	}

	res = send(srv.Client(), srv.URL, Sample{Profile: map[string]string{"Annual_Income": "-1"}})
	if res.Err == nil || !strings.Contains(res.Err.Error(), "422") {
		t.Errorf("expected a 422 error, got %v", res.Err)
	}
}
