// Package riskscore calls an external scoring endpoint hosted on SageMaker.
package riskscore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"

	"github.com/opensource-finance/merlin/internal/domain"
)

// ErrInvocationFailed is returned when the endpoint could not be reached
// or answered with an error.
var ErrInvocationFailed = errors.New("external scoring failed")

// scoreKeys are the response fields read as an anomaly score, in order.
var scoreKeys = []string{"anomaly_score", "fraud_risk", "score"}

// Result is the external opinion on a record. Exactly one field is set.
type Result struct {
	AnomalyScore   *float64
	Recommendation json.RawMessage
}

// EndpointInvoker is the subset of the SageMaker runtime client used here.
type EndpointInvoker interface {
	InvokeEndpoint(ctx context.Context, params *sagemakerruntime.InvokeEndpointInput, optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointOutput, error)
}

// Scorer sends flat records to one SageMaker endpoint.
type Scorer struct {
	client   EndpointInvoker
	endpoint string
	timeout  time.Duration
}

// NewScorer wraps client for endpoint.
func NewScorer(client EndpointInvoker, endpoint string, timeout time.Duration) *Scorer {
	return &Scorer{client: client, endpoint: endpoint, timeout: timeout}
}

// New builds a Scorer from configuration using the default AWS credential chain.
func New(ctx context.Context, cfg domain.RiskScoreConfig) (*Scorer, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("riskscore endpoint is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewScorer(sagemakerruntime.NewFromConfig(awsCfg), cfg.Endpoint, cfg.Timeout), nil
}

// Score sends record to the endpoint and interprets the answer.
func (s *Scorer) Score(ctx context.Context, record map[string]string) (*Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	body, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: encode record: %v", ErrInvocationFailed, err)
	}

	out, err := s.client.InvokeEndpoint(ctx, &sagemakerruntime.InvokeEndpointInput{
		EndpointName: aws.String(s.endpoint),
		Body:         body,
		ContentType:  aws.String("application/json"),
		Accept:       aws.String("application/json"),
	})
	if err != nil {
		slog.Warn("external scoring failed", "endpoint", s.endpoint, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}

	return interpret(out.Body), nil
}

// interpret reads a numeric score when the payload carries one and keeps
// the raw payload otherwise.
func interpret(payload []byte) *Result {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err == nil {
		for _, key := range scoreKeys {
			if v, ok := fields[key].(float64); ok {
				return &Result{AnomalyScore: &v}
			}
		}
	}

	if json.Valid(payload) {
		return &Result{Recommendation: json.RawMessage(payload)}
	}
	// Plain text answers are kept as a JSON string.
	quoted, _ := json.Marshal(strings.TrimSpace(string(payload)))
	return &Result{Recommendation: quoted}
}
