package explain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// runtime sends an encoded envelope and returns the raw response body.
type runtime interface {
	invoke(ctx context.Context, body []byte) ([]byte, error)
}

// Bedrock is an Explainer backed by Amazon Bedrock.
type Bedrock struct {
	endpoint Endpoint
	runtime  runtime
	timeout  time.Duration
}

// NewBearer returns a Bedrock explainer that calls ep.URL with apiKey.
// client may be nil.
func NewBearer(ep Endpoint, apiKey string, client *http.Client, timeout time.Duration) *Bedrock {
	if client == nil {
		client = &http.Client{}
	}
	return &Bedrock{
		endpoint: ep,
		runtime:  &httpRuntime{url: ep.URL, apiKey: apiKey, client: client},
		timeout:  timeout,
	}
}

// NewManaged returns a Bedrock explainer that uses the AWS SDK client.
func NewManaged(ep Endpoint, client ModelInvoker, timeout time.Duration) *Bedrock {
	return &Bedrock{
		endpoint: ep,
		runtime:  &managedRuntime{client: client, target: ep.Target, targetRegion: ep.TargetRegion},
		timeout:  timeout,
	}
}

// Endpoint returns the resolved endpoint.
func (b *Bedrock) Endpoint() Endpoint { return b.endpoint }

// Explain sends req and returns the first text block of the answer.
func (b *Bedrock) Explain(ctx context.Context, req Request) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	body, err := encodeRequest(req)
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrInvocationFailed, err)
	}

	start := time.Now()
	raw, err := b.runtime.invoke(ctx, body)
	if err != nil {
		slog.Warn("bedrock invocation failed",
			"mode", b.endpoint.Mode,
			"target", b.endpoint.Target,
			"error", err,
		)
		return "", err
	}
	slog.Debug("bedrock invocation completed",
		"mode", b.endpoint.Mode,
		"duration", time.Since(start),
	)
	return decodeResponse(raw)
}

type httpRuntime struct {
	url    string
	apiKey string
	client *http.Client
}

func (r *httpRuntime) invoke(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrInvocationFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrInvocationFailed, resp.StatusCode)
	}
	return data, nil
}

// ModelInvoker is the subset of the Bedrock runtime client used here.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type managedRuntime struct {
	client       ModelInvoker
	target       string
	targetRegion string
}

func (r *managedRuntime) invoke(ctx context.Context, body []byte) ([]byte, error) {
	input := &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(r.target),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	}

	var opts []func(*bedrockruntime.Options)
	if r.targetRegion != "" {
		mw := targetRegionMiddleware(r.targetRegion)
		opts = append(opts, func(o *bedrockruntime.Options) {
			o.APIOptions = append(o.APIOptions, func(stack *middleware.Stack) error {
				return stack.Build.Add(mw, middleware.After)
			})
		})
	}

	out, err := r.client.InvokeModel(ctx, input, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}
	return out.Body, nil
}

// targetRegionMiddleware adds the cross-region routing parameter to the
// request URL before it is signed.
func targetRegionMiddleware(region string) middleware.BuildMiddleware {
	return middleware.BuildMiddlewareFunc("MerlinTargetModelRegion",
		func(ctx context.Context, in middleware.BuildInput, next middleware.BuildHandler) (middleware.BuildOutput, middleware.Metadata, error) {
			if req, ok := in.Request.(*smithyhttp.Request); ok {
				q := req.URL.Query()
				q.Set("targetModelRegion", region)
				req.URL.RawQuery = q.Encode()
			}
			return next.HandleBuild(ctx, in)
		})
}
