package explain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Provider names.
const (
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
	ProviderNone    = "none"
)

// New builds the configured Explainer. Endpoint resolution happens here,
// once; an incomplete configuration returns ErrNotConfigured.
func New(ctx context.Context, cfg domain.ExplainConfig) (Explainer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderNone, "":
		return nil, fmt.Errorf("%w: provider disabled", ErrNotConfigured)

	case ProviderGemini:
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		slog.Info("explanation provider ready", "provider", ProviderGemini, "model", g.model)
		return g, nil

	case ProviderBedrock:
		// The SDK client accepts inference-profile references as model ids.
		ep, err := Resolve(Settings{
			APIKey:              cfg.APIKey,
			ModelID:             cfg.ModelID,
			InferenceProfileID:  cfg.InferenceProfileID,
			InferenceProfileARN: cfg.InferenceProfileARN,
			Region:              cfg.Region,
			TargetRegion:        cfg.TargetRegion,
		}, true)
		if err != nil {
			return nil, err
		}

		var b *Bedrock
		if ep.Mode == ModeBearer {
			b = NewBearer(ep, cfg.APIKey, nil, cfg.Timeout)
		} else {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(ep.Region))
			if err != nil {
				return nil, fmt.Errorf("%w: load aws config: %v", ErrNotConfigured, err)
			}
			b = NewManaged(ep, bedrockruntime.NewFromConfig(awsCfg), cfg.Timeout)
		}
		slog.Info("explanation provider ready",
			"provider", ProviderBedrock,
			"mode", ep.Mode,
			"target", ep.Target,
			"region", ep.Region,
		)
		return b, nil

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNotConfigured, cfg.Provider)
	}
}
