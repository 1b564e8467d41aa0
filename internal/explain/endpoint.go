package explain

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultRegion is used when neither the settings nor AWS_REGION name one.
const DefaultRegion = "us-west-2"

// Mode is the credential mode used to reach Bedrock.
type Mode string

const (
	// ModeBearer signs requests with a Bedrock API key.
	ModeBearer Mode = "bearer"
	// ModeManaged uses the AWS SDK credential chain.
	ModeManaged Mode = "managed"
)

// Settings are the optional inputs endpoint resolution chooses from.
type Settings struct {
	APIKey              string
	ModelID             string
	InferenceProfileID  string
	InferenceProfileARN string
	Region              string
	TargetRegion        string
}

// Endpoint is the resolved, immutable description of where requests go.
type Endpoint struct {
	Mode Mode

	// Target is the model or inference-profile identifier passed to the
	// managed runtime. In bearer mode it is the profile reference.
	Target  string
	ModelID string

	Region       string
	TargetRegion string

	// URL is set in bearer mode only.
	URL string
}

// Resolve picks the endpoint for s. profileSupport reports whether the
// managed runtime accepts an inference-profile reference in place of a
// model identifier.
func Resolve(s Settings, profileSupport bool) (Endpoint, error) {
	region := strings.TrimSpace(s.Region)
	if region == "" {
		region = DefaultRegion
	}
	profile := strings.TrimSpace(s.InferenceProfileARN)
	if profile == "" {
		profile = strings.TrimSpace(s.InferenceProfileID)
	}
	model := strings.TrimSpace(s.ModelID)

	ep := Endpoint{
		Region:       region,
		TargetRegion: strings.TrimSpace(s.TargetRegion),
		ModelID:      model,
	}

	switch {
	case strings.TrimSpace(s.APIKey) != "":
		if profile == "" {
			return Endpoint{}, fmt.Errorf("%w: bearer mode requires an inference profile", ErrNotConfigured)
		}
		if model == "" {
			return Endpoint{}, fmt.Errorf("%w: bearer mode requires a model id", ErrNotConfigured)
		}
		ep.Mode = ModeBearer
		ep.Target = profile
		ep.URL = bearerURL(region, profile, model, ep.TargetRegion)

	case profileSupport && profile != "":
		ep.Mode = ModeManaged
		ep.Target = profile

	case model != "":
		ep.Mode = ModeManaged
		ep.Target = model

	default:
		return Endpoint{}, fmt.Errorf("%w: set an inference profile or a model id", ErrNotConfigured)
	}

	return ep, nil
}

func bearerURL(region, profile, model, targetRegion string) string {
	u := fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/inference-profiles/%s/model/%s/invoke",
		region, url.PathEscape(profile), url.PathEscape(model))
	if targetRegion != "" {
		u += "?targetModelRegion=" + url.QueryEscape(targetRegion)
	}
	return u
}
