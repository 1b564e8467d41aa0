package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/metrics"
	"github.com/opensource-finance/merlin/internal/rules"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Decider decides one applicant profile.
type Decider interface {
	Decide(ctx context.Context, profile domain.Profile) (*domain.Decision, error)
}

// Recommender returns the catalog products most similar to a description.
type Recommender interface {
	Recommend(ctx context.Context, description string, topK int) []domain.Product
}

// Deps are the collaborators of the API. Decider is required; handlers
// whose collaborator is nil answer 503.
type Deps struct {
	Decider     Decider
	Recommender Recommender
	Rules       *rules.Engine
	Repo        domain.Repository
	Cache       domain.Cache
	Bus         domain.EventBus
	Version     string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// Score handles POST /score. The body is a flat JSON object of profile fields.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil || raw == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	profile, err := domain.NewProfile(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	d, err := h.deps.Decider.Decide(r.Context(), profile)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.Error("decision failed", "trace_id", GetTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "decision failed")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// SimilarProductsRequest is the request body for POST /similar_products.
type SimilarProductsRequest struct {
	Description string `json:"description"`
	TopK        int    `json:"top_k,omitempty"`
}

// SimilarProductsResponse is the response for POST /similar_products.
type SimilarProductsResponse struct {
	Results []domain.Product `json:"results"`
}

// SimilarProducts handles POST /similar_products.
func (h *Handler) SimilarProducts(w http.ResponseWriter, r *http.Request) {
	if h.deps.Recommender == nil {
		writeError(w, http.StatusServiceUnavailable, "product catalog not available")
		return
	}

	var req SimilarProductsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	products := h.deps.Recommender.Recommend(r.Context(), req.Description, req.TopK)
	metrics.Recommendations.WithLabelValues(strconv.FormatBool(len(products) > 0)).Inc()

	if products == nil {
		products = []domain.Product{}
	}
	writeJSON(w, http.StatusOK, SimilarProductsResponse{Results: products})
}

// GetApplication retrieves a stored application, checking the cache first.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.deps.Cache != nil {
		app, err := cache.GetApplication(ctx, h.deps.Cache, id)
		if err != nil {
			slog.Debug("application cache read failed", "id", id, "error", err)
		}
		if app != nil {
			writeJSON(w, http.StatusOK, app)
			return
		}
	}

	if h.deps.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	app, err := h.deps.Repo.GetApplication(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "application not found")
		return
	}
	if err != nil {
		slog.Error("failed to get application", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get application")
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// InvalidRule is a rule whose condition failed to compile.
type InvalidRule struct {
	Category string `json:"category"`
	Rule     string `json:"rule"`
	Error    string `json:"error"`
}

// ListRules returns the loaded screening rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.deps.Rules == nil {
		writeError(w, http.StatusServiceUnavailable, "rule engine not available")
		return
	}

	invalid := make([]InvalidRule, 0, len(h.deps.Rules.Invalid()))
	for _, e := range h.deps.Rules.Invalid() {
		invalid = append(invalid, InvalidRule{Category: e.Category, Rule: e.Rule, Error: e.Err.Error()})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"categories": h.deps.Rules.Categories(),
		"count":      h.deps.Rules.RulesCount(),
		"invalid":    invalid,
	})
}

// Health reports liveness and whether the backing stores answer.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.pingAll(r.Context()) != nil {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.deps.Version,
	})
}

// Ready answers 503 until every configured backing store responds.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.pingAll(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) pingAll(ctx context.Context) error {
	var errs []error
	if h.deps.Repo != nil {
		if err := h.deps.Repo.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if h.deps.Cache != nil {
		if err := h.deps.Cache.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if h.deps.Bus != nil {
		if err := h.deps.Bus.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
