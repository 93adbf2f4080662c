package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
	"github.com/hszk-dev/fronttube/internal/usecase"
)

const (
	// DefaultMaxBatch bounds the number of URLs accepted by one batch request.
	DefaultMaxBatch = 50

	maxBatchBody = 1 << 20
)

var validate = validator.New()

// Resolver is the data repository surface the handler depends on.
// *usecase.DataRepository satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error)
	ResolveMany(ctx context.Context, kind model.Kind, ids []model.RemoteIdentity) ([]model.CacheResult[model.Entity], error)
	Refresh(ctx context.Context, id model.RemoteIdentity) (model.CacheResult[model.Entity], error)
	Invalidate(ctx context.Context, id model.RemoteIdentity, scope usecase.InvalidateScope) error
}

// Request/Response types

type BatchRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,dive,required,url"`
}

type EntityResponse struct {
	Status   string       `json:"status"`
	Kind     string       `json:"kind"`
	URL      string       `json:"url"`
	Degraded bool         `json:"degraded,omitempty"`
	Error    string       `json:"error,omitempty"`
	Entity   model.Entity `json:"entity,omitempty"`
}

type BatchResponse struct {
	Results []EntityResponse `json:"results"`
}

// EntityHandler serves cached entities of every kind.
type EntityHandler struct {
	repo     Resolver
	maxBatch int
}

// NewEntityHandler creates a new EntityHandler. maxBatch <= 0 selects DefaultMaxBatch.
func NewEntityHandler(repo Resolver, maxBatch int) *EntityHandler {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &EntityHandler{repo: repo, maxBatch: maxBatch}
}

// Routes mounts the entity endpoints on r.
func (h *EntityHandler) Routes(r chi.Router) {
	r.Get("/{kind}", h.Get)
	r.Delete("/{kind}", h.Invalidate)
	r.Post("/{kind}/batch", h.Batch)
	r.Post("/{kind}/refresh", h.Refresh)
}

// Get handles GET /v1/{kind}?url=
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	res, err := h.repo.Resolve(r.Context(), id)
	h.writeResult(w, res, err)
}

// Refresh handles POST /v1/{kind}/refresh?url=
func (h *EntityHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	res, err := h.repo.Refresh(r.Context(), id)
	h.writeResult(w, res, err)
}

// Batch handles POST /v1/{kind}/batch
func (h *EntityHandler) Batch(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "urls must be a non-empty list of absolute URLs")
		return
	}
	if len(req.URLs) > h.maxBatch {
		Error(w, http.StatusRequestEntityTooLarge, "batch_too_large", "Too many urls in one batch")
		return
	}

	ids := make([]model.RemoteIdentity, len(req.URLs))
	for i, raw := range req.URLs {
		id, err := model.NewRemoteIdentity(kind, raw)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid_url", "Invalid url: "+raw)
			return
		}
		ids[i] = id
	}

	results, err := h.repo.ResolveMany(r.Context(), kind, ids)
	if err != nil {
		h.handleRepositoryError(w, err)
		return
	}

	resp := BatchResponse{Results: make([]EntityResponse, len(results))}
	for i, res := range results {
		resp.Results[i] = toEntityResponse(res)
	}
	JSON(w, http.StatusOK, resp)
}

// Invalidate handles DELETE /v1/{kind}?url=&persisted=
func (h *EntityHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	scope := usecase.InvalidateMemory
	if p := r.URL.Query().Get("persisted"); p != "" {
		persisted, err := strconv.ParseBool(p)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid_request", "persisted must be a boolean")
			return
		}
		if persisted {
			scope = usecase.InvalidatePersisted
		}
	}

	if err := h.repo.Invalidate(r.Context(), id, scope); err != nil {
		h.handleRepositoryError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *EntityHandler) kind(w http.ResponseWriter, r *http.Request) (model.Kind, bool) {
	kind, err := model.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		Error(w, http.StatusNotFound, "unsupported_kind", "Unknown entity kind")
		return model.KindUnknown, false
	}
	return kind, true
}

func (h *EntityHandler) identity(w http.ResponseWriter, r *http.Request) (model.RemoteIdentity, bool) {
	kind, ok := h.kind(w, r)
	if !ok {
		return model.RemoteIdentity{}, false
	}

	raw := r.URL.Query().Get("url")
	if raw == "" {
		Error(w, http.StatusBadRequest, "invalid_url", "url is required")
		return model.RemoteIdentity{}, false
	}

	id, err := model.NewRemoteIdentity(kind, raw)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_url", "url must be an absolute http(s) URL")
		return model.RemoteIdentity{}, false
	}
	return id, true
}

func (h *EntityHandler) writeResult(w http.ResponseWriter, res model.CacheResult[model.Entity], err error) {
	if err != nil {
		h.handleRepositoryError(w, err)
		return
	}

	w.Header().Set("X-Cache", cacheHeader(res))

	switch res.Status {
	case model.StatusHit, model.StatusRefreshed:
		JSON(w, http.StatusOK, toEntityResponse(res))
	case model.StatusMiss:
		Error(w, http.StatusNotFound, "not_found", "No data exists for this url")
	default:
		if errors.Is(res.Err, repository.ErrProviderUnavailable) {
			Error(w, http.StatusServiceUnavailable, "provider_unavailable", "Upstream is temporarily unavailable")
			return
		}
		Error(w, http.StatusBadGateway, "provider_error", res.ErrorMessage())
	}
}

func (h *EntityHandler) handleRepositoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidURL):
		Error(w, http.StatusBadRequest, "invalid_url", err.Error())
	case errors.Is(err, model.ErrUnsupportedEntityType):
		Error(w, http.StatusBadRequest, "unsupported_kind", err.Error())
	case errors.Is(err, repository.ErrStorage):
		Error(w, http.StatusServiceUnavailable, "storage_unavailable", "Persisted store is unavailable")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func cacheHeader(res model.CacheResult[model.Entity]) string {
	if res.Degraded() {
		return "stale"
	}
	return res.Status.String()
}

func toEntityResponse(res model.CacheResult[model.Entity]) EntityResponse {
	return EntityResponse{
		Status:   res.Status.String(),
		Kind:     res.Identity.Kind().String(),
		URL:      res.Identity.URL(),
		Degraded: res.Degraded(),
		Error:    res.ErrorMessage(),
		Entity:   res.Entity,
	}
}
