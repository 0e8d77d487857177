package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/onnwee/jobrec/internal/middleware"
	"github.com/onnwee/jobrec/internal/model"
)

// UserIDHeader identifies the user recommendations are computed for.
const UserIDHeader = "X-User-ID"

// Recommender ranks jobs for a user.
type Recommender interface {
	Recommend(ctx context.Context, userID int64, limit int) ([]model.JobScore, error)
}

// FeaturedJobs picks single featured jobs.
type FeaturedJobs interface {
	MostReserved(ctx context.Context) (model.Job, error)
	TopRated(ctx context.Context, category string) (model.Job, error)
}

// recommendationsRequest holds the validated input of GET /v1/recommendations/jobs.
type recommendationsRequest struct {
	UserID int64 `validate:"gt=0"`
	Limit  int   `validate:"min=1,maxlimit"`
}

// topRatedRequest holds the validated input of GET /v1/recommendations/jobs/top-rated.
type topRatedRequest struct {
	Category string `validate:"required,category"`
}

// RecommendationHandlers serves the recommendation endpoints.
type RecommendationHandlers struct {
	recommender  Recommender
	featured     FeaturedJobs
	defaultLimit int
	maxLimit     int
	validate     *validator.Validate
	logger       *slog.Logger
}

// RecommendationHandlersConfig configures RecommendationHandlers.
type RecommendationHandlersConfig struct {
	DefaultLimit int
	MaxLimit     int
	Logger       *slog.Logger
}

// NewRecommendationHandlers creates the recommendation endpoints.
func NewRecommendationHandlers(recommender Recommender, featured FeaturedJobs, cfg RecommendationHandlersConfig) *RecommendationHandlers {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &RecommendationHandlers{
		recommender:  recommender,
		featured:     featured,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		logger:       cfg.Logger,
	}
	h.validate = newValidator(cfg.MaxLimit)
	return h
}

// newValidator registers the custom rules used by the request structs.
func newValidator(maxLimit int) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("maxlimit", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() <= int64(maxLimit)
	})

	categories := make(map[string]bool, len(model.Categories))
	for _, c := range model.Categories {
		categories[c] = true
	}
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return categories[fl.Field().String()]
	})
	return v
}

// Recommendations handles GET /v1/recommendations/jobs.
// The user comes from the X-User-ID header. The optional limit query
// parameter defaults to the configured limit when missing or not positive.
func (h *RecommendationHandlers) Recommendations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(UserIDHeader)), 10, 64)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, UserIDHeader+" header must be a user id")
		return
	}
	ctx = middleware.SetUserID(ctx, userID)
	middleware.UpdateResponseContext(w, ctx)

	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	req := recommendationsRequest{UserID: userID, Limit: limit}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, h.validationMessage(err))
		return
	}

	scores, err := h.recommender.Recommend(ctx, req.UserID, req.Limit)
	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}
	WriteJSON(w, ctx, http.StatusOK, scores)
}

// MostReserved handles GET /v1/recommendations/jobs/most-reserved.
func (h *RecommendationHandlers) MostReserved(w http.ResponseWriter, r *http.Request) {
	job, err := h.featured.MostReserved(r.Context())
	if err != nil {
		writeServiceError(w, r.Context(), err)
		return
	}
	WriteJSON(w, r.Context(), http.StatusOK, job)
}

// TopRated handles GET /v1/recommendations/jobs/top-rated?category=PLUMBER.
func (h *RecommendationHandlers) TopRated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := topRatedRequest{Category: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("category")))}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, h.validationMessage(err))
		return
	}

	job, err := h.featured.TopRated(ctx, req.Category)
	if err != nil {
		writeServiceError(w, ctx, err)
		return
	}
	WriteJSON(w, ctx, http.StatusOK, job)
}

func (h *RecommendationHandlers) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer, got %q", raw)
	}
	if limit <= 0 {
		return h.defaultLimit, nil
	}
	return limit, nil
}

// validationMessage turns the first validator failure into a client message.
func (h *RecommendationHandlers) validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "invalid request"
	}

	fe := errs[0]
	switch fe.Tag() {
	case "maxlimit":
		return fmt.Sprintf("limit must not exceed %d", h.maxLimit)
	case "min":
		return "limit must be positive"
	case "gt":
		return UserIDHeader + " header must be a positive user id"
	case "required", "category":
		return "category must be one of " + strings.Join(model.Categories, ", ")
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
