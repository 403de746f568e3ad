package analysis

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sano/sano-api/internal/platform/pipeline"
)

// Handler exposes the standalone analysis endpoint.
type Handler struct {
	service *Service
	logger  zerolog.Logger
}

func NewHandler(service *Service, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.With().Str("component", "analysis-handler").Logger(),
	}
}

// RegisterRoutes mounts the analysis route on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/analyze", h.Analyze)
}

type analyzeRequest struct {
	Consultation pipeline.AnalysisInput `json:"consultation"`
}

type analyzeResponse struct {
	Analysis *pipeline.Analysis `json:"analysis"`
}

// Analyze runs the model over the submitted consultation. Unparseable model
// output degrades to the generic assessment inside the service; upstream
// failures surface as an error response so the caller can fall back itself.
func (h *Handler) Analyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Consultation.Motif == "" || req.Consultation.Symptoms == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "motif and symptoms are required")
	}

	result, err := h.service.Analyze(c.Request().Context(), req.Consultation)
	if err != nil {
		h.logger.Error().Err(err).Msg("analysis failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "analysis unavailable",
		})
	}
	return c.JSON(http.StatusOK, analyzeResponse{Analysis: result})
}
