package documents

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sano/sano-api/internal/domain/consultation"
	"github.com/sano/sano-api/internal/platform/pipeline"
)

// Generator produces the work stoppage certificate PDF.
type Generator interface {
	GenerateWorkStoppage(ctx context.Context, req pipeline.WorkStoppageRequest) ([]byte, error)
}

type Handler struct {
	store     consultation.Store
	generator Generator
	logger    zerolog.Logger
}

func NewHandler(store consultation.Store, generator Generator, logger zerolog.Logger) *Handler {
	return &Handler{
		store:     store,
		generator: generator,
		logger:    logger.With().Str("component", "documents-handler").Logger(),
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/documents/arret", h.GenerateWorkStoppage)
	api.POST("/consultations/:id/courrier", h.GenerateReferralLetter)
	api.POST("/consultations/:id/etp", h.GenerateEducationSheet)
	api.POST("/consultations/:id/ordonnance", h.GenerateOrdonnance)
}

// GenerateWorkStoppage validates the request, delegates PDF generation to
// the remote stage and streams the document back as an attachment.
func (h *Handler) GenerateWorkStoppage(c echo.Context) error {
	var req pipeline.WorkStoppageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	pdf, err := h.generator.GenerateWorkStoppage(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrMissingPatientFields) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Error().Err(err).Msg("work stoppage generation failed")
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	filename := fmt.Sprintf("Arret_%s_%s.pdf", req.Patient.Nom, req.Dates.Debut)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, filename))
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

// GenerateReferralLetter fills the confraternal letter for a consultation
// and stores it on the record.
func (h *Handler) GenerateReferralLetter(c echo.Context) error {
	cons, err := h.consultationFromPath(c)
	if err != nil {
		return err
	}
	var to Recipient
	if err := c.Bind(&to); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	patient, _ := h.store.GetPatient(cons.PatientID)
	cons.ReferralLetter = ReferralLetter(patient, cons, to)
	if err := h.store.UpdateConsultation(cons); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"courrier": cons.ReferralLetter})
}

// GenerateEducationSheet composes the patient education sheet and stores it
// on the record.
func (h *Handler) GenerateEducationSheet(c echo.Context) error {
	cons, err := h.consultationFromPath(c)
	if err != nil {
		return err
	}
	cons.EducationSheet = EducationSheet(cons)
	if err := h.store.UpdateConsultation(cons); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"fiche_etp": cons.EducationSheet})
}

// GenerateOrdonnance renders the consultation treatment as prescription
// text, applying the default plan first when no treatment is set.
func (h *Handler) GenerateOrdonnance(c echo.Context) error {
	cons, err := h.consultationFromPath(c)
	if err != nil {
		return err
	}
	if cons.Treatment == nil {
		cons.Treatment = DefaultTreatment()
	}
	cons.Ordonnance = RenderOrdonnance(cons.Treatment)
	if err := h.store.UpdateConsultation(cons); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) consultationFromPath(c echo.Context) (*consultation.Consultation, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cons, err := h.store.GetConsultation(id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "consultation not found")
	}
	return cons, nil
}
