package billing

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/ngap/codes", h.ListCodes)
	api.POST("/ngap/suggest", h.Suggest)
	api.POST("/ngap/quote", h.ComputeQuote)
}

func (h *Handler) ListCodes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]Code{
		"primary":     PrimaryCodes(),
		"supplements": SupplementCodes(),
	})
}

func (h *Handler) Suggest(c echo.Context) error {
	var req struct {
		Age   int    `json:"age"`
		Unit  string `json:"unit"`
		Motif string `json:"motif"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Age < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "age must not be negative")
	}

	code := SuggestCode(req.Age, req.Unit, req.Motif)
	resp := map[string]interface{}{"code": code}
	if entry, ok := Lookup(code); ok {
		resp["libelle"] = entry.Libelle
		resp["tarif"] = entry.Tarif
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ComputeQuote(c echo.Context) error {
	var req struct {
		Primary     string   `json:"primary"`
		Supplements []string `json:"supplements"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]float64{
		"total": Quote(req.Primary, req.Supplements),
	})
}
