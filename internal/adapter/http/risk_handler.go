package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"p2p-lending-engine/internal/adapter/middleware"
	"p2p-lending-engine/internal/usecase/risk"
)

type RiskHandler struct{ risk *risk.Usecase }

func NewRiskHandler(uc *risk.Usecase) *RiskHandler { return &RiskHandler{risk: uc} }

func (h *RiskHandler) BlockStatus(c echo.Context) error {
	dto, err := h.risk.Status(c.Request().Context(), c.Param("borrower_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *RiskHandler) AdminUnblock(c echo.Context) error {
	dto, err := h.risk.AdminUnblock(c.Request().Context(), c.Param("borrower_id"), middleware.Actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}
