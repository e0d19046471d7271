package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"p2p-lending-engine/internal/usecase/trust"
)

type TrustHandler struct{ trust *trust.Usecase }

func NewTrustHandler(uc *trust.Usecase) *TrustHandler { return &TrustHandler{trust: uc} }

func (h *TrustHandler) GetScore(c echo.Context) error {
	s, err := h.trust.GetScore(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

type createVouchReq struct {
	VoucherID    string `json:"voucher_id"   validate:"required,hex32"`
	VoucheeID    string `json:"vouchee_id"   validate:"required,hex32"`
	Relationship string `json:"relationship" validate:"required,max=32"`
	Message      string `json:"message"      validate:"max=500"`
}

func (h *TrustHandler) CreateVouch(c echo.Context) error {
	var req createVouchReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	v, err := h.trust.CreateVouch(c.Request().Context(), trust.CreateVouchInput(req))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *TrustHandler) RevokeVouch(c echo.Context) error {
	v, err := h.trust.RevokeVouch(c.Request().Context(), c.Param("vouch_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}
