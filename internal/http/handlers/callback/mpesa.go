package callback

import (
	"net/http"
	"strings"

	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/payment/mpesa"
	"github.com/lipa-next/internal/service"

	"github.com/gin-gonic/gin"
)

// MpesaSTKCallback 处理 Daraja STK Push 结果回调，短码通过 ?account= 传入
func (h *Handler) MpesaSTKCallback(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	account := strings.TrimSpace(c.Query("account"))
	log := requestLog(c)
	log.Infow("mpesa_stk_callback_received",
		"client_ip", c.ClientIP(),
		"account", account,
		"raw_body", h.rawBodyForLog(body),
	)

	event, err := mpesa.ParseSTKCallback(body, account)
	if err != nil {
		log.Warnw("mpesa_stk_callback_parse_failed", "error", err)
		respondFailure(c, http.StatusBadRequest, err.Error())
		return
	}
	h.process(c, service.ProcessInput{Event: event, RawBody: body})
}

// MpesaC2BConfirmation 处理 Paybill / Till 到账确认
func (h *Handler) MpesaC2BConfirmation(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	log := requestLog(c)
	log.Infow("mpesa_c2b_confirmation_received",
		"client_ip", c.ClientIP(),
		"raw_body", h.rawBodyForLog(body),
	)

	event, err := mpesa.ParseC2BConfirmation(body)
	if err != nil {
		log.Warnw("mpesa_c2b_confirmation_parse_failed", "error", err)
		respondFailure(c, http.StatusBadRequest, err.Error())
		return
	}
	h.process(c, service.ProcessInput{Event: event, RawBody: body})
}

// MpesaC2BValidation 到账前校验，始终接受
func (h *Handler) MpesaC2BValidation(c *gin.Context) {
	requestLog(c).Debugw("mpesa_c2b_validation_received", "client_ip", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{
		"ResultCode": constants.MpesaResultCodeSuccess,
		"ResultDesc": constants.MpesaValidationAccepted,
	})
}
