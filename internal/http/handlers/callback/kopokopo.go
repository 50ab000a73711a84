package callback

import (
	"net/http"
	"strings"

	"github.com/lipa-next/internal/constants"
	"github.com/lipa-next/internal/payment/kopokopo"
	"github.com/lipa-next/internal/service"

	"github.com/gin-gonic/gin"
)

// KopokopoWebhook 处理 Kopo Kopo 到账通知与 STK 结果
func (h *Handler) KopokopoWebhook(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	signature := strings.TrimSpace(c.GetHeader(constants.KopokopoSignatureHeader))
	log := requestLog(c)
	log.Infow("kopokopo_webhook_received",
		"client_ip", c.ClientIP(),
		"signed", signature != "",
		"raw_body", h.rawBodyForLog(body),
	)

	event, err := kopokopo.ParseWebhook(body)
	if err != nil {
		log.Warnw("kopokopo_webhook_parse_failed", "error", err)
		respondFailure(c, http.StatusBadRequest, err.Error())
		return
	}
	h.process(c, service.ProcessInput{Event: event, RawBody: body, Signature: signature})
}
