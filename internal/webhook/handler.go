package webhook

import (
	"net/http"

	"voicelead_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const errEmptyBody = "empty request body"

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleCRMEvent processes one lifecycle notification.
// POST /api/v1/webhooks/crm
// The body is buffered and its signature checked by httpkit.VerifySignature.
func (h *Handler) HandleCRMEvent(c *gin.Context) {
	body := httpkit.RawBody(c)
	if len(body) == 0 {
		httpkit.Error(c, http.StatusBadRequest, errEmptyBody, nil)
		return
	}

	res, err := h.service.Handle(c.Request.Context(), body)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, res)
}
