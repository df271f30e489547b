package controller

import (
	"net/http"

	"github.com/cassiomorais/relay/internal/proxy"
)

type ProxyController struct {
	service *proxy.Service
}

func NewProxyController(service *proxy.Service) *ProxyController {
	return &ProxyController{service: service}
}

// Route accepts an arbitrary structured request, forwards it through the
// proxy service, and relays the backend's reply body — or an explicit
// failure payload. The caller is never left unanswered past the timeout.
func (c *ProxyController) Route(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	reply, err := c.service.Handle(r.Context(), req.Envelope())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}
