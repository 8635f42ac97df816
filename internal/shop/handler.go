package shop

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/httpio"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpio.Decode(r, &in); err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	sh, err := h.svc.Create(r.Context(), in)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusCreated, sh)
}

// List reads optional limit and offset query parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	out, err := h.svc.List(r.Context(), limit, max(offset, 0))
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, out)
}
