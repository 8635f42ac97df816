package member

import (
	"net/http"

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
	m, err := h.svc.Create(r.Context(), in)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusCreated, m)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, m)
}
