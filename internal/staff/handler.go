package staff

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/httpio"
)

// Handler exposes HTTP endpoints for staff accounts (create / login).
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
	st, err := h.svc.Create(r.Context(), in)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusCreated, st)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpio.Decode(r, &in); err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	res, err := h.svc.Login(r.Context(), in)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, res)
}
