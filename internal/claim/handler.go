package claim

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/httpio"
)

// Handler exposes the claim workflow and the public tracking view.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func actorID(r *http.Request) string {
	a, _ := auth.ActorFrom(r.Context())
	return a.ID
}

func (h *Handler) Intake(w http.ResponseWriter, r *http.Request) {
	var in IntakeInput
	if err := httpio.Decode(r, &in); err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	in.Actor = actorID(r)
	c, err := h.svc.Intake(r.Context(), in)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusCreated, c)
}

func (h *Handler) AddUpdate(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := httpio.Decode(r, &in); err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	in.Actor = actorID(r)
	c, err := h.svc.AddUpdate(r.Context(), r.PathValue("claimId"), in)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, c)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var in CompleteInput
	if err := httpio.Decode(r, &in); err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	in.Actor = actorID(r)
	c, err := h.svc.Complete(r.Context(), r.PathValue("claimId"), in)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, c)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), r.PathValue("claimId"))
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, v)
}

func (h *Handler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListOverdue(r.Context())
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	if out == nil {
		out = []ClaimView{}
	}
	httpio.JSON(w, http.StatusOK, out)
}

// ListByWarranty serves GET /warranties/{id}/claims.
func (h *Handler) ListByWarranty(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListByWarranty(r.Context(), r.PathValue("id"))
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, out)
}

// Track is public and needs no token.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Track(r.Context(), r.PathValue("claimId"))
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, t)
}
