package warranty

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/httpio"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register auto-approves when the caller is an admin.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpio.Decode(r, &in); err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	a, _ := auth.ActorFrom(r.Context())
	in.Actor = a.ID
	in.AutoApprove = a.IsAdmin()
	wr, err := h.svc.Register(r.Context(), in)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusCreated, wr)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, v)
}

func (h *Handler) GetByPolicyNumber(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetByPolicyNumber(r.Context(), r.PathValue("policyNumber"))
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, v)
}

func (h *Handler) ListByMember(w http.ResponseWriter, r *http.Request) {
	vs, err := h.svc.ListByMember(r.Context(), r.PathValue("id"))
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, vs)
}

func (h *Handler) Limits(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.Limits(r.Context(), r.PathValue("id"))
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, l)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.ActorFrom(r.Context())
	wr, err := h.svc.Approve(r.Context(), r.PathValue("id"), a.ID)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, wr)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httpio.Decode(r, &req); err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	a, _ := auth.ActorFrom(r.Context())
	wr, err := h.svc.Reject(r.Context(), r.PathValue("id"), a.ID, req.Reason)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, wr)
}

func (h *Handler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	no, err := strconv.Atoi(r.PathValue("no"))
	if err != nil || no < 1 {
		httpio.Error(w, r, h.logger, apperr.Validation("installment number %q is invalid", r.PathValue("no")))
		return
	}
	var in PaymentInput
	if err := httpio.Decode(r, &in); err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	wr, err := h.svc.PayInstallment(r.Context(), r.PathValue("id"), no, in)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, wr)
}

func (h *Handler) PayAllRemaining(w http.ResponseWriter, r *http.Request) {
	var in PaymentInput
	if err := httpio.Decode(r, &in); err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	wr, err := h.svc.PayAllRemaining(r.Context(), r.PathValue("id"), in)
	if err != nil {
		httpio.Error(w, r, h.logger, err)
		return
	}
	httpio.JSON(w, http.StatusOK, wr)
}
