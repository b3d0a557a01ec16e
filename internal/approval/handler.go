package approval

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/payment-approval/internal"
	"github.com/frahmantamala/payment-approval/internal/transport"
	"github.com/frahmantamala/payment-approval/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	actorID := errors.ActorIDFromContext(r.Context())
	if actorID == 0 {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	var dto CreatePaymentDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	p, err := h.Service.Create(r.Context(), actorID, dto)
	if err != nil {
		h.HandleServiceError(w, ToAppError(err))
		return
	}

	h.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	p, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, ToAppError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	entries, err := h.Service.History(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, ToAppError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, NewHistoryResponse(id, entries))
}

// Transition handles POST /payments/{id}/{action}. Reject reads "reason", every other action reads "comment".
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	actorID := errors.ActorIDFromContext(r.Context())
	if actorID == 0 {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	action := Action(chi.URLParam(r, "action"))
	if !action.Valid() {
		h.HandleError(w, errors.NewNotFoundError("unknown action "+string(action), errors.ErrCodeInvalidTransition))
		return
	}

	var body struct {
		Comment string `json:"comment"`
		Reason  string `json:"reason"`
	}
	if appErr := h.DecodeJSON(r, &body); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	comment := body.Comment
	if action == ActionReject {
		comment = body.Reason
	}

	res, err := h.Service.Do(r.Context(), action, id, actorID, comment)
	if err != nil {
		h.HandleServiceError(w, ToAppError(err))
		return
	}

	resp := TransitionResponse{Payment: res.Payment}
	if res.PostingErr != nil {
		resp.Warning = res.PostingErr.Error()
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// Verify serves the public projection behind a verification link.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.HandleServiceError(w, ToAppError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, NewVerificationView(p))
}
