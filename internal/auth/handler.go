package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	appErrors "github.com/frahmantamala/payment-approval/internal"
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

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	tokens, err := h.Service.Authenticate(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, ToAppError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var dto RefreshTokenDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	if appErr := dto.Validate(); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	tokens, err := h.Service.RefreshTokens(r.Context(), dto.RefreshToken)
	if err != nil {
		h.HandleServiceError(w, ToAppError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

// Me returns the authenticated user and their capabilities.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, appErrors.NewUnauthorizedError("authentication required", appErrors.ErrCodeInvalidToken))
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.HandleError(w, appErrors.NewUnauthorizedError("missing authorization token", appErrors.ErrCodeInvalidToken))
			return
		}

		claims, err := h.Service.ValidateAccessToken(token)
		if err != nil {
			h.HandleServiceError(w, ToAppError(err))
			return
		}

		u, err := h.Service.GetUserWithCapabilities(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				err = ErrUserInactive
			}
			h.HandleServiceError(w, ToAppError(err))
			return
		}

		ctx := context.WithValue(r.Context(), ContextUserKey, u)
		ctx = appErrors.ContextWithActorID(ctx, u.ID)
		ctx = logger.With(ctx, "actor_id", u.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ToAppError maps auth failures onto the HTTP error envelope.
func ToAppError(err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := appErrors.IsAppError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return appErrors.NewUnauthorizedError("invalid credentials", appErrors.ErrCodeInvalidCredentials)
	case errors.Is(err, ErrUserInactive):
		return appErrors.NewUnauthorizedError("user is inactive", appErrors.ErrCodeUserInactive)
	case errors.Is(err, ErrTokenExpired):
		return appErrors.NewUnauthorizedError("token expired", appErrors.ErrCodeTokenExpired)
	case errors.Is(err, ErrInvalidToken):
		return appErrors.NewUnauthorizedError("invalid token", appErrors.ErrCodeInvalidToken)
	default:
		return appErrors.NewInternalError("internal server error", err)
	}
}
