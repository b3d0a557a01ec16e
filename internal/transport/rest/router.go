package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/payment-approval/internal/approval"
	"github.com/frahmantamala/payment-approval/internal/auth"
	"github.com/frahmantamala/payment-approval/internal/transport/middleware"
	"github.com/frahmantamala/payment-approval/internal/transport/swagger"
)

type Routes struct {
	Health         *HealthHandler
	Auth           *auth.Handler
	Payments       *approval.Handler
	AllowedOrigins string
	OpenAPIPath    string
	Logger         *slog.Logger
}

func RegisterAllRoutes(router chi.Router, rt Routes) {
	router.Use(middleware.CORS(rt.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(rt.Logger))
	router.Use(middleware.RequestLogging)

	openAPIPath := rt.OpenAPIPath
	if openAPIPath == "" {
		openAPIPath = "./api/openapi.yml"
	}
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, openAPIPath)
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if rt.Health != nil {
			r.Get("/health", rt.Health.Health)
			r.Get("/ping", rt.Health.Ping)
		}

		if rt.Payments != nil {
			r.Get("/payments/verify/{token}", rt.Payments.Verify)
		}

		if rt.Auth == nil {
			return
		}

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", rt.Auth.Login)
			sr.Post("/refresh", rt.Auth.RefreshToken)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(rt.Auth.AuthMiddleware)

			pr.Get("/users/me", rt.Auth.Me)

			if rt.Payments != nil {
				pr.Route("/payments", func(p chi.Router) {
					p.Post("/", rt.Payments.CreatePayment)
					p.Get("/{id}", rt.Payments.GetPayment)
					p.Get("/{id}/history", rt.Payments.GetHistory)
					p.Post("/{id}/{action}", rt.Payments.Transition)
				})
			}
		})
	})
}
