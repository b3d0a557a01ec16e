package rest_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-approval/internal/approval"
	"github.com/frahmantamala/payment-approval/internal/auth"
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/transport/rest"
	"github.com/frahmantamala/payment-approval/internal/transport/swagger"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "REST Router Suite")
}

type noUsers struct{}

func (noUsers) GetCredentials(context.Context, string) (*auth.Credentials, error) {
	return nil, auth.ErrUserNotFound
}

func (noUsers) GetUserWithCapabilities(context.Context, int64) (*auth.User, error) {
	return nil, auth.ErrUserNotFound
}

type noPayments struct {
	approval.ServiceAPI
}

func (noPayments) GetByToken(context.Context, string) (*payment.Payment, error) {
	return nil, approval.ErrPaymentNotFound
}

var _ = Describe("Router", func() {
	var (
		router  *chi.Mux
		dbError error
	)

	BeforeEach(func() {
		dbError = nil
		tokens := auth.NewJWTTokenGenerator("a", "r", time.Minute, time.Hour)
		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Routes{
			Health: rest.NewHealthHandler(map[string]rest.Checker{
				"postgres": func(context.Context) error { return dbError },
			}),
			Auth:           auth.NewHandler(auth.NewService(noUsers{}, tokens, 4)),
			AllowedOrigins: "https://ops.example.com",
			Logger:         slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
		})
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("answers ping with a trace id", func() {
		rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("X-Trace-ID")).NotTo(BeEmpty())
	})

	It("reports 503 when a dependency check fails", func() {
		Expect(serve(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)).Code).To(Equal(http.StatusOK))

		dbError = errors.New("connection refused")
		rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(rec.Body.String()).To(ContainSubstring("connection refused"))
	})

	It("protects the current user endpoint", func() {
		rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("answers CORS preflight only for allowed origins", func() {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/ping", nil)
		req.Header.Set("Origin", "https://ops.example.com")
		rec := serve(req)
		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://ops.example.com"))

		req = httptest.NewRequest(http.MethodOptions, "/api/v1/ping", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec = serve(req)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})
})

var _ = Describe("Documented operations", func() {
	It("are all routed", func() {
		doc, err := swagger.LoadSpec(context.Background(), "../../../api/openapi.yml")
		Expect(err).NotTo(HaveOccurred())

		router := chi.NewRouter()
		router.NotFound(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Unrouted", "1")
			w.WriteHeader(http.StatusNotFound)
		})
		tokens := auth.NewJWTTokenGenerator("a", "r", time.Minute, time.Hour)
		rest.RegisterAllRoutes(router, rest.Routes{
			Health:   rest.NewHealthHandler(nil),
			Auth:     auth.NewHandler(auth.NewService(noUsers{}, tokens, 4)),
			Payments: approval.NewHandler(noPayments{}),
			Logger:   slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
		})

		params := strings.NewReplacer("{id}", "1", "{action}", "approve", "{token}", "abc")
		for path, item := range doc.Paths.Map() {
			for method := range item.Operations() {
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, httptest.NewRequest(method, params.Replace(path), strings.NewReader("{}")))
				Expect(rec.Header().Get("X-Unrouted")).To(BeEmpty(), "%s %s is not routed", method, path)
				Expect(rec.Code).NotTo(Equal(http.StatusMethodNotAllowed), "%s %s", method, path)
			}
		}
	})
})
