package approval_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/payment-approval/internal"
	"github.com/frahmantamala/payment-approval/internal/approval"
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
)

var _ = Describe("Handler", func() {
	var (
		f      *fixture
		router *chi.Mux
	)

	// withTestActor stands in for the auth middleware.
	withTestActor := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h := r.Header.Get("X-Test-Actor"); h != "" {
				var id int64
				_ = json.Unmarshal([]byte(h), &id)
				r = r.WithContext(apperrors.ContextWithActorID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}

	do := func(method, path string, actorID int64, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
		}
		if actorID != 0 {
			raw, _ := json.Marshal(actorID)
			req.Header.Set("X-Test-Actor", string(raw))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	errorCode := func(rec *httptest.ResponseRecorder) string {
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body.Error.Code
	}

	setup := func(settings approval.Settings) {
		f = newFixture(settings)
		h := approval.NewHandler(f.service)
		router = chi.NewRouter()
		router.Get("/payments/verify/{token}", h.Verify)
		router.Group(func(r chi.Router) {
			r.Use(withTestActor)
			r.Post("/payments", h.CreatePayment)
			r.Get("/payments/{id}", h.GetPayment)
			r.Get("/payments/{id}/history", h.GetHistory)
			r.Post("/payments/{id}/{action}", h.Transition)
		})
	}

	BeforeEach(func() {
		setup(approval.Settings{})
	})

	Describe("POST /payments", func() {
		It("creates a draft owned by the caller", func() {
			rec := do(http.MethodPost, "/payments", owner,
				`{"amount":"500","currency":"USD","direction":"outbound","partner_ref":"P-1"}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var p payment.Payment
			Expect(json.Unmarshal(rec.Body.Bytes(), &p)).To(Succeed())
			Expect(p.CreatedBy).To(Equal(owner))
			Expect(p.LifecycleState).To(Equal(payment.StateDraft))
		})

		It("requires an authenticated actor", func() {
			rec := do(http.MethodPost, "/payments", 0, `{}`)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("returns 400 for an invalid amount", func() {
			rec := do(http.MethodPost, "/payments", owner,
				`{"amount":"-1","currency":"USD","direction":"outbound","partner_ref":"P-1"}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /payments/{id}/{action}", func() {
		var p *payment.Payment

		BeforeEach(func() {
			p = f.create("500", "USD", payment.DirectionOutbound)
		})

		path := func(action string) string {
			return "/payments/" + jsonID(p.ID) + "/" + action
		}

		It("submits a draft", func() {
			rec := do(http.MethodPost, path("submit"), owner, "")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var resp approval.TransitionResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Payment.LifecycleState).To(Equal(payment.StateUnderReview))
			Expect(resp.Warning).To(BeEmpty())
		})

		It("maps a missing capability to 403", func() {
			do(http.MethodPost, path("submit"), owner, "")
			rec := do(http.MethodPost, path("review"), poster, "")
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(errorCode(rec)).To(Equal("PERMISSION_DENIED"))
		})

		It("maps an illegal transition to 409", func() {
			rec := do(http.MethodPost, path("approve"), approver, "")
			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(errorCode(rec)).To(Equal("INVALID_TRANSITION"))
		})

		It("returns 404 for an unknown action", func() {
			rec := do(http.MethodPost, path("escalate"), owner, "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 404 for an unknown payment", func() {
			rec := do(http.MethodPost, "/payments/9999/submit", owner, "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(errorCode(rec)).To(Equal("PAYMENT_NOT_FOUND"))
		})

		It("reads the rejection reason from the body", func() {
			do(http.MethodPost, path("submit"), owner, "")

			rec := do(http.MethodPost, path("reject"), reviewer, `{"comment":"ignored"}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))

			rec = do(http.MethodPost, path("reject"), reviewer, `{"reason":"wrong partner"}`)
			Expect(rec.Code).To(Equal(http.StatusOK))
			stored := f.repo.snapshot(p.ID)
			Expect(*stored.RejectionReason).To(Equal("wrong partner"))
		})

		It("surfaces a failed auto-post as a warning", func() {
			setup(approval.Settings{AutoPostOnApproval: true})
			p = f.create("500", "USD", payment.DirectionOutbound)

			Expect(do(http.MethodPost, path("submit"), owner, "").Code).To(Equal(http.StatusOK))
			Expect(do(http.MethodPost, path("review"), reviewer, "").Code).To(Equal(http.StatusOK))
			rec := do(http.MethodPost, path("approve"), approver, "")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var resp approval.TransitionResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Payment.LifecycleState).To(Equal(payment.StateApproved))
			Expect(resp.Warning).To(ContainSubstring("posting failed"))
		})
	})

	Describe("GET /payments/{id}/history", func() {
		It("lists entries oldest first", func() {
			p := f.create("500", "USD", payment.DirectionOutbound)
			_, err := f.service.Submit(context.Background(), p.ID, owner, "please")
			Expect(err).NotTo(HaveOccurred())
			_, err = f.service.Review(context.Background(), p.ID, reviewer, "")
			Expect(err).NotTo(HaveOccurred())

			rec := do(http.MethodGet, "/payments/"+jsonID(p.ID)+"/history", reviewer, "")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var resp approval.HistoryResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Entries).To(HaveLen(2))
			Expect(resp.Entries[0].Action).To(Equal("submit"))
			Expect(*resp.Entries[0].Comment).To(Equal("please"))
			Expect(resp.Entries[1].ToState).To(Equal(string(payment.StateForApproval)))
		})

		It("rejects a non-numeric id", func() {
			rec := do(http.MethodGet, "/payments/abc/history", reviewer, "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /payments/verify/{token}", func() {
		It("serves the public projection", func() {
			p := f.create("1234.5", "USD", payment.DirectionOutbound)

			rec := do(http.MethodGet, "/payments/verify/"+p.VerificationToken, 0, "")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var view approval.VerificationView
			Expect(json.Unmarshal(rec.Body.Bytes(), &view)).To(Succeed())
			Expect(view.Amount).To(Equal("1234.50"))
			Expect(*view.VoucherNumber).To(Equal(*p.VoucherNumber))
			Expect(rec.Body.String()).NotTo(ContainSubstring("created_by"))
		})

		It("returns 404 for a malformed token", func() {
			rec := do(http.MethodGet, "/payments/verify/not-a-uuid", 0, "")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})
})

func jsonID(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
