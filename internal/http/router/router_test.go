package router_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"companion.app/relay/internal/http/router"
)

var _ = Describe("SetupRoutes", func() {
	var engine *gin.Engine

	BeforeEach(func() {
		engine = gin.New()
		router.SetupRoutes(engine, router.Services{}, router.RouterConfig{AdminAPIKey: "k", TraceHeaderName: "X-Trace-Id"})
	})

	serve := func(method, path string) int {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w.Code
	}

	It("serves health", func() {
		Expect(serve(http.MethodGet, "/health")).To(Equal(http.StatusOK))
	})

	It("guards the admin routes", func() {
		Expect(serve(http.MethodGet, "/admin/queue")).To(Equal(http.StatusUnauthorized))
		Expect(serve(http.MethodPost, "/admin/queue/retry-dead")).To(Equal(http.StatusUnauthorized))
	})

	It("mounts the public API", func() {
		routes := map[string]bool{}
		for _, r := range engine.Routes() {
			routes[r.Method+" "+r.Path] = true
		}
		Expect(routes).To(HaveKey("POST /api/v1/conversations/ingest"))
		Expect(routes).To(HaveKey("POST /api/v1/conversations/:session_id/end"))
		Expect(routes).To(HaveKey("POST /api/v1/conversations/:session_id/reconcile"))
		Expect(routes).To(HaveKey("POST /api/v1/voice/profiles/:profile_id/link"))
		Expect(routes).To(HaveKey("POST /api/v1/commitments/:commitment_id/fulfill"))
		Expect(routes).To(HaveKey("GET /api/v1/memories/:memory_id/tasks"))
		Expect(routes).To(HaveKey("POST /admin/queue/clear-completed"))
	})
})
