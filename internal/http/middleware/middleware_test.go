package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"companion.app/relay/common/logger"
	"companion.app/relay/internal/http/middleware"
)

var _ = Describe("Recovery", func() {
	It("turns a panic into a 500 JSON response", func() {
		engine := gin.New()
		engine.Use(middleware.Recovery())
		engine.GET("/boom", func(c *gin.Context) {
			panic("kaboom")
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).To(ContainSubstring("internal server error"))
	})

	It("logs the panic with the http component and session", func() {
		var buf bytes.Buffer
		previous := slog.Default()
		slog.SetDefault(slog.New(logger.NewTraceHandler(slog.NewJSONHandler(&buf, nil))))
		DeferCleanup(func() { slog.SetDefault(previous) })

		engine := gin.New()
		engine.Use(middleware.Recovery())
		engine.POST("/conversations/:session_id/end", func(c *gin.Context) {
			panic("nil session")
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/conversations/s-9/end", nil))
		Expect(w.Code).To(Equal(http.StatusInternalServerError))

		var record map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
		Expect(record).To(HaveKeyWithValue("msg", "panic recovered in handler"))
		Expect(record).To(HaveKeyWithValue("component", "relay.http"))
		Expect(record).To(HaveKeyWithValue("session_id", "s-9"))
		Expect(record).To(HaveKeyWithValue("route", "/conversations/:session_id/end"))
		Expect(record).To(HaveKeyWithValue("panic", "nil session"))
	})

	It("leaves normal responses alone", func() {
		engine := gin.New()
		engine.Use(middleware.Recovery())
		engine.GET("/ok", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

		Expect(w.Code).To(Equal(http.StatusNoContent))
	})
})

var _ = Describe("Logger", func() {
	It("tags the request context with the http component", func() {
		var component string
		engine := gin.New()
		engine.Use(middleware.Logger())
		engine.GET("/items", func(c *gin.Context) {
			component = logger.GetLogFields(c.Request.Context()).Component
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items?limit=5", nil))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(component).To(Equal("relay.http"))
	})
})
