package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"Tradelink/internal/api/dto"
	"Tradelink/internal/api/middleware"
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/consts"
	"Tradelink/internal/pkg/logger"
	"Tradelink/internal/pkg/ratelimit"
	"Tradelink/internal/pkg/response"
	"Tradelink/internal/pkg/security"
	"Tradelink/internal/service"
)

func decode(w *httptest.ResponseRecorder) dto.Response {
	var resp dto.Response
	Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
	return resp
}

func withIdentity(who *model.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(service.WithIdentity(c.Request.Context(), who))
		c.Next()
	}
}

var _ = Describe("AuthMiddleware", func() {
	var (
		router       *gin.Engine
		authenticate security.Authenticator
		reached      *model.Identity
	)

	BeforeEach(func() {
		reached = nil
		authenticate = func(_ context.Context, token string) (*model.Identity, error) {
			switch token {
			case "good":
				return &model.Identity{ID: "c1", Role: model.RoleCustomer}, nil
			case "redis":
				return nil, errors.New("dial tcp: refused")
			}
			return nil, security.ErrTokenInvalid
		}
	})

	JustBeforeEach(func() {
		router = gin.New()
		router.GET("/me", middleware.AuthMiddleware(authenticate), func(c *gin.Context) {
			reached = service.IdentityFrom(c.Request.Context())
			Expect(c.GetString(consts.CtxUserIDKey)).To(Equal(reached.ID))
			Expect(c.Request.Context().Value(logger.UserIDKey)).To(Equal(reached.ID))
			response.Success(c, nil)
		})
	})

	request := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("injects the identity for valid tokens", func() {
		Expect(decode(request("Bearer good")).Code).To(Equal(response.Ok))
		Expect(reached).NotTo(BeNil())
		Expect(reached.ID).To(Equal("c1"))
	})

	It("rejects missing or malformed headers", func() {
		Expect(decode(request("")).Code).To(Equal(response.Unauthorized))
		Expect(decode(request("Basic abc")).Code).To(Equal(response.Unauthorized))
		Expect(reached).To(BeNil())
	})

	It("rejects invalid tokens", func() {
		Expect(decode(request("Bearer forged")).Code).To(Equal(response.Unauthorized))
		Expect(reached).To(BeNil())
	})

	It("reports backend failures as internal errors", func() {
		Expect(decode(request("Bearer redis")).Code).To(Equal(response.InternalServerError))
	})
})

var _ = Describe("CheckRoles", func() {
	serve := func(who *model.Identity) dto.Response {
		router := gin.New()
		router.GET("/admin", withIdentity(who), middleware.CheckRoles(model.RoleAdmin), func(c *gin.Context) {
			response.Success(c, "ok")
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
		return decode(w)
	}

	It("allows listed roles", func() {
		Expect(serve(&model.Identity{ID: "a", Role: model.RoleAdmin}).Code).To(Equal(response.Ok))
	})

	It("forbids other roles", func() {
		Expect(serve(&model.Identity{ID: "c", Role: model.RoleCustomer}).Code).To(Equal(response.Forbidden))
	})

	It("requires authentication", func() {
		Expect(serve(nil).Code).To(Equal(response.Unauthorized))
	})
})

var _ = Describe("RateLimitMiddleware", func() {
	It("limits each user independently", func() {
		router := gin.New()
		router.POST("/send", func(c *gin.Context) {
			who := &model.Identity{ID: c.GetHeader("X-User"), Role: model.RoleCustomer}
			c.Request = c.Request.WithContext(service.WithIdentity(c.Request.Context(), who))
			c.Next()
		}, middleware.RateLimitMiddleware("test_send", ratelimit.NewPool(0.001, 2)), func(c *gin.Context) {
			response.Success(c, nil)
		})

		send := func(user string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/send", nil)
			req.Header.Set("X-User", user)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		Expect(decode(send("alice")).Code).To(Equal(response.Ok))
		Expect(decode(send("alice")).Code).To(Equal(response.Ok))
		limited := send("alice")
		Expect(decode(limited).Code).To(Equal(response.TooManyRequests))
		Expect(limited.Header().Get("Retry-After")).To(Equal("1"))

		Expect(decode(send("bob")).Code).To(Equal(response.Ok))
	})
})

var _ = Describe("TraceMiddleware", func() {
	var router *gin.Engine

	BeforeEach(func() {
		router = gin.New()
		router.GET("/t", middleware.TraceMiddleware(), func(c *gin.Context) {
			c.String(http.StatusOK, "%v", c.Request.Context().Value(logger.TraceIDKey))
		})
	})

	It("echoes a caller supplied trace id", func() {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		req.Header.Set("X-Trace-ID", "trace-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Header().Get("X-Trace-ID")).To(Equal("trace-123"))
		Expect(w.Body.String()).To(Equal("trace-123"))
	})

	It("generates one when absent or oversized", func() {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		req.Header.Set("X-Trace-ID", strings.Repeat("x", 65))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Header().Get("X-Trace-ID")).To(HaveLen(36))
		Expect(w.Body.String()).To(Equal(w.Header().Get("X-Trace-ID")))
	})
})

var _ = Describe("AuditMiddleware", func() {
	It("leaves the request body readable for handlers", func() {
		router := gin.New()
		router.POST("/echo", middleware.AuditMiddleware("/skip"), func(c *gin.Context) {
			body, _ := io.ReadAll(c.Request.Body)
			c.String(http.StatusOK, string(body))
		})

		payload := `{"body":"hello"}`
		req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Body.String()).To(Equal(payload))
	})
})
