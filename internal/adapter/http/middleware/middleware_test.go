package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/internal/core/ports/mocks"
	"delivery-settlement/internal/service"
	"delivery-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const webhookSecret = "whsec_test"

func echoActor(c *gin.Context) {
	actor, _ := ActorFrom(c)
	c.JSON(http.StatusOK, gin.H{"id": actor.ID.String(), "role": actor.Role})
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := gin.New()
	router.GET("/test", JWTAuth(mocks.NewMockTokenService(ctrl), zerolog.Nop()), echoActor)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_002")
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("bad").Return(nil, errors.New("signature is invalid"))

	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), echoActor)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_SetsActor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driverID := uuid.New()
	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("good").Return(&ports.TokenClaims{ActorID: driverID, Role: domain.RoleDriver}, nil)

	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), echoActor)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), driverID.String())
	assert.Contains(t, w.Body.String(), `"role":"driver"`)
}

func TestJWTAuth_RejectsSystemRole(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	tokenSvc.EXPECT().Validate("sys").Return(&ports.TokenClaims{ActorID: uuid.New(), Role: domain.RoleSystem}, nil)

	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, zerolog.Nop()), echoActor)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer sys")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name   string
		actor  *domain.Actor
		status int
	}{
		{"admin allowed", &domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin}, http.StatusOK},
		{"driver forbidden", &domain.Actor{ID: uuid.New(), Role: domain.RoleDriver}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/test", func(c *gin.Context) {
				if tt.actor != nil {
					c.Set(CtxActor, *tt.actor)
				}
				c.Next()
			}, RequireRole(domain.RoleAdmin), echoActor)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func signedWebhookRequest(body []byte, ts int64, secret string) *http.Request {
	sig := service.NewHMACSignatureService().Sign(secret, service.SignedPayload(ts, body))
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(HeaderProcessorSignature, service.FormatSignatureHeader(ts, sig))
	return req
}

func webhookRouter() *gin.Engine {
	router := gin.New()
	router.POST("/webhook", WebhookSignature(webhookSecret, service.NewHMACSignatureService(), zerolog.Nop()), func(c *gin.Context) {
		// The body must still be readable downstream.
		body, _ := io.ReadAll(c.Request.Body)
		raw, _ := c.Get(CtxRawBody)
		if !bytes.Equal(raw.([]byte), body) {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func TestWebhookSignature_Valid(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{}}`)

	w := httptest.NewRecorder()
	webhookRouter().ServeHTTP(w, signedWebhookRequest(body, time.Now().Unix(), webhookSecret))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookSignature_Rejects(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	now := time.Now().Unix()

	tampered := signedWebhookRequest(body, now, webhookSecret)
	tampered.Body = io.NopCloser(bytes.NewReader([]byte(`{"id":"evt_2"}`)))

	missing := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))

	malformed := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	malformed.Header.Set(HeaderProcessorSignature, "sha256=abc")

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"wrong secret", signedWebhookRequest(body, now, "other")},
		{"stale timestamp", signedWebhookRequest(body, now-int64((6*time.Minute).Seconds()), webhookSecret)},
		{"future timestamp", signedWebhookRequest(body, now+int64((6*time.Minute).Seconds()), webhookSecret)},
		{"tampered body", tampered},
		{"missing header", missing},
		{"malformed header", malformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			webhookRouter().ServeHTTP(w, tt.req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "SEC_001")
		})
	}
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(response.CtxRequestID))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	_, err := uuid.Parse(w.Body.String())
	assert.NoError(t, err)
}

func TestMaxBodySize(t *testing.T) {
	router := gin.New()
	router.Use(MaxBodySize(16))
	router.POST("/test", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(make([]byte, 8))))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(make([]byte, 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(zerolog.Nop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SYS_001")
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	router := gin.New()
	router.Use(RequestLogger(zerolog.New(&buf)))
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"status":`+strconv.Itoa(http.StatusNotFound))
}
