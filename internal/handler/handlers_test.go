package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Shrinet82/ai-sre-agent/internal/model"
	"github.com/Shrinet82/ai-sre-agent/internal/service"
)

func TestAlertmanagerWebhookRejectsMalformedPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var pipeline *service.PipelineService
	r.POST("/webhook/alertmanager", NewWebhookHandler(pipeline).AlertmanagerWebhook)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/alertmanager", bytes.NewBufferString(`{"alerts": "not-an-array"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestIncidentListValidatesQueryParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var svc *service.QueryService
	r.GET("/api/v1/incidents", NewIncidentHandler(svc).GetIncidents)

	for _, path := range []string{
		"/api/v1/incidents?since=yesterday",
		"/api/v1/incidents?limit=0",
		"/api/v1/incidents?limit=ten",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var svc *service.AuthService
	r.Use(AuthMiddleware(svc))
	r.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"", "Basic abc", "Bearer "} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
	}
}

func TestConfigRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	settings := service.NewSettings(0.8, true)
	h := NewConfigHandler(settings)
	r.GET("/api/v1/config", h.GetConfig)
	r.PUT("/api/v1/config", h.UpdateConfig)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v1/config",
		bytes.NewBufferString(`{"confidence_threshold": 0.95, "auto_action_enabled": false}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))
	var got model.RuntimeConfigResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if got.ConfidenceThreshold != 0.95 || got.AutoActionEnabled {
		t.Fatalf("unexpected config: %+v", got)
	}
}

func TestConfigRejectsOutOfRangeThreshold(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	settings := service.NewSettings(0.8, true)
	r.PUT("/api/v1/config", NewConfigHandler(settings).UpdateConfig)

	for _, body := range []string{
		`{"confidence_threshold": 1.5}`,
		`{"confidence_threshold": 0}`,
		`{"confidence_threshold": -0.2}`,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v1/config", bytes.NewBufferString(body)))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
	}

	if threshold, _ := settings.Snapshot(); threshold != 0.8 {
		t.Fatalf("threshold mutated to %v on invalid update", threshold)
	}
}

func TestConfigPartialUpdateKeepsOtherKnob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	settings := service.NewSettings(0.8, true)
	r.PUT("/api/v1/config", NewConfigHandler(settings).UpdateConfig)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v1/config",
		bytes.NewBufferString(`{"auto_action_enabled": false}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	threshold, autoAction := settings.Snapshot()
	if threshold != 0.8 || autoAction {
		t.Fatalf("got threshold=%v autoAction=%v, want 0.8/false", threshold, autoAction)
	}
}
