package server

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MicahParks/keyfunc/v3"

	"github.com/bigkaa/erlc-bridge/internal/api/handlers"
	"github.com/bigkaa/erlc-bridge/internal/api/middleware"
	"github.com/bigkaa/erlc-bridge/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type idlePoller struct{}

func (idlePoller) Status() service.PollerStatus { return service.PollerStatus{} }

func testJWTAuth(t *testing.T) *middleware.JWTAuth {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	jwks, _ := json.Marshal(map[string]any{"keys": []map[string]any{{
		"kty": "RSA", "kid": "k1", "use": "sig", "alg": "RS256",
		"n": base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e": base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}})
	kf, err := keyfunc.NewJWKSetJSON(jwks)
	if err != nil {
		t.Fatal(err)
	}
	return middleware.NewJWTAuthWithKeyfunc(kf, "", testLogger())
}

func TestRouter(t *testing.T) {
	api := handlers.NewAPIHandler(nil, idlePoller{}, testLogger())
	health := handlers.NewHealthHandler()

	tests := []struct {
		name       string
		withAuth   bool
		path       string
		wantStatus int
	}{
		{name: "live без auth", path: "/health/live", wantStatus: http.StatusOK},
		{name: "poller status без auth", path: "/api/v1/poller/status", wantStatus: http.StatusOK},
		{name: "неизвестный путь", path: "/api/v1/unknown", wantStatus: http.StatusNotFound},
		{name: "live открыт при auth", withAuth: true, path: "/health/live", wantStatus: http.StatusOK},
		{name: "metrics открыт при auth", withAuth: true, path: "/metrics", wantStatus: http.StatusOK},
		{name: "api закрыт при auth", withAuth: true, path: "/api/v1/poller/status", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var auth *middleware.JWTAuth
			if tt.withAuth {
				auth = testJWTAuth(t)
			}
			router := NewRouter(testLogger(), api, health, auth)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("GET %s: статус = %d, ожидается %d", tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_NotFoundIsJSON(t *testing.T) {
	router := NewRouter(testLogger(), handlers.NewAPIHandler(nil, idlePoller{}, testLogger()), handlers.NewHealthHandler(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("статус = %d, ожидается 404", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("тело не JSON: %v", err)
	}
	if body.Error.Code != "NOT_FOUND" {
		t.Errorf("code = %q, ожидается NOT_FOUND", body.Error.Code)
	}
}
