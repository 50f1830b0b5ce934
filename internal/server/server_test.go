package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ledgerai/ledgerai/internal/config"
	"github.com/ledgerai/ledgerai/internal/ledgertest"
	"github.com/ledgerai/ledgerai/internal/llm"
	"github.com/ledgerai/ledgerai/internal/models"
)

const testSecret = "server-test-secret"

func testConfig() *config.Config {
	return &config.Config{
		Environment:        "test",
		APIPrefix:          "/api/v1",
		CORSOrigins:        []string{"http://localhost:3000"},
		EnableAuth:         true,
		JWTSecret:          testSecret,
		RateLimitPerMinute: 100,
		DBDialect:          "sqlite",
		EnableDataMasking:  true,
		EnableAuditLogging: true,
		LLMProvider:        "test",
		GenerationTimeout:  config.Duration(time.Second),
		SynthesisTimeout:   config.Duration(time.Second),
		AgentTimeout:       config.Duration(time.Second),
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := ledgertest.OpenStore(t, ledgertest.CoffeeScenario()...)
	model := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		if req.Temperature == 0 {
			return "SELECT ROUND(ABS(SUM(amount)), 2) AS total FROM transactions WHERE category = 'Coffee'", nil
		}
		return "You spent $30.00 on coffee.", nil
	})

	h, err := NewRouter(testConfig(), Components{Store: store, LLM: model})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func bearer(t *testing.T, owner string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   owner,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)

	res, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var health models.HealthResponse
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Checks["ledger_db"] != "ok" || health.Checks["elasticsearch"] != "disabled" {
		t.Errorf("checks = %v", health.Checks)
	}
	if res.Header.Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestQueryRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/query", strings.NewReader(`{"question":"coffee total?"}`))
	req.Header.Set("X-Owner-ID", "u1")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", res.StatusCode)
	}
}

func TestQueryWithToken(t *testing.T) {
	srv := newTestServer(t)

	for owner, want := range map[string]float64{"u1": 30, "u2": 99} {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/query", strings.NewReader(`{"question":"coffee total?"}`))
		req.Header.Set("Authorization", bearer(t, owner))
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		var body models.QueryResponse
		err = json.NewDecoder(res.Body).Decode(&body)
		res.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d", owner, res.StatusCode)
		}
		if got, _ := body.Results[0]["total"].(float64); got != want {
			t.Errorf("%s: total = %v, want %v", owner, got, want)
		}
		if res.Header.Get("X-RateLimit-Limit") != "100" {
			t.Errorf("rate limit header = %q", res.Header.Get("X-RateLimit-Limit"))
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	if res, err := http.Get(srv.URL + "/health"); err == nil {
		res.Body.Close()
	}
	res, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "ledgerai_http_requests_total") {
		t.Error("http request counter not exported")
	}
}
