package smoke

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/davidahmann/gatelog/internal/api"
	"github.com/davidahmann/gatelog/internal/auth"
)

func TestSmoke(t *testing.T) {
	os.Setenv("GATELOG_API_TOKEN", "test-token")
	defer os.Unsetenv("GATELOG_API_TOKEN")

	service, err := api.NewGovernService(api.ServiceOptions{RulesPath: "../../rules/gatelog.yaml"})
	if err != nil {
		t.Fatalf("govern service: %v", err)
	}

	router := api.NewRouter(&api.Handler{
		Auth:    auth.NewAuthenticatorFromEnv(),
		Service: service,
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	// auth gate sanity check
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/integrity", nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	_ = res.Body.Close()

	evaluateBlocked(t, srv.URL)
	evaluateClean(t, srv.URL)
	verifyIntegrity(t, srv.URL)
	listEvents(t, srv.URL)
}

func evaluateBlocked(t *testing.T, baseURL string) {
	t.Helper()

	body := `{
		"operation": "code.commit",
		"actor": {"id": "dev-1", "type": "user"},
		"code": {"files": [{"path": "main.go", "content": "apiKey = \"sk_live_abc123youknowit\""}]}
	}`
	payload := evaluate(t, baseURL, body)
	if payload.Passed {
		t.Fatalf("expected evaluation to fail")
	}
	if !payload.Blocked {
		t.Fatalf("expected evaluation to block")
	}
	if payload.EventID == "" {
		t.Fatalf("missing audit event id")
	}
}

func evaluateClean(t *testing.T, baseURL string) {
	t.Helper()

	body := `{
		"operation": "code.commit",
		"actor": {"id": "dev-1", "type": "user"},
		"code": {"files": [{"path": "main.go", "content": "apiKey := os.Getenv(\"API_KEY\")"}]},
		"metadata": {"ticket": "OPS-42", "reviewer": "dev-2"}
	}`
	payload := evaluate(t, baseURL, body)
	if !payload.Passed {
		t.Fatalf("expected evaluation to pass: %+v", payload)
	}
	if payload.Blocked {
		t.Fatalf("expected evaluation not to block")
	}
}

type evaluateResponse struct {
	Passed  bool   `json:"passed"`
	Blocked bool   `json:"blocked"`
	EventID string `json:"event_id"`
}

func evaluate(t *testing.T, baseURL, body string) evaluateResponse {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/evaluate", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("evaluate status: %d", res.StatusCode)
	}

	var payload evaluateResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return payload
}

func verifyIntegrity(t *testing.T, baseURL string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/integrity", nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("integrity status: %d", res.StatusCode)
	}

	var payload struct {
		Valid       bool `json:"valid"`
		TotalEvents int  `json:"total_events"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.Valid {
		t.Fatalf("expected valid chain")
	}
	if payload.TotalEvents != 2 {
		t.Fatalf("expected 2 events, got %d", payload.TotalEvents)
	}
}

func listEvents(t *testing.T, baseURL string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/events?result=blocked", nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Authorization", "Bearer test-token")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status: %d", res.StatusCode)
	}

	var payload api.EventsResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error != "" {
		t.Fatalf("query error: %s", payload.Error)
	}
	if len(payload.Events) != 1 {
		t.Fatalf("expected 1 blocked event, got %d", len(payload.Events))
	}
}
