package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"VaultLedger/internal/observability"
	"VaultLedger/internal/server"

	"github.com/google/uuid"
)

func startGateway(t *testing.T) (*testServer, *httptest.Server) {
	t.Helper()
	ts := startServer(t, false)
	handler, err := server.NewHTTPHandler(ts.client, observability.NewHealthChecker())
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	hs := httptest.NewServer(handler)
	t.Cleanup(hs.Close)
	return ts, hs
}

func do(t *testing.T, method, url string, caller uuid.UUID, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if caller != uuid.Nil {
		req.Header.Set(server.CallerHeader, caller.String())
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, url, err)
	}
	return resp, out
}

func TestGateway_Routes(t *testing.T) {
	ts, hs := startGateway(t)

	resp, _ := do(t, http.MethodPost, hs.URL+"/v1/oracle", ts.admin, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("init oracle: status %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, hs.URL+"/v1/ledgers", ts.alice, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("init ledger: status %d", resp.StatusCode)
	}

	resp, body := do(t, http.MethodPost, hs.URL+"/v1/deposits", ts.alice, `{"amount":10000000}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit: status %d %v", resp.StatusCode, body)
	}
	if body["shares"] != float64(10_000_000) {
		t.Errorf("shares: got %v", body["shares"])
	}

	ts.clock.Advance(oneYear)
	resp, body = do(t, http.MethodPost, hs.URL+"/v1/oracle:update", ts.admin, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update price: status %d %v", resp.StatusCode, body)
	}
	if body["rate"] != float64(1_050_000) {
		t.Errorf("rate: got %v", body["rate"])
	}

	resp, body = do(t, http.MethodGet, hs.URL+"/v1/oracle", uuid.Nil, "")
	if resp.StatusCode != http.StatusOK || body["rate_decimal"] != "1.05" {
		t.Errorf("get oracle: status %d body %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, hs.URL+"/v1/ledgers/"+ts.alice.String(), uuid.Nil, "")
	if resp.StatusCode != http.StatusOK || body["redeemable_amount"] != float64(10_500_000) {
		t.Errorf("get ledger: status %d body %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, hs.URL+"/v1/preview/deposit/1000000", uuid.Nil, "")
	if resp.StatusCode != http.StatusOK || body["shares"] != float64(952_380) {
		t.Errorf("preview deposit: status %d body %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, hs.URL+"/v1/withdrawals", ts.alice, `{"shares":10000000}`)
	if resp.StatusCode != http.StatusOK || body["base_amount"] != float64(10_500_000) {
		t.Errorf("withdraw: status %d body %v", resp.StatusCode, body)
	}
}

func TestGateway_Errors(t *testing.T) {
	ts, hs := startGateway(t)
	do(t, http.MethodPost, hs.URL+"/v1/oracle", ts.admin, "")

	tests := []struct {
		name   string
		method string
		path   string
		caller uuid.UUID
		body   string
		want   int
	}{
		{"no caller", http.MethodPost, "/v1/ledgers", uuid.Nil, "", http.StatusUnauthorized},
		{"not administrator", http.MethodPost, "/v1/oracle:update", ts.alice, "", http.StatusForbidden},
		{"clock override disabled", http.MethodPost, "/v1/oracle:set-last-update", ts.admin, `{"last_update_time":1}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/deposits", ts.alice, `{"amount":1,"asset":"USDC"}`, http.StatusBadRequest},
		{"bad path amount", http.MethodGet, "/v1/preview/withdraw/-5", uuid.Nil, "", http.StatusBadRequest},
		{"missing ledger", http.MethodGet, "/v1/ledgers/" + uuid.NewString(), uuid.Nil, "", http.StatusNotFound},
		{"duplicate oracle", http.MethodPost, "/v1/oracle", ts.admin, "", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, hs.URL+tt.path, tt.caller, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d (%v)", resp.StatusCode, tt.want, body)
			}
			if _, ok := body["message"]; !ok {
				t.Errorf("error body without message: %v", body)
			}
		})
	}
}

func TestGateway_Health(t *testing.T) {
	_, hs := startGateway(t)

	resp, err := http.Get(hs.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: got %d", resp.StatusCode)
	}

	resp, err = http.Get(hs.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz before ready: got %d", resp.StatusCode)
	}
}
