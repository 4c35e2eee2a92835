package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newWebhookServer(t *testing.T, secret string, maxBody int64) *Server {
	t.Helper()
	cfg := testConfig()
	cfg.Webhook.Secret = secret
	cfg.Webhook.MaxBodySize = maxBody
	eng := newTestEngine(t, cfg)
	return NewServer(cfg, testLogger(), eng, nil, nil, nil, nil, nil, nil)
}

func TestNewsWebhookAcceptsEvent(t *testing.T) {
	srv := newWebhookServer(t, "", 65536)

	body := `{"headline":"Fed cuts rates","sentiment":"positive","impact":"high"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/news", strings.NewReader(body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "accepted" {
		t.Errorf("status = %q, want accepted", resp["status"])
	}
}

func TestNewsWebhookSharedSecret(t *testing.T) {
	srv := newWebhookServer(t, "s3cret", 65536)
	body := `{"headline":"CPI above forecast","sentiment":"NEGATIVE","impact":"HIGH"}`

	tests := []struct {
		name   string
		secret string
		want   int
	}{
		{"missing secret", "", http.StatusUnauthorized},
		{"wrong secret", "nope", http.StatusUnauthorized},
		{"correct secret", "s3cret", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newsRequest(body)
			if tt.secret != "" {
				req.Header.Set("X-Webhook-Secret", tt.secret)
			}
			rec := recordRequest(srv, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestNewsWebhookHMACSignature(t *testing.T) {
	srv := newWebhookServer(t, "s3cret", 65536)
	body := `{"headline":"NFP beats estimates","sentiment":"POSITIVE","impact":"HIGH"}`

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte(body))
	signature := hex.EncodeToString(mac.Sum(nil))

	req := newsRequest(body)
	req.Header.Set("X-Webhook-Signature", signature)
	rec := recordRequest(srv, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signed request status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	// Same signature over different bytes must fail.
	req = newsRequest(`{"headline":"tampered","sentiment":"POSITIVE"}`)
	req.Header.Set("X-Webhook-Signature", signature)
	rec = recordRequest(srv, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("tampered request status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestNewsWebhookValidation(t *testing.T) {
	srv := newWebhookServer(t, "", 65536)

	tests := []struct {
		name string
		body string
	}{
		{"missing headline", `{"sentiment":"POSITIVE","impact":"HIGH"}`},
		{"blank headline", `{"headline":"   ","sentiment":"POSITIVE"}`},
		{"unknown sentiment", `{"headline":"x","sentiment":"GREAT"}`},
		{"unknown impact", `{"headline":"x","impact":"SEVERE"}`},
		{"malformed json", `{"headline":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/v1/news", strings.NewReader(tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestNewsWebhookDefaults(t *testing.T) {
	srv := newWebhookServer(t, "", 65536)

	// Sentiment, impact and timestamp are all optional.
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/news", strings.NewReader(`{"headline":"quiet session"}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
}

func TestNewsWebhookBodyLimit(t *testing.T) {
	srv := newWebhookServer(t, "", 32)

	body := `{"headline":"` + strings.Repeat("a", 128) + `"}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/news", strings.NewReader(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestNewsWebhookDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Webhook.Enabled = false
	eng := newTestEngine(t, cfg)
	srv := NewServer(cfg, testLogger(), eng, nil, nil, nil, nil, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/news", strings.NewReader(`{"headline":"x"}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func newsRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/news", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func recordRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}
