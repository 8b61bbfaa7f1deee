package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"crypto-dashboard/config"
)

func TestCategorizeAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"429", &StatusError{StatusCode: 429}, "rate_limit"},
		{"401", Permanent(&StatusError{StatusCode: 401}), "auth_error"},
		{"403", &StatusError{StatusCode: 403}, "auth_error"},
		{"503", fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 503}), "server_error"},
		{"404", &StatusError{StatusCode: 404}, "client_error"},
		{"breaker open", fmt.Errorf("%w: binance", ErrBreakerOpen), "circuit_open"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"connection refused", errors.New("dial tcp: connection refused"), "connection_error"},
		{"decode", errors.New("failed to decode response: EOF"), "decode_error"},
		{"other", errors.New("something odd"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := categorizeAPIError(tt.err); got != tt.want {
				t.Errorf("categorizeAPIError(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestGetJSON_StatusHandling(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("  nope  "))
			}))
			defer srv.Close()

			var out map[string]any
			err := getJSON(context.Background(), srv.Client(), srv.URL, nil, nil, &out)

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if statusErr.StatusCode != tt.status || statusErr.Body != "nope" {
				t.Errorf("unexpected StatusError %+v", statusErr)
			}
			var perm *permanentError
			if errors.As(err, &perm) != tt.permanent {
				t.Errorf("permanent = %v, want %v", !tt.permanent, tt.permanent)
			}
		})
	}
}

func TestGetJSON_DecodesAndSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" || r.Header.Get("X-Test") != "1" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		if r.URL.Query().Get("a") != "b" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	var out struct {
		Value int `json:"value"`
	}
	err := getJSON(context.Background(), srv.Client(), srv.URL, map[string][]string{"a": {"b"}}, map[string]string{"X-Test": "1"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value != 42 {
		t.Errorf("Value = %d, want 42", out.Value)
	}
}

func TestGetJSON_DecodeErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{broken`))
	}))
	defer srv.Close()

	var out map[string]any
	err := getJSON(context.Background(), srv.Client(), srv.URL, nil, nil, &out)
	var perm *permanentError
	if !errors.As(err, &perm) {
		t.Errorf("expected permanent decode error, got %v", err)
	}
}

func TestCallUpstream_WrapsFailures(t *testing.T) {
	resetBreakers(t)

	_, err := callUpstream(context.Background(), fastRetry, BreakerBinance, "test", func() (int, error) {
		return 0, Permanent(errors.New("bad input"))
	})
	if !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}

	got, err := callUpstream(context.Background(), fastRetry, BreakerBinance, "test", func() (int, error) {
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Errorf("callUpstream = %d, %v", got, err)
	}
}

func TestNewCandleSource(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{config.ProviderBinance, BreakerBinance, false},
		{"", BreakerBinance, false},
		{config.ProviderCoinCap, BreakerCoinCap, false},
		{config.ProviderAlpaca, "", true},
		{"kraken", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.NewTestConfig()
			cfg.Market.Provider = tt.provider
			cfg.Alpaca.APIKey = ""
			cfg.Alpaca.APISecret = ""

			src, err := NewCandleSource(cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src.Name() != tt.want {
				t.Errorf("Name() = %s, want %s", src.Name(), tt.want)
			}
		})
	}

	cfg := config.NewTestConfig()
	cfg.Market.Provider = config.ProviderAlpaca
	cfg.Alpaca.APIKey = "key"
	cfg.Alpaca.APISecret = "secret"
	src, err := NewCandleSource(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Name() != BreakerAlpaca {
		t.Errorf("Name() = %s, want %s", src.Name(), BreakerAlpaca)
	}
}
