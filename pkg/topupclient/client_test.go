package topupclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOperatorCode(t *testing.T) {
	tests := []struct {
		msisdn string
		want   string
	}{
		{msisdn: "+2250712345678", want: "ORANGE_CI"},
		{msisdn: "2250512345678", want: "MTN_CI"},
		{msisdn: "0112345678", want: "MOOV_CI"},
		{msisdn: "+2250212345678", want: ""},
		{msisdn: "0", want: ""},
	}

	for _, tt := range tests {
		if got := OperatorCode(tt.msisdn); got != tt.want {
			t.Fatalf("OperatorCode(%q) = %q, want %q", tt.msisdn, got, tt.want)
		}
	}
}

func TestCheckEligibilitySuccess(t *testing.T) {
	var gotReq EligibilityRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/topups/eligibility" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "key-123" {
			t.Fatalf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(Envelope{Status: "success"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-123", "")
	if _, err := client.CheckEligibility(context.Background(), "+2250712345678"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReq.OperatorCode != "ORANGE_CI" {
		t.Fatalf("expected derived operator code ORANGE_CI, got %q", gotReq.OperatorCode)
	}
}

func TestBusinessRejectionIsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(Envelope{Status: "error", Message: "msisdn not eligible"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-123", "")
	_, err := client.CheckEligibility(context.Background(), "+2250712345678")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "msisdn not eligible" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}

func TestTransportFailureIsNotAPIError(t *testing.T) {
	// Point at a closed server to force a connection error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, "key-123", "")
	_, err := client.CheckEligibility(context.Background(), "+2250712345678")
	if err == nil {
		t.Fatal("expected transport error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Fatal("transport failure surfaced as a business APIError")
	}
}

func TestProxyFallbackOnTransportFailure(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") == "" {
			t.Fatal("proxy called without target url")
		}
		json.NewEncoder(w).Encode(Envelope{Status: "success"})
	}))
	defer proxy.Close()

	// Base URL points nowhere; the client must fall back to the proxy.
	client := NewClient("http://127.0.0.1:1", "key-123", proxy.URL)
	if _, err := client.Recharge(context.Background(), "+2250112345678", 1000, "AIR-ABC123"); err != nil {
		t.Fatalf("expected proxy fallback to succeed, got %v", err)
	}
}

func TestRechargeCarriesReference(t *testing.T) {
	var gotReq RechargeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(Envelope{Status: "success"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-123", "")
	if _, err := client.Recharge(context.Background(), "+2250112345678", 1000, "AIR-ABC123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReq.Reference != "AIR-ABC123" || gotReq.Amount != 1000 || gotReq.OperatorCode != "MOOV_CI" {
		t.Fatalf("unexpected recharge payload: %+v", gotReq)
	}
}
