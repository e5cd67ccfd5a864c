package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendOTP(t *testing.T) {
	var received otpRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/otp/send" {
			t.Errorf("path = %q, want /otp/send", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "test-key", "OTP1")
	if err := client.SendOTP(context.Background(), "9876543210", "123456"); err != nil {
		t.Fatalf("send otp: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if received.Mobile != "9876543210" || received.OTP != "123456" || received.Template != "OTP1" {
		t.Errorf("request = %+v", received)
	}
}

func TestSendOTPGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","message":"invalid number"}`))
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "test-key", "OTP1", WithRetry(0, 0))
	if err := client.SendOTP(context.Background(), "123", "123456"); err == nil {
		t.Fatal("expected error for gateway failure")
	}
}

func TestSendOTPRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"failed","message":"dnd"}`))
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, "test-key", "OTP1")
	if err := client.SendOTP(context.Background(), "9876543210", "123456"); err == nil {
		t.Fatal("expected error for rejected otp")
	}
}

func TestSendOTPNotConfigured(t *testing.T) {
	client := NewGatewayClient("", "", "OTP1")
	if client.Configured() {
		t.Error("expected Configured = false")
	}
	if err := client.SendOTP(context.Background(), "9876543210", "123456"); err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}
