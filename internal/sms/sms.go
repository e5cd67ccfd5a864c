// Package sms delivers one-time login codes to citizens' mobile numbers.
package sms

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sender delivers an OTP code to a mobile number.
type Sender interface {
	SendOTP(ctx context.Context, mobile, code string) error
}

type GatewayClient struct {
	apiKey   string
	template string
	http     *resty.Client
}

type Option func(*GatewayClient)

// WithRetry overrides the retry policy. Tests use it to fail fast.
func WithRetry(count int, wait time.Duration) Option {
	return func(c *GatewayClient) {
		c.http.SetRetryCount(count).SetRetryWaitTime(wait)
	}
}

func NewGatewayClient(baseURL, apiKey, template string, opts ...Option) *GatewayClient {
	c := &GatewayClient{
		apiKey:   apiKey,
		template: template,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10*time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500*time.Millisecond).
			SetRetryMaxWaitTime(2*time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if both the gateway URL and API key are set.
func (c *GatewayClient) Configured() bool {
	return c.apiKey != "" && c.http.BaseURL != ""
}

type otpRequest struct {
	Mobile   string `json:"mobile"`
	Template string `json:"template"`
	OTP      string `json:"otp"`
}

type gatewayResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *GatewayClient) SendOTP(ctx context.Context, mobile, code string) error {
	if !c.Configured() {
		return fmt.Errorf("sms gateway not configured: missing base url or api key")
	}

	var out gatewayResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(otpRequest{Mobile: mobile, Template: c.template, OTP: code}).
		SetResult(&out).
		SetError(&out).
		Post("/otp/send")
	if err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms gateway error: status %d: %s", resp.StatusCode(), out.Message)
	}
	if out.Status != "" && out.Status != "success" {
		return fmt.Errorf("sms gateway rejected otp: %s", out.Message)
	}
	return nil
}

// LogSender writes codes to the log instead of sending them. It is used in
// development when no gateway is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendOTP(_ context.Context, mobile, code string) error {
	s.Logger.Warn("sms gateway not configured, logging otp", "mobile", mobile, "otp", code)
	return nil
}
