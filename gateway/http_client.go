/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/blnkfinance/paysync/internal/request"
)

const (
	AuthorizationV1HMAC = "V1HMAC"

	headerServerMetaInfo = "X-GCS-ServerMetaInfo"
	headerIdempotenceKey = "X-GCS-Idempotence-Key"
	sdkIdentifier        = "paysync-go/1.0"
)

// Config holds one merchant's connection settings.
type Config struct {
	Endpoint          string
	MerchantID        string
	APIKeyID          string
	SecretAPIKey      string
	AuthorizationType string
	Integrator        string
	ConnectTimeout    time.Duration
	SocketTimeout     time.Duration
	MaxConnections    int
}

func (c Config) validate() error {
	switch {
	case c.Endpoint == "":
		return errors.New("gateway endpoint is required")
	case c.MerchantID == "":
		return errors.New("gateway merchant id is required")
	case c.APIKeyID == "" || c.SecretAPIKey == "":
		return errors.New("gateway api key id and secret are required")
	case c.AuthorizationType != AuthorizationV1HMAC:
		return fmt.Errorf("unsupported gateway authorization type %q", c.AuthorizationType)
	}
	return nil
}

// HTTPClient is the REST implementation of Client. Connect and read timeouts
// are enforced by its transport.
type HTTPClient struct {
	cfg       Config
	baseURL   *url.URL
	http      *http.Client
	transport *http.Transport
	metaInfo  string
	now       func() time.Time
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	baseURL, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway endpoint: %w", err)
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.SocketTimeout,
		MaxConnsPerHost:       cfg.MaxConnections,
		MaxIdleConnsPerHost:   cfg.MaxConnections,
		IdleConnTimeout:       90 * time.Second,
	}

	meta, err := json.Marshal(struct {
		PlatformIdentifier string `json:"platformIdentifier"`
		SDKIdentifier      string `json:"sdkIdentifier"`
		Integrator         string `json:"integrator"`
	}{
		PlatformIdentifier: runtime.GOOS + "/" + runtime.Version(),
		SDKIdentifier:      sdkIdentifier,
		Integrator:         cfg.Integrator,
	})
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		cfg:       cfg,
		baseURL:   baseURL,
		http:      &http.Client{Transport: transport, Timeout: cfg.ConnectTimeout + cfg.SocketTimeout},
		transport: transport,
		metaInfo:  base64.StdEncoding.EncodeToString(meta),
		now:       time.Now,
	}, nil
}

func (c *HTTPClient) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResponse, error) {
	var resp CreatePaymentResponse
	if err := c.do(ctx, http.MethodPost, c.path("payments"), req.IdempotenceKey, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ApprovePayment(ctx context.Context, paymentID string, req *ApprovePaymentRequest) (*PaymentResponse, error) {
	var resp PaymentResponse
	if err := c.do(ctx, http.MethodPost, c.path("payments", paymentID, "approve"), "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) CancelPayment(ctx context.Context, paymentID string) (*PaymentResponse, error) {
	var resp PaymentResponse
	if err := c.do(ctx, http.MethodPost, c.path("payments", paymentID, "cancel"), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) RefundPayment(ctx context.Context, paymentID string, req *RefundRequest) (*RefundResponse, error) {
	var resp RefundResponse
	if err := c.do(ctx, http.MethodPost, c.path("payments", paymentID, "refund"), "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) CreatePayout(ctx context.Context, req *PayoutRequest) (*PayoutResponse, error) {
	var resp PayoutResponse
	if err := c.do(ctx, http.MethodPost, c.path("payouts"), "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) CreateToken(ctx context.Context, req *CreateTokenRequest) (*CreateTokenResponse, error) {
	var resp CreateTokenResponse
	if err := c.do(ctx, http.MethodPost, c.path("tokens"), "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var resp Payment
	if err := c.do(ctx, http.MethodGet, c.path("payments", paymentID), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Close releases the pooled connections. The client must not be used afterwards.
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) path(segments ...string) string {
	escaped := make([]string, 0, len(segments)+2)
	escaped = append(escaped, "v1", url.PathEscape(c.cfg.MerchantID))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return "/" + strings.Join(escaped, "/")
}

func (c *HTTPClient) do(ctx context.Context, method, path, idempotenceKey string, body, out interface{}) error {
	var payload io.Reader
	contentType := ""
	if body != nil {
		buf, err := request.ToJsonReq(body)
		if err != nil {
			return err
		}
		payload = buf
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, payload)
	if err != nil {
		return err
	}

	gcsHeaders := map[string]string{headerServerMetaInfo: c.metaInfo}
	if idempotenceKey != "" {
		gcsHeaders[headerIdempotenceKey] = idempotenceKey
	}
	date := c.now().UTC().Format(http.TimeFormat)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Date", date)
	for k, v := range gcsHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("Authorization", c.signature(method, contentType, date, path, gcsHeaders))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newResponseError(resp.StatusCode, raw, idempotenceKey)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("empty body for %s %s: %w", method, path, ErrMalformedResponse)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

// signature builds the v1HMAC Authorization header value.
func (c *HTTPClient) signature(method, contentType, date, path string, gcsHeaders map[string]string) string {
	var b strings.Builder
	b.WriteString(method + "\n")
	b.WriteString(contentType + "\n")
	b.WriteString(date + "\n")

	names := make([]string, 0, len(gcsHeaders))
	for k := range gcsHeaders {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return strings.ToLower(names[i]) < strings.ToLower(names[j]) })
	for _, k := range names {
		b.WriteString(strings.ToLower(k) + ":" + strings.TrimSpace(gcsHeaders[k]) + "\n")
	}
	b.WriteString(path + "\n")

	mac := hmac.New(sha256.New, []byte(c.cfg.SecretAPIKey))
	mac.Write([]byte(b.String()))
	return fmt.Sprintf("GCS v1HMAC:%s:%s", c.cfg.APIKeyID, base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}
