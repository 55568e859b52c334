package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/payment"
)

var ErrAuthFailed = errors.New("paypal auth failed")

const (
	defaultSandboxBaseURL = "https://api-m.sandbox.paypal.com"
	defaultTimeout        = 12 * time.Second
	defaultEmailSubject   = "You have a payout"
	tokenExpirySkew       = 30 * time.Second
)

// 收款方侧错误码，映射为“收款账户未就绪”
var accountNotReadyCodes = map[string]struct{}{
	"receiver_unregistered":        {},
	"receiver_unconfirmed":         {},
	"receiver_account_locked":      {},
	"receiver_country_not_allowed": {},
}

// Config PayPal Payouts 配置
type Config struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	BaseURL      string `json:"base_url"`
	TimeoutMS    int    `json:"timeout_ms"`
	EmailSubject string `json:"email_subject"`
}

// Client PayPal Payouts 客户端
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New 创建 PayPal Payouts 客户端
func New(cfg Config) (*Client, error) {
	cfg.normalize()
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", payment.ErrConfigInvalid)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_secret is required", payment.ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base_url is invalid", payment.ErrConfigInvalid)
	}
	timeout := defaultTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name 提供方名称
func (c *Client) Name() string {
	return constants.PayoutProviderPayPal
}

// CreateTransfer 通过 Payouts API 向收款邮箱打款
func (c *Client) CreateTransfer(ctx context.Context, input payment.TransferInput) (*payment.TransferResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	payoutNo := strings.TrimSpace(input.PayoutNo)
	if payoutNo == "" {
		return nil, fmt.Errorf("%w: payout_no is required", payment.ErrConfigInvalid)
	}
	receiver := strings.TrimSpace(input.AccountRef)
	if receiver == "" {
		return nil, fmt.Errorf("%w: paypal email is missing", payment.ErrAccountNotReady)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	amount := strings.TrimSpace(input.Amount)
	if currency == "" || amount == "" {
		return nil, fmt.Errorf("%w: amount input is invalid", payment.ErrConfigInvalid)
	}

	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	note := strings.TrimSpace(input.Description)
	if note == "" {
		note = payoutNo
	}
	payload := map[string]interface{}{
		"sender_batch_header": map[string]string{
			// 批次号即打款单号，重复提交会被 PayPal 拒绝，保证幂等
			"sender_batch_id": payoutNo,
			"email_subject":   c.cfg.EmailSubject,
		},
		"items": []map[string]interface{}{
			{
				"recipient_type": "EMAIL",
				"receiver":       receiver,
				"note":           note,
				"sender_item_id": payoutNo,
				"amount": map[string]string{
					"currency": currency,
					"value":    amount,
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request failed", payment.ErrRequestFailed)
	}

	respBody, statusCode, err := c.doJSONRequest(ctx, http.MethodPost, "/v1/payments/payouts", token, body)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, mapAPIError(respBody, statusCode)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", payment.ErrResponseInvalid)
	}
	batchID := strings.TrimSpace(readString(raw, "batch_header", "payout_batch_id"))
	if batchID == "" {
		return nil, fmt.Errorf("%w: missing payout batch id", payment.ErrResponseInvalid)
	}
	return &payment.TransferResult{
		TransferRef: batchID,
		Status:      strings.ToLower(strings.TrimSpace(readString(raw, "batch_header", "batch_status"))),
		Raw:         raw,
	}, nil
}

func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	values := url.Values{}
	values.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(values.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request failed", ErrAuthFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", wrapTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read token response failed", ErrAuthFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token status %d", ErrAuthFailed, resp.StatusCode)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode token response failed", ErrAuthFailed)
	}
	token := strings.TrimSpace(readString(parsed, "access_token"))
	if token == "" {
		return "", fmt.Errorf("%w: access_token is empty", ErrAuthFailed)
	}

	expiresIn := time.Duration(readInt64(parsed, "expires_in")) * time.Second
	c.mu.Lock()
	c.accessToken = token
	if expiresIn > tokenExpirySkew {
		c.tokenExpiry = time.Now().Add(expiresIn - tokenExpirySkew)
	} else {
		c.tokenExpiry = time.Now()
	}
	c.mu.Unlock()
	return token, nil
}

func (c *Client) doJSONRequest(ctx context.Context, method, endpoint, token string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", payment.ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, wrapTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", payment.ErrResponseInvalid)
	}
	return respBody, resp.StatusCode, nil
}

func (c *Config) normalize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultSandboxBaseURL
	}
	c.EmailSubject = strings.TrimSpace(c.EmailSubject)
	if c.EmailSubject == "" {
		c.EmailSubject = defaultEmailSubject
	}
}

func wrapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", payment.ErrNetworkTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", payment.ErrNetworkTimeout, err)
	}
	return fmt.Errorf("%w: %v", payment.ErrRequestFailed, err)
}

func mapAPIError(body []byte, statusCode int) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("%w: status %d", payment.ErrResponseInvalid, statusCode)
	}
	name := strings.ToLower(strings.TrimSpace(readString(raw, "name")))
	message := strings.TrimSpace(readString(raw, "message"))
	if _, ok := accountNotReadyCodes[name]; ok {
		return fmt.Errorf("%w: %s (%s)", payment.ErrAccountNotReady, message, name)
	}
	if statusCode >= 500 {
		return fmt.Errorf("%w: status %d: %s", payment.ErrNetworkTimeout, statusCode, message)
	}
	return fmt.Errorf("%w: %s (%s)", payment.ErrProcessorDeclined, message, name)
}

func readString(raw map[string]interface{}, path ...string) string {
	if raw == nil {
		return ""
	}
	var current interface{} = raw
	for _, seg := range path {
		next, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = next[seg]
	}
	if current == nil {
		return ""
	}
	if str, ok := current.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", current)
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil {
		return 0
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return 0
	}
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
