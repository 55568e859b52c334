package stripe

import (
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
	"time"

	"github.com/mixpitch-payouts/internal/constants"
	"github.com/mixpitch-payouts/internal/payment"

	"github.com/shopspring/decimal"
)

const (
	defaultAPIBaseURL = "https://api.stripe.com"
	defaultTimeout    = 12 * time.Second
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// 账户侧错误码，映射为“收款账户未就绪”
var accountNotReadyCodes = map[string]struct{}{
	"account_invalid":                        {},
	"account_closed":                         {},
	"transfers_not_allowed":                  {},
	"insufficient_capabilities_for_transfer": {},
}

// Config Stripe Connect 转账配置
type Config struct {
	SecretKey  string `json:"secret_key"`
	APIBaseURL string `json:"api_base_url"`
	TimeoutMS  int    `json:"timeout_ms"`
}

// Client Stripe Connect 转账客户端
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New 创建 Stripe 转账客户端
func New(cfg Config) (*Client, error) {
	cfg.normalize()
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: secret_key is required", payment.ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.APIBaseURL); err != nil {
		return nil, fmt.Errorf("%w: api_base_url is invalid", payment.ErrConfigInvalid)
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
	return constants.PayoutProviderStripe
}

// CreateTransfer 向 Connect 账户发起转账
func (c *Client) CreateTransfer(ctx context.Context, input payment.TransferInput) (*payment.TransferResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	payoutNo := strings.TrimSpace(input.PayoutNo)
	if payoutNo == "" {
		return nil, fmt.Errorf("%w: payout_no is required", payment.ErrConfigInvalid)
	}
	accountRef := strings.TrimSpace(input.AccountRef)
	if accountRef == "" {
		return nil, fmt.Errorf("%w: stripe account is missing", payment.ErrAccountNotReady)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", payment.ErrConfigInvalid)
	}
	minorAmount, err := toMinorAmount(input.Amount, currency)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(minorAmount, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("destination", accountRef)
	form.Set("transfer_group", payoutNo)
	form.Set("metadata[payout_no]", payoutNo)
	if desc := strings.TrimSpace(input.Description); desc != "" {
		form.Set("description", desc)
	}
	for key, value := range input.Metadata {
		key = strings.TrimSpace(key)
		if key == "" || key == "payout_no" {
			continue
		}
		form.Set("metadata["+key+"]", value)
	}

	// 以打款单号作幂等键，重试不会重复转账
	respBody, statusCode, err := c.doFormRequest(ctx, http.MethodPost, "/v1/transfers", form, payoutNo)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, mapAPIError(respBody, statusCode)
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	transferRef := strings.TrimSpace(readString(raw, "id"))
	if transferRef == "" {
		return nil, fmt.Errorf("%w: missing transfer id", payment.ErrResponseInvalid)
	}
	return &payment.TransferResult{
		TransferRef: transferRef,
		Status:      "completed",
		Raw:         raw,
	}, nil
}

// CreateReversal 撤回一笔已完成的转账
func (c *Client) CreateReversal(ctx context.Context, transferRef, payoutNo string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	transferRef = strings.TrimSpace(transferRef)
	if transferRef == "" {
		return "", fmt.Errorf("%w: transfer ref is required", payment.ErrConfigInvalid)
	}
	payoutNo = strings.TrimSpace(payoutNo)

	form := url.Values{}
	if payoutNo != "" {
		form.Set("metadata[payout_no]", payoutNo)
	}
	idempotencyKey := ""
	if payoutNo != "" {
		idempotencyKey = "rev_" + payoutNo
	}
	path := "/v1/transfers/" + url.PathEscape(transferRef) + "/reversals"
	respBody, statusCode, err := c.doFormRequest(ctx, http.MethodPost, path, form, idempotencyKey)
	if err != nil {
		return "", err
	}
	if statusCode < 200 || statusCode >= 300 {
		return "", mapAPIError(respBody, statusCode)
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return "", err
	}
	reversalRef := strings.TrimSpace(readString(raw, "id"))
	if reversalRef == "" {
		return "", fmt.Errorf("%w: missing reversal id", payment.ErrResponseInvalid)
	}
	return reversalRef, nil
}

// CheckAccountReady 校验 Connect 账户是否可收款
func (c *Client) CheckAccountReady(ctx context.Context, accountRef string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	accountRef = strings.TrimSpace(accountRef)
	if accountRef == "" {
		return fmt.Errorf("%w: stripe account is missing", payment.ErrAccountNotReady)
	}
	path := "/v1/accounts/" + url.PathEscape(accountRef)
	respBody, statusCode, err := c.doJSONRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	if statusCode < 200 || statusCode >= 300 {
		return mapAPIError(respBody, statusCode)
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return err
	}
	if !readBool(raw, "payouts_enabled") {
		return fmt.Errorf("%w: payouts disabled for %s", payment.ErrAccountNotReady, accountRef)
	}
	return nil
}

func (c *Client) doFormRequest(ctx context.Context, method, path string, form url.Values, idempotencyKey string) ([]byte, int, error) {
	endpoint := c.cfg.APIBaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", payment.ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, wrapTransportError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", payment.ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) doJSONRequest(ctx context.Context, method, path string) ([]byte, int, error) {
	endpoint := c.cfg.APIBaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", payment.ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, wrapTransportError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", payment.ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

func (c *Config) normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
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
	raw, err := decodeRawMap(body)
	if err != nil {
		return fmt.Errorf("%w: status %d", payment.ErrResponseInvalid, statusCode)
	}
	errRaw := readMap(raw, "error")
	code := strings.ToLower(strings.TrimSpace(readString(errRaw, "code")))
	message := strings.TrimSpace(readString(errRaw, "message"))
	if _, ok := accountNotReadyCodes[code]; ok {
		return fmt.Errorf("%w: %s (%s)", payment.ErrAccountNotReady, message, code)
	}
	if statusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", payment.ErrAccountNotReady, message)
	}
	if statusCode >= 500 {
		// 网关侧错误当作可重试的临时失败
		return fmt.Errorf("%w: status %d: %s", payment.ErrNetworkTimeout, statusCode, message)
	}
	return fmt.Errorf("%w: %s (%s)", payment.ErrProcessorDeclined, message, code)
}

func toMinorAmount(amount string, currency string) (int64, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("%w: amount is invalid", payment.ErrConfigInvalid)
	}
	if parsed.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: amount must be greater than zero", payment.ErrConfigInvalid)
	}
	scale := currencyScale(currency)
	minor := parsed.Shift(int32(scale))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount precision is invalid", payment.ErrConfigInvalid)
	}
	return minor.IntPart(), nil
}

func currencyScale(currency string) int {
	upper := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[upper]; ok {
		return 0
	}
	return 2
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", payment.ErrResponseInvalid)
	}
	return raw, nil
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	typed, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(typed)
}

func readBool(raw map[string]interface{}, key string) bool {
	if raw == nil {
		return false
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return false
	}
	typed, ok := value.(bool)
	if !ok {
		return false
	}
	return typed
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return nil
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return nil
	}
	mapped, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	return mapped
}
