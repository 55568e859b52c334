package payment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/mixpitch-payouts/internal/constants"
)

var (
	ErrConfigInvalid     = errors.New("transfer config invalid")
	ErrRequestFailed     = errors.New("transfer request failed")
	ErrResponseInvalid   = errors.New("transfer response invalid")
	ErrNetworkTimeout    = errors.New("transfer network timeout")
	ErrProcessorDeclined = errors.New("transfer declined by processor")
	ErrAccountNotReady   = errors.New("payout account not ready")
	ErrProviderUnknown   = errors.New("payout provider unknown")
)

// TransferInput 发起转账输入
type TransferInput struct {
	PayoutNo    string
	AccountRef  string
	Amount      string
	Currency    string
	Description string
	Metadata    map[string]string
}

// TransferResult 转账结果
type TransferResult struct {
	TransferRef string
	Status      string
	Raw         map[string]interface{}
}

// TransferClient 打款提供方客户端接口
type TransferClient interface {
	Name() string
	CreateTransfer(ctx context.Context, input TransferInput) (*TransferResult, error)
}

// ReversalClient 支持撤回转账的提供方实现该接口
type ReversalClient interface {
	CreateReversal(ctx context.Context, transferRef, payoutNo string) (string, error)
}

// AccountChecker 支持打款前校验收款账户就绪的提供方实现该接口
// 账户未就绪时返回包装了 ErrAccountNotReady 的错误
type AccountChecker interface {
	CheckAccountReady(ctx context.Context, accountRef string) error
}

// Registry 提供方注册表
type Registry struct {
	mu      sync.RWMutex
	clients map[string]TransferClient
}

// NewRegistry 创建提供方注册表
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]TransferClient)}
}

// Register 注册提供方客户端
func (r *Registry) Register(client TransferClient) {
	if client == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(client.Name()))
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
}

// Get 按名称获取提供方客户端
func (r *Registry) Get(name string) (TransferClient, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[key]
	if !ok {
		return nil, ErrProviderUnknown
	}
	return client, nil
}

// Names 已注册的提供方名称列表
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Classify 把转账错误映射为失败分类与可重试标记
func Classify(err error) (kind string, retryable bool) {
	switch {
	case errors.Is(err, ErrAccountNotReady):
		// 收款账户未就绪：人工跟进，不自动重试
		return constants.FailureKindAccountNotReady, false
	case errors.Is(err, ErrNetworkTimeout):
		return constants.FailureKindTimeout, true
	case errors.Is(err, ErrProcessorDeclined):
		return constants.FailureKindDeclined, false
	default:
		// 未知错误按拒绝处理，避免歧义状态下重复打款
		return constants.FailureKindDeclined, false
	}
}
