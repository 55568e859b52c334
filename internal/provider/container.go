package provider

import (
	"github.com/mixpitch-payouts/internal/cache"
	"github.com/mixpitch-payouts/internal/config"
	"github.com/mixpitch-payouts/internal/logger"
	"github.com/mixpitch-payouts/internal/models"
	"github.com/mixpitch-payouts/internal/payment"
	"github.com/mixpitch-payouts/internal/payment/paypal"
	"github.com/mixpitch-payouts/internal/payment/stripe"
	"github.com/mixpitch-payouts/internal/queue"
	"github.com/mixpitch-payouts/internal/repository"
	"github.com/mixpitch-payouts/internal/service"

	"github.com/shopspring/decimal"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Registry    *payment.Registry

	// Repositories
	AdminRepo    repository.AdminRepository
	ProducerRepo repository.ProducerRepository
	PayoutRepo   repository.PayoutScheduleRepository
	TxnRepo      repository.TransactionRepository

	// Services
	AuthService         *service.AuthService
	ProducerService     *service.ProducerService
	SchedulerService    *service.PayoutSchedulerService
	ProcessorService    *service.PayoutProcessorService
	QueryService        *service.PayoutQueryService
	NotificationService *service.NotificationService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	c.initRepositories()
	c.initProviders()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.ProducerRepo = repository.NewProducerRepository(db)
	c.PayoutRepo = repository.NewPayoutScheduleRepository(db)
	c.TxnRepo = repository.NewTransactionRepository(db)
}

func (c *Container) initProviders() {
	c.Registry = payment.NewRegistry()

	if c.Config.Providers.Stripe.Enabled {
		client, err := stripe.New(stripe.Config{
			SecretKey:  c.Config.Providers.Stripe.SecretKey,
			APIBaseURL: c.Config.Providers.Stripe.APIBaseURL,
			TimeoutMS:  c.Config.Providers.Stripe.TimeoutMS,
		})
		if err != nil {
			logger.Errorw("provider_init_stripe_failed", "error", err)
		} else {
			c.Registry.Register(client)
		}
	}

	if c.Config.Providers.PayPal.Enabled {
		client, err := paypal.New(paypal.Config{
			ClientID:     c.Config.Providers.PayPal.ClientID,
			ClientSecret: c.Config.Providers.PayPal.ClientSecret,
			BaseURL:      c.Config.Providers.PayPal.BaseURL,
			TimeoutMS:    c.Config.Providers.PayPal.TimeoutMS,
			EmailSubject: c.Config.Providers.PayPal.EmailSubject,
		})
		if err != nil {
			logger.Errorw("provider_init_paypal_failed", "error", err)
		} else {
			c.Registry.Register(client)
		}
	}

	logger.Infow("payout_providers_ready", "providers", c.Registry.Names())
}

func (c *Container) initServices() {
	calculator := service.NewPayoutCalculator(decimal.NewFromFloat(c.Config.Payout.DefaultCommissionRate))
	holdPolicy := service.NewHoldPolicyEvaluator(c.Config.Payout.Hold)

	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.ProducerService = service.NewProducerService(c.ProducerRepo)
	c.SchedulerService = service.NewPayoutSchedulerService(c.PayoutRepo, c.ProducerRepo, c.TxnRepo, calculator, holdPolicy, c.QueueClient)
	c.ProcessorService = service.NewPayoutProcessorService(c.PayoutRepo, c.TxnRepo, c.Registry, c.QueueClient, c.Config.Payout.Processing)
	c.QueryService = service.NewPayoutQueryService(c.PayoutRepo, c.TxnRepo)
	c.NotificationService = service.NewNotificationService(c.PayoutRepo, c.ProducerRepo)
}
