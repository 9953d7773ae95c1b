package provider

import (
	"github.com/affilia-next/internal/authz"
	"github.com/affilia-next/internal/cache"
	"github.com/affilia-next/internal/config"
	"github.com/affilia-next/internal/logger"
	"github.com/affilia-next/internal/models"
	"github.com/affilia-next/internal/queue"
	"github.com/affilia-next/internal/repository"
	"github.com/affilia-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	AdminRepo       repository.AdminRepository
	UserRepo        repository.UserRepository
	OrderRepo       repository.OrderRepository
	CommissionRepo  repository.CommissionRepository
	WithdrawalRepo  repository.WithdrawalRepository
	BankAccountRepo repository.BankAccountRepository
	SettingRepo     repository.SettingRepository

	// Services
	AuthzService       *authz.Service
	AuthService        *service.AuthService
	UserAuthService    *service.UserAuthService
	CaptchaService     *service.CaptchaService
	BankAccountService *service.BankAccountService
	SettingService     *service.SettingService
	CommissionService  *service.CommissionService
	WithdrawalService  *service.WithdrawalService
	OrderService       *service.OrderService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

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
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.UserRepo = repository.NewUserRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.CommissionRepo = repository.NewCommissionRepository(db)
	c.WithdrawalRepo = repository.NewWithdrawalRepository(db)
	c.BankAccountRepo = repository.NewBankAccountRepository(db)
	c.SettingRepo = repository.NewSettingRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.SettingService = service.NewSettingService(c.SettingRepo)
	c.CaptchaService = service.NewCaptchaService(c.Config.Captcha)
	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.UserAuthService = service.NewUserAuthService(c.Config, c.UserRepo)
	c.BankAccountService = service.NewBankAccountService(c.BankAccountRepo)
	c.CommissionService = service.NewCommissionService(c.CommissionRepo, c.OrderRepo, c.UserRepo, c.SettingService)
	c.WithdrawalService = service.NewWithdrawalService(c.WithdrawalRepo, c.CommissionRepo, c.BankAccountRepo, c.UserRepo, c.CommissionService, c.SettingService)
	c.OrderService = service.NewOrderService(c.OrderRepo, c.UserRepo, c.QueueClient, c.CommissionService, c.SettingService)
}
