package main

import (
	"time"

	"github.com/affilia-next/internal/config"
	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/logger"
	"github.com/affilia-next/internal/models"
	"github.com/affilia-next/internal/repository"
	"github.com/affilia-next/internal/service"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 启用佣金配置
	settingSvc := service.NewSettingService(repository.NewSettingRepository(models.DB))
	if _, err := settingSvc.UpdateCommissionSetting(service.CommissionSetting{
		Enabled:              true,
		DefaultRatePercent:   10,
		CooldownDays:         14,
		TriggerStatus:        constants.OrderStatusDelivered,
		ReturnPolicy:         constants.ReturnPolicyZeroOnReturn,
		AutoApproveThreshold: 50,
	}); err != nil {
		stdLog.Printf("Failed to seed commission setting: %v", err)
	} else {
		stdLog.Printf("Seeded commission setting")
	}
	if _, err := settingSvc.UpdateWithdrawalSetting(service.WithdrawalSetting{
		MinAmount: 100,
		MaxAmount: 0,
		Methods:   []string{constants.WithdrawalMethodBankTransfer},
	}); err != nil {
		stdLog.Printf("Failed to seed withdrawal setting: %v", err)
	} else {
		stdLog.Printf("Seeded withdrawal setting")
	}

	// 添加演示用户
	passwordHash, err := bcrypt.GenerateFromPassword([]byte("Affilia#2024"), bcrypt.DefaultCost)
	if err != nil {
		stdLog.Fatalf("Failed to hash demo password: %v", err)
	}
	users := []models.User{
		{
			Email:         "promoter@demo.affilia.ma",
			PasswordHash:  string(passwordHash),
			DisplayName:   "演示推广员",
			AffiliateCode: "AFDEMO01",
			Status:        constants.UserStatusActive,
		},
		{
			Email:         "buyer@demo.affilia.ma",
			PasswordHash:  string(passwordHash),
			DisplayName:   "演示买家",
			AffiliateCode: "AFDEMO02",
			Status:        constants.UserStatusActive,
		},
	}
	for _, user := range users {
		var existing models.User
		if err := models.DB.Where("email = ?", user.Email).First(&existing).Error; err != nil {
			if err := models.DB.Create(&user).Error; err != nil {
				stdLog.Printf("Failed to create user %s: %v", user.Email, err)
			} else {
				stdLog.Printf("Created user: %s", user.Email)
			}
		} else {
			stdLog.Printf("User already exists: %s", user.Email)
		}
	}

	// 添加演示商品
	products := []models.Product{
		{
			Slug:                  "argan-oil-500ml",
			Title:                 "摩洛哥坚果油 500ml",
			Price:                 models.NewMoneyFromDecimal(decimal.NewFromFloat(249.00)),
			IsCommissionable:      true,
			CommissionRatePercent: models.NewMoneyFromDecimal(decimal.NewFromFloat(15)),
		},
		{
			Slug:                  "ceramic-tagine",
			Title:                 "陶瓷塔吉锅",
			Price:                 models.NewMoneyFromDecimal(decimal.NewFromFloat(180.00)),
			IsCommissionable:      true,
			CommissionFixedAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(20)),
		},
		{
			Slug:                  "gift-wrapping",
			Title:                 "礼品包装服务",
			Price:                 models.NewMoneyFromDecimal(decimal.NewFromFloat(25.00)),
			IsCommissionable:      false,
		},
	}
	for _, product := range products {
		var existing models.Product
		if err := models.DB.Where("slug = ?", product.Slug).First(&existing).Error; err != nil {
			if err := models.DB.Create(&product).Error; err != nil {
				stdLog.Printf("Failed to create product %s: %v", product.Slug, err)
			} else {
				stdLog.Printf("Created product: %s", product.Slug)
			}
		} else {
			stdLog.Printf("Product already exists: %s", product.Slug)
		}
	}

	// 添加演示订单（已归因、已交付，可直接触发计佣流程）
	var promoter, buyer models.User
	if err := models.DB.Where("email = ?", "promoter@demo.affilia.ma").First(&promoter).Error; err != nil {
		stdLog.Fatalf("Failed to load promoter: %v", err)
	}
	if err := models.DB.Where("email = ?", "buyer@demo.affilia.ma").First(&buyer).Error; err != nil {
		stdLog.Fatalf("Failed to load buyer: %v", err)
	}
	var arganOil models.Product
	if err := models.DB.Where("slug = ?", "argan-oil-500ml").First(&arganOil).Error; err != nil {
		stdLog.Fatalf("Failed to load product: %v", err)
	}

	var existingOrder models.Order
	if err := models.DB.Where("order_no = ?", "AF-DEMO-0001").First(&existingOrder).Error; err != nil {
		now := time.Now()
		deliveredAt := now.Add(-48 * time.Hour)
		promoterID := promoter.ID
		order := models.Order{
			OrderNo:         "AF-DEMO-0001",
			UserID:          buyer.ID,
			AffiliateUserID: &promoterID,
			AffiliateCode:   promoter.AffiliateCode,
			Status:          constants.OrderStatusDelivered,
			Currency:        "MAD",
			TotalAmount:     models.NewMoneyFromDecimal(decimal.NewFromFloat(498.00)),
			DeliveredAt:     &deliveredAt,
			Items: []models.OrderItem{
				{
					ProductID:  arganOil.ID,
					Title:      arganOil.Title,
					UnitPrice:  arganOil.Price,
					Quantity:   2,
					TotalPrice: models.NewMoneyFromDecimal(decimal.NewFromFloat(498.00)),
				},
			},
		}
		if err := models.DB.Create(&order).Error; err != nil {
			stdLog.Printf("Failed to create demo order: %v", err)
		} else {
			stdLog.Printf("Created demo order: %s", order.OrderNo)
		}
	} else {
		stdLog.Printf("Demo order already exists: AF-DEMO-0001")
	}

	stdLog.Printf("Seed completed")
}
