package container

import (
	"context"
	"fmt"
	"log"
	"time"

	"licensestore-backend/internal/config"
	"licensestore-backend/internal/infrastructure/bankfeed"
	infraCache "licensestore-backend/internal/infrastructure/cache"
	"licensestore-backend/internal/infrastructure/database"
	"licensestore-backend/internal/infrastructure/licenseapi"
	"licensestore-backend/internal/infrastructure/queue"
	"licensestore-backend/pkg/cache"
	"licensestore-backend/pkg/jwt"

	"licensestore-backend/internal/domains/payment/gateway"
	gatewaymock "licensestore-backend/internal/domains/payment/gateway/mock"
	"licensestore-backend/internal/domains/payment/gateway/vnpay"

	licenseHandler "licensestore-backend/internal/domains/license/handler"
	licenseRepo "licensestore-backend/internal/domains/license/repository"
	licenseService "licensestore-backend/internal/domains/license/service"
	walletHandler "licensestore-backend/internal/domains/wallet/handler"
	walletRepo "licensestore-backend/internal/domains/wallet/repository"
	walletService "licensestore-backend/internal/domains/wallet/service"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container chứa TẤT CẢ dependencies của application
// Struct này là "root" của dependency graph
// Pattern: Service Locator + Dependency Injection
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================
	// Shared across all domains. Lifecycle: singleton.

	Config     *config.Config
	DB         *database.PostgresDB
	Cache      cache.Cache
	JWTManager *jwt.Manager
	Queue      *queue.Client

	// External collaborators
	Gateway    gateway.PaymentGateway
	BankFeed   bankfeed.Client
	LicenseAPI licenseapi.Client

	// ========================================
	// REPOSITORY LAYER (DATA ACCESS)
	// ========================================

	WalletRepo  walletRepo.WalletRepoInterface
	TopupRepo   walletRepo.TopupRepoInterface
	TxManager   walletRepo.TransactionManager
	LicenseRepo licenseRepo.LicenseRepoInterface
	OrderRepo   licenseRepo.OrderRepoInterface

	// ========================================
	// SERVICE LAYER (BUSINESS LOGIC)
	// ========================================

	WalletService    walletService.WalletService
	ReconcileService walletService.ReconcileService
	LicenseService   licenseService.LicenseService

	// ========================================
	// HANDLER LAYER (HTTP)
	// ========================================

	WalletHandler  *walletHandler.WalletHandler
	LicenseHandler *licenseHandler.LicenseHandler
}

// ========================================
// CONSTRUCTOR: BUILD CONTAINER
// ========================================

// NewContainer tạo và initialize toàn bộ dependency graph
//
// QUAN TRỌNG: Thứ tự initialization:
// 1. Config (không phụ thuộc gì)
// 2. Infrastructure (DB, Cache, Queue, external clients) - phụ thuộc Config
// 3. Repositories - phụ thuộc Infrastructure
// 4. Services - phụ thuộc Repositories
// 5. Handlers - phụ thuộc Services
//
// Nếu thứ tự sai → panic (nil pointer dereference)
func NewContainer() (*Container, error) {
	log.Println("🔧 Initializing DI Container...")

	c := &Container{}

	// ========================================
	// STEP 1: LOAD CONFIGURATION
	// ========================================
	log.Println("📋 Loading configuration...")

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	log.Printf("✅ Config loaded (Environment: %s)", cfg.App.Environment)

	// ========================================
	// STEP 2: INITIALIZE DATABASE
	// ========================================
	log.Println("🗄️  Connecting to PostgreSQL...")

	dbConfig, err := config.LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}

	db := database.NewPostgresDB(dbConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.HealthCheck(context.Background()); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	c.DB = db
	log.Println("✅ Database connected")

	// ========================================
	// STEP 3: INITIALIZE CACHE + QUEUE
	// ========================================
	log.Println("🔴 Connecting to Redis...")

	redisCache := infraCache.NewRedisCache(
		cfg.Redis.Host,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)

	// Redis failure không critical - balance cache degrade về DB reads
	if rc, ok := redisCache.(*infraCache.RedisCache); ok {
		if err := rc.Connect(context.Background()); err != nil {
			log.Printf("⚠️  Redis connection failed (non-critical): %v", err)
		} else {
			log.Println("✅ Redis connected")
		}
	}
	c.Cache = redisCache

	c.Queue = queue.NewClient(cfg.Redis.Host)
	c.JWTManager = jwt.NewManager(cfg.JWT.Secret)

	// ========================================
	// STEP 4: EXTERNAL COLLABORATORS
	// ========================================
	log.Println("🌐 Initializing external clients...")

	if err := c.initExternalClients(); err != nil {
		return nil, fmt.Errorf("failed to init external clients: %w", err)
	}
	log.Println("✅ External clients initialized")

	// ========================================
	// STEP 5: INITIALIZE REPOSITORIES
	// ========================================
	log.Println("📦 Initializing repositories...")

	c.initRepositories()
	log.Println("✅ Repositories initialized")

	// ========================================
	// STEP 6: INITIALIZE SERVICES
	// ========================================
	log.Println("⚙️  Initializing services...")

	c.initServices()
	log.Println("✅ Services initialized")

	// ========================================
	// STEP 7: INITIALIZE HANDLERS
	// ========================================
	log.Println("🎯 Initializing handlers...")

	c.initHandlers()
	log.Println("✅ Handlers initialized")

	log.Println("🎉 DI Container initialized successfully")
	return c, nil
}

// ========================================
// PRIVATE INITIALIZATION METHODS
// ========================================

// initExternalClients khởi tạo gateway, bank feed và license inventory client.
// Gateway được chọn explicit theo config - không có factory cache.
func (c *Container) initExternalClients() error {
	// ----------------------------------------
	// PAYMENT GATEWAY (VNPay)
	// ----------------------------------------
	vnpayConfig := vnpay.NewConfig(
		c.Config.VNPay.TmnCode,
		c.Config.VNPay.HashSecret,
		c.Config.VNPay.APIURL,
		c.Config.VNPay.ReturnURL,
		c.Config.VNPay.IPNURL,
	)

	gw, err := vnpay.NewClient(vnpayConfig)
	if err != nil {
		if c.Config.App.Environment == "production" {
			return fmt.Errorf("payment gateway init failed: %w", err)
		}
		// Local dev không có merchant credentials - chạy mock gateway
		log.Printf("⚠️  VNPay config incomplete, using mock gateway: %v", err)
		gw = gatewaymock.NewGateway()
	}
	c.Gateway = gw

	// ----------------------------------------
	// BANK FEED (QR reconciliation)
	// ----------------------------------------
	bankFeed, err := bankfeed.NewClient(c.Config.BankFeed)
	if err != nil {
		return fmt.Errorf("bank feed init failed: %w", err)
	}
	c.BankFeed = bankFeed

	// ----------------------------------------
	// LICENSE KEY INVENTORY API
	// ----------------------------------------
	licenseAPI, err := licenseapi.NewClient(c.Config.License)
	if err != nil {
		return fmt.Errorf("license api init failed: %w", err)
	}
	c.LicenseAPI = licenseAPI

	return nil
}

// initRepositories khởi tạo tất cả repositories
// Pattern: Constructor Injection
func (c *Container) initRepositories() {
	pool := c.DB.Pool

	c.WalletRepo = walletRepo.NewWalletRepository(pool)
	c.TopupRepo = walletRepo.NewTopupRepository(pool)
	c.TxManager = walletRepo.NewPostgresTransactionManager(pool)

	c.LicenseRepo = licenseRepo.NewLicenseRepository(pool)
	c.OrderRepo = licenseRepo.NewOrderRepository(pool)
}

// initServices khởi tạo tất cả services
func (c *Container) initServices() {
	// ----------------------------------------
	// WALLET SERVICE (settlement coordinator)
	// ----------------------------------------
	c.WalletService = walletService.NewWalletService(
		c.WalletRepo,
		c.TopupRepo,
		c.TxManager,
		c.Gateway,
		c.BankFeed,
		c.Cache,
		c.Queue,
		c.Config.Wallet,
	)

	// ----------------------------------------
	// RECONCILE SERVICE (QR settlement)
	// ----------------------------------------
	c.ReconcileService = walletService.NewReconcileService(
		c.WalletRepo,
		c.TopupRepo,
		c.TxManager,
		c.BankFeed,
		c.Cache,
	)

	// ----------------------------------------
	// LICENSE SERVICE (purchase flow)
	// ----------------------------------------
	// Cross-domain: dùng wallet repos + tx manager để debit trong cùng
	// transaction với allocation
	c.LicenseService = licenseService.NewLicenseService(
		c.LicenseRepo,
		c.OrderRepo,
		c.WalletRepo,
		c.TxManager,
		c.LicenseAPI,
		c.Cache,
		c.Config.License,
	)
}

// initHandlers khởi tạo tất cả HTTP handlers
func (c *Container) initHandlers() {
	c.WalletHandler = walletHandler.NewWalletHandler(c.WalletService, c.ReconcileService)
	c.LicenseHandler = licenseHandler.NewLicenseHandler(c.LicenseService)
}

// ========================================
// HELPER METHODS
// ========================================

// Cleanup dọn dẹp resources khi shutdown
// Gọi trong graceful shutdown của server
func (c *Container) Cleanup() {
	log.Println("🧹 Cleaning up container resources...")

	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			log.Printf("⚠️  Failed to close queue client: %v", err)
		} else {
			log.Println("✅ Queue client closed")
		}
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			log.Printf("⚠️  Failed to close database: %v", err)
		} else {
			log.Println("✅ Database connections closed")
		}
	}

	if c.Cache != nil {
		if rc, ok := c.Cache.(*infraCache.RedisCache); ok {
			if err := rc.Close(); err != nil {
				log.Printf("⚠️  Failed to close Redis: %v", err)
			} else {
				log.Println("✅ Redis connections closed")
			}
		}
	}

	log.Println("✅ Container cleanup completed")
}
