package main

import (
	"log"
	"os"
	"time"

	"carhive/database"
	"carhive/handlers"
	"carhive/models"
	"carhive/realtime"
	"carhive/routes"
	"carhive/services"
	"carhive/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	// 載入 .env 檔案
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using default environment variables: %v", err)
	}

	// 調用 AES_KEY 是否加載成功
	if err := utils.InitCrypto(); err != nil {
		log.Fatalf("Failed to initialize crypto: %v", err)
	}
	log.Println("Crypto initialized successfully")

	// 初始化 JWTSecret
	utils.InitJWTSecret()

	// 初始化資料庫
	database.InitDB()

	// 執行資料庫遷移
	database.DB.AutoMigrate(
		&models.User{},
		&models.Car{},
		&models.Rental{},
		&models.Payment{},
		&models.Notification{},
		&models.Review{},
		&models.Wishlist{},
	)
	log.Println("Database migration completed")

	// 確保預設管理員存在
	ensureAdminExists()

	// 組裝服務層
	hub := realtime.NewHub()
	store := services.NewStore(database.DB)
	notificationService := services.NewNotificationService(store, hub)
	paymentService := services.NewPaymentService(store, notificationService,
		services.NewCardGateway(os.Getenv("CARD_GATEWAY_URL"), os.Getenv("CARD_GATEWAY_KEY")),
		services.NewMobileMoneyGateway(os.Getenv("MOMO_GATEWAY_URL"), os.Getenv("MOMO_GATEWAY_KEY")),
	)
	rentalService := services.NewRentalService(store, paymentService, notificationService)
	handlers.Init(rentalService, paymentService, notificationService, hub)

	// 設置 Gin 模式為 release
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "" {
		ginMode = gin.ReleaseMode
	}
	gin.SetMode(ginMode)
	log.Printf("Gin mode set to %s", ginMode)

	// 初始化 Gin 路由器
	r := gin.Default()

	// 創建一個 API 路由組
	api := r.Group("/api")
	{
		routes.Path(api)
	}

	// 啟動定時任務
	c := cron.New()

	// 檢查未付款逾時租約（每 5 分鐘執行一次）
	_, err := c.AddFunc("*/5 * * * *", func() {
		log.Println("Checking for expired rentals...")
		if err := rentalService.CheckExpiredRentals(); err != nil {
			log.Printf("Failed to check expired rentals: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule expired rentals cron job: %v", err)
	}

	// 對過舊的 pending 付款重新對帳（每 2 分鐘執行一次）
	_, err = c.AddFunc("*/2 * * * *", func() {
		log.Println("Reconciling stale payments...")
		if err := paymentService.ReconcileStalePayments(5 * time.Minute); err != nil {
			log.Printf("Failed to reconcile stale payments: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule stale payment reconciliation cron job: %v", err)
	}

	c.Start()
	log.Println("Cron jobs started")

	// 啟動伺服器
	log.Println("Starting server on :8080")
	if err := r.Run(":8080"); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// ensureAdminExists 檢查並創建預設管理員
func ensureAdminExists() {
	var admin models.User
	// 檢查是否已經有 admin 角色
	if err := database.DB.Where("role = ?", models.RoleAdmin).First(&admin).Error; err == nil {
		log.Printf("Admin already exists: email=%s", admin.Email)
		return
	}

	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@carhive.local"
	}
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "admin1234"
	}

	// 哈希密碼
	hashedPassword, err := utils.HashPassword(adminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	admin = models.User{
		Name:     "Administrator",
		Email:    adminEmail,
		Password: hashedPassword,
		Role:     models.RoleAdmin,
	}

	// 插入資料庫
	if err := database.DB.Create(&admin).Error; err != nil {
		log.Fatalf("Failed to create default admin: %v", err)
	}

	log.Printf("Default admin created: email=%s", admin.Email)
}
