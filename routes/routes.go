package routes

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"carhive/handlers"
	"carhive/models"
	"carhive/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware 驗證 JWT token，並提取 user_id 和 role
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "缺少 Authorization 標頭",
				"error":   "Authorization header is required",
				"code":    "ERR_NO_AUTH_HEADER",
			})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "無效的 Authorization 格式",
				"error":   "Authorization header must be in the format 'Bearer <token>'",
				"code":    "ERR_INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		tokenString := parts[1]

		// 明確要求檢查 exp 字段
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return utils.JWTSecret, nil
		}, jwt.WithExpirationRequired())

		if err != nil {
			log.Printf("Token parsing error: %v", err)
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.JSON(http.StatusUnauthorized, gin.H{
					"status":  false,
					"message": "token 已過期",
					"error":   "Token has expired",
					"code":    "ERR_TOKEN_EXPIRED",
				})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{
					"status":  false,
					"message": "無效的 token",
					"error":   err.Error(),
					"code":    "ERR_INVALID_TOKEN",
				})
			}
			c.Abort()
			return
		}

		// 檢查 Claims 是否有效
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "無效的 token 內容",
				"error":   "Invalid token claims",
				"code":    "ERR_INVALID_CLAIMS",
			})
			c.Abort()
			return
		}

		// 確認 exp 字段存在
		if _, ok := claims["exp"].(float64); !ok {
			log.Printf("Missing or invalid exp in token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "無效的 token 內容",
				"error":   "Missing or invalid exp claim",
				"code":    "ERR_INVALID_CLAIMS",
			})
			c.Abort()
			return
		}

		// 確認 user_id 字段
		userID, ok := claims["user_id"].(float64)
		if !ok {
			log.Printf("Missing or invalid user_id in token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "無效的使用者 ID",
				"error":   "Invalid user_id in token",
				"code":    "ERR_INVALID_USER_ID",
			})
			c.Abort()
			return
		}

		// 確認 role 字段：角色集合是封閉的
		role, ok := claims["role"].(string)
		if !ok || (role != models.RoleRenter && role != models.RoleOwner && role != models.RoleAdmin) {
			log.Printf("Missing or invalid role in token: %v", role)
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "無效的角色",
				"error":   "Invalid role in token",
				"code":    "ERR_INVALID_ROLE",
			})
			c.Abort()
			return
		}

		c.Set("user_id", int(userID))
		c.Set("role", role)
		c.Next()
	}
}

// RoleMiddleware 限制只有指定角色可以訪問，admin 一律放行
func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "無法獲取角色資訊",
				"error":   "Role not found in context",
				"code":    "ERR_ROLE_NOT_FOUND",
			})
			c.Abort()
			return
		}

		roleStr, ok := role.(string)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "無效的角色類型",
				"error":   "Invalid role type",
				"code":    "ERR_INVALID_ROLE_TYPE",
			})
			c.Abort()
			return
		}

		// 允許 admin 角色訪問所有端點
		if roleStr == models.RoleAdmin {
			c.Next()
			return
		}

		allowed := false
		for _, allowedRole := range allowedRoles {
			if roleStr == allowedRole {
				allowed = true
				break
			}
		}

		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{
				"status":  false,
				"message": "權限不足",
				"error":   "Insufficient role permissions",
				"code":    "ERR_INSUFFICIENT_PERMISSIONS",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func Path(router *gin.RouterGroup) {
	// 版本控制
	v1 := router.Group("/v1")
	{
		// 測試路由
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(200, gin.H{"message": "pong", "time": time.Now().Format(time.RFC3339)})
		})

		// 使用者路由
		users := v1.Group("/users")
		{
			// 公開路由：不需要 token 驗證
			users.POST("/register", handlers.RegisterUser) // 註冊
			users.POST("/login", handlers.LoginUser)       // 登入並獲取 token

			// 受保護路由：需要 token 驗證
			usersWithAuth := users.Group("")
			usersWithAuth.Use(AuthMiddleware())
			{
				usersWithAuth.GET("/profile", handlers.GetUserProfile)                      // 查看個人資料
				usersWithAuth.GET("/all", RoleMiddleware("admin"), handlers.GetAllUsers)    // 查詢所有使用者
				usersWithAuth.PUT("/:id", handlers.UpdateUser)                              // 更新使用者資料（本人或管理員）
				usersWithAuth.DELETE("/:id", RoleMiddleware("admin"), handlers.DeleteUser)  // 刪除使用者
			}
		}

		// 車輛路由
		cars := v1.Group("/cars")
		{
			// 公開路由：瀏覽車輛不需要登入
			cars.GET("", handlers.GetCars)
			cars.GET("/:id", handlers.GetCar)
			cars.GET("/:id/availability", handlers.CheckCarAvailability)

			carsWithAuth := cars.Group("")
			carsWithAuth.Use(AuthMiddleware())
			{
				// 上架、更新、下架：僅 owner 和 admin 可以操作
				carsWithAuth.POST("", RoleMiddleware("owner"), handlers.CreateCar)
				carsWithAuth.PUT("/:id", RoleMiddleware("owner"), handlers.UpdateCar)
				carsWithAuth.DELETE("/:id", RoleMiddleware("owner"), handlers.RetireCar)
			}
		}

		// 租約路由
		rentals := v1.Group("/rentals")
		{
			rentalsWithAuth := rentals.Group("")
			rentalsWithAuth.Use(AuthMiddleware())
			{
				// 建立租約：僅 renter 可以操作
				rentalsWithAuth.POST("", RoleMiddleware("renter"), handlers.CreateRental)
				// 查詢租約
				rentalsWithAuth.GET("", handlers.GetRentals)
				rentalsWithAuth.GET("/:id", handlers.GetRental)
				// 狀態轉移：角色與擁有權在 service 的授權表檢查
				rentalsWithAuth.PATCH("/:id/status", handlers.TransitionRental)
				// 取消租約
				rentalsWithAuth.POST("/:id/cancel", handlers.CancelRental)
			}
		}

		// 付款路由
		payments := v1.Group("/payments")
		{
			paymentsWithAuth := payments.Group("")
			paymentsWithAuth.Use(AuthMiddleware())
			{
				paymentsWithAuth.POST("", RoleMiddleware("renter"), handlers.ChargeCard)                          // 信用卡扣款
				paymentsWithAuth.POST("/:id/confirm", RoleMiddleware("renter"), handlers.ConfirmCard)             // 3D 驗證後確認
				paymentsWithAuth.POST("/mobile-money", RoleMiddleware("renter"), handlers.InitiateMobileMoney)    // 發起行動支付
				paymentsWithAuth.GET("/verify/:gateway/:paymentId", handlers.VerifyPayment)                       // 查詢付款狀態
			}
		}

		// 通知路由
		notifications := v1.Group("/notifications")
		{
			notificationsWithAuth := notifications.Group("")
			notificationsWithAuth.Use(AuthMiddleware())
			{
				notificationsWithAuth.GET("", handlers.GetNotifications)
				notificationsWithAuth.POST("/mark-as-read", handlers.MarkNotificationsAsRead)
			}
		}

		// 評價路由
		reviews := v1.Group("/reviews")
		{
			reviews.GET("/car/:id", handlers.GetCarReviews) // 公開
			reviewsWithAuth := reviews.Group("")
			reviewsWithAuth.Use(AuthMiddleware())
			{
				reviewsWithAuth.POST("", RoleMiddleware("renter"), handlers.CreateReview)
			}
		}

		// 收藏路由
		wishlist := v1.Group("/wishlist")
		{
			wishlistWithAuth := wishlist.Group("")
			wishlistWithAuth.Use(AuthMiddleware())
			{
				wishlistWithAuth.GET("", handlers.GetWishlist)
				wishlistWithAuth.POST("", handlers.AddToWishlist)
				wishlistWithAuth.DELETE("/:carId", handlers.RemoveFromWishlist)
			}
		}

		// 即時通知串流
		v1.GET("/ws", AuthMiddleware(), handlers.NotificationStream)
	}
}
