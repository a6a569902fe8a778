package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cvbuilder/internal/api/middleware"
	"cvbuilder/internal/auth"
	"cvbuilder/internal/service"
	"cvbuilder/internal/subscription"
)

// Dependencies 汇总路由需要的服务。
type Dependencies struct {
	DB            *gorm.DB
	Auth          *auth.AuthService
	Sessions      Sessions
	CVs           *service.CVService
	Subscriptions *subscription.Store
	Assets        AssetStorage
	Scanner       Scanner
	Subscriber    Subscriber
	Logger        *slog.Logger

	AllowedOrigins        []string
	LoginRateLimitPerHour int
	CookieDomain          string
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	authHandler := NewAuthHandler(deps.DB, deps.Auth, deps.Sessions, deps.Logger, deps.LoginRateLimitPerHour, deps.CookieDomain)
	cvHandler := NewCVHandler(deps.CVs)
	subHandler := NewSubscriptionHandler(deps.DB, deps.CVs, deps.Subscriptions, deps.Logger)
	templateHandler := NewTemplateHandler(deps.Logger)
	assetHandler := NewAssetHandler(deps.Assets, deps.Scanner, deps.Logger)
	wsHandler := NewWsHandler(deps.Subscriber, deps.Auth, deps.Logger, deps.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(deps.Auth)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)
		v1.GET("/templates", templateHandler.List)
		v1.GET("/templates/:id/preview", templateHandler.Preview)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
		}

		// 改密接口不经过改密闸门
		v1.POST("/user/change-password", authMiddleware, authHandler.ChangePassword)

		user := v1.Group("")
		user.Use(authMiddleware, passwordGate)
		{
			user.GET("/user/subscription", subHandler.Current)
			user.GET("/user/subscription/history", subHandler.History)

			user.GET("/cv", cvHandler.List)
			user.GET("/cv/new", cvHandler.New)
			user.POST("/cv", cvHandler.Create)
			user.POST("/cv/export/html", cvHandler.ExportHTML)
			user.GET("/cv/:id", cvHandler.Get)
			user.PUT("/cv/:id", cvHandler.Update)
			user.DELETE("/cv/:id", cvHandler.Delete)
			user.POST("/cv/:id/duplicate", cvHandler.Duplicate)
			user.GET("/cv/:id/access", cvHandler.Access)
			user.POST("/cv/:id/pdf", cvHandler.RequestPDF)
			user.GET("/cv/:id/download-link", cvHandler.DownloadLink)

			user.GET("/assets", assetHandler.ListPhotos)
			user.POST("/assets/photo", assetHandler.UploadPhoto)
			user.GET("/assets/view", assetHandler.GetAssetURL)
			user.DELETE("/assets", assetHandler.DeletePhoto)
		}

		admin := v1.Group("/admin")
		admin.Use(authMiddleware, passwordGate, middleware.RequireAdmin())
		{
			admin.GET("/users", subHandler.ListUsers)
			admin.PATCH("/subscriptions", subHandler.Grant)
		}
	}
}
