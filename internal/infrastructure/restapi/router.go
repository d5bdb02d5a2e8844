package restapi

import (
	"net/http"
	"strings"
	"time"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/infrastructure/configloader"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// swaggerSpecRoute is where the raw OpenAPI document is served when Swagger UI is enabled.
const swaggerSpecRoute = "/docs/swagger.yaml"

// Services bundles the engines the HTTP API exposes.
type Services struct {
	Wallet    port.WalletManager
	Token     port.TokenService
	Portfolio port.PortfolioService
	Networks  port.NetworkRegistry
}

// SetupRouter настраивает и возвращает экземпляр Gin роутера.
func SetupRouter(svc Services, swagger configloader.SwaggerConfig, l port.Logger) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))
	router.Use(gin.Recovery())
	router.Use(requestLogger(l))

	walletHandler := NewWalletHandler(svc.Wallet, l)
	tokenHandler := NewTokenHandler(svc.Token, l)
	portfolioHandler := NewPortfolioHandler(svc.Portfolio, l)
	networkHandler := NewNetworkHandler(svc.Networks, svc.Wallet)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/wallet", walletHandler.GetWalletHandler)
		v1.POST("/wallet/connect", walletHandler.ConnectHandler)
		v1.POST("/wallet/disconnect", walletHandler.DisconnectHandler)
		v1.POST("/wallet/refresh", walletHandler.RefreshHandler)
		v1.POST("/wallet/network/switch", walletHandler.SwitchNetworkHandler)
		v1.POST("/wallet/network/add", walletHandler.AddNetworkHandler)

		v1.GET("/token/balance", tokenHandler.GetBalanceHandler)
		v1.GET("/token/claim-status", tokenHandler.GetClaimStatusHandler)
		v1.POST("/token/claim", tokenHandler.ClaimHandler)
		v1.GET("/token/tx/:hash", tokenHandler.GetTransactionStatusHandler)
		v1.POST("/token/watch", tokenHandler.WatchTokenHandler)
		v1.GET("/token/capabilities", tokenHandler.GetCapabilitiesHandler)

		v1.GET("/portfolio", portfolioHandler.GetPortfolioHandler)

		v1.GET("/networks", networkHandler.ListNetworksHandler)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if swagger.Enabled {
		router.StaticFile(swaggerSpecRoute, swagger.Spec)
		uiRoute := strings.TrimSuffix(swagger.Path, "/") + "/*any"
		router.GET(uiRoute, ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(swaggerSpecRoute)))
		l.Info("Swagger UI enabled", "path", swagger.Path, "spec", swagger.Spec)
	}

	return router
}

// requestLogger пишет каждый запрос в debug-лог.
func requestLogger(l port.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if status >= http.StatusInternalServerError {
			l.Error("HTTP request failed", args...)
			return
		}
		l.Debug("HTTP request", args...)
	}
}

// wantsRefresh reads the ?refresh=true query flag.
func wantsRefresh(c *gin.Context) bool {
	v := strings.ToLower(c.Query("refresh"))
	return v == "true" || v == "1"
}
