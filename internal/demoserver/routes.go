package demoserver

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"wallet-core/internal/demoserver/store"
)

// SetupRouter configures all routes. Paths mirror the remote auth service's
// published contract so pkg/authclient can be pointed at this server
// unchanged.
func SetupRouter(handler *Handler, st store.Store) *gin.Engine {
	router := gin.Default()

	// CORS configuration
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	config.AllowCredentials = true
	router.Use(cors.New(config))

	// Health check (no auth required)
	router.GET("/health", handler.HealthCheckHandler)

	// Identity challenge endpoints (no auth required)
	identity := router.Group("/identity")
	{
		identity.POST("/otp/request", handler.RequestOtpHandler)
		identity.POST("/otp/verify", handler.VerifyOtpHandler)
		identity.POST("/siwe/payload", handler.SiwePayloadHandler)
		identity.POST("/siwe/verify", handler.SiweVerifyHandler)
	}

	// Share custody endpoints (requires auth)
	wallet := router.Group("/wallet", RequireAuth(st))
	{
		wallet.GET("/user-details", handler.UserDetailsHandler)
		wallet.POST("/shares", handler.StoreSharesHandler)
		wallet.GET("/shares/recovery", handler.RecoverySharesHandler)
		wallet.GET("/shares/auth", handler.AuthShareHandler)
	}

	// Canned bundler RPC for local development (no auth required)
	router.POST("/rpc", handler.BundlerRPCHandler)

	return router
}
