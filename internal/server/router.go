package server

import (
	"context"
	"net/http"
	"time"

	model "auction-house/internal/models"
	handler "auction-house/services/bidding/handler"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

// Login and registration are throttled per address regardless of config
const (
	authRateLimit = 1.0
	authRateBurst = 5
)

// AuthService is what the HTTP layer needs from the account service
type AuthService interface {
	handler.AuthServiceInterface
	Authenticator
}

// Services are the application services behind the routes
type Services struct {
	Bidding  handler.BiddingServiceInterface
	Auctions handler.AuctionServiceInterface
	Auth     AuthService
	Events   handler.EventSource
}

// Options tune the router. An empty UploadDir skips the static /uploads
// route and a zero BidRateLimit leaves bidding unthrottled.
type Options struct {
	UploadDir    string
	BidRateLimit float64
	BidRateBurst int
	KeepAlive    time.Duration
}

// SetupRouter configures all Gin routes for the application. Background
// work started for the routes stops when ctx is cancelled.
func SetupRouter(ctx context.Context, svc Services, opts Options) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(svc.Bidding)
	auctionHandler := handler.NewAuctionHandler(svc.Auctions)
	authHandler := handler.NewAuthHandler(svc.Auth)
	eventsHandler := handler.NewEventsHandler(svc.Events, svc.Auctions, opts.KeepAlive)

	requireAuth := AuthMiddleware(svc.Auth)
	sellerOnly := RequireRole(model.RoleSeller)

	router.GET("/health", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"time": time.Now().UTC().Format(time.RFC3339)}, "ok")
	})
	if opts.UploadDir != "" {
		router.Static("/uploads", opts.UploadDir)
	}

	api := router.Group("/api")

	authRoutes := api.Group("/auth", RateLimit(ctx, authRateLimit, authRateBurst, ByClientIP))
	{
		authRoutes.POST("/register", authHandler.RegisterHandler)
		authRoutes.POST("/login", authHandler.LoginHandler)
	}

	users := api.Group("/users", requireAuth)
	{
		users.GET("", RequireRole(model.RoleAdmin), authHandler.ListUsersHandler)
		users.GET("/profile", authHandler.GetProfileHandler)
		users.PUT("/profile", authHandler.UpdateProfileHandler)
		users.GET("/me/auctions", biddingHandler.GetMyAuctionsHandler)
		users.GET("/me/events", eventsHandler.UserEventsHandler)
	}

	auctions := api.Group("/auctions")
	{
		auctions.GET("", auctionHandler.ListAuctionsHandler)
		auctions.GET("/:id", auctionHandler.GetAuctionHandler)
		auctions.GET("/:id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:id/winning", biddingHandler.GetWinningBidHandler)
		auctions.GET("/:id/events", eventsHandler.AuctionEventsHandler)

		auctions.POST("", requireAuth, sellerOnly, auctionHandler.CreateAuctionHandler)
		auctions.PUT("/:id", requireAuth, sellerOnly, auctionHandler.UpdateAuctionHandler)
		auctions.DELETE("/:id", requireAuth, sellerOnly, auctionHandler.DeleteAuctionHandler)
		auctions.POST("/:id/images", requireAuth, sellerOnly, auctionHandler.UploadImagesHandler)

		auctions.POST("/:id/bid", requireAuth,
			RateLimit(ctx, opts.BidRateLimit, opts.BidRateBurst, ByUserOrIP),
			biddingHandler.PlaceBidHandler)
	}

	return router
}
