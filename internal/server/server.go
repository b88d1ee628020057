package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"coachbook/internal/auth"
	"coachbook/internal/booking"
	"coachbook/internal/config"
	"coachbook/internal/gateway"
	"coachbook/internal/notify"
	"coachbook/internal/payment"
	"coachbook/internal/service"
	"coachbook/internal/slot"
	"coachbook/internal/user"
	"coachbook/internal/wallet"
	"coachbook/internal/webhook"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, gw gateway.Gateway, publisher notify.Publisher) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

	policy := booking.PricingPolicy{
		DepositPercent:     cfg.DepositPercent,
		PlatformFeePercent: cfg.PlatformFeePercent,
		PremiumFeePercent:  cfg.PremiumFeePercent,
		TaxPercent:         cfg.TaxPercent,
		WalletCreditTTL:    cfg.WalletCreditTTL,
		Currency:           cfg.Currency,
	}

	slotRepo := slot.NewRepository(db)
	offeringRepo := service.NewRepository(db)
	userRepo := user.NewRepository(db)
	walletRepo := wallet.NewRepository(db)
	bookingRepo := booking.NewRepository(db, slotRepo)
	paymentRepo := payment.NewRepository(db)

	bookingSvc := booking.NewService(bookingRepo, slotRepo, offeringRepo, userRepo, walletRepo,
		payment.NewSource(paymentRepo), gw, publisher, policy)
	paymentSvc := payment.NewService(paymentRepo, bookingRepo, walletRepo, gw, publisher, policy)
	reconciler := webhook.NewReconciler(gw, paymentSvc, bookingRepo, publisher)

	userHandler := user.NewHandler(db, cfg.JWTSecret)
	offeringHandler := service.NewHandler(db)
	slotHandler := slot.NewHandler(db)
	walletHandler := wallet.NewHandler(db, cfg.Currency)
	bookingHandler := booking.NewHandler(bookingSvc)
	paymentHandler := payment.NewHandler(paymentSvc)
	webhookHandler := webhook.NewHandler(reconciler)

	public := router.Group("/auth")
	{
		public.POST("/register", userHandler.Register)
		public.POST("/login", userHandler.Login)
	}

	// The gateway signs its requests; they carry no bearer token.
	router.POST("/payments/webhook", webhookHandler.Receive)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	creatorOnly := auth.RequireRole(auth.RoleCreator)

	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", userHandler.GetMe)

		protected.GET("/services", offeringHandler.List)
		protected.GET("/services/:serviceID", offeringHandler.Get)
		protected.POST("/services", creatorOnly, offeringHandler.Create)
		protected.DELETE("/services/:serviceID", creatorOnly, offeringHandler.Deactivate)

		protected.POST("/slots", creatorOnly, slotHandler.Reserve)
		protected.GET("/creators/:creatorID/slots", slotHandler.ListByCreator)
		protected.POST("/slots/:slotID/release", creatorOnly, slotHandler.Release)

		protected.POST("/bookings", bookingHandler.Create)
		protected.GET("/bookings", bookingHandler.ListMine)
		protected.GET("/bookings/:id", bookingHandler.Get)
		protected.DELETE("/bookings/:id", bookingHandler.SoftDelete)
		protected.POST("/bookings/:id/accept", bookingHandler.Accept)
		protected.POST("/bookings/:id/decline", bookingHandler.Decline)
		protected.POST("/bookings/:id/start", bookingHandler.Start)
		protected.POST("/bookings/:id/complete", bookingHandler.Complete)
		protected.POST("/bookings/:id/cancel", bookingHandler.Cancel)
		protected.POST("/bookings/:id/segments", bookingHandler.AddSegment)
		protected.DELETE("/bookings/:id/segments/:segmentID", bookingHandler.RemoveSegment)

		protected.POST("/payments/intent", paymentHandler.CreateIntent)
		protected.POST("/payments/pay-remaining/:bookingID", paymentHandler.PayRemaining)
		protected.GET("/payments/status/:bookingID", paymentHandler.Status)
		protected.GET("/payments", paymentHandler.ListMine)

		protected.GET("/wallet/balance", walletHandler.GetBalance)
		protected.GET("/wallet/entries", walletHandler.ListEntries)
		protected.POST("/wallet/topup", paymentHandler.TopUp)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/bookings/:id/restore", bookingHandler.Restore)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{Addr: ":" + port, Handler: s.router}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
