package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"campus_parking/internal/api/handler"
	"campus_parking/internal/api/middleware"
	"campus_parking/internal/domain"
	"campus_parking/internal/logging"
	"campus_parking/internal/metrics"
	"campus_parking/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Auth          *service.AuthService
	Bookings      *service.BookingService
	Sessions      *service.SessionService
	Subscriptions *service.SubscriptionService
	WSManager     *handler.WebSocketManager
	DB            Pinger
	AllowOrigins  []string
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinLogger())
	r.Use(metrics.GinMiddleware())
	r.Use(cors.New(corsConfig(d.AllowOrigins)))

	r.GET("/healthz", healthz(d.DB, d.WSManager))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMw := middleware.NewAuthMiddleware(d.Auth)
	staff := authMw.AuthorizeRole(domain.RoleAttendant, domain.RoleAdmin)

	authHandler := handler.NewAuthHandler(d.Auth)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	// Trình duyệt không gửi được header khi mở websocket, nhận token qua query
	r.GET("/ws", authMw.AuthenticateQuery(), handler.NewWebSocketHandler(d.WSManager).HandleWebSocket)

	protected := r.Group("/")
	protected.Use(authMw.Authenticate())
	{
		bookingH := handler.NewBookingHandler(d.Bookings)
		protected.POST("/book", authMw.AuthorizeRole(domain.RoleUser), bookingH.Book)
		protected.GET("/reservations/current", bookingH.CurrentReservation)
		protected.GET("/reservations/:reservationId/qr", bookingH.QRImage)
		protected.GET("/spots", bookingH.ListSpots)
		protected.GET("/sections/:sectionId/capacity", bookingH.SectionCapacity)

		sessionH := handler.NewSessionHandler(d.Sessions)
		protected.POST("/start-parking-session", staff, sessionH.StartSession)
		protected.POST("/end-parking-session", staff, sessionH.EndSessionByQR)
		protected.PUT("/end-session/:reservationId", sessionH.EndSessionByID)
		protected.PUT("/cancel-booking/:reservationId", sessionH.Cancel)
		statusRoutes := protected.Group("/parking-session-status")
		{
			statusRoutes.GET("/:reservationId", sessionH.Status)
			statusRoutes.GET("/status-qr/:qrPayload", sessionH.StatusByQR)
		}

		subH := handler.NewSubscriptionHandler(d.Subscriptions)
		protected.GET("/subscriptions", subH.ListSubscriptions)
		protected.GET("/penalties", subH.ListPenalties)
		protected.POST("/admin/subscriptions", authMw.AuthorizeRole(domain.RoleAdmin), subH.RecordPurchase)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func healthz(db Pinger, ws *handler.WebSocketManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		clients := 0
		if ws != nil {
			clients = ws.ClientCount()
		}
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error(), "websocket_clients": clients})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "websocket_clients": clients})
	}
}
