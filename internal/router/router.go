package router // package router defines how HTTP routes are registered for the API

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/seat-reservation/internal/config"
	"github.com/iliyamo/seat-reservation/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/seat-reservation/internal/middleware" // import middleware for JWT authentication and role enforcement
	"github.com/iliyamo/seat-reservation/internal/model"
)

// Deps carries everything the routes need.  Redis and Sweeper may be nil.
type Deps struct {
	Cfg      config.Config
	Log      *slog.Logger
	Auth     *handler.AuthHandler
	Rooms    *handler.RoomHandler
	Bookings *handler.BookingHandler
	Admin    *handler.AdminHandler
	Sweeper  handler.SweepStatusReporter
	Redis    *redis.Client
}

// New builds the Echo instance with the shared middleware and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	if d.Log != nil {
		e.Use(requestLogger(d.Log))
	}

	// Rate limiting and caching stay off unless a Redis client is present.
	limit, cache := echo.MiddlewareFunc(noop), echo.MiddlewareFunc(noop)
	if d.Redis != nil {
		limit = middleware.NewTokenBucket(d.Cfg.RateLimit, d.Redis)
		cache = middleware.NewRedisCache(d.Cfg.Cache, d.Redis)
		if d.Rooms != nil && d.Cfg.Cache.Enabled {
			rdb, prefix, log := d.Redis, d.Cfg.Cache.Prefix, d.Log
			d.Rooms.OnCatalogChange = func(ctx context.Context) {
				if err := middleware.PurgeCache(ctx, rdb, prefix); err != nil && log != nil {
					log.Warn("purge response cache", "err", err)
				}
			}
		}
	}

	RegisterRoutes(e, d.Sweeper)
	RegisterAuth(e, d.Auth, d.Cfg.JWTSecret)
	RegisterPublic(e, d.Rooms, cache)
	RegisterMember(e, d.Bookings, d.Cfg.JWTSecret, limit)
	RegisterAdmin(e, d.Rooms, d.Admin, d.Cfg.JWTSecret)
	return e
}

func noop(next echo.HandlerFunc) echo.HandlerFunc { return next }

// RegisterRoutes registers non-authenticated operational routes.
func RegisterRoutes(e *echo.Echo, sweeper handler.SweepStatusReporter) {
	e.GET("/healthz", handler.Health(sweeper))
}

// RegisterAuth registers the session endpoints under /v1/auth and the
// protected profile endpoint /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Issues an access token and keeps the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts a refresh token in the body or a bearer token.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleMember, model.RoleAdmin))
	auth.GET("/me", a.Me)
}

// RegisterPublic registers the unauthenticated room catalogue.  Room
// listings go through the response cache; availability never does.
func RegisterPublic(e *echo.Echo, r *handler.RoomHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/rooms", r.ListRooms, cache)
	e.GET("/v1/rooms/:id", r.GetRoom, cache)
	e.GET("/v1/seats/:id/availability", r.SeatAvailability)
}

// RegisterMember registers booking endpoints for authenticated members.
// Writes are rate limited per member and route.
func RegisterMember(e *echo.Echo, b *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleMember, model.RoleAdmin),
	)
	g.POST("/bookings", b.CreateBooking, limit)
	g.GET("/bookings/:id", b.GetBooking)
	g.POST("/bookings/:id/cancel", b.CancelBooking, limit)
	g.POST("/bookings/:id/check-in", b.CheckIn, limit)
	g.POST("/bookings/:id/check-out", b.CheckOut, limit)
	g.GET("/me/bookings", b.MyBookings)
	g.GET("/me/violations", b.MyViolations)
}

// RegisterAdmin registers administrator endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, r *handler.RoomHandler, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/rooms", r.CreateRoom)
	g.POST("/members/:id/violations", a.RecordViolation)
	g.GET("/members/:id/violations", a.MemberViolations)
	g.GET("/members/:id/bookings", a.MemberBookings)
}

// requestLogger writes one slog line per request.
func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				log.Error("request", append(attrs, "err", v.Error)...)
				return nil
			}
			log.Info("request", attrs...)
			return nil
		},
	})
}
