// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/class-seat-booking/internal/config"
	"github.com/iliyamo/class-seat-booking/internal/handler"
	"github.com/iliyamo/class-seat-booking/internal/middleware"
)

// Deps are the handlers and shared infrastructure the routes need.  Redis
// may be nil, in which case rate limiting and caching are disabled.
type Deps struct {
	Classes   *handler.ClassHandler
	Bookings  *handler.BookingHandler
	Admin     *handler.AdminHandler
	JWTSecret string
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     *redis.Client
	Logger    *zap.Logger
}

// RegisterRoutes registers every route of the API.
//
//	GET  /healthz                   liveness
//	POST /v1/admin/token            shared secret -> JWT (rate limited)
//	GET  /v1/classes[/:id]          catalogue with live seat counts (cached)
//	POST /v1/classes                create a class (ADMIN)
//	POST /v1/classes/:id/reserve    seat ledger (SERVICE, ADMIN)
//	POST /v1/classes/:id/release    seat ledger (SERVICE, ADMIN)
//	POST /v1/bookings               synchronous booking (rate limited)
//	POST /v1/bookings/async         asynchronous booking (rate limited)
//	GET  /v1/bookings/:id           booking status
//	GET  /v1/bookings?class_id=     bookings, newest first
func RegisterRoutes(e *echo.Echo, d Deps) {
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Logger)
	cache := middleware.NewRedisCache(d.Cache, d.Redis, d.Logger)
	purge := middleware.PurgeOnWrite(d.Cache, d.Redis, d.Logger)
	auth := middleware.JWTAuth(d.JWTSecret)

	e.GET("/healthz", handler.Health)

	v1 := e.Group("/v1")
	v1.POST("/admin/token", d.Admin.IssueToken, limit)

	v1.GET("/classes", d.Classes.ListClasses, cache)
	v1.GET("/classes/:id", d.Classes.GetClass, cache)
	v1.POST("/classes", d.Classes.CreateClass,
		auth, middleware.RequireRole(middleware.RoleAdmin), purge)

	ledger := []echo.MiddlewareFunc{auth, middleware.RequireRole(middleware.RoleService, middleware.RoleAdmin), purge}
	v1.POST("/classes/:id/reserve", d.Classes.Reserve, ledger...)
	v1.POST("/classes/:id/release", d.Classes.Release, ledger...)

	v1.POST("/bookings", d.Bookings.Book, limit, purge)
	// Seats change at settlement, which purges through service.Deps.SeatsChanged.
	v1.POST("/bookings/async", d.Bookings.BookAsync, limit)
	v1.GET("/bookings/:id", d.Bookings.GetBooking)
	v1.GET("/bookings", d.Bookings.ListBookings)
}
