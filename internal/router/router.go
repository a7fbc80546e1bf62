package router

import (
	"context"
	"time"

	"retailpos/internal/config"
	"retailpos/internal/handler"
	"retailpos/internal/infra"
	"retailpos/internal/metrics"
	"retailpos/internal/middleware"
	"retailpos/internal/repository"
	"retailpos/internal/service"
	"retailpos/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the long-lived resources built by cmd/server.
type Deps struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Metrics     *metrics.Metrics
	Dispatcher  *worker.Dispatcher
	SMTPBreaker *infra.CircuitBreaker
}

const (
	roleAdmin      = "administrador"
	roleSupervisor = "supervisor"
	roleCashier    = "cajero"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(deps.Metrics.GinMiddleware())
	r.Use(middleware.RateLimiter(deps.Redis, cfg.RateLimitPerMin, time.Minute))

	// ── Repositories ─────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(deps.DB)
	productRepo := repository.NewProductRepository(deps.DB)
	paymentMethodRepo := repository.NewPaymentMethodRepository(deps.DB)
	inventoryRepo := repository.NewInventoryRepository(deps.DB)
	cashRepo := repository.NewCashRepository(deps.DB)
	saleRepo := repository.NewSaleRepository(deps.DB)

	// ── Services ─────────────────────────────────────────────────────────────
	authSvc := service.NewAuthService(userRepo, cfg)
	inventorySvc := service.NewInventoryService(inventoryRepo, productRepo, deps.Metrics)
	cashSvc := service.NewCashService(cashRepo, paymentMethodRepo, cfg.DefaultPaymentMethod, deps.Metrics)
	saleSvc := service.NewSaleService(saleRepo, productRepo, inventorySvc, cashSvc, deps.Dispatcher, deps.Metrics, cfg.SaleNumberPrefix)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	cashH := handler.NewCashHandler(cashSvc)
	salesH := handler.NewSalesHandler(saleSvc)
	inventoryH := handler.NewInventoryHandler(inventorySvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(dbPinger(deps.DB), redisPinger(deps.Redis), deps.SMTPBreaker))
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Auth (public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(deps.Redis), authH.Login)
		auth.POST("/refresh", authH.Refresh)
	}

	// Protected routes. Handlers run under the request deadline so a stuck
	// lock wait comes back as 503 instead of hanging the connection.
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW, middleware.Timeout(cfg.RequestTimeout))
	anyRole := middleware.RequireRole(roleCashier, roleSupervisor, roleAdmin)
	managers := middleware.RequireRole(roleSupervisor, roleAdmin)
	{
		v1.GET("/metodos-pago", anyRole, cashH.ListPaymentMethods)

		caja := v1.Group("/caja/sesiones", anyRole)
		{
			caja.POST("", cashH.OpenSession)
			caja.GET("", cashH.ListSessions)
			caja.GET("/activa", cashH.ActiveSession)
			caja.GET("/:id", cashH.GetSession)
			caja.POST("/:id/cerrar", cashH.CloseSession)
			caja.POST("/:id/transacciones", cashH.RecordTransaction)
			caja.GET("/:id/transacciones", cashH.ListTransactions)
			caja.POST("/:id/arqueos", cashH.RecordCount)
		}
		v1.GET("/cajas/:id/sesion-abierta", anyRole, cashH.RegisterOpenSession)

		ventas := v1.Group("/ventas", anyRole)
		{
			ventas.POST("", salesH.CreateSale)
			ventas.GET("", salesH.ListSales)
			ventas.GET("/:id", salesH.GetSale)
			ventas.POST("/:id/cancelar", middleware.RequireRole(roleAdmin), salesH.CancelSale)
		}

		inv := v1.Group("/inventario")
		{
			inv.GET("/alertas", managers, inventoryH.LowStockAlerts)
			inv.GET("/movimientos", managers, inventoryH.ListMovements)
			inv.POST("/ajustes", managers, inventoryH.Adjust)
			inv.POST("/entradas", managers, inventoryH.Receive)
			inv.GET("/:producto_id", anyRole, inventoryH.GetStock)
		}
	}

	// Swagger UI, outside production only
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}

func dbPinger(db *gorm.DB) handler.Pinger {
	if db == nil {
		return nil
	}
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func redisPinger(rdb *redis.Client) handler.Pinger {
	if rdb == nil {
		return nil
	}
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}
