package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/linkwatch/internal/api/handler"
	"github.com/timmy/linkwatch/internal/api/middleware"
	"github.com/timmy/linkwatch/internal/config"
	"github.com/timmy/linkwatch/internal/logger"
	"github.com/timmy/linkwatch/internal/repository"
	"github.com/timmy/linkwatch/internal/service"
	"gorm.io/gorm"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	DB          *gorm.DB
	Accounts    *repository.AccountRepository
	Items       *repository.ItemRepository
	Exporter    *service.Exporter
	Queue       handler.OperationQueue
	Scheduler   SchedulerService
	Credentials handler.CredentialStats
	Sessions    handler.SessionCounter
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
	Logger   *logger.Logger
}

// SchedulerService is what the router needs from the scheduler.
type SchedulerService interface {
	handler.SchedulerController
	handler.RunningReporter
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(deps Dependencies, cfg config.ServerConfig, schedulerEnabled bool) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(deps.DB, deps.Scheduler, deps.Sessions)
	recentHandler := handler.NewRecentHandler(deps.Queue)
	accountHandler := handler.NewAccountHandler(deps.Accounts, deps.Items, deps.Exporter)
	schedulerHandler := handler.NewSchedulerHandler(deps.Scheduler, schedulerEnabled)
	credentialHandler := handler.NewCredentialHandler(deps.Credentials)

	r.GET("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Serves both /get_recent/<identifier> and /get_recent/results/<operation_id>.
	r.GET("/get_recent/*identifier", recentHandler.GetRecent)

	api := r.Group("/api")
	{
		api.GET("/accounts", accountHandler.ListAccounts)
		api.POST("/accounts", accountHandler.AddAccount)
		api.POST("/accounts/bulk", accountHandler.AddAccountsBulk)
		api.DELETE("/accounts/:id", accountHandler.DeleteAccount)
		api.POST("/accounts/:id/toggle", accountHandler.ToggleAccount)
		api.GET("/accounts/:id/links", accountHandler.ListLinks)
		api.GET("/accounts/:id/links/export", accountHandler.ExportLinks)
		api.POST("/accounts/:id/links/archive", accountHandler.ArchiveLinks)

		api.GET("/scheduler/status", schedulerHandler.Status)
		api.POST("/scheduler/start", schedulerHandler.Start)
		api.POST("/scheduler/stop", schedulerHandler.Stop)

		api.GET("/credentials/stats", credentialHandler.Stats)
	}

	return r
}
