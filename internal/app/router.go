package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/uc-timetable-api/api/swagger"
	"github.com/noah-isme/uc-timetable-api/internal/handler"
	"github.com/noah-isme/uc-timetable-api/internal/middleware"
	"github.com/noah-isme/uc-timetable-api/internal/models"
	"github.com/noah-isme/uc-timetable-api/internal/service"
	"github.com/noah-isme/uc-timetable-api/pkg/config"
	"github.com/noah-isme/uc-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uc-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uc-timetable-api/pkg/middleware/requestid"
)

// routerDeps carries the services behind the routes. exports is nil when
// exports are disabled.
type routerDeps struct {
	auth      middleware.TokenValidator
	metrics   *service.MetricsService
	timetable *service.TimetableService
	exports   *service.ExportService
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(deps.metrics, deps.timetable)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	secured := api.Group("")
	secured.Use(middleware.JWT(deps.auth))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	adminOrSelf := middleware.RBAC(string(models.RoleAdmin), middleware.RoleSelf)

	timetable := handler.NewTimetableHandler(deps.timetable)
	secured.GET("/students/:id", adminOrSelf, timetable.Student)
	secured.GET("/students/:id/schedule", adminOrSelf, timetable.StudentSchedule)
	secured.GET("/ucs/:uc/sections", timetable.SectionsOf)
	secured.GET("/ucs/:uc/schedule", timetable.UCSchedule)
	secured.GET("/ucs/:uc/students", timetable.UCStudents)
	secured.GET("/sections/:uc/:section", timetable.Section)
	secured.GET("/sections/:uc/:section/students", timetable.Roster)
	secured.GET("/section-codes/:section/schedule", timetable.SectionCodeSchedule)

	requests := handler.NewChangeRequestHandler(deps.timetable)
	secured.POST("/change-requests", requests.Submit)
	secured.GET("/change-requests", requests.List)
	secured.GET("/change-requests/:id", requests.Get)
	secured.POST("/change-requests/process", adminOnly, requests.Process)

	admin := handler.NewAdminHandler(deps.timetable)
	secured.POST("/admin/timetable/save", adminOnly, admin.Save)
	secured.POST("/admin/timetable/reload", adminOnly, admin.Reload)

	if deps.exports != nil {
		exports := handler.NewExportHandler(deps.exports)
		secured.POST("/exports", exports.Create)
		secured.GET("/export-jobs/:id", exports.Job)
		// Downloads are authorised by the signed token alone.
		api.GET("/exports/:token", exports.Download)
	}

	return r
}
