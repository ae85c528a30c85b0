package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/coursedesk/internal/audit/domain"
	"github.com/smallbiznis/coursedesk/internal/authorization"
	bulkdomain "github.com/smallbiznis/coursedesk/internal/bulkoperation/domain"
	"github.com/smallbiznis/coursedesk/internal/clock"
	"github.com/smallbiznis/coursedesk/internal/config"
	obsmiddleware "github.com/smallbiznis/coursedesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/coursedesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/coursedesk/internal/observability/tracing"
	"github.com/smallbiznis/coursedesk/internal/providers/pdf"
	"github.com/smallbiznis/coursedesk/internal/ratelimit"
	reportingdomain "github.com/smallbiznis/coursedesk/internal/reporting/domain"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	userdomain "github.com/smallbiznis/coursedesk/internal/user/domain"
	userstatusdomain "github.com/smallbiznis/coursedesk/internal/userstatus/domain"
	"github.com/smallbiznis/coursedesk/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.Middleware())
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", HeaderActorID, "X-Request-Id", correlation.HeaderName}
		corsConfig.ExposeHeaders = []string{"X-Request-Id", correlation.HeaderName}
		corsConfig.MaxAge = 12 * time.Hour
		r.Use(cors.New(corsConfig))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if httpMetrics != nil {
		r.GET("/metrics", gin.WrapH(httpMetrics.Handler()))
	}

	return r
}

func registerGin(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(cfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	log             *zap.Logger
	clock           clock.Clock
	users           userdomain.Directory
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	subscriptionSvc subscriptiondomain.Service
	bulkSvc         bulkdomain.Service
	userStatusSvc   userstatusdomain.Service
	reportingSvc    reportingdomain.Service
	pdfProvider     pdf.Provider
	bulkLimiter     *ratelimit.BulkLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Log             *zap.Logger
	Clock           clock.Clock
	Users           userdomain.Directory
	AuthzSvc        authorization.Service `optional:"true"`
	AuditSvc        auditdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	BulkSvc         bulkdomain.Service
	UserStatusSvc   userstatusdomain.Service
	ReportingSvc    reportingdomain.Service
	PDFProvider     pdf.Provider
	BulkLimiter     *ratelimit.BulkLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		log:             p.Log.Named("http.server"),
		clock:           p.Clock,
		users:           p.Users,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		subscriptionSvc: p.SubscriptionSvc,
		bulkSvc:         p.BulkSvc,
		userStatusSvc:   p.UserStatusSvc,
		reportingSvc:    p.ReportingSvc,
		pdfProvider:     p.PDFProvider,
		bulkLimiter:     p.BulkLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("", s.ActorRequired())

	subs := api.Group("/subscriptions")
	subs.GET("/overdue", s.authorize(authorization.ObjectReport, authorization.ActionView), s.ListOverdueSubscriptions)
	subs.GET("/active", s.authorize(authorization.ObjectReport, authorization.ActionView), s.ListActiveSubscriptions)

	subs.POST("", s.authorize(authorization.ObjectSubscription, authorization.ActionCreate), s.CreateSubscription)
	subs.GET("", s.authorize(authorization.ObjectSubscription, authorization.ActionView), s.ListSubscriptions)
	subs.GET("/:id", s.authorize(authorization.ObjectSubscription, authorization.ActionView), s.GetSubscription)
	subs.PUT("/:id", s.authorize(authorization.ObjectSubscription, authorization.ActionUpdate), s.UpdateSubscription)
	subs.DELETE("/:id", s.authorize(authorization.ObjectSubscription, authorization.ActionDelete), s.DeleteSubscription)
	subs.PATCH("/:id/mark-paid", s.authorize(authorization.ObjectSubscription, authorization.ActionMarkPaid), s.MarkSubscriptionPaid)
	subs.PATCH("/:id/pending-amount", s.authorize(authorization.ObjectSubscription, authorization.ActionOverride), s.SetPendingAmount)
	subs.GET("/:id/statement.pdf", s.authorize(authorization.ObjectPayment, authorization.ActionView), s.DownloadStatement)

	subs.POST("/:id/payment-history", s.authorize(authorization.ObjectPayment, authorization.ActionCreate), s.AddPayment)
	subs.GET("/:id/payment-history", s.authorize(authorization.ObjectPayment, authorization.ActionView), s.ListPaymentHistory)
	subs.PUT("/:id/payment-history/:entryId", s.authorize(authorization.ObjectPayment, authorization.ActionUpdate), s.EditPaymentEntry)
	subs.DELETE("/:id/payment-history/:entryId", s.authorize(authorization.ObjectPayment, authorization.ActionDelete), s.DeletePaymentEntry)

	api.GET("/stats", s.authorize(authorization.ObjectReport, authorization.ActionView), s.GetPaymentStats)
	api.PATCH("/bulk-update", s.authorize(authorization.ObjectBulk, authorization.ActionApply), s.limitBulk(), s.BulkUpdate)
	api.POST("/users/:id/subscription-status/recompute", s.authorize(authorization.ObjectUserStatus, authorization.ActionRecompute), s.RecomputeUserStatus)
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
