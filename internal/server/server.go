package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/carebill/internal/audit"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/charge"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/encounter"
	"github.com/smallbiznis/carebill/internal/gateway"
	gatewaydomain "github.com/smallbiznis/carebill/internal/gateway/domain"
	"github.com/smallbiznis/carebill/internal/ledger"
	ledgerdomain "github.com/smallbiznis/carebill/internal/ledger/domain"
	"github.com/smallbiznis/carebill/internal/observability"
	obsmiddleware "github.com/smallbiznis/carebill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/carebill/internal/observability/tracing"
	"github.com/smallbiznis/carebill/internal/providers"
	"github.com/smallbiznis/carebill/internal/ratelimit"
	"github.com/smallbiznis/carebill/internal/receipt"
	receiptdomain "github.com/smallbiznis/carebill/internal/receipt/domain"
	"github.com/smallbiznis/carebill/internal/reconcile"
	reconciledomain "github.com/smallbiznis/carebill/internal/reconcile/domain"
	"github.com/smallbiznis/carebill/internal/settlement"
	settlementdomain "github.com/smallbiznis/carebill/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	encounter.Module,
	charge.Module,
	ledger.Module,
	reconcile.Module,
	gateway.Module,
	settlement.Module,
	providers.Module,
	receipt.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
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
					panic(err)
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
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	billSvc       reconciledomain.Service
	gatewaySvc    gatewaydomain.Service
	settlementSvc settlementdomain.Service
	ledgerSvc     ledgerdomain.Service
	receiptSvc    receiptdomain.Service
	limiter       paymentLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	BillSvc       reconciledomain.Service
	GatewaySvc    gatewaydomain.Service
	SettlementSvc settlementdomain.Service
	LedgerSvc     ledgerdomain.Service
	ReceiptSvc    receiptdomain.Service
	Limiter       *ratelimit.PaymentLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		billSvc:       p.BillSvc,
		gatewaySvc:    p.GatewaySvc,
		settlementSvc: p.SettlementSvc,
		ledgerSvc:     p.LedgerSvc,
		receiptSvc:    p.ReceiptSvc,
	}
	if p.Limiter != nil {
		svc.limiter = p.Limiter
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Bills --------
	api.GET("/patients/:id/bill", s.CallerRequired(), s.GetPatientBill)

	// -------- Payments --------
	payments := api.Group("/payments")
	{
		// Gateway callbacks are authenticated by signature, not by caller.
		payments.POST("/callback", s.CallbackRateLimit(), s.PaymentCallback)

		payments.POST("/orders", s.CallerRequired(), s.OrderRateLimit(), s.CreatePaymentOrder)
		payments.POST("/manual", s.CallerRequired(), s.RecordManualPayment)
		payments.GET("", s.CallerRequired(), s.ListPayments)
		payments.GET("/:id", s.CallerRequired(), s.GetPayment)
		payments.GET("/:id/receipt", s.CallerRequired(), s.DownloadReceipt)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
