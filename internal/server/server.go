package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/kontago/internal/config"
	"github.com/smallbiznis/kontago/internal/events"
	"github.com/smallbiznis/kontago/internal/inventory"
	"github.com/smallbiznis/kontago/internal/invoice"
	invoicedomain "github.com/smallbiznis/kontago/internal/invoice/domain"
	"github.com/smallbiznis/kontago/internal/observability"
	obsmiddleware "github.com/smallbiznis/kontago/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kontago/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kontago/internal/observability/tracing"
	"github.com/smallbiznis/kontago/internal/product"
	productdomain "github.com/smallbiznis/kontago/internal/product/domain"
	"github.com/smallbiznis/kontago/internal/supplier"
	supplierdomain "github.com/smallbiznis/kontago/internal/supplier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	events.Module,
	inventory.Module,
	product.Module,
	supplier.Module,
	invoice.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterAPIRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	productSvc  productdomain.Service
	invoiceSvc  invoicedomain.Service
	supplierSvc supplierdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	ProductSvc  productdomain.Service
	InvoiceSvc  invoicedomain.Service
	SupplierSvc supplierdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http"),
		productSvc:  p.ProductSvc,
		invoiceSvc:  p.InvoiceSvc,
		supplierSvc: p.SupplierSvc,
	}
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/products", s.ListProducts)
	api.POST("/products", s.CreateProduct)
	api.POST("/products/takeout", s.TakeoutProduct)
	api.GET("/products/:id", s.GetProductByID)
	api.DELETE("/products/:id", s.DeleteProduct)
	api.POST("/products/:id/add-unit", s.AddProductUnit)

	api.GET("/invoices", s.ListInvoices)
	api.POST("/invoices", s.RegisterInvoice)
	api.GET("/invoices/:id", s.GetInvoiceByID)

	api.GET("/suppliers", s.ListSuppliers)
	api.POST("/suppliers", s.CreateSupplier)
	api.DELETE("/suppliers/:id", s.DeleteSupplier)
}
