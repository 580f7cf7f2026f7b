package db

import (
	"context"
	"time"

	"github.com/smallbiznis/kontago/internal/config"
	obslogger "github.com/smallbiznis/kontago/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprom "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	SQLLog    *obslogger.GormLoggerConfig `optional:"true"`
}

// New opens the configured database and attaches logging, tracing and pool metrics.
func New(p Params) (*gorm.DB, error) {
	lc, cfg := p.Lifecycle, p.Config
	log := p.Log.Named("db")

	sqlLog := obslogger.DefaultGormLoggerConfig()
	if p.SQLLog != nil {
		sqlLog = *p.SQLLog
	}

	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:      obslogger.NewGormLogger(log, sqlLog),
		NowFunc:     func() time.Time { return time.Now().UTC() },
		PrepareStmt: false,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.DBName))); err != nil {
		return nil, err
	}

	if err := conn.Use(gormprom.New(gormprom.Config{
		DBName:          cfg.DBName,
		RefreshInterval: 15,
		StartServer:     false,
	})); err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}

	maxOpen := cfg.DBMaxOpenConn
	if cfg.DBType == DialectSQLite {
		// sqlite allows a single writer; serialize at the pool instead of failing with SQLITE_BUSY.
		maxOpen = 1
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Second)

	log.Info("database connected",
		zap.String("type", cfg.DBType),
		zap.Int("max_open_conn", maxOpen),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return sqlDB.Close()
		},
	})

	return conn, nil
}
