package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kontago/internal/clock"
	"github.com/smallbiznis/kontago/internal/config"
	"github.com/smallbiznis/kontago/internal/migration"
	"github.com/smallbiznis/kontago/internal/observability"
	"github.com/smallbiznis/kontago/internal/server"
	"github.com/smallbiznis/kontago/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
