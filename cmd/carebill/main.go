package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/migration"
	"github.com/smallbiznis/carebill/internal/observability"
	"github.com/smallbiznis/carebill/internal/server"
	"github.com/smallbiznis/carebill/pkg/db"
	"go.uber.org/fx"
)

// Node 1 is the API server; carebillctl uses its own node so ids never collide.
const snowflakeNode = 1

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and the billing domains behind it
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(snowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}
