package main

import (
	"github.com/quadrel/pecbridge/internal/claim"
	"github.com/quadrel/pecbridge/internal/config"
	"github.com/quadrel/pecbridge/internal/ingestion"
	"github.com/quadrel/pecbridge/internal/observability"
	"github.com/quadrel/pecbridge/internal/queue"
	"github.com/quadrel/pecbridge/internal/refdata"
	"github.com/quadrel/pecbridge/internal/selfcare"
	"github.com/quadrel/pecbridge/internal/server"
	"github.com/quadrel/pecbridge/internal/store"
	"github.com/quadrel/pecbridge/pkg/db"
	"github.com/quadrel/pecbridge/pkg/redisclient"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		redisclient.Module,

		store.Module,
		refdata.Module,
		selfcare.Module,
		ingestion.Module,
		claim.Module,
		queue.Module,
		fx.Provide(func(q *queue.Queue) server.Dispatcher { return q }),

		server.Module,
	)
	app.Run()
}
