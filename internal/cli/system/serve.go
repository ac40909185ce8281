package system

import (
	"fmt"

	"github.com/julianstephens/habittrack/internal/api"
	"github.com/julianstephens/habittrack/internal/cli"
	"github.com/julianstephens/habittrack/internal/logger"
)

type ServeCmd struct {
	Addr string `help:"Listen address, overrides server.addr." placeholder:"HOST:PORT"`
}

func (cmd *ServeCmd) Run(ctx *cli.Context) error {
	svc, err := ctx.Tracker()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer ctx.Close()

	cfg := ctx.Config
	addr := cfg.Server.Addr
	if cmd.Addr != "" {
		addr = cmd.Addr
	}

	a := api.New(svc, cfg.Server.CORSOrigins, cfg.Server.RequestTimeout)
	a.Ping = ctx.Store().Ping

	logger.Info("Starting habittrack server",
		"addr", addr,
		"driver", cfg.Database.Driver,
		"timezone", svc.Engine().Location().String(),
	)
	return a.Serve(ctx.Ctx(), addr, cfg.Server.ShutdownGrace)
}
