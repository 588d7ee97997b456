package cmd

import (
	"context"
	"time"

	"github.com/richardwooding/photo-search/mcpserver"
	"github.com/richardwooding/photo-search/model"
)

// ServeCmd runs the MCP server.
type ServeCmd struct {
	Transport       string        `name:"transport" default:"stdio" enum:"stdio,streamable-http" help:"Transport to use for the MCP server."`
	Addr            string        `name:"addr" default:"localhost:8080" help:"Listen address for the streamable-http transport."`
	ShutdownTimeout time.Duration `name:"shutdown-timeout" default:"5s" help:"Grace period for open connections on shutdown."`
	Parallelism     int           `name:"parallelism" default:"4" help:"Concurrent thumbnail downloads."`
}

func (c *ServeCmd) Run(globals *model.Globals, ctx context.Context) error {
	transport, err := model.ParseTransport(c.Transport)
	if err != nil {
		return err
	}
	e, err := newEnv(globals)
	if err != nil {
		return err
	}
	defer e.close()

	downloader, err := e.newDownloader(globals, c.Parallelism)
	if err != nil {
		return err
	}

	server, err := mcpserver.NewServer(mcpserver.Config{
		Transport:       transport,
		Searcher:        e.fetcher,
		Thumbnails:      downloader,
		Addr:            c.Addr,
		ShutdownTimeout: c.ShutdownTimeout,
		Logger:          model.ComponentLogger(e.logger, "mcp"),
	})
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
