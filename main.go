package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/richardwooding/photo-search/cmd"
	"github.com/richardwooding/photo-search/model"
	"github.com/richardwooding/photo-search/version"
)

// CLI is the command line of photo-search.
type CLI struct {
	model.Globals

	Search   cmd.SearchCmd   `cmd:"" help:"Search photos once and print the results."`
	Watch    cmd.WatchCmd    `cmd:"" help:"Search as terms arrive on stdin, one per line, and print each state change."`
	Download cmd.DownloadCmd `cmd:"" help:"Search photos and save their thumbnails to a directory."`
	Serve    cmd.ServeCmd    `cmd:"" help:"Run the MCP server."`
}

func newParser(cli *CLI, ctx context.Context, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("photo-search"),
		kong.Description("Search the public photo feed from the command line or over MCP."),
		kong.UsageOnError(),
		kong.Vars{"version": version.GetFullVersion()},
		kong.BindTo(ctx, (*context.Context)(nil)),
	}, options...)
	return kong.New(cli, options...)
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: cannot load .env: %v\n", err)
	}
}

func main() {
	loadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	parser, err := newParser(&cli, ctx)
	if err != nil {
		panic(err)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	err = kctx.Run(&cli.Globals)
	kctx.FatalIfErrorf(err)
}
