package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/blogify/cmd/cli/internal/commands"
	"github.com/wolfeidau/blogify/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Login     commands.LoginCmd  `cmd:"" help:"Log in with email and password"`
		Logout    commands.LogoutCmd `cmd:"" help:"Remove the stored session"`
		Whoami    commands.WhoamiCmd `cmd:"" help:"Show the logged in user"`
		Signup    commands.SignupCmd `cmd:"" help:"Create an account"`
		Server    string             `help:"Blog server URL" env:"BLOGIFY_SERVER_URL" default:"https://localhost:8443"`
		Timeout   time.Duration      `help:"HTTP request timeout" default:"30s"`
		ConfigDir string             `help:"Directory holding the session file (default: ~/.blogify/)" env:"BLOGIFY_CONFIG_DIR"`
		CacheDir  string             `help:"Directory for the HTTP response cache, in memory when empty" env:"BLOGIFY_CACHE_DIR"`
		Debug     bool               `help:"Enable debug mode."`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("blogify"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)
	if !cli.Debug {
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	}

	err := cmd.Run(&commands.Globals{
		Debug:     cli.Debug,
		Version:   version,
		Server:    cli.Server,
		Timeout:   cli.Timeout,
		ConfigDir: cli.ConfigDir,
		CacheDir:  cli.CacheDir,
	})
	cmd.FatalIfErrorf(err)
}
