package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/arthurgc/graceline/internal/config"
	"github.com/arthurgc/graceline/internal/daemon"
	"github.com/arthurgc/graceline/internal/home"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.graceline/config.toml)")
	flag.Parse()

	path := *configFlag
	if path == "" {
		path = home.ConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg}),
	)

	app.Run()
}
