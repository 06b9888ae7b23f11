package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hireloop/chatsync/internal/config"
	"github.com/hireloop/chatsync/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to config.toml (default ~/.chatsync/config.toml)")
	flag.Parse()

	path := *configFlag
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		path = filepath.Join(home, ".chatsync", "config.toml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config %s: %v\n", path, err)
		os.Exit(1)
	}

	app := fx.New(daemon.Module(cfg))
	app.Run()
}
