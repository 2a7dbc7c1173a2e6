package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/matheus3301/multichat/internal/config"
	"github.com/matheus3301/multichat/internal/daemon"
	"github.com/matheus3301/multichat/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var timing config.Timing
	if cfg, err := config.Load(profile.ConfigPath()); err == nil {
		timing = cfg.Timing
	}

	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: profileName, Timing: timing}),
	)

	app.Run()
}
