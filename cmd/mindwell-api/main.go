package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/mindwell-dev/mindwell/internal/config"
	"github.com/mindwell-dev/mindwell/internal/logger"
	"github.com/mindwell-dev/mindwell/internal/router"
	"github.com/mindwell-dev/mindwell/internal/setup"
)

func main() {
	var configFolder string
	flag.StringVar(&configFolder, "config_folder", "config", "path to folder with configs")
	flag.Parse()

	cfg := config.MustLoad(configFolder)
	logger.Initialize(cfg.Public.LogLevel, cfg.Public.LogJSON)

	deps, err := setup.SetupDependencies(cfg)
	if err != nil {
		logger.Log.Error("failed to set up dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Storage.Cleanup()

	r := router.New(deps)

	logger.Log.Info("server starting", "addr", cfg.Public.ListenAddr)
	if err := http.ListenAndServe(cfg.Public.ListenAddr, r); err != nil {
		logger.Log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
