package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mydeco-dev-team/xappy/api"
	"github.com/mydeco-dev-team/xappy/config"
	"github.com/mydeco-dev-team/xappy/internal/appconfig"
	"github.com/mydeco-dev-team/xappy/internal/engine"
	"github.com/mydeco-dev-team/xappy/internal/logger"
	"github.com/mydeco-dev-team/xappy/internal/persistence"
)

const schemaFile = "schema.gob"

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := appconfig.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
}

func serve(cfg appconfig.Config) error {
	log, err := logger.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	eng, err := engine.New(cfg.Storage.DataDir, log)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	schema, err := loadSchema(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	if cfg.Logging.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.NewAPI(schema, eng, log))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.Int("port", cfg.HTTP.Port),
			zap.String("data_dir", cfg.Storage.DataDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("server shutdown incomplete", zap.Error(err))
	}

	if err := saveSchema(cfg.Storage.DataDir, schema); err != nil {
		log.Error("schema save failed", zap.Error(err))
	}
	if err := eng.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}

func loadSchema(dataDir string) (*config.Schema, error) {
	schema := config.NewSchema()
	if dataDir == "" {
		return schema, nil
	}
	err := persistence.LoadGob(filepath.Join(dataDir, schemaFile), schema)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return schema, nil
}

func saveSchema(dataDir string, schema *config.Schema) error {
	if dataDir == "" {
		return nil
	}
	return persistence.SaveGob(filepath.Join(dataDir, schemaFile), schema)
}
