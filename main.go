package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/krau/lenstagger/config"
	"github.com/krau/lenstagger/model"
	"github.com/krau/lenstagger/onnx"
	"github.com/krau/lenstagger/pipeline"
	"github.com/krau/lenstagger/queue"
	"github.com/krau/lenstagger/server"
	"github.com/krau/lenstagger/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	logger := slog.Default()
	logger.Info("Starting LensTagger")

	ort.SetSharedLibraryPath(onnx.LibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("Failed to initialize ONNX Runtime environment", slog.String("error", err.Error()))
		return
	}
	defer ort.DestroyEnvironment()

	st, err := store.Open(config.C().DBPath)
	if err != nil {
		logger.Error("Failed to open store", slog.String("error", err.Error()))
		return
	}
	defer st.Close()

	registry := model.NewRegistry(logger)
	if err := registry.Load(ctx); err != nil {
		logger.Error("Failed to load models", slog.String("error", err.Error()))
		return
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.C().RedisAddr,
		Password: config.C().RedisPassword,
		DB:       config.C().RedisDB,
	})
	defer rdb.Close()

	dispatcher := queue.NewDispatcher(rdb, logger)
	defer dispatcher.Close()

	pipe := pipeline.New(registry, st, logger)
	worker := queue.NewWorker(rdb, pipe, logger)
	if err := worker.Start(); err != nil {
		logger.Error("Failed to start worker", slog.String("error", err.Error()))
		return
	}
	defer worker.Shutdown()

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	server.New(st, dispatcher, registry, logger).Register(r)

	addr := config.C().Host + ":" + config.C().Port
	logger.Info("Listening on", slog.String("address", addr))
	go func() {
		if err := r.Run(addr); err != nil {
			logger.Error("Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
}
