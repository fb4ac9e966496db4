package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/MeKo-Tech/cue/internal/gallery"
	"github.com/MeKo-Tech/cue/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generation API over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().Int("max-concurrent-generations", runtime.NumCPU(), "Max concurrent generations (default: number of CPUs)")
	serveCmd.Flags().Duration("generation-timeout", 2*time.Minute, "Timeout per generation, including the wait for a free slot")
	serveCmd.Flags().String("default-size", "512x512", "Image size when a request names none")
	serveCmd.Flags().Int("max-dimension", 2048, "Largest accepted width or height")
	serveCmd.Flags().String("gallery", "", "SQLite gallery for requests with \"save\": true")
	serveCmd.Flags().String("session", "api", "Gallery session name for saved images")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.max_concurrent_generations", "max-concurrent-generations")
	mustBind("serve.generation_timeout", "generation-timeout")
	mustBind("serve.default_size", "default-size")
	mustBind("serve.max_dimension", "max-dimension")
	mustBind("serve.gallery", "gallery")
	mustBind("serve.session", "session")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	maxConc := viper.GetInt("serve.max_concurrent_generations")
	genTimeout := viper.GetDuration("serve.generation_timeout")
	maxDim := viper.GetInt("serve.max_dimension")
	galleryPath := viper.GetString("serve.gallery")

	size, err := parseSize(viper.GetString("serve.default_size"))
	if err != nil {
		return err
	}

	eng, err := newEngine(0)
	if err != nil {
		return err
	}

	cfg := server.Config{
		DefaultSize:   size,
		MaxDimension:  maxDim,
		MaxConcurrent: maxConc,
		Timeout:       genTimeout,
		Session:       viper.GetString("serve.session"),
	}
	if galleryPath != "" {
		store, err := gallery.Open(galleryPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close gallery", "error", err)
			}
		}()
		cfg.Gallery = store
	}

	api := server.New(eng, cfg, logger)

	logger.Info("API server listening",
		"addr", addr,
		"max_concurrent_generations", maxConc,
		"generation_timeout", genTimeout,
		"default_size", size.String(),
		"gallery", galleryPath,
	)

	srv := &http.Server{Addr: addr, Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}

	ctx, cancel := signalContext()
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		logger.Info("Shutting down API server")
		return srv.Shutdown(shutdownCtx)
	}
}
