package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DanielWarg/fortknox/core/httpapi"
	"github.com/DanielWarg/fortknox/core/jobs"
	"github.com/DanielWarg/fortknox/core/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the compile API server",
	Long: `Serve the HTTP API: synchronous and background compiles, job
polling and report retrieval. The compiler backend is chosen from the
configuration: fixture in test mode, remote when a URL is configured,
otherwise offline (stored reports still replay).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, st, err := buildPipeline(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		runner := jobs.NewRunner(jobs.RunnerOptions{
			Pipeline: svc,
			Store:    st,
			Log:      logger,
			Timeout:  cfg.RemoteTimeoutDuration(),
		})
		defer runner.Wait()

		api := httpapi.NewServer(httpapi.Options{
			Pipeline:      svc,
			Runner:        runner,
			Store:         st,
			Limiter:       ratelimit.New(time.Minute),
			CompilePerMin: cfg.CompilePerMin,
			Log:           logger,
		})

		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			// slow remote compiles flow through this handler
			WriteTimeout: cfg.RemoteTimeoutDuration() + 30*time.Second,
			IdleTimeout:  60 * time.Second,
		}

		logger.Info("serving",
			zap.String("listen", cfg.Listen),
			zap.Bool("testmode", cfg.TestMode),
			zap.Bool("offline", cfg.Offline()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
