package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/petal-labs/ontoflow/engine"
	flowotel "github.com/petal-labs/ontoflow/otel"
	"github.com/petal-labs/ontoflow/server"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the simulation HTTP server",
		RunE:  runServe,
	}

	cmd.Flags().IntP("port", "p", 8080, "Listen port")
	cmd.Flags().String("host", "0.0.0.0", "Listen host")
	cmd.Flags().String("cors-origin", server.DefaultCORSOrigin, "Allowed CORS origin")
	cmd.Flags().String("samples-dir", "", "Samples directory (default: ./samples)")
	cmd.Flags().String("tls-cert", "", "TLS certificate file")
	cmd.Flags().String("tls-key", "", "TLS key file")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	cmd.Flags().Int64("max-body", 4<<20, "Max request body size in bytes")
	cmd.Flags().String("otlp-endpoint", "", "OTLP HTTP trace endpoint (empty disables export)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	corsOrigin, _ := cmd.Flags().GetString("cors-origin")
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")
	maxBody, _ := cmd.Flags().GetInt64("max-body")
	tlsCert, _ := cmd.Flags().GetString("tls-cert")
	tlsKey, _ := cmd.Flags().GetString("tls-key")
	otlpEndpoint, _ := cmd.Flags().GetString("otlp-endpoint")

	samplesDir := resolveSamplesDir(cmd)
	logger := slog.Default()

	if otlpEndpoint != "" {
		exporter, err := otlptracehttp.New(cmd.Context(),
			otlptracehttp.WithEndpoint(otlpEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("creating OTLP exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otelapi.SetTracerProvider(tp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	tracing := flowotel.NewTracingHandler(otelapi.GetTracerProvider().Tracer("ontoflow/engine"))
	metrics, err := flowotel.NewMetricsHandler(otelapi.GetMeterProvider().Meter("ontoflow/engine"))
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	eng := engine.New(engine.WithEventHandler(
		engine.MultiEventHandler(tracing.Handle, metrics.Handle),
	))

	apiServer := server.NewServer(server.ServerConfig{
		Engine:     eng,
		SamplesDir: samplesDir,
		CORSOrigin: corsOrigin,
		MaxBody:    maxBody,
		Logger:     logger,
	})

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	// Signal handling
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "ontoflow listening on %s (samples: %s)\n", addr, samplesDir)
		if tlsCert != "" && tlsKey != "" {
			errCh <- httpServer.ListenAndServeTLS(tlsCert, tlsKey)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

// resolveSamplesDir picks the samples directory from the flag, the
// ONTOFLOW_SAMPLES_DIR environment variable, or ./samples, in that order.
func resolveSamplesDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("samples-dir")
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv("ONTOFLOW_SAMPLES_DIR"))
	}
	if dir == "" {
		dir = "samples"
	}
	return dir
}
