package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/framelink/icd"
	"github.com/danmuck/framelink/internal/config"
	"github.com/danmuck/framelink/internal/observability"
	"github.com/danmuck/framelink/server"
	"github.com/danmuck/framelink/transport/cobs"
)

var startedAt = time.Now()

func main() {
	configPath := flag.String("config", "", "path to device config toml")
	flag.Parse()

	logger := observability.InitLogger("framelinkd")
	observability.RegisterMetrics()

	cfg := config.DeviceConfig{
		Name:   "framelinkd",
		Listen: ":9404",
		TxBuf:  4096,
		Accel:  config.AccelConfig{Enabled: true, IntervalMS: 250},
	}
	if *configPath != "" {
		loaded, err := config.LoadDeviceConfig(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("config load failed")
		}
		cfg = loaded
	}

	deviceID := uuid.NewString()
	logger.Info().Str("device_id", deviceID).Str("listen", cfg.Listen).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if cfg.DiagAddr != "" {
		g.Go(func() error { return runDiag(ctx, cfg, deviceID, logger) })
	}
	g.Go(func() error { return serve(ctx, cfg, logger) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

// runDiag exposes health and metrics over HTTP, beside the frame listener.
func runDiag(ctx context.Context, cfg config.DeviceConfig, deviceID string, logger zerolog.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(startedAt).String(),
			"service":   cfg.Name,
			"device_id": deviceID,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: cfg.DiagAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// serve accepts framed links and runs one dispatch engine per connection.
func serve(ctx context.Context, cfg config.DeviceConfig, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("link up")
		go func() {
			defer logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("link down")
			if err := runLink(ctx, cfg, conn, logger); err != nil {
				logger.Warn().Err(err).Msg("link failed")
			}
		}()
	}
}

func runLink(ctx context.Context, cfg config.DeviceConfig, conn net.Conn, logger zerolog.Logger) error {
	tr := cobs.NewStream(conn)
	defer tr.Close()

	srv, err := server.New(tr, entries(), &server.Options{
		ErrorPath: cfg.ErrorPath,
		TxBufSize: cfg.TxBuf,
		Logger:    &logger,
		Metrics:   true,
	})
	if err != nil {
		return err
	}

	linkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, linkCtx := errgroup.WithContext(linkCtx)
	g.Go(func() error {
		defer cancel()
		return srv.Run(linkCtx)
	})
	if cfg.Accel.Enabled {
		g.Go(func() error {
			publishAccel(linkCtx, srv, time.Duration(cfg.Accel.IntervalMS)*time.Millisecond)
			return nil
		})
	}
	return g.Wait()
}

func entries() []server.Entry {
	return []server.Entry{
		server.Handle(icd.PingEndpoint, func(_ context.Context, _ *server.Server, req uint32) (uint32, error) {
			return req, nil
		}),
		server.HandleSpawn(icd.SleepEndpoint, 4, func(ctx context.Context, _ *server.Server, req icd.SleepRequest) (icd.SleepDone, error) {
			select {
			case <-time.After(time.Duration(req.Millis) * time.Millisecond):
			case <-ctx.Done():
			}
			return icd.SleepDone{Millis: req.Millis}, nil
		}),
	}
}

// publishAccel streams synthetic samples on the accel topic until the link
// drops.
func publishAccel(ctx context.Context, srv *server.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var tick int32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			sample := icd.Accel{X: tick % 64, Y: -tick % 64, Z: 981}
			if err := server.Publish(ctx, srv.Sender(), icd.AccelTopic, sample); err != nil {
				return
			}
		}
	}
}
