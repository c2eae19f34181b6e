package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bmartynov/nats-codec/internal/env"
	"github.com/bmartynov/nats-codec/storage"
	"github.com/bmartynov/nats-codec/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort int

	// The port to listen for tcp clients on
	port int
)

func init() {
	flags := StartCmd.PersistentFlags()

	flags.IntVarP(&port, "port", "p", env.DefaultPort, "The port to listen client connections on")
	flags.IntVar(&httpPort, "http-port", env.DefaultHTTPPort, "The port to listen to HTTP requests on")
	flags.StringVarP(&host, "host", "a", env.DefaultHost, "The host to listen on")
}

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start up the natscodec server",
	Long: `Start up the natscodec server

Clients connect over TCP. A debug HTTP server answers /ping, /varz,
/subsz and /metrics.

Usage
	natscodec start --port 4222 --http-port 8222

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx, configPath)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("host") {
			conf.Host = host
		}
		if flags.Changed("port") {
			conf.Port = port
		}
		if flags.Changed("http-port") {
			conf.HTTPPort = httpPort
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		store := storage.NewInmemoryStore()
		defer store.Close()

		tcp := transport.NewTCP(transport.Options{
			Host:           conf.Host,
			Port:           conf.Port,
			Reuseport:      true,
			NumListeners:   conf.NumListeners,
			ServerName:     conf.ServerName,
			MaxPayload:     conf.MaxPayload,
			MaxControlLine: conf.MaxControlLine,
			Trace:          conf.Trace,
			Store:          store,
			Log:            log.Named("transport"),
		})

		router := setupRouter(conf.DebugHTTP, log.Named("http"))
		registerDebugRoutes(router, tcp)

		s := &http.Server{
			Addr:    net.JoinHostPort(conf.Host, strconv.Itoa(conf.HTTPPort)),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		log.Info("Listening",
			zap.Any("config", conf),
			zap.Stringer("addr", tcp.Addr()),
			zap.Int("httpPort", conf.HTTPPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := tcp.Close(); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping", "/metrics"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

func registerDebugRoutes(r *gin.Engine, tcp *transport.TCP) {
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/varz", func(c *gin.Context) {
		c.JSON(http.StatusOK, tcp.Varz())
	})

	r.GET("/subsz", func(c *gin.Context) {
		backup, err := tcp.Store().Backup()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err) //nolint:errcheck
			return
		}

		c.Data(http.StatusOK, "application/json", backup)
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(tcp.Metrics().Registry(), promhttp.HandlerOpts{})))
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
