package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/takutakahashi/chatgpt-mirror/internal/di"
	"github.com/takutakahashi/chatgpt-mirror/internal/usecases/share"
	"github.com/takutakahashi/chatgpt-mirror/pkg/config"
)

const (
	shutdownTimeout       = 30 * time.Second
	shareCleanupInterval  = 15 * time.Minute
	shareCleanupTimeout   = time.Minute
	healthCheckPathPrefix = "/health"
)

var (
	port    int
	cfg     string
	verbose bool
)

var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the ChatGPT mirror server",
	Long:  "Start the reverse proxy that mirrors ChatGPT behind share tokens",
	Run:   runServer,
}

func init() {
	ServerCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides mirror.port)")
	ServerCmd.Flags().StringVarP(&cfg, "config", "c", "", "Configuration file path")
	ServerCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Bind flags to viper
	if err := viper.BindPFlag("port", ServerCmd.Flags().Lookup("port")); err != nil {
		log.Printf("Failed to bind port flag: %v", err)
	}
	if err := viper.BindPFlag("config", ServerCmd.Flags().Lookup("config")); err != nil {
		log.Printf("Failed to bind config flag: %v", err)
	}
	if err := viper.BindPFlag("verbose", ServerCmd.Flags().Lookup("verbose")); err != nil {
		log.Printf("Failed to bind verbose flag: %v", err)
	}
}

func runServer(cmd *cobra.Command, args []string) {
	if verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	configData := loadServerConfig(cfg)
	if port > 0 {
		configData.Mirror.Port = port
	}
	if err := configData.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Wait for interrupt signal to gracefully shutdown the server
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(configData.Mirror.Host, strconv.Itoa(configData.Mirror.Port))
	if err := serve(ctx, configData, addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Printf("Server shutdown complete")
}

// loadServerConfig reads the configuration file, falling back to the
// environment and then to defaults when it cannot be loaded.
func loadServerConfig(path string) *config.Config {
	configData, err := config.LoadConfig(path)
	if err == nil {
		return configData
	}
	log.Printf("Failed to load config from %q, trying to load from environment variables: %v", path, err)

	configData, err = config.LoadConfig("")
	if err != nil {
		log.Printf("Failed to load config from environment variables, using defaults: %v", err)
		return config.DefaultConfig()
	}
	return configData
}

// serve runs the mirror on addr until ctx is done
func serve(ctx context.Context, configData *config.Config, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	container, err := di.NewContainer(ctx, configData, verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Printf("Failed to close registry: %v", err)
		}
	}()

	e := newEcho()
	container.MainController.RegisterRoutes(e)

	go cleanupExpiredShares(ctx, container.Registry)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Starting chatgpt-mirror on %s (registry: %s)", addr, container.Backend)
		var err error
		if configData.Mirror.TLS.Enabled {
			err = e.StartTLS(addr, configData.Mirror.TLS.Cert, configData.Mirror.TLS.Key)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutdown signal received, shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			return !verbose && strings.HasPrefix(c.Request().URL.Path, healthCheckPathPrefix)
		},
	}))
	return e
}

// cleanupExpiredShares periodically removes expired shares
func cleanupExpiredShares(ctx context.Context, registry *share.Registry) {
	ticker := time.NewTicker(shareCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, shareCleanupTimeout)
			count, err := registry.CleanupExpiredShares(runCtx)
			cancel()
			if err != nil {
				log.Printf("Failed to cleanup expired shares: %v", err)
			} else if count > 0 {
				log.Printf("Cleaned up %d expired shares", count)
			}
		}
	}
}
