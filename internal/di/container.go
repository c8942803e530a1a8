package di

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/takutakahashi/chatgpt-mirror/internal/infrastructure/repositories"
	"github.com/takutakahashi/chatgpt-mirror/internal/interfaces/controllers"
	"github.com/takutakahashi/chatgpt-mirror/internal/usecases/share"
	portrepos "github.com/takutakahashi/chatgpt-mirror/internal/usecases/ports/repositories"
	"github.com/takutakahashi/chatgpt-mirror/pkg/config"
	"github.com/takutakahashi/chatgpt-mirror/pkg/metrics"
	"github.com/takutakahashi/chatgpt-mirror/pkg/proxy"
	"github.com/takutakahashi/chatgpt-mirror/pkg/utils"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Container holds all dependencies for the application
type Container struct {
	Config  *config.Config
	Backend string

	// Repositories
	RedisClient        *redis.Client
	ShareRepo          portrepos.ShareRepository
	ConversationRepo   portrepos.ConversationRepository
	UpstreamCookieRepo portrepos.UpstreamCookieRepository

	// Use Cases
	Registry *share.Registry

	// Services
	UpstreamClient  *http.Client
	CheckClient     *http.Client
	MetricsRegistry *prometheus.Registry
	Metrics         *metrics.Collector
	Proxy           *proxy.Proxy

	// Controllers
	HealthController         *controllers.HealthController
	ShareController          *controllers.ShareController
	AccountController        *controllers.AccountController
	UpstreamCookieController *controllers.UpstreamCookieController
	MainController           *controllers.MainController
}

// NewContainer creates and configures a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config, verbose bool) (*Container, error) {
	container := &Container{Config: cfg}

	// Initialize repositories
	if err := container.initRepositories(ctx); err != nil {
		return nil, err
	}

	// Initialize use cases
	container.initUseCases()

	// Initialize services
	if err := container.initServices(verbose); err != nil {
		_ = container.Close()
		return nil, err
	}

	// Initialize controllers
	container.initControllers()

	return container, nil
}

// initRepositories selects the registry backend. Without a redis host the
// registry lives in process memory and is lost on restart.
func (c *Container) initRepositories(ctx context.Context) error {
	if c.Config.Redis.Host == "" {
		c.Backend = BackendMemory
		c.ShareRepo = repositories.NewMemoryShareRepository()
		c.ConversationRepo = repositories.NewMemoryConversationRepository()
		c.UpstreamCookieRepo = repositories.NewMemoryUpstreamCookieRepository()
		log.Printf("[DI] Using in-memory registry")
		return nil
	}

	client, err := repositories.NewRedisClient(ctx, &redis.Options{
		Addr:     c.Config.Redis.Addr(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if err != nil {
		return err
	}
	c.Backend = BackendRedis
	c.RedisClient = client
	c.ShareRepo = repositories.NewRedisShareRepository(client)
	c.ConversationRepo = repositories.NewRedisConversationRepository(client)
	c.UpstreamCookieRepo = repositories.NewRedisUpstreamCookieRepository(client)
	log.Printf("[DI] Using redis registry at %s", c.Config.Redis.Addr())
	return nil
}

// initUseCases initializes all use case dependencies
func (c *Container) initUseCases() {
	c.Registry = share.NewRegistry(c.ShareRepo, c.ConversationRepo, c.UpstreamCookieRepo)
}

// initServices initializes the upstream clients, metrics and the proxy
func (c *Container) initServices(verbose bool) error {
	upstreamClient, err := utils.NewHTTPClient(utils.HTTPClientConfig{
		ResponseHeaderTimeout: c.Config.Upstream.ResponseHeaderTimeout,
		ProxyURL:              c.Config.Mirror.Proxy,
	})
	if err != nil {
		return fmt.Errorf("failed to create upstream client: %w", err)
	}
	c.UpstreamClient = upstreamClient

	checkClient, err := utils.NewHTTPClient(utils.HTTPClientConfig{
		Timeout:               c.Config.Upstream.ResponseHeaderTimeout,
		ResponseHeaderTimeout: c.Config.Upstream.ResponseHeaderTimeout,
		ProxyURL:              c.Config.Mirror.Proxy,
		FollowRedirects:       true,
	})
	if err != nil {
		return fmt.Errorf("failed to create account check client: %w", err)
	}
	c.CheckClient = checkClient

	c.MetricsRegistry = prometheus.NewRegistry()
	c.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewCollector(c.Config.Metrics.Namespace, c.MetricsRegistry)

	c.Proxy = proxy.NewProxy(c.Config, c.Registry, c.UpstreamClient, c.Metrics, verbose)
	return nil
}

// initControllers initializes all controller dependencies
func (c *Container) initControllers() {
	var pinger controllers.Pinger
	if c.RedisClient != nil {
		client := c.RedisClient
		pinger = controllers.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	c.HealthController = controllers.NewHealthController(c.Backend, pinger)
	c.ShareController = controllers.NewShareController(c.Registry, c.Config.Mirror.RedirectURI)
	c.AccountController = controllers.NewAccountController(c.CheckClient, c.Config.Upstream.CheckURL)
	c.UpstreamCookieController = controllers.NewUpstreamCookieController(
		c.Registry,
		"https://"+c.Config.Upstream.PrimaryHost,
		c.Config.Mirror.Proxy,
	)

	var metricsHandler http.Handler
	if c.Config.Metrics.Enabled {
		metricsHandler = c.Metrics.Handler()
	}
	c.MainController = controllers.NewMainController(
		c.HealthController,
		c.ShareController,
		c.AccountController,
		c.UpstreamCookieController,
		c.Proxy,
		c.Config.Metrics.Path,
		metricsHandler,
	)
}

// Close releases the registry connection
func (c *Container) Close() error {
	if c.RedisClient != nil {
		return c.RedisClient.Close()
	}
	return nil
}
