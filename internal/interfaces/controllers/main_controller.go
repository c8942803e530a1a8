package controllers

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Proxy forwards every request not answered locally to the upstream
type Proxy interface {
	RegisterRoutes(e *echo.Echo)
}

// MainController manages all application routes and controllers
type MainController struct {
	healthController         *HealthController
	shareController          *ShareController
	accountController        *AccountController
	upstreamCookieController *UpstreamCookieController
	proxy                    Proxy

	metricsPath    string
	metricsHandler http.Handler
}

// NewMainController creates a new main controller instance. A nil
// metricsHandler leaves the metrics path to the proxy.
func NewMainController(
	healthController *HealthController,
	shareController *ShareController,
	accountController *AccountController,
	upstreamCookieController *UpstreamCookieController,
	proxy Proxy,
	metricsPath string,
	metricsHandler http.Handler,
) *MainController {
	return &MainController{
		healthController:         healthController,
		shareController:          shareController,
		accountController:        accountController,
		upstreamCookieController: upstreamCookieController,
		proxy:                    proxy,
		metricsPath:              metricsPath,
		metricsHandler:           metricsHandler,
	}
}

// RegisterRoutes registers all application routes. Local endpoints take
// precedence over the upstream catch-all.
func (mc *MainController) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", mc.healthController.HealthCheck)
	if mc.metricsHandler != nil {
		e.GET(mc.metricsPath, echo.WrapHandler(mc.metricsHandler))
	}

	mc.registerAPIRoutes(e)

	e.POST("/backend-api/accounts/logout_all", mc.accountController.LogoutAll)

	mc.proxy.RegisterRoutes(e)
	log.Printf("[ROUTES] Upstream catch-all registered")
}

// registerAPIRoutes registers the mirror's own API
func (mc *MainController) registerAPIRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.POST("/share", mc.shareController.CreateShare)
	api.GET("/free-login", mc.shareController.FreeLogin)
	api.GET("/check", mc.accountController.CheckAccount)
	api.POST("/set-cf-cookie", mc.upstreamCookieController.SetCookies)
	api.GET("/get-cf-list", mc.upstreamCookieController.ListCookies)
	log.Printf("[ROUTES] Mirror API endpoints registered")
}
