// Package copydesk is a content-management console for statically generated
// blogs whose source lives in a version-controlled repository. Edits made in
// the console accumulate in a deduplicated change queue and are flushed as a
// single commit plus one build request ("smart deploy"), instead of one
// commit per save. Uploaded images run through the imaging pipeline before
// they are queued.
//
// Users provide their own templ components via the ViewFuncs struct; any nil
// view falls back to a JSON response, so the console also runs headless as a
// plain API polled by an external UI.
package copydesk

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// ViewFuncs holds user-provided templ components the console renders. Every
// field may be nil; the handlers then answer with JSON.
type ViewFuncs struct {
	Login       func(showError bool, csrfToken string) templ.Component
	Dashboard   func(changes []ChangeRecord, counts map[Category]int, smartDeploy bool, csrfToken string) templ.Component
	NotFound    func() templ.Component
	ServerError func() templ.Component
}

// App is the console application. It wires together the store, the change
// queue, the deploy coordinator, the settings view, middleware, and routes.
type App struct {
	Config   Config
	Echo     *echo.Echo
	Store    *Store
	Queue    *ChangeQueue
	Settings *Settings
	Deployer *Deployer
	Views    ViewFuncs

	Repo    RepoWriter
	Builder BuildTrigger

	loginLimiter *LoginLimiter
	customRoutes []func(*App)
}

// New creates a console App with the given configuration and views.
func New(cfg Config, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		Views:  views,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Start initializes the store, queue, coordinator, middleware, and routes,
// then starts the server.
func (a *App) Start() error {
	if a.Config.AdminPassword == "" {
		return fmt.Errorf("copydesk: AdminPassword is required")
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("copydesk: SessionSecret is required")
	}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("copydesk: init store: %w", err)
	}
	a.Store = store

	a.Queue = NewChangeQueue(store)
	if err := a.Queue.Load(); err != nil {
		return fmt.Errorf("copydesk: load queue: %w", err)
	}
	a.Settings = NewSettings(store, a.Config.SettingsTTL)

	if a.Repo == nil {
		a.Repo = &DirRepo{Root: a.Config.RepoDir}
	}
	if a.Builder == nil && a.Config.BuildHookURL != "" {
		a.Builder = &WebhookBuild{URL: a.Config.BuildHookURL}
	}
	a.Deployer = NewDeployer(a.Queue, a.Repo, a.Builder, a.Config.DeployTimeout)

	a.loginLimiter = NewLoginLimiter(5, loginWindow)

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}

	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	// Admin session routes
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	// Console API, polled by the UI
	api := e.Group("/api", a.requireAdmin)
	api.GET("/queue", a.handleQueueSnapshot)
	api.POST("/changes", a.handleEnqueue)
	api.DELETE("/changes", a.handleDiscardAll)
	api.DELETE("/changes/:id", a.handleDiscard)
	api.POST("/deploy", a.handleDeploy)
	api.POST("/settings/smart-deploy", a.handleSmartDeployToggle)
	api.POST("/images", a.handleImageUpload)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if
// empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or fatally
// exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("copydesk: required environment variable %s is not set", key)
	}
	return v
}
