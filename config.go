package copydesk

import "time"

// Config holds all configuration for a copydesk console.
type Config struct {
	Name string // Site name shown in the dashboard (default "Site")

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path for queue + settings (default "data/console.db")

	RepoDir      string // Working tree for the default DirRepo writer (default "site")
	BuildHookURL string // Deploy-hook URL; empty disables build triggering

	AdminPassword string // Required: admin login password
	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	DeployTimeout time.Duration // Upper bound for one deploy (default 2min)
	SettingsTTL   time.Duration // Smart-deploy flag cache TTL (default 5s)
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "Site"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/console.db"
	}
	if c.RepoDir == "" {
		c.RepoDir = "site"
	}
	if c.DeployTimeout == 0 {
		c.DeployTimeout = 2 * time.Minute
	}
	if c.SettingsTTL == 0 {
		c.SettingsTTL = 5 * time.Second
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithRepoWriter replaces the default DirRepo with a custom repository
// collaborator (e.g. a forge API client).
func WithRepoWriter(w RepoWriter) Option {
	return func(a *App) {
		a.Repo = w
	}
}

// WithBuildTrigger replaces the default webhook build trigger.
func WithBuildTrigger(b BuildTrigger) Option {
	return func(a *App) {
		a.Builder = b
	}
}

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}
