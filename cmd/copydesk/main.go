// Command copydesk runs the console headless: the JSON API only, with the
// default directory-backed repository writer and the optional deploy-hook
// build trigger. Site branding and credentials come from environment
// variables.
package main

import (
	"log"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/eringen/copydesk"
)

func main() {
	app := copydesk.New(copydesk.Config{
		Name:          copydesk.EnvOr("SITE_NAME", "Site"),
		Addr:          copydesk.EnvOr("LISTEN_ADDR", ":3000"),
		DatabasePath:  copydesk.EnvOr("DATABASE_PATH", "data/console.db"),
		RepoDir:       copydesk.EnvOr("REPO_DIR", "site"),
		BuildHookURL:  copydesk.EnvOr("BUILD_HOOK_URL", ""),
		AdminPassword: copydesk.MustEnv("ADMIN_PASSWORD"),
		SessionSecret: copydesk.MustEnv("ADMIN_SESSION_SECRET"),
		CookieSecure:  strings.EqualFold(copydesk.EnvOr("COOKIE_SECURE", ""), "true"),
	}, copydesk.ViewFuncs{})
	defer app.Close()

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}
