// main.go
package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"messenger-console/cache"
	"messenger-console/config"
	"messenger-console/graph"
	"messenger-console/handlers"
	"messenger-console/pkg/notify"
	"messenger-console/pkg/template"
	"messenger-console/session"
	"messenger-console/tokenstore"
)

var httpClient = &http.Client{
	Timeout: 10 * time.Second,
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("🚀 Starting Messenger Console...")

	cfg := config.Load()
	template.InitTemplates()

	// Memory in the session controller is authoritative; Redis is only the
	// recovery shadow, so a failed connection falls back to a process-local
	// store instead of aborting.
	var store cache.Store
	redisStore := cache.NewRedis(cfg.Redis.Addr(), cfg.Redis.Username, cfg.Redis.Password)
	if redisStore.Enabled() {
		store = redisStore
	} else {
		log.Printf("💡 Session cache running in-memory only (no persistence across restarts)")
		store = cache.NewMemory()
	}

	graphClient := graph.NewClient(cfg.Graph.BaseURL, httpClient)
	backend := tokenstore.NewClient(cfg.Store.URL, httpClient)
	notifier := notify.NewLog()

	controller := session.NewController(graphClient, backend, store, notifier)
	app := handlers.NewApp(controller, template.NewRenderer(), notifier, cfg.Graph.AppSecret, cfg.Graph.VerifyToken)

	if cfg.Graph.UserToken != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := app.Startup(ctx, cfg.Graph.UserToken); err != nil {
			log.Printf("❌ Startup sequence failed: %v", err)
		}
		cancel()
	} else {
		log.Printf("💡 No FACEBOOK_USER_TOKEN set, waiting for a login on /auth/token")
	}

	log.Printf("🌐 Server starting on port %s", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, app.Routes()))
}
