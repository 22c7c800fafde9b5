package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bastionrp.ru/internal/audit"
	"bastionrp.ru/internal/config"
	"bastionrp.ru/internal/discord"
	"bastionrp.ru/internal/faction"
	"bastionrp.ru/internal/forum"
	"bastionrp.ru/internal/httpapi"
	"bastionrp.ru/internal/identity"
	"bastionrp.ru/internal/moderation"
	"bastionrp.ru/internal/obs"
	"bastionrp.ru/internal/privilege"
	"bastionrp.ru/internal/roles"
	"bastionrp.ru/internal/sanction"
	"bastionrp.ru/internal/store/memory"
	"bastionrp.ru/internal/store/pg"
	"bastionrp.ru/internal/token"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	deps, db, closeStore, err := buildDeps(cfg)
	if err != nil {
		log.Fatalf("wire: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, deps)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting bastion-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	closeStore()
	log.Println("Stopped")
}

// buildDeps wires the service against PostgreSQL when a DSN is configured and
// against the in-memory store otherwise. The memory fallback keeps local
// development possible without a database; state does not survive restarts.
func buildDeps(cfg config.Config) (httpapi.Deps, *sql.DB, func(), error) {
	owner := identity.OwnerMarker{
		DiscordID: cfg.OwnerDiscordID,
		Username:  cfg.OwnerUsername,
	}

	issuer, err := token.NewIssuer(cfg.JWTSecret)
	if err != nil {
		return httpapi.Deps{}, nil, nil, err
	}

	dc := discord.NewClient(discord.Config{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURI:  cfg.DiscordRedirectURI,
	})

	var (
		users      identity.Store
		sanctions  sanction.Store
		admins     privilege.AdminStore
		codes      privilege.CodeStore
		roleStore  roles.Store
		auditLog   audit.Store
		factions   faction.Store
		forumStore forum.Store
		txStore    moderation.Store
		db         *sql.DB
		closeFn    = func() {}
	)

	if cfg.DatabaseURL != "" {
		store, err := pg.Open(cfg.DatabaseURL)
		if err != nil {
			return httpapi.Deps{}, nil, nil, err
		}
		users = store.Users()
		sanctions = store.Sanctions()
		admins = store.Admins()
		codes = store.Codes()
		roleStore = store.Roles()
		auditLog = store.Audit()
		factions = store.Factions()
		forumStore = store.Forum()
		txStore = store
		db = store.DB()
		closeFn = func() { _ = store.Close() }
	} else {
		log.Println("BASTION_PG_DSN is not set, using the in-memory store")
		store := memory.New()
		users = store
		sanctions = store
		admins = store
		codes = store
		roleStore = store.Roles()
		auditLog = store
		factions = store.Factions()
		forumStore = store
		txStore = store
	}

	resolver := privilege.NewResolver(users, admins, roleStore, owner)
	ledger := sanction.NewLedger(sanctions)

	deps := httpapi.Deps{
		Users:           identity.NewService(users, owner),
		Issuer:          issuer,
		Resolver:        resolver,
		Proc:            moderation.NewProcessor(users, factions, resolver, txStore),
		Roles:           roles.NewService(roleStore),
		Ledger:          ledger,
		AuditLog:        auditLog,
		Admins:          admins,
		Codes:           codes,
		Factions:        factions,
		Forum:           forum.NewService(forumStore, ledger),
		Discord:         dc,
		DiscordTokenTTL: cfg.DiscordTokenTTL,
		LocalTokenTTL:   cfg.LocalTokenTTL,
	}
	return deps, db, closeFn, nil
}
