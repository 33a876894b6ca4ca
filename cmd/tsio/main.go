// Package main provides the tsio end-to-end test report ingestion and query
// service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/tsio/tsio/internal/api"
	"github.com/tsio/tsio/internal/api/middleware"
	"github.com/tsio/tsio/internal/auth"
	"github.com/tsio/tsio/internal/eventbus"
	"github.com/tsio/tsio/internal/ingestion"
	"github.com/tsio/tsio/internal/objectstore"
	"github.com/tsio/tsio/internal/store"
	"github.com/tsio/tsio/internal/upload"
)

const (
	version = "0.1.0-dev"
	name    = "tsio"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	cfg := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid server configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("starting tsio service", slog.String("version", version), slog.String("environment", cfg.Environment))

	deps, err := buildDependencies(context.Background(), &cfg, logger)
	if err != nil {
		logger.Error("failed to build server dependencies", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := api.NewServer(&cfg, *deps)

	if err := server.Start(); err != nil {
		logger.Error("server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("tsio service stopped")
}

// buildDependencies wires every store, auth strategy, and pipeline component
// the HTTP layer needs into an api.Dependencies value.
func buildDependencies(ctx context.Context, cfg *api.ServerConfig, logger *slog.Logger) (*api.Dependencies, error) {
	conn, err := store.NewConnection(cfg.DB)
	if err != nil {
		return nil, err
	}

	objects, err := objectstore.New(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	reports := store.NewReportStore(conn)
	jobs := store.NewJobStore(conn)
	results := store.NewResultsStore(conn)
	htmlFiles := store.NewHTMLFileStore(conn)
	screenshotFiles := store.NewScreenshotFileStore(conn)
	jsonFiles := store.NewJSONFileStore(conn)
	apiKeys := store.NewAPIKeyStore(conn)
	policies := store.NewPolicyStore(conn)
	users := store.NewUserStore(conn)

	if cfg.OIDC.PolicySeedFile != "" {
		doc, err := auth.LoadPolicySeedFile(cfg.OIDC.PolicySeedFile)
		if err != nil {
			return nil, fmt.Errorf("load oidc policy seed file: %w", err)
		}

		if err := auth.SeedPolicies(ctx, policies, doc, logger); err != nil {
			return nil, fmt.Errorf("seed oidc policies: %w", err)
		}
	}

	policyEngine := auth.NewPolicyEngine(policies, cfg.OIDC.AllowedRepos)
	jwks := auth.NewJWKSCache(cfg.OIDC.Issuer)
	sessions := auth.NewSessionManager(cfg.OAuth.SessionSecret)

	var oauthBroker *auth.OAuthBroker
	if cfg.OAuth.Enabled {
		oauthBroker = auth.NewOAuthBroker(auth.OAuthBrokerConfig{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			CallbackURL:  cfg.OAuth.RedirectURL,
			AllowedOrgs:  cfg.OAuth.AllowedOrgs,
			Production:   cfg.IsProduction(),
		}, users, sessions)
	}

	strategies := []auth.Strategy{auth.AdminKeyStrategy(cfg.AdminKey), auth.APIKeyStrategy(apiKeys)}
	if cfg.OIDC.Enabled {
		strategies = append(strategies, auth.OIDCStrategy(auth.OidcVerifierConfig{
			Issuer:   cfg.OIDC.Issuer,
			Audience: cfg.OIDC.Audience,
		}, jwks, policyEngine))
	}

	if cfg.OAuth.Enabled {
		strategies = append(strategies, auth.SessionStrategy(sessions, users))
	}

	chain := auth.NewChain(strategies...)

	ingestionOrchestrator := ingestion.NewOrchestrator(
		ingestion.NewGenericJSONParser(),
		jobs, reports, results, jsonFiles, screenshotFiles, objects, bus, logger,
	)

	uploads := upload.New(jobs, htmlFiles, screenshotFiles, jsonFiles, objects, bus,
		func(ctx context.Context, jobID string) { ingestionOrchestrator.RunForJob(ctx, jobID) },
		logger,
	)

	rateLimiter := middleware.NewInMemoryRateLimiter(cfg.RateLimiter)

	return &api.Dependencies{
		DB:               conn,
		Objects:          objects,
		Bus:              bus,
		Reports:          reports,
		Jobs:             jobs,
		Results:          results,
		HTMLFiles:        htmlFiles,
		ScreenshotFiles:  screenshotFiles,
		JSONFiles:        jsonFiles,
		ScreenshotsTable: screenshotFiles,
		APIKeys:          apiKeys,
		Policies:         policies,
		Users:            users,
		AuthChain:        chain,
		PolicyEngine:     policyEngine,
		OAuthBroker:      oauthBroker,
		Sessions:         sessions,
		Uploads:          uploads,
		Orchestrator:     ingestionOrchestrator,
		RateLimiter:      rateLimiter,
	}, nil
}
