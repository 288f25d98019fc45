// Command gatewayd runs the execution-plane gateway: the WebSocket
// Connection Hub, the request/fire-and-forget dispatchers, the SSE relay,
// and the supervisory heartbeat loop, wired to their persistence and
// platform collaborators.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/GoatGit/semibot-sub006/internal/authjwt"
	"github.com/GoatGit/semibot-sub006/internal/authoidc"
	"github.com/GoatGit/semibot-sub006/internal/collaborators"
	"github.com/GoatGit/semibot-sub006/internal/config"
	"github.com/GoatGit/semibot-sub006/internal/conn"
	"github.com/GoatGit/semibot-sub006/internal/httpserver"
	"github.com/GoatGit/semibot-sub006/internal/ratelimit"
	"github.com/GoatGit/semibot-sub006/internal/secretsvault"
	"github.com/GoatGit/semibot-sub006/internal/sse"
	"github.com/GoatGit/semibot-sub006/internal/store"
	"github.com/GoatGit/semibot-sub006/internal/vminstance"
	"github.com/GoatGit/semibot-sub006/internal/vmhub"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	vminstance.Configure(cfg.Namespace, cfg.Kubeconfig)
	vmRegistry, err := vminstance.NewRegistry()
	if err != nil {
		slog.Error("failed to build vm instance registry", "error", err)
		os.Exit(1)
	}

	authProvider, err := buildAuthProvider(cfg)
	if err != nil {
		slog.Error("failed to build auth provider", "error", err)
		os.Exit(1)
	}

	sessions := store.NewSessionsAdapter(db)
	agents := store.NewAgentsAdapter(db)
	logs := store.NewLogsAdapter(db)
	evolvedSkills := store.NewEvolvedSkillsAdapter(db)
	memoryStore := store.NewMemoryAdapter(db)
	skillPackages := store.NewSkillPackagesAdapter(db)
	skillLoader := vmhub.NewFSSkillPackageLoader(skillPackages, cfg.SkillPackageRoot)

	var snapshotStore vmhub.SnapshotStore
	if cfg.S3Bucket != "" {
		snapshotStore, err = store.NewS3SnapshotStore(
			db,
			cfg.S3Bucket,
			cfg.S3Region,
			os.Getenv("GATEWAY_S3_ENDPOINT"),
			os.Getenv("GATEWAY_S3_PREFIX"),
			os.Getenv("GATEWAY_S3_ACCESS_KEY_ID"),
			os.Getenv("GATEWAY_S3_SECRET_ACCESS_KEY"),
		)
		if err != nil {
			slog.Error("failed to build snapshot store", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("GATEWAY_S3_BUCKET not set - session snapshots are disabled")
	}

	conn.Configure(cfg.PendingResultCap, cfg.PendingResultEvictBatch)

	sseHub := sse.NewHub()

	secretsManager, err := buildSecretsManager(cfg)
	if err != nil {
		slog.Error("failed to build secrets manager", "error", err)
		os.Exit(1)
	}

	hub := vmhub.Init(vmhub.Deps{
		Auth:                 authProvider,
		VMInstances:          vmRegistry,
		Logs:                 logs,
		SSE:                  sseHub,
		ProcessBufferCap:     cfg.ProcessBufferCap,
		MaxConnectionsPerOrg: cfg.MaxConnectionsPerOrg,
		ProviderSecrets:      secretsManager.ProviderKeysForUser,
		RuntimeConfig:        func(_ string) map[string]any { return cfg.LLMRoutingConfig },
	})

	vmhub.ConfigureRequestDispatcher(vmhub.RequestDeps{
		Sessions:      sessions,
		Agents:        agents,
		MemoryStore:   memoryStore,
		Embeddings:    collaborators.NoopEmbeddingProvider{},
		SkillPackages: skillLoader,
		TopKMin:       cfg.MemorySearchTopKMin,
		TopKMax:       cfg.MemorySearchTopKMax,
	})

	vmhub.ConfigureFireForgetDispatcher(vmhub.FireForgetDeps{
		Sessions:      sessions,
		Logs:          logs,
		MemoryStore:   memoryStore,
		Embeddings:    collaborators.NoopEmbeddingProvider{},
		EvolvedSkills: evolvedSkills,
		SnapshotStore: snapshotStore,
	})
	vmhub.ConfigureSnapshotRetention(cfg.SnapshotRetention)

	vmhub.ConfigureIngest(vmhub.IngestDeps{Sessions: sessions})

	hub.StartHeartbeatSupervisor(cfg.HeartbeatScanInterval, cfg.HeartbeatLivenessBound)
	defer hub.Shutdown()

	app := &httpserver.App{
		DB:          db,
		Hub:         hub,
		SSE:         sseHub,
		ConnLimiter: ratelimit.New(rate.Limit(cfg.ConnectRateLimitPerSecond), cfg.ConnectRateLimitBurst),
	}

	addr := ":" + strconv.Itoa(cfg.Port)
	slog.Info("gatewayd starting", "addr", addr, "db_driver", cfg.DBDriver)
	if err := http.ListenAndServe(addr, app.Handler()); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func buildAuthProvider(cfg *config.Config) (collaborators.Auth, error) {
	if cfg.OIDCIssuer != "" {
		return authoidc.NewProvider(context.Background(), cfg.OIDCIssuer, cfg.OIDCClientID)
	}
	return authjwt.NewProvider(cfg.JWTSecret), nil
}

// buildSecretsManager selects the provider-key backend. Kubernetes is used
// when a secret name is configured; environment variables otherwise.
func buildSecretsManager(cfg *config.Config) (*secretsvault.Manager, error) {
	secretName := os.Getenv("GATEWAY_SECRETS_K8S_SECRET_NAME")
	if secretName == "" {
		return secretsvault.NewManager(secretsvault.DefaultConfig())
	}
	return secretsvault.NewManager(&secretsvault.Config{
		Provider:      secretsvault.ProviderTypeKubernetes,
		K8sNamespace:  cfg.Namespace,
		K8sSecretName: secretName,
		K8sKubeconfig: cfg.Kubeconfig,
		K8sInCluster:  true,
	})
}
