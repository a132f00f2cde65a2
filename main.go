package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shrinet82/ai-sre-agent/internal/catalog"
	"github.com/Shrinet82/ai-sre-agent/internal/client"
	"github.com/Shrinet82/ai-sre-agent/internal/config"
	"github.com/Shrinet82/ai-sre-agent/internal/db"
	"github.com/Shrinet82/ai-sre-agent/internal/handler"
	"github.com/Shrinet82/ai-sre-agent/internal/metrics"
	"github.com/Shrinet82/ai-sre-agent/internal/service"
)

// @title AI SRE Agent API
// @version 1.0
// @description Incident decision and remediation engine for Kubernetes clusters.
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	cat, err := catalog.New(cfg.Pipeline.RequireApprovalFor)
	if err != nil {
		log.Fatalf("Invalid REQUIRE_APPROVAL_FOR: %v", err)
	}

	pool, err := db.NewPostgresPool(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	database := &db.Postgres{Pool: pool}

	if err := database.EnsureIncidentSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure incident schema: %v", err)
	}
	if err := database.EnsureApprovalSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure approval schema: %v", err)
	}
	// The embedding schema needs the pgvector extension; without it the
	// agent runs with similarity search disabled.
	embeddingReady := true
	if err := database.EnsureEmbeddingSchema(ctx); err != nil {
		log.Printf("Embedding schema unavailable, similarity search disabled: %v", err)
		embeddingReady = false
	}

	authService, err := service.NewAuthService(ctx, database, cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to init auth service: %v", err)
	}
	if err := authService.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure auth schema: %v", err)
	}
	if cfg.Auth.AdminPassword != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminID, cfg.Auth.AdminPassword); err != nil {
			log.Fatalf("Failed to ensure admin user: %v", err)
		}
	} else {
		log.Printf("ADMIN_PASSWORD not set, skipping admin bootstrap")
	}

	kubeClient, err := client.NewKubeClient(cfg.Kube)
	if err != nil {
		log.Fatalf("Failed to init kubernetes client: %v", err)
	}
	advisorClient, err := client.NewAdvisorClient(cfg.Advisor)
	if err != nil {
		log.Fatalf("Failed to init advisor client: %v", err)
	}
	slackClient := client.NewSlackClient(cfg.Slack)
	if !slackClient.IsConfigured() {
		log.Printf("Slack not configured, notifications disabled")
	}
	lokiClient := client.NewLokiClient(cfg.Loki)
	if !lokiClient.IsConfigured() {
		log.Printf("Loki not configured, falling back to pod logs")
	}

	var (
		similar service.SimilaritySearcher
		store   service.ContextStoreWriter
	)
	if embeddingReady {
		embeddingClient, err := client.NewEmbeddingClient(cfg.Advisor)
		if err != nil {
			log.Printf("Embedding client unavailable, similarity search disabled: %v", err)
		} else {
			embeddingService := service.NewEmbeddingService(database, embeddingClient)
			similar = embeddingService
			store = embeddingService
		}
	}

	settings := service.NewSettings(cfg.Pipeline.ConfidenceThreshold, cfg.Pipeline.AutoActionEnabled)
	assembler := service.NewContextAssembler(kubeClient, lokiClient, similar)
	engine := service.NewDecisionEngine(advisorClient, cat)
	defaults := service.TargetDefaults{
		Namespace:  cfg.Pipeline.TargetNamespace,
		Deployment: cfg.Pipeline.TargetDeployment,
	}
	dispatcher := service.NewDispatcher(kubeClient, defaults)
	verifier := service.NewVerifier(kubeClient, defaults,
		cfg.Pipeline.VerifyGrace, cfg.Pipeline.VerifyWindow, cfg.Pipeline.VerifyInterval)

	pipeline := service.NewPipelineService(database, database, assembler, engine, cat,
		dispatcher, verifier, settings, slackClient, store, cfg.Pipeline.DedupeWindow)
	approvalService := service.NewApprovalService(database, database, pipeline)
	queryService := service.NewQueryService(kubeClient, database)

	webhookHandler := handler.NewWebhookHandler(pipeline)
	approvalHandler := handler.NewApprovalHandler(approvalService)
	incidentHandler := handler.NewIncidentHandler(queryService)
	clusterHandler := handler.NewClusterHandler(queryService)
	configHandler := handler.NewConfigHandler(settings)
	authHandler := handler.NewAuthHandler(authService)

	router := gin.Default()
	router.Use(handler.CORSMiddleware(cfg.Server.AllowedOrigins, true))

	router.GET("/ping", handler.Ping)
	router.GET("/", handler.Root)
	router.GET("/openapi.json", handler.OpenAPIDoc)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/webhook/alertmanager", webhookHandler.AlertmanagerWebhook)
	router.POST("/api/v1/auth/login", authHandler.Login)

	api := router.Group("/api/v1")
	api.Use(handler.AuthMiddleware(authService))
	{
		api.GET("/auth/me", authHandler.Me)

		api.GET("/incidents", incidentHandler.GetIncidents)
		api.GET("/incidents/:id", incidentHandler.GetIncidentDetail)

		api.GET("/approvals/pending", approvalHandler.GetPendingApprovals)
		api.GET("/approvals/:id", approvalHandler.GetApproval)
		api.POST("/approvals/:id/approve", approvalHandler.ApproveAction)
		api.POST("/approvals/:id/reject", approvalHandler.RejectAction)

		api.GET("/cluster/summary", clusterHandler.GetClusterSummary)
		api.GET("/cluster/namespaces/:namespace/pods", clusterHandler.GetNamespacePods)

		api.GET("/config", configHandler.GetConfig)
		api.PUT("/config", configHandler.UpdateConfig)
	}

	if ttl := cfg.Pipeline.ApprovalTTL; ttl > 0 {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				if n, err := approvalService.ExpireStale(context.Background(), ttl); err != nil {
					log.Printf("Approval expiry sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("Expired %d stale approvals", n)
				}
			}
		}()
	}

	metrics.AgentHealthy.Set(1)
	log.Printf("Starting ai-sre-agent on :%s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}
