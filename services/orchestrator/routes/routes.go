// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianLease/services/orchestrator/export"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/observability"
)

// Deps holds everything the routes need. Optional collaborators are left
// as nil interfaces; their endpoints answer 501.
type Deps struct {
	Service  handlers.LeaseService
	Renderer export.Renderer
	Archive  export.Archiver
	Ingester handlers.DocumentIngester

	// Auth defaults to middleware.NopAuthProvider.
	Auth    middleware.AuthProvider
	Limiter *middleware.RateLimiter
	Metrics *observability.TurnMetrics

	// Gatherer serves /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// SetupRoutes registers the health, metrics, and /v1 lease endpoints.
func SetupRoutes(router *gin.Engine, deps Deps) {
	if deps.Auth == nil {
		deps.Auth = middleware.NopAuthProvider{}
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", handlers.HealthCheck(deps.Service))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.Auth))
	if deps.Limiter != nil {
		v1.Use(deps.Limiter.Middleware())
	}
	{
		sessions := v1.Group("/sessions/:sessionId")
		{
			sessions.POST("/turns", handlers.HandleTurn(deps.Service))
			sessions.POST("/contract", handlers.LoadContract(deps.Service))
			sessions.GET("/state", handlers.GetState(deps.Service))
			sessions.GET("/export.pdf", handlers.ExportPDF(deps.Service, deps.Renderer, deps.Metrics))
			sessions.POST("/export", handlers.ArchiveExport(deps.Service, deps.Renderer, deps.Archive, deps.Metrics))
			sessions.DELETE("", handlers.ClearSession(deps.Service))
		}

		corpora := v1.Group("/corpora", middleware.RequireScope("ingest"))
		{
			corpora.POST("/:corpus/documents", handlers.IngestDocument(deps.Ingester))
		}
	}
}
