// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/veridocs/dataroom-qa/pkg/extensions"
	"github.com/veridocs/dataroom-qa/services/assistant/access"
	"github.com/veridocs/dataroom-qa/services/assistant/analysis"
	"github.com/veridocs/dataroom-qa/services/assistant/datatypes"
	"github.com/veridocs/dataroom-qa/services/assistant/handlers"
	"github.com/veridocs/dataroom-qa/services/assistant/middleware"
	"github.com/veridocs/dataroom-qa/services/assistant/observability"
	"github.com/veridocs/dataroom-qa/services/assistant/pipeline"
	"github.com/veridocs/dataroom-qa/services/assistant/retrieval"
	"github.com/veridocs/dataroom-qa/services/assistant/routes"
	"github.com/veridocs/dataroom-qa/services/assistant/session"
	"github.com/veridocs/dataroom-qa/services/assistant/strategy"
	"github.com/veridocs/dataroom-qa/services/llm"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "dataroom-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("assistant-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient parses WEAVIATE_SERVICE_URL and builds the client. The
// index is a hard dependency here: access resolution and retrieval both live
// in it, so a missing or invalid URL is fatal.
func newWeaviateClient() *weaviate.Client {
	weaviateURL := os.Getenv("WEAVIATE_SERVICE_URL")
	// Trim quotes and whitespace in case the container runtime passes them
	// literally.
	weaviateURL = strings.Trim(weaviateURL, "\"' ")
	if weaviateURL == "" {
		log.Fatal("WEAVIATE_SERVICE_URL is required")
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		log.Fatalf("WEAVIATE_SERVICE_URL is invalid: %q", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		log.Fatalf("Failed to create Weaviate client: %v", err)
	}
	return client
}

func newLLMClient() llm.LLMClient {
	var client llm.LLMClient
	var err error

	switch backend := os.Getenv("LLM_BACKEND_TYPE"); backend {
	case "openai":
		client, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		client, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to ollama", "value", backend)
		client, err = llm.NewOllamaClient()
	}
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	return client
}

func main() {
	// Best-effort .env load for local development; container deployments
	// inject real environment variables.
	_ = godotenv.Load()

	port := os.Getenv("ASSISTANT_PORT")
	if port == "" {
		port = "12310"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	weaviateClient := newWeaviateClient()
	datatypes.EnsureWeaviateSchema(weaviateClient)

	llmClient := newLLMClient()

	analyzer, err := analysis.NewAnalyzer()
	if err != nil {
		log.Fatalf("Failed to initialize query analyzer: %v", err)
	}
	thresholds, err := strategy.LoadThresholds()
	if err != nil {
		log.Fatalf("Failed to load strategy thresholds: %v", err)
	}

	metrics := observability.InitMetrics()
	store := session.NewWeaviateStore(weaviateClient)
	resolver := access.NewWeaviateResolver(weaviateClient)
	retriever := retrieval.NewWeaviateRetriever(weaviateClient)
	orchestrator := pipeline.NewOrchestrator(retriever, llmClient)

	askHandler := handlers.NewAskStreamingHandler(
		analyzer,
		resolver,
		orchestrator,
		store,
		store,
		metrics,
		thresholds,
		handlers.LoadDeadlineConfig(),
	)

	router := gin.Default()
	router.Use(otelgin.Middleware("assistant-service"))

	routes.SetupRoutes(router, routes.Options{
		AskHandler:   askHandler,
		Store:        store,
		AuthProvider: &extensions.NopAuthProvider{},
		RateLimiter:  middleware.NewRateLimiter(0, 0),
	})

	log.Println("Starting the assistant server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
