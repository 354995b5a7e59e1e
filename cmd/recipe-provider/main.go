// recipe-provider serves the recipe catalog as the search_recipes and
// get_recipe_details tools, over stdio by default or streamable HTTP when
// PROVIDER_ADDR is set.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"recipeagent"
	"recipeagent/tools"
	"recipeagent/tools/storage"
)

const version = "v1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("PROVIDER: Exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("SETUP: Failed to read .env", "error", err)
	}

	var providerConfig recipeagent.ProviderConfig
	if err := envdecode.Decode(&providerConfig); err != nil {
		return err
	}
	var toolConfig recipeagent.ToolProviderConfig
	if err := envdecode.Decode(&toolConfig); err != nil {
		return err
	}
	if toolConfig.APIKey == "" {
		return errors.New("RECIPE_API_KEY is required")
	}

	catalog, err := newCatalogState(ctx, providerConfig)
	if err != nil {
		return err
	}
	// Fail at startup rather than on the first call.
	if _, err := catalog.Load(ctx); err != nil {
		return err
	}

	server := tools.NewRegistry(catalog).NewServer("recipe-provider", version)

	if providerConfig.Addr == "" {
		slog.Info("PROVIDER: Serving over stdio")
		return server.Run(ctx, &mcp.StdioTransport{})
	}

	httpServer := &http.Server{
		Addr:              providerConfig.Addr,
		Handler:           tools.NewHTTPHandler(server, toolConfig.APIKey),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) // nolint: errcheck
	}()

	slog.Info("PROVIDER: Serving streamable HTTP", "addr", providerConfig.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newCatalogState(ctx context.Context, cfg recipeagent.ProviderConfig) (storage.CatalogState, error) {
	if cfg.S3Bucket == "" {
		slog.Info("SETUP: Using file catalog", "path", cfg.CatalogPath)
		return storage.NewFileCatalogState(cfg.CatalogPath), nil
	}
	if cfg.S3Key == "" {
		return nil, errors.New("CATALOG_S3_KEY must be set with CATALOG_S3_BUCKET")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("SETUP: Using S3 catalog", "bucket", cfg.S3Bucket, "key", cfg.S3Key)
	return storage.NewS3CatalogState(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Key), nil
}
