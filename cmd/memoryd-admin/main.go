// Package main implements the memoryd-admin CLI for operational tasks
// against the vector memory engine: collection initialization, tenant
// data removal, point counts, and snapshot exports.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/tenant"
)

var (
	configPath  string
	collections []string
	version     = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memoryd-admin",
	Short: "Operational CLI for the memoryd vector memory engine",
	Long: `memoryd-admin performs administrative operations against the vector
memory backend: initializing collections for the configured embedder,
removing a tenant's data, counting a tenant's points, and exporting
collection snapshots.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "memoryd.yaml", "path to config file")
	rootCmd.PersistentFlags().StringSliceVar(&collections, "collections", nil, "collections to operate on (default: episodic, declarative, procedural)")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(destroyTenantCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(healthCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize collections for the configured embedder",
	Long: `Ensure every managed collection exists and matches the configured
embedder, migrating any collection written by a different model.

Migration is destructive for ALL tenants sharing the collection. Enable
snapshots.persist in the config to export each collection before it is
rebuilt.

Examples:
  memoryd-admin init
  memoryd-admin init --config /etc/memoryd/memoryd.yaml
  memoryd-admin init --collections episodic,declarative`,
	RunE: runInit,
}

var destroyTenantCmd = &cobra.Command{
	Use:   "destroy-tenant <tenant-id>",
	Short: "Remove every point a tenant owns across all collections",
	Long: `Remove every point the tenant owns in each managed collection. The
collections themselves survive; other tenants are untouched.

Examples:
  memoryd-admin destroy-tenant acme`,
	Args: cobra.ExactArgs(1),
	RunE: runDestroyTenant,
}

var countCmd = &cobra.Command{
	Use:   "count <tenant-id>",
	Short: "Count a tenant's points per collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runCount,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export every managed collection to the snapshot folder",
	Long: `Create a backend-side snapshot of each managed collection, download
it to the configured snapshot folder, and clean up the backend-side
artifacts.

Examples:
  memoryd-admin snapshot
  memoryd-admin snapshot --collections declarative`,
	RunE: runSnapshot,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity to the vector database",
	RunE:  runHealth,
}

// setup loads configuration and wires an engine over a live backend. The
// returned cleanup closes the backend connection and flushes logs.
func setup() (*memory.Engine, *config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}

	backend, err := memory.NewQdrantBackend(memory.BackendConfig{
		Host:           cfg.Qdrant.Host,
		Port:           cfg.Qdrant.Port,
		RESTPort:       cfg.Qdrant.RESTPort,
		UseTLS:         cfg.Qdrant.UseTLS,
		APIKey:         cfg.Qdrant.APIKey,
		RequestTimeout: cfg.Qdrant.RequestTimeout,
		MaxMessageSize: cfg.Qdrant.MaxMessageSize,
		MaxRetries:     cfg.Qdrant.MaxRetries,
	}, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}

	engine, err := memory.NewEngine(memory.EngineConfig{
		Embedder: memory.EmbedderIdentity{
			Name: cfg.Embedder.Name,
			Size: cfg.Embedder.Size,
		},
		Collections:      collections,
		PersistSnapshots: cfg.Snapshots.Persist,
		SnapshotFolder:   cfg.Snapshots.Folder,
	}, backend, logger)
	if err != nil {
		_ = backend.Close()
		_ = logger.Sync()
		return nil, nil, nil, err
	}

	cleanup := func() {
		_ = engine.Close()
		_ = logger.Sync()
	}
	return engine, cfg, cleanup, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	engine, _, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := engine.InitializeAll(context.Background()); err != nil {
		return err
	}

	for _, collection := range engine.Collections() {
		fmt.Printf("collection %s ready\n", collection)
	}
	return nil
}

func runDestroyTenant(cmd *cobra.Command, args []string) error {
	tn := tenant.Info{ID: args[0]}
	if err := tn.Validate(); err != nil {
		return err
	}

	engine, _, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := engine.DestroyTenant(context.Background(), tn); err != nil {
		return err
	}

	fmt.Printf("tenant %s data removed from %d collections\n", tn.ID, len(engine.Collections()))
	return nil
}

func runCount(cmd *cobra.Command, args []string) error {
	tn := tenant.Info{ID: args[0]}
	if err := tn.Validate(); err != nil {
		return err
	}

	engine, _, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	var total uint64
	for _, collection := range engine.Collections() {
		count, err := engine.Store().Count(ctx, tn, collection)
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %d\n", collection, count)
		total += count
	}
	fmt.Printf("%-24s %d\n", "total", total)
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	engine, cfg, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	for _, collection := range engine.Collections() {
		if err := engine.Snapshotter().SaveDump(ctx, collection, cfg.Snapshots.Folder); err != nil {
			return err
		}
		fmt.Printf("collection %s exported to %s\n", collection, cfg.Snapshots.Folder)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	engine, _, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := engine.Health(context.Background()); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}
