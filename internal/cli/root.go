// Package cli implements the command-line interface for doclink.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kilupskalvis/doclink/internal/config"
	"github.com/kilupskalvis/doclink/internal/core"
	"github.com/kilupskalvis/doclink/internal/link"
	"github.com/kilupskalvis/doclink/internal/remote"
	"github.com/kilupskalvis/doclink/internal/replica"
	"github.com/kilupskalvis/doclink/internal/schema"
	"github.com/kilupskalvis/doclink/internal/store"
	"github.com/kilupskalvis/doclink/internal/weaviate"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config   *config.Config
	Logger   *zap.Logger
	Schema   *schema.Schema
	Offline  *store.Store
	Replica  *replica.Store
	Client   *core.Client
	Weaviate *weaviate.Link
	Fallback *link.FallbackLink
	// ReplicaLink is nil when no doctype is replicated.
	ReplicaLink *link.ReplicaLink
	// Upstream is the part of the chain behind the replica.
	Upstream link.Forward
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Offline != nil {
		c.Offline.Close()
	}
	if c.Replica != nil {
		c.Replica.Close()
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
}

// loadSchema reads the configured schema file, if any.
func loadSchema(cfg *config.Config) (*schema.Schema, error) {
	s := schema.New(nil)
	if cfg.SchemaPath() == "" {
		return s, nil
	}
	def, err := schema.LoadFile(cfg.SchemaPath())
	if err != nil {
		return nil, err
	}
	if err := s.Add(def); err != nil {
		return nil, err
	}
	return s, nil
}

// initContext loads the configuration and builds the link chain:
// weaviate, replica, offline fallback, then the stack.
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	logger, err := cfg.Logger()
	if err != nil {
		exitError("%v", err)
	}
	ctx := &cmdContext{Config: cfg, Logger: logger}

	ctx.Schema, err = loadSchema(cfg)
	if err != nil {
		ctx.Close()
		exitError("failed to load schema: %v", err)
	}

	var links []link.Link
	if len(cfg.WeaviateDoctypes) > 0 {
		client, err := weaviate.NewClient(cfg.WeaviateURL)
		if err != nil {
			ctx.Close()
			exitError("failed to create Weaviate client: %v", err)
		}
		ctx.Weaviate = weaviate.NewLink(client, cfg.WeaviateDoctypes,
			weaviate.WithCursor(cfg.SupportsCursorPagination()),
			weaviate.WithLogger(logger.Named("weaviate")))
		links = append(links, ctx.Weaviate)
	}

	ctx.Replica, err = replica.Open(cfg.ReplicaPath(), logger.Named("replica"))
	if err != nil {
		ctx.Close()
		exitError("failed to open replica: %v", err)
	}
	if len(cfg.ReplicaDoctypes) > 0 {
		ctx.ReplicaLink = link.NewReplicaLink(ctx.Replica, cfg.ReplicaDoctypes, logger.Named("replica"))
		links = append(links, ctx.ReplicaLink)
	}

	ctx.Offline, err = store.Open(cfg.OfflinePath())
	if err != nil {
		ctx.Close()
		exitError("failed to open store: %v", err)
	}

	var upstream []link.Link
	if len(cfg.OfflineDoctypes) > 0 {
		ctx.Fallback = link.NewFallbackLink(ctx.Offline, cfg.OfflineDoctypes,
			link.WithFallbackLogger(logger.Named("offline")))
		upstream = append(upstream, ctx.Fallback)
	}
	upstream = append(upstream, link.NewStackLink(remote.NewHTTPClient(cfg.StackURL), logger.Named("stack")))
	ctx.Upstream = link.Chain(upstream...)
	links = append(links, upstream...)

	client, err := core.NewClient(core.Options{Links: links, Schema: ctx.Schema, Logger: logger})
	if err != nil {
		ctx.Close()
		exitError("%v", err)
	}
	ctx.Schema.SetChecker(client)
	ctx.Client = client

	return ctx
}

var rootCmd = &cobra.Command{
	Use:   "doclink",
	Short: "Query and relate documents of a document stack",
	Long: `doclink queries and mutates typed documents stored on a document stack,
resolving the relationships declared in a schema file. Doctypes can be
served from a local replica, an offline cache or a Weaviate instance.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(validateCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
