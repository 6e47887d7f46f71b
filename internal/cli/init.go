package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kilupskalvis/doclink/internal/config"
	"github.com/kilupskalvis/doclink/internal/replica"
	"github.com/kilupskalvis/doclink/internal/schema"
	"github.com/kilupskalvis/doclink/internal/store"
	"github.com/kilupskalvis/doclink/internal/weaviate"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new doclink project",
	Long: `Initialize a new doclink project in the current directory.
This creates a .doclink directory holding the configuration, the offline
response store and the local replica.

When --schema names a file that does not exist yet, a starter schema
relating files and photo albums is written there.`,
	Run: runInit,
}

var (
	initStackURL    string
	initWeaviateURL string
	initSchemaFile  string
)

func init() {
	initCmd.Flags().StringVar(&initStackURL, "url", "http://localhost:8080", "Stack server URL")
	initCmd.Flags().StringVar(&initWeaviateURL, "weaviate-url", "", "Weaviate server URL")
	initCmd.Flags().StringVar(&initSchemaFile, "schema", "", "Schema file, relative to the project directory")
}

// starterSchema is written by init --schema when the file is missing.
var starterSchema = schema.Definition{
	"files": {
		Doctype:    "io.cozy.files",
		Attributes: map[string]schema.AttributeDefinition{"name": {Unique: true}},
		Relationships: map[string]schema.RelationshipDefinition{
			"albums": {Type: "referenced-by", Doctype: "io.cozy.photos.albums", Inverted: true},
		},
	},
	"albums": {
		Doctype: "io.cozy.photos.albums",
		Relationships: map[string]schema.RelationshipDefinition{
			"photos": {Type: "has-many", Doctype: "io.cozy.files"},
		},
	},
}

func runInit(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	yellow := color.New(color.FgYellow)

	if _, err := config.FindRoot(); err == nil {
		exitError("doclink project already exists")
	}

	fmt.Printf("Initializing doclink project...\n")
	fmt.Printf("Stack URL: %s\n", initStackURL)

	var serverVersion string
	if initWeaviateURL != "" {
		version, err := detectWeaviate(ctx, initWeaviateURL)
		switch {
		case err != nil && version == nil:
			exitError("%v", err)
		case err != nil:
			yellow.Printf("Warning: could not detect Weaviate version: %v\n", err)
		default:
			serverVersion = version.Version
			fmt.Printf("Weaviate version: %s\n", version.Version)
			if !version.SupportsCursor() {
				yellow.Printf("Warning: Weaviate < 1.18, listing classes with offset pagination\n")
			}
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}
	cfg, err := config.Initialize(cwd, initStackURL)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}
	cfg.WeaviateURL = initWeaviateURL
	cfg.ServerVersion = serverVersion
	cfg.SchemaFile = initSchemaFile
	if err := cfg.Save(); err != nil {
		exitError("failed to save config: %v", err)
	}

	if path := cfg.SchemaPath(); path != "" {
		written, err := writeStarterSchema(path)
		if err != nil {
			exitError("failed to write schema: %v", err)
		}
		if written {
			fmt.Printf("Wrote starter schema to %s\n", initSchemaFile)
		}
	}

	st, err := store.Open(cfg.OfflinePath())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	rep, err := replica.Open(cfg.ReplicaPath(), nil)
	if err != nil {
		exitError("failed to create replica: %v", err)
	}
	defer rep.Close()

	color.New(color.FgGreen).Printf("\nInitialized doclink project in %s/\n", config.DoclinkDir)
	fmt.Printf("Add replica_doctypes, offline_doctypes or weaviate_doctypes to %s/%s to route doctypes locally.\n",
		config.DoclinkDir, config.ConfigFile)
}

// detectWeaviate checks the instance is live and reads its version. A nil
// version with an error means the instance cannot be used at all.
func detectWeaviate(ctx context.Context, url string) (*weaviate.ServerVersion, error) {
	client, err := weaviate.NewClient(url)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Connecting to Weaviate...\n")
	if err := client.Ping(ctx); err != nil {
		return nil, err
	}
	version, err := client.GetServerVersion(ctx)
	if err != nil {
		return &weaviate.ServerVersion{}, err
	}
	return version, nil
}

// writeStarterSchema writes starterSchema to path unless a file exists there.
func writeStarterSchema(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	data, err := yaml.Marshal(starterSchema)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	return true, os.WriteFile(path, data, 0644)
}
