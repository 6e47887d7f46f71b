package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/doclink/internal/config"
	"github.com/kilupskalvis/doclink/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [file]",
	Short: "Show the declared doctypes and relationships",
	Long: `Load a schema file and print its doctypes, unique attributes and
relationships. Without argument the schema_file of the configuration is
used.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := config.Load()
		if err != nil {
			exitError("%v", err)
		}
		path = cfg.SchemaPath()
		if path == "" {
			exitError("no schema_file configured")
		}
	}

	def, err := schema.LoadFile(path)
	if err != nil {
		exitError("%v", err)
	}
	s := schema.New(nil)
	if err := s.Add(def); err != nil {
		exitError("invalid schema: %v", err)
	}

	printSchema(s)
}

func printSchema(s *schema.Schema) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	magenta := color.New(color.FgMagenta)

	for _, ds := range s.Doctypes() {
		cyan.Printf("%s", ds.Name)
		fmt.Printf(" (%s)\n", ds.Doctype)

		attrs := make([]string, 0, len(ds.Attributes))
		for name, attr := range ds.Attributes {
			if attr.Unique {
				attrs = append(attrs, name)
			}
		}
		sort.Strings(attrs)
		for _, name := range attrs {
			fmt.Printf("    %s ", name)
			green.Println("unique")
		}

		for _, name := range ds.RelationshipNames() {
			rel := ds.Relationships[name]
			fmt.Printf("    %s -> %s", name, rel.Doctype)
			if rel.Inverted {
				magenta.Print(" inverted")
			}
			if rel.Type.Forced() {
				magenta.Print(" forced")
			}
			fmt.Println()
		}
	}
}
