package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/doclink/internal/models"
)

var validateCmd = &cobra.Command{
	Use:   "validate <document.json>",
	Short: "Validate a document against the schema",
	Long: `Validate a JSON document against the attribute declarations of its
doctype. Unique attributes are checked against the stack.`,
	Args: cobra.ExactArgs(1),
	Run:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		exitError("%v", err)
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		exitError("invalid document: %v", err)
	}
	if doc.Type == "" {
		exitError("document has no _type")
	}

	cc := initContext()
	defer cc.Close()

	errs, err := cc.Client.Validate(context.Background(), &doc)
	if err != nil {
		exitError("validation failed: %v", err)
	}

	if len(errs) == 0 {
		color.New(color.FgGreen).Printf("%s is valid\n", doc.Key())
		return
	}

	red := color.New(color.FgRed)
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		red.Printf("    %s ", name)
		fmt.Println(errs[name])
	}
	cc.Close()
	os.Exit(1)
}
