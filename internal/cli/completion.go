package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/doclink/internal/config"
	"github.com/kilupskalvis/doclink/internal/schema"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate a shell completion script for doclink. Doctypes and
relationship names are completed from the schema_file of the project.

  $ source <(doclink completion bash)
  $ doclink completion zsh > "${fpath[1]}/_doclink"
  $ doclink completion fish > ~/.config/fish/completions/doclink.fish`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		default:
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
	queryCmd.ValidArgsFunction = completeDoctypes
	_ = queryCmd.RegisterFlagCompletionFunc("include", completeRelationships)
}

// completionSchema loads the project schema without exiting on failure;
// completion must stay silent outside a project.
func completionSchema() *schema.Schema {
	cfg, err := config.Load()
	if err != nil || cfg.SchemaPath() == "" {
		return nil
	}
	def, err := schema.LoadFile(cfg.SchemaPath())
	if err != nil {
		return nil
	}
	s := schema.New(nil)
	if err := s.Add(def); err != nil {
		return nil
	}
	return s
}

func completeDoctypes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	s := completionSchema()
	if s == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var doctypes []string
	for _, ds := range s.Doctypes() {
		if strings.HasPrefix(ds.Doctype, toComplete) {
			doctypes = append(doctypes, ds.Doctype)
		}
	}
	sort.Strings(doctypes)
	return doctypes, cobra.ShellCompDirectiveNoFileComp
}

func completeRelationships(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	s := completionSchema()
	if s == nil || len(args) == 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ds, err := s.GetDoctypeSchema(args[0])
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var names []string
	for _, name := range ds.RelationshipNames() {
		if strings.HasPrefix(name, toComplete) {
			names = append(names, name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
