package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/doclink/internal/core"
	"github.com/kilupskalvis/doclink/internal/models"
	"github.com/kilupskalvis/doclink/internal/query"
)

var queryCmd = &cobra.Command{
	Use:   "query <doctype>",
	Short: "Query documents of a doctype",
	Long: `Query documents of a doctype, optionally including related documents
declared in the schema.

Examples:
  doclink query io.cozy.files --id f1 --include albums
  doclink query io.cozy.triggers --where worker=konnector --sort -_id --limit 10`,
	Args: cobra.ExactArgs(1),
	Run:  runQuery,
}

var (
	queryIDs      []string
	queryWhere    []string
	queryIncludes []string
	querySort     []string
	queryFields   []string
	queryLimit    int
	querySkip     int
	queryJSON     bool
)

func init() {
	f := queryCmd.Flags()
	f.StringArrayVar(&queryIDs, "id", nil, "Document id, repeat for multiple")
	f.StringArrayVar(&queryWhere, "where", nil, "Equality condition field=value, repeat for multiple")
	f.StringArrayVar(&queryIncludes, "include", nil, "Relationship to include, repeat for multiple")
	f.StringArrayVar(&querySort, "sort", nil, "Sort field, prefix with - for descending")
	f.StringArrayVar(&queryFields, "field", nil, "Attribute to return, repeat for multiple")
	f.IntVar(&queryLimit, "limit", 0, "Maximum number of documents")
	f.IntVar(&querySkip, "skip", 0, "Number of documents to skip")
	f.BoolVar(&queryJSON, "json", false, "Print the raw response as JSON")
}

// buildDefinition turns command line flags into a query definition.
func buildDefinition(doctype string, ids, where, sortFields, fields []string, limit, skip int, includes []string) (*query.Definition, error) {
	var def *query.Definition
	switch len(ids) {
	case 0:
		def = query.All(doctype)
	case 1:
		def = query.Get(doctype, ids[0])
	default:
		def = query.GetByIDs(doctype, ids...)
	}

	if len(where) > 0 {
		selector := make(query.Selector, len(where))
		for _, cond := range where {
			field, raw, ok := strings.Cut(cond, "=")
			if !ok || field == "" {
				return nil, fmt.Errorf("invalid condition %q, expected field=value", cond)
			}
			selector[field] = parseValue(raw)
		}
		def = def.Where(selector)
	}

	if len(sortFields) > 0 {
		sf := make([]query.SortField, 0, len(sortFields))
		for _, s := range sortFields {
			if name, desc := strings.CutPrefix(s, "-"); desc {
				sf = append(sf, query.SortField{Field: name, Desc: true})
			} else {
				sf = append(sf, query.SortField{Field: s})
			}
		}
		def = def.SortBy(sf...)
	}

	if len(fields) > 0 {
		def = def.Select(fields...)
	}
	if limit > 0 {
		def = def.LimitBy(limit)
	}
	if skip > 0 {
		def = def.OffsetBy(skip)
	}
	if len(includes) > 0 {
		def = def.Include(includes...)
	}
	return def, def.Validate()
}

// parseValue reads JSON scalars (numbers, booleans, quoted strings) and
// falls back to the raw string.
func parseValue(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		switch v.(type) {
		case float64, bool, string, nil:
			return v
		}
	}
	return raw
}

func runQuery(cmd *cobra.Command, args []string) {
	cc := initContext()
	defer cc.Close()

	def, err := buildDefinition(args[0], queryIDs, queryWhere, querySort, queryFields, queryLimit, querySkip, queryIncludes)
	if err != nil {
		exitError("%v", err)
	}

	resp, err := cc.Client.Query(context.Background(), def)
	if err != nil {
		exitError("query failed: %v", err)
	}

	if queryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			exitError("%v", err)
		}
		return
	}

	printResponse(cc.Client, resp)
}

func printResponse(client *core.Client, resp *models.Response) {
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if len(resp.Data) == 0 {
		fmt.Println("No documents found")
		return
	}

	hydrated, err := client.HydrateAll(resp)
	if err != nil {
		// Undeclared doctype: print the documents alone.
		hydrated = make([]*core.HydratedDocument, len(resp.Data))
		for i, doc := range resp.Data {
			hydrated[i] = &core.HydratedDocument{Document: doc}
		}
	}

	for _, doc := range hydrated {
		yellow.Printf("%s %s", doc.Type, doc.ID)
		if doc.Rev != "" {
			fmt.Printf(" (rev %s)", shortID(doc.Rev))
		}
		fmt.Println()

		keys := make([]string, 0, len(doc.Attributes))
		for k := range doc.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			val, _ := json.Marshal(doc.Attributes[k])
			fmt.Printf("    %s: %s\n", k, val)
		}

		names := make([]string, 0, len(doc.Relations))
		for name := range doc.Relations {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			related := doc.Relations[name]
			cyan.Printf("    %s", name)
			ids := make([]string, len(related))
			for i, r := range related {
				ids[i] = r.ID
			}
			fmt.Printf(" -> [%s]\n", strings.Join(ids, ", "))
		}
	}

	if resp.Meta != nil {
		fmt.Printf("\n%d of %d documents", len(resp.Data), resp.Meta.Count)
		if resp.Next {
			fmt.Printf(", more after skip=%d", resp.Skip+len(resp.Data))
		}
		fmt.Println()
	}
	if len(resp.Included) > 0 {
		fmt.Printf("%d related documents included\n", len(resp.Included))
	}
}
