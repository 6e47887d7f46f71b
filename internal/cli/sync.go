package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull replicated doctypes and report local stores",
	Long: `Pull every document of the replica_doctypes from the stack into the
local replica, replacing its content. Afterwards queries on these doctypes
are served locally.

With --reset-offline the stored offline responses are dropped first.`,
	Run: runSync,
}

var (
	syncResetOffline bool
	syncStatusOnly   bool
)

func init() {
	syncCmd.Flags().BoolVar(&syncResetOffline, "reset-offline", false, "Drop stored offline responses")
	syncCmd.Flags().BoolVar(&syncStatusOnly, "status", false, "Only report the local stores")
}

func runSync(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cc := initContext()
	defer cc.Close()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if syncResetOffline && cc.Fallback != nil {
		if err := cc.Fallback.Reset(); err != nil {
			exitError("failed to reset offline responses: %v", err)
		}
		green.Println("Offline responses dropped")
	}

	if !syncStatusOnly && cc.ReplicaLink != nil {
		counts, err := cc.ReplicaLink.Pull(ctx, cc.Upstream)
		if err != nil {
			exitError("sync failed: %v", err)
		}
		for _, doctype := range sortedKeys(counts) {
			green.Printf("pulled ")
			fmt.Printf("%s: %d documents\n", doctype, counts[doctype])
		}
	}

	fmt.Println("\nReplica:")
	for _, doctype := range cc.Config.ReplicaDoctypes {
		state, err := cc.Replica.SyncState(ctx, doctype)
		if err != nil {
			exitError("%v", err)
		}
		if state == nil {
			yellow.Printf("    %s: never synced\n", doctype)
			continue
		}
		fmt.Printf("    %s: %d documents, synced %s\n", doctype, state.Count, state.SyncedAt.Format("2006-01-02 15:04:05"))
	}

	counts, err := cc.Offline.ResponseCounts()
	if err != nil {
		exitError("%v", err)
	}
	fmt.Println("\nOffline responses:")
	for _, doctype := range cc.Config.OfflineDoctypes {
		at, err := cc.Offline.LastOnline(doctype)
		if err != nil {
			exitError("%v", err)
		}
		if at.IsZero() {
			yellow.Printf("    %s: %d, never online\n", doctype, counts[doctype])
			continue
		}
		fmt.Printf("    %s: %d, last online %s\n", doctype, counts[doctype], at.Local().Format("2006-01-02 15:04:05"))
	}

	if cc.Weaviate != nil {
		fmt.Println("\nWeaviate:")
		for _, doctype := range cc.Config.WeaviateDoctypes {
			n, err := cc.Weaviate.Count(ctx, doctype)
			if err != nil {
				yellow.Printf("    %s: %v\n", doctype, err)
				continue
			}
			fmt.Printf("    %s: %d documents\n", doctype, n)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
