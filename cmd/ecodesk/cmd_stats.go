package main

import (
	"fmt"

	"ecodesk/internal/store"

	"github.com/spf13/cobra"
)

// statsCmd reports knowledge store contents
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge store collections and passage counts",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ks, err := store.NewKnowledgeStore(cfg.Store.DatabasePath, 0)
	if err != nil {
		return fmt.Errorf("failed to open knowledge store: %w", err)
	}
	defer ks.Close()

	collections, err := ks.Collections(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	if len(collections) == 0 {
		fmt.Println("Knowledge store is empty. Run 'ecodesk ingest' first.")
		return nil
	}

	fmt.Printf("Knowledge store: %s\n\n", cfg.Store.DatabasePath)
	for _, name := range collections {
		count, err := ks.Count(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("failed to count %s: %w", name, err)
		}
		fmt.Printf("  %-12s %d passages\n", name, count)
	}
	return nil
}
