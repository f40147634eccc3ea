package main

import (
	"fmt"

	"ecodesk/internal/embedding"
	"ecodesk/internal/ingest"
	"ecodesk/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ingestCmd loads documents into a knowledge collection
var ingestCmd = &cobra.Command{
	Use:   "ingest [collection] [file...]",
	Short: "Chunk and embed documents into a knowledge collection",
	Long: `Splits each document into section and paragraph chunks, embeds them,
and stores them in the named collection of the knowledge store.

Sections are delimited by lines starting with "### SECTION:".

Example:
  ecodesk ingest product data/product_catalog.md
  ecodesk ingest support data/support_faq.md data/returns_policy.md`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	collection := args[0]
	files := args[1:]

	base, err := newEmbeddingEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding engine: %w", err)
	}
	// Documents embed with a different task type than queries do
	engine := embedding.ForDocuments(base)

	ks, err := store.NewKnowledgeStore(cfg.Store.DatabasePath, engine.Dimensions())
	if err != nil {
		return fmt.Errorf("failed to open knowledge store: %w", err)
	}
	defer ks.Close()

	exists, err := ks.HasCollection(cmd.Context(), collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		fmt.Printf("Creating new collection %q\n", collection)
	}

	builder := ingest.NewBuilder(engine, ks)

	total := 0
	for _, path := range files {
		n, err := builder.Ingest(cmd.Context(), collection, path)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		logger.Info("document ingested",
			zap.String("collection", collection),
			zap.String("path", path),
			zap.Int("chunks", n))
		fmt.Printf("✅ %s: %d chunks\n", path, n)
		total += n
	}

	fmt.Printf("\nIngested %d chunks into collection %q\n", total, collection)
	return nil
}
