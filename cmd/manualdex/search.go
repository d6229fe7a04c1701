package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/search"
)

var (
	searchTopK     int
	searchDocIDs   []string
	searchTextOnly bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the published index",
	Long: `Embeds the query, resolves any product codes in it to a document filter
and prints the reranked hits as JSON. Appearance questions also get a
figure-only supplement.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "number of hits to return (default from config)")
	searchCmd.Flags().StringArrayVar(&searchDocIDs, "doc-id", nil, "restrict to these document ids (repeatable)")
	searchCmd.Flags().BoolVar(&searchTextOnly, "text-only", false, "drop figure chunks from the hits")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	session, err := newSession()
	if err != nil {
		return err
	}

	var typeFilter domain.ChunkType
	if searchTextOnly {
		typeFilter = domain.ChunkText
	}

	turn, err := session.Search(cmd.Context(), args[0], search.Options{
		TopK:       searchTopK,
		TypeFilter: typeFilter,
		DocIDs:     searchDocIDs,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	data, err := json.MarshalIndent(turn, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
