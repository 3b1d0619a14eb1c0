package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentoven/ragjenkins/internal/index"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the indexed code",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("top-k")

		ctx := cmd.Context()
		srv, coll, err := openCollection(ctx)
		if err != nil {
			return err
		}
		defer srv.ShutdownFunc(ctx)

		hits, err := coll.Search(ctx, strings.Join(args, " "), k)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			cmd.Println("No results. Is the collection indexed?")
			return nil
		}
		for i, h := range hits {
			cmd.Printf("%s%d. %s%s %s(chunk %d, score %.3f)%s\n", colorBold, i+1, h.Chunk.SourcePath, colorReset,
				colorDim, h.Chunk.SequenceIndex, h.Score, colorReset)
			cmd.Println(indent(strings.TrimRight(h.Chunk.Content, "\n")))
		}
		return nil
	},
}

func indent(text string) string {
	return "    " + strings.ReplaceAll(text, "\n", "\n    ")
}

func init() {
	searchCmd.Flags().IntP("top-k", "k", index.DefaultTopK, "number of results")
	rootCmd.AddCommand(searchCmd)
}
