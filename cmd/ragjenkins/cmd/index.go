package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentoven/ragjenkins/internal/rag"
)

var indexCmd = &cobra.Command{
	Use:   "index [archive.zip]",
	Short: "Index a ZIP archive of source code",
	Long: `Extract the archive, chunk every supported file and store the chunks in the
collection. The collection's previous contents are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		language, _ := cmd.Flags().GetString("language")
		filter, err := rag.ParseLanguageFilter(language)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		ctx := cmd.Context()
		srv, coll, err := openCollection(ctx)
		if err != nil {
			return err
		}
		defer srv.ShutdownFunc(ctx)

		result, err := srv.Handlers.Ingester.IndexArchive(ctx, coll, data, filter)
		if result != nil {
			cmd.Printf("%s\n", result.StatusMessage)
			cmd.Printf("%sCollection:%s %s  %sSkipped:%s %d  %sTime:%s %dms\n",
				colorDim, colorReset, result.Collection,
				colorDim, colorReset, result.FilesSkipped,
				colorDim, colorReset, result.LatencyMs)
		}
		return err
	},
}

func init() {
	indexCmd.Flags().StringP("language", "l", "all", "language filter: all, python, javascript, typescript, java, markdown, text")
	rootCmd.AddCommand(indexCmd)
}
