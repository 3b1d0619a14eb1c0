package cmd

import (
	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every chunk from the collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		srv, coll, err := openCollection(ctx)
		if err != nil {
			return err
		}
		defer srv.ShutdownFunc(ctx)

		if err := coll.Clear(ctx); err != nil {
			return err
		}
		cmd.Printf("Collection %q cleared.\n", coll.Name())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
