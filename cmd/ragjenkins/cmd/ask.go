package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentoven/ragjenkins/pkg/models"
)

var askCmd = &cobra.Command{
	Use:   "ask [instruction]",
	Short: "Run the agent on an instruction",
	Long: `Run the agent against the collection. It searches the code and, when
Jenkins is configured, may create the job, trigger a build and read its
console before answering.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, _ := cmd.Flags().GetString("job")

		ctx := cmd.Context()
		srv, coll, err := openCollection(ctx)
		if err != nil {
			return err
		}
		defer srv.ShutdownFunc(ctx)

		turn, err := srv.Handlers.Agent(coll).Run(ctx, models.AgentRunRequest{
			Instruction: strings.Join(args, " "),
			JobName:     job,
		})
		printTurn(cmd, turn)
		return err
	},
}

func printTurn(cmd *cobra.Command, turn *models.AgentTurn) {
	if turn == nil {
		return
	}
	for i, inv := range turn.Invocations {
		icon := colorGreen + "✓" + colorReset
		if inv.IsError {
			icon = colorRed + "✗" + colorReset
		}
		cmd.Printf("%s %s%d. %s%s %s(%dms)%s\n", icon, colorBold, i+1, inv.Tool, colorReset, colorDim, inv.LatencyMs, colorReset)
	}
	if len(turn.Invocations) > 0 {
		cmd.Println("──────────────────────────────")
	}
	if turn.FinalAnswer != "" {
		cmd.Println(turn.FinalAnswer)
	}
	cmd.Printf("%s%s · %d iterations · %dms%s\n", colorDim, turn.State, turn.Iterations, turn.TotalMs, colorReset)
}

func init() {
	askCmd.Flags().StringP("job", "j", "", "Jenkins job name (default from JENKINS_DEFAULT_JOB)")
	rootCmd.AddCommand(askCmd)
}
