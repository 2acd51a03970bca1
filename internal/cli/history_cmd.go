package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/3mpowered/dataverse-convenience/internal/history"
)

func newAuditingHistoryCmd() *cobra.Command {
	var (
		solution string
		limit    int
		runID    string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded enable and disable runs",
		Long: "List recorded enable and disable runs, newest first. With --run the stored\n" +
			"report of that run is rendered instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadLocalConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return errors.New("run history is not enabled (set history.enabled)")
			}
			dbx, err := openHistory(cmd.Context(), &cfg.History.Database)
			if err != nil {
				return err
			}
			defer dbx.Close()

			repo := history.NewRepository(dbx)
			p := newPrinter(cmd.OutOrStdout())

			if runID == "" {
				runs, err := repo.List(cmd.Context(), solution, limit)
				if err != nil {
					return err
				}
				p.runs(runs)
				return nil
			}

			id, err := uuid.Parse(runID)
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", runID, err)
			}
			run, err := repo.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", id)
			}
			report, err := run.DecodeReport()
			if err != nil {
				return err
			}
			p.success("Run %s: %s of solution %s on %s at %s", run.ID, run.Operation, run.Solution,
				run.Environment, run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			p.println()
			p.changes(run.Operation, report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&solution, "solution", "s", "", "Only show runs of this solution")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the report of one run")
	return cmd
}
