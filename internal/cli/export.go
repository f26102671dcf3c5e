package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-nexus-service/internal/config"
	"quiz-nexus-service/internal/domain"
	"quiz-nexus-service/internal/logging"
	"quiz-nexus-service/internal/report"
)

// NewExportCmd writes every stored result as CSV.
func NewExportCmd(configPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export quiz results as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			store, closeStore, err := openPostgres(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			results, err := store.ListResults(ctx, domain.ResultFilter{})
			if err != nil {
				return err
			}
			quizzes, err := store.ListQuizzes(ctx, domain.QuizFilter{})
			if err != nil {
				return err
			}
			titles := make(map[string]string, len(quizzes))
			for _, q := range quizzes {
				titles[q.ID] = q.Title
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := report.WriteCSV(w, results, titles); err != nil {
				return err
			}
			log.Info("results exported", zap.Int("rows", len(results)), zap.String("out", out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}
