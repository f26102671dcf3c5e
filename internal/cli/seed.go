package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-nexus-service/internal/config"
	"quiz-nexus-service/internal/infra/postgres"
	"quiz-nexus-service/internal/logging"
	"quiz-nexus-service/internal/seed"
)

// NewSeedCmd inserts the demo quizzes into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo quizzes",
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
			if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
				return err
			}
			store, closeStore, err := openPostgres(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			for _, quiz := range seed.DemoQuizzes(author) {
				inserted, err := store.InsertQuiz(ctx, quiz)
				if errors.Is(err, postgres.ErrQuizExists) {
					log.Info("quiz already seeded", zap.String("quiz_id", quiz.ID))
					continue
				}
				if err != nil {
					log.Error("insert quiz failed", zap.String("title", quiz.Title), zap.Error(err))
					continue
				}
				log.Info("inserted quiz", zap.String("quiz_id", inserted.ID), zap.String("title", inserted.Title))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "system", "user id recorded as the quizzes' author")
	return cmd
}
