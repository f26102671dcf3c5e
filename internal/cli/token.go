package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"quiz-nexus-service/internal/config"
	"quiz-nexus-service/internal/domain"
	transport "quiz-nexus-service/internal/transport/http"
)

// NewTokenCmd prints a signed viewer token, for local development and scripts.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a viewer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour)
			}
			auth, err := transport.NewAuthenticator(cfg.Auth.Secret, ttl)
			if err != nil {
				return err
			}
			r := domain.Role(role)
			if r != domain.RoleAdmin && r != domain.RoleUser {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.IssueToken(domain.Viewer{UserID: userID, Role: r})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "admin or user")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
