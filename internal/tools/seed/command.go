package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/config"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/database"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/repository"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/service"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/tools/common"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/tools/ui"
)

type options struct {
	ci      bool
	envFile string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "seed",
		Short:         "Bootstrap and maintain operator-managed accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "print machine-readable JSON instead of the terminal view")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "environment file to load before reading config")

	root.AddCommand(newApplyCommand(opts), newDryRunCommand(opts), newCreateUserCommand(opts), newResetPasswordCommand(opts))
	return root
}

func newApplyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Create the bootstrap admin if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed", "apply", func(ctx context.Context) ([]string, error) {
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				report, err := database.SeedSync(db, cfg)
				if err != nil {
					return nil, err
				}
				if report.Noop {
					return []string{"no changes"}, nil
				}
				return []string{"created admin " + report.AdminEmail}, nil
			})
			return err
		},
	}
}

func newDryRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Show what apply would change",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed", "dry-run", func(ctx context.Context) ([]string, error) {
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				if cfg.BootstrapAdminEmail == "" {
					return []string{"no bootstrap admin configured"}, nil
				}
				var count int64
				if err := db.Model(&domain.User{}).Where("role = ?", domain.RoleAdmin).Count(&count).Error; err != nil {
					return nil, err
				}
				if count > 0 {
					return []string{"admin exists, apply would be a no-op"}, nil
				}
				return []string{"apply would create admin " + cfg.BootstrapAdminEmail}, nil
			})
			return err
		},
	}
}

func newCreateUserCommand(opts *options) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a member account with a generated initial password",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed", "create-user", func(ctx context.Context) ([]string, error) {
				if email == "" {
					return nil, errors.New("--email is required")
				}
				if name == "" {
					return nil, errors.New("--name is required")
				}
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				svc := service.NewUserService(
					repository.NewUserRepository(db),
					repository.NewRefreshTokenRepository(db),
					security.NewPasswordHasher(cfg.BcryptCost),
					slog.Default(),
				)
				user, password, err := svc.Create(email, name, domain.RoleMember)
				if err != nil {
					return nil, err
				}
				return []string{
					fmt.Sprintf("created member %s (id %d)", user.Email, user.ID),
					"initial password: " + password,
				}, nil
			})
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newResetPasswordCommand(opts *options) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Replace a user's password by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed", "reset-password", func(ctx context.Context) ([]string, error) {
				if email == "" {
					return nil, errors.New("--email is required")
				}
				if password == "" {
					return nil, errors.New("--password is required")
				}
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				hash, err := security.NewPasswordHasher(cfg.BcryptCost).Hash(password)
				if err != nil {
					return nil, err
				}
				if err := database.ResetPassword(db, email, hash); err != nil {
					return nil, err
				}
				return []string{"password reset for " + email}, nil
			})
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email address")
	cmd.Flags().StringVar(&password, "password", "", "new plaintext password to hash and store")
	return cmd
}

func run(opts *options, tool, verb string, action func(context.Context) ([]string, error)) ([]string, error) {
	title := tool + " " + verb
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if opts.ci {
		details, err := action(ctx)
		common.PrintCIResult(err == nil, title, details, err)
		return details, err
	}
	return ui.Run(ctx, title, action)
}

func loadConfigDB(envFile string) (*config.Config, *gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, db, nil
}
