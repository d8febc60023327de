package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/config"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/database"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/tools/common"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/tools/ui"
)

type options struct {
	ci      bool
	envFile string
	timeout time.Duration
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "print machine-readable JSON instead of the terminal view")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "environment file to load before reading config")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall operation timeout")

	root.AddCommand(newUpCommand(opts), newStatusCommand(opts), newPlanCommand(opts))
	return root
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply the schema to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate", "up", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				if err := database.Migrate(db); err != nil {
					return nil, err
				}
				return tableDetails(db), nil
			})
			return err
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate", "status", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				return tableDetails(db), nil
			})
			return err
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show what an up run would create",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate", "plan", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				var details []string
				for name, model := range schemaModels() {
					if db.Migrator().HasTable(model) {
						continue
					}
					details = append(details, "would create "+name)
				}
				if len(details) == 0 {
					details = []string{"schema up to date"}
				}
				return details, nil
			})
			return err
		},
	}
}

func run(opts *options, tool, verb string, action func(context.Context) ([]string, error)) ([]string, error) {
	title := tool + " " + verb
	ctx := context.Background()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

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

func schemaModels() map[string]any {
	return map[string]any{
		"users":          &domain.User{},
		"refresh_tokens": &domain.RefreshToken{},
		"todos":          &domain.Todo{},
	}
}

func tableDetails(db *gorm.DB) []string {
	details := make([]string, 0, 3)
	for name, model := range schemaModels() {
		state := "missing"
		if db.Migrator().HasTable(model) {
			state = "present"
		}
		details = append(details, name+": "+state)
	}
	return details
}
