package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/api"
	"github.com/JakeFAU/profile-refinery/internal/app"
	"github.com/JakeFAU/profile-refinery/internal/config"
	"github.com/JakeFAU/profile-refinery/internal/logging"
	"github.com/JakeFAU/profile-refinery/internal/storage"
	"github.com/JakeFAU/profile-refinery/internal/store"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what commands need from the service container. It lets tests
// inject a fake.
type App interface {
	Close(ctx context.Context)
	Logger() *zap.Logger
	Config() config.Config
	Store() store.Store
	Runner() api.Runner
	Export(ctx context.Context, dest string) (storage.Snapshot, error)
}

type appAdapter struct {
	*app.App
}

func (a appAdapter) Runner() api.Runner { return a.Controller() }

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return appAdapter{a}, nil
}

// session remembers the App built for the current invocation so it is
// closed even when a command fails; cobra skips post-run hooks on error.
type session struct {
	app App
}

func (s *session) close(ctx context.Context) {
	if s.app != nil {
		s.app.Close(ctx)
		s.app = nil
	}
}

func newRootCmd(sess *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refinery",
		Short: "Discover, score and enrich practitioner profiles.",
		Long: `refinery turns a list of practitioner names into scored profiles.
Each name is searched, fetched and extracted with a language model; profiles
below the verification threshold are enriched by targeted hunts for the
fields they are missing.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			sess.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); REFINERY_* env vars override it")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRecordsCmd())
	cmd.AddCommand(newWipeCmd())
	cmd.AddCommand(newExportCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func execute(ctx context.Context, args []string, stdout io.Writer) error {
	sess := &session{}
	defer sess.close(context.WithoutCancel(ctx))
	root := newRootCmd(sess)
	root.SetArgs(args)
	root.SetOut(stdout)
	return root.ExecuteContext(ctx)
}

// Execute is the main entry point.
func Execute() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
