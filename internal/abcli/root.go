// Package abcli implements abctl, the operator tool for A/B tests kept in
// a SQLite file: assign and convert clients by hand, read aggregated
// results, reset tests and ship a report to S3.
package abcli

import (
	"context"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/ligadeals/ligadeals-web/internal/abtest"
	"github.com/ligadeals/ligadeals-web/internal/abtest/sqlitestore"
	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// ObjectPutter is the part of the S3 client export needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// App carries what every subcommand shares.
type App struct {
	Config Config
	Out    io.Writer
	In     io.ReadCloser

	// NewS3 builds the upload client; nil uses the default AWS config chain.
	NewS3 func(ctx context.Context) (ObjectPutter, error)

	// Confirm asks before destructive commands; nil uses a promptui prompt.
	Confirm func(label string) (bool, error)

	// NewClientID names a client when assign is run without --client.
	NewClientID func() string

	// Rand replaces the engine's random source, for tests.
	Rand func() float64

	dbPath string
	logger log.Logger
}

// Execute builds the command tree from the environment and runs it.
func Execute(ctx context.Context) error {
	c, err := LoadConfig()
	if err != nil {
		return err
	}
	app := &App{Config: c, Out: os.Stdout, In: os.Stdin}
	return app.Command().ExecuteContext(ctx)
}

// Command returns the abctl root command.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "abctl",
		Short:         "Inspect and manage LigaDeals A/B tests",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", a.Config.DBPath, "database path")
	root.SetOut(a.Out)
	root.SetErr(a.Out)

	root.AddCommand(
		a.assignCmd(),
		a.convertCmd(),
		a.resultsCmd(),
		a.resetCmd(),
		a.exportCmd(),
	)
	return root
}

func (a *App) setup(cmd *cobra.Command) error {
	lvl, err := log.ParseLevel(a.Config.LogLevel)
	if err != nil {
		return xerrors.Wrap(err, "LIGADEALS_LOG_LEVEL")
	}
	a.logger, err = log.New(log.Options{
		App:       "ligadeals-web",
		Component: "abctl",
		Level:     lvl,
		Writer:    cmd.ErrOrStderr(),
	})
	return err
}

// withStore opens the database, runs fn and closes it.
func (a *App) withStore(fn func(*sqlitestore.Store) error) error {
	s, err := sqlitestore.Open(a.dbPath)
	if err != nil {
		return xerrors.Wrapf(err, "open %s", a.dbPath)
	}
	defer s.Close()
	return fn(s)
}

func (a *App) engine(st abtest.Storage) *abtest.Engine {
	opts := []abtest.Option{abtest.WithLogger(a.logger)}
	if a.Rand != nil {
		opts = append(opts, abtest.WithRand(a.Rand))
	}
	return abtest.NewEngine(st, opts...)
}

// forClients runs fn with an engine per client. An empty id means every
// client in the store.
func (a *App) forClients(ctx context.Context, s *sqlitestore.Store, id string, fn func(string, *abtest.Engine) error) error {
	ids := []string{id}
	if id == "" {
		var err error
		if ids, err = s.Clients(ctx); err != nil {
			return err
		}
	}
	for _, cid := range ids {
		if err := fn(cid, a.engine(s.Client(cid))); err != nil {
			return xerrors.Wrapf(err, "client %s", cid)
		}
	}
	return nil
}
