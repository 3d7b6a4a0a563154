package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vbx/internal/credentials"
	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/services"
	"github.com/desertthunder/vbx/internal/shared"
	"github.com/desertthunder/vbx/internal/storage"
	"github.com/urfave/cli/v3"
)

// sessionChecker reads the session behind an account's cookie. [services.LabsClient] implements it.
type sessionChecker interface {
	Session(ctx context.Context, acct *models.Account) (*services.SessionInfo, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	remote     services.RemoteClient
	tokens     credentials.TokenFetcher
	sink       storage.Sink
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Remote     services.RemoteClient    // Defaults to a [services.LabsClient] built from Config
	Tokens     credentials.TokenFetcher // Defaults to Remote when it can fetch tokens
	Sink       storage.Sink             // Defaults to the sink selected by the [storage] section
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Remote == nil {
		opts.Remote = services.NewLabsClientFromConfig(opts.Config.Remote)
	}
	if opts.Tokens == nil {
		if tf, ok := opts.Remote.(credentials.TokenFetcher); ok {
			opts.Tokens = tf
		}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		remote:     opts.Remote,
		tokens:     opts.Tokens,
		sink:       opts.Sink,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the logger used by subsequent commands.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, runCommand, retryCommand, runsCommand, accountsCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before applies the global log level flags.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	switch {
	case cmd.Bool("verbose") && cmd.Bool("quiet"):
		return ctx, fmt.Errorf("%w: --verbose and --quiet are mutually exclusive", shared.ErrInvalidArgument)
	case cmd.Bool("verbose"):
		shared.SetLogLevel(r.logger, log.DebugLevel)
	case cmd.Bool("quiet"):
		shared.SetLogLevel(r.logger, log.WarnLevel)
	}
	return ctx, nil
}

// openDatabase opens the configured database and brings its schema up to date.
func (r *Runner) openDatabase(ctx context.Context) (*sql.DB, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrationsContext(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// loadAccounts resolves every configured account's secret.
func (r *Runner) loadAccounts() ([]*models.Account, error) {
	if len(r.config.Accounts) == 0 {
		return nil, fmt.Errorf("%w: add an [[accounts]] entry to %s", shared.ErrNoAccounts, r.configName())
	}

	accounts := make([]*models.Account, 0, len(r.config.Accounts))
	for _, ac := range r.config.Accounts {
		secret, err := ac.LoadSecret()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, &models.Account{Name: ac.Name, Secret: secret, Proxy: ac.Proxy, Token: ac.Token})
	}
	return accounts, nil
}

func (r *Runner) configName() string {
	if r.configPath == "" {
		return "config"
	}
	return r.configPath
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
