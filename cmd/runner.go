package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/ui"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	registry    *services.Registry
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	palette     *ui.Palette
	openBrowser func(string) error

	tokenMu sync.Mutex
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from the --config flag before each command runs.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Registry    *services.Registry
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Palette     *ui.Palette
	OpenBrowser func(string) error
}

func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Registry == nil {
		opts.Registry = services.DefaultRegistry()
	}
	if opts.Palette == nil {
		opts.Palette = ui.Default
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		registry:    opts.Registry,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		palette:     opts.Palette,
		openBrowser: opts.OpenBrowser,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, pullCommand, syncCommand, snapshotsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration and applies --verbose. A missing config file means defaults.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	missing := false
	if r.config == nil {
		config, err := shared.LoadConfig(r.configPath)
		switch {
		case err == nil:
			r.config = config
		case errors.Is(err, shared.ErrMissingConfig):
			missing = true
			r.config = shared.DefaultConfig()
		default:
			return ctx, err
		}
	}

	if err := shared.ConfigureLogger(r.logger, r.config.Log); err != nil {
		return ctx, err
	}
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if missing {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}
	return ctx, nil
}

// openDatabase opens the configured database and brings its schema up to date.
func (r *Runner) openDatabase() (*sql.DB, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func (r *Runner) deps(matchPercentage int) services.Deps {
	return services.Deps{
		Config:          r.config,
		HTTPClient:      r.httpClient,
		Logger:          r.logger,
		MatchPercentage: matchPercentage,
		OnToken:         r.saveToken,
	}
}

// saveToken persists a refreshed token of service so the next run does not need to reauthorize.
func (r *Runner) saveToken(service string, tok *oauth2.Token) {
	r.tokenMu.Lock()
	defer r.tokenMu.Unlock()

	stored := r.config.Credentials.OAuth(service)
	if stored == nil {
		r.logger.Warn("dropping token of a service without OAuth", "service", service)
		return
	}
	stored.Update(tok)
	if r.configPath == "" {
		return
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		r.logger.Warn("failed to save refreshed token", "service", service, "error", err)
		return
	}
	r.logger.Debug("saved refreshed token", "service", service, "path", r.configPath)
}

// client builds the client for service and resolves its account when none was given.
func (r *Runner) client(ctx context.Context, service, account string) (services.Client, string, error) {
	client, err := r.registry.Client(service, account, r.deps(0))
	if err != nil {
		return nil, "", err
	}
	if account == "" {
		if account, err = client.Account(ctx); err != nil {
			return nil, "", fmt.Errorf("failed to resolve %s account: %w", service, err)
		}
	}
	return client, account, nil
}

// retention starts from the [retention] section and applies any --keep-* flag that was set.
func (r *Runner) retention(cmd *cli.Command) models.RetentionPolicy {
	policy := r.config.Retention
	for flag, field := range map[string]*int{
		"keep-hourly":  &policy.KeepHourly,
		"keep-daily":   &policy.KeepDaily,
		"keep-weekly":  &policy.KeepWeekly,
		"keep-monthly": &policy.KeepMonthly,
		"keep-yearly":  &policy.KeepYearly,
	} {
		if cmd.IsSet(flag) {
			*field = int(cmd.Int(flag))
		}
	}
	return policy
}

func serviceArg(cmd *cli.Command) (string, error) {
	service := cmd.StringArg("service")
	if service == "" {
		return "", fmt.Errorf("%w: service name", shared.ErrMissingArgument)
	}
	return service, nil
}

func (r *Runner) writeJSON(data any) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) {
	fmt.Fprintf(r.output, format, args...)
}

func (r *Runner) writePlainln(format string, args ...any) {
	fmt.Fprintf(r.output, "\n"+format+"\n", args...)
}

func (r *Runner) writeHeader(title string) {
	r.writePlain("%s\n", r.palette.Header(title))
}
