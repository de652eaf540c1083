// mqtt2file subscribes to every topic below a prefix on an MQTT v5 broker
// and writes each message's payload to a file in a local directory, named
// by the message's "filename" user property.
//
// Usage:
//
//	mqtt2file [flags] <topic-prefix> <directory>
//
// Without a client id suffix the bridge uses a clean session. With one it
// uses a persistent session, so messages published while it is stopped are
// delivered on the next run. It exits after two consecutive idle timeouts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/mqtt2file/internal/bridge"
	"github.com/nerrad567/mqtt2file/internal/infrastructure/config"
	"github.com/nerrad567/mqtt2file/internal/infrastructure/database"
	"github.com/nerrad567/mqtt2file/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqtt2file/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt2file/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt2file/internal/journal"
	"github.com/nerrad567/mqtt2file/internal/persist"
	"github.com/nerrad567/mqtt2file/internal/session"
	"github.com/nerrad567/mqtt2file/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// configEnv names the config file when --config is not given.
const configEnv = "MQTT2FILE_CONFIG"

// disconnectTimeout bounds the DISCONNECT sent on exit.
const disconnectTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// After the first signal, restore default handling so a second one
	// terminates the process even during a reconnection sequence.
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1) //nolint:gocritic // stop() is only needed while the process runs
	}
}

// options holds the parsed command line.
type options struct {
	configPath      string
	uri             string
	suffix          string
	verbose         int
	timeout         int
	history         int
	historyFilename string
	showVersion     bool
	args            []string
	flags           *pflag.FlagSet
}

// parseFlags parses the command line. It returns pflag.ErrHelp when help
// was requested.
func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}

	fs := pflag.NewFlagSet("mqtt2file", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: mqtt2file [flags] <topic-prefix> <directory>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	fs.StringVarP(&o.uri, "uri", "u", config.DefaultURI, "broker URI (tcp, ssl, ws, wss)")
	fs.StringVarP(&o.suffix, "client-id-suffix", "c", "", "client id suffix; enables a persistent session")
	fs.CountVarP(&o.verbose, "verbose", "v", "increase log verbosity (repeatable)")
	fs.IntVarP(&o.timeout, "timeout", "t", 5, "idle timeout in minutes")
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file (env "+configEnv+")")
	fs.IntVar(&o.history, "history", 0, "print the last N journal entries and exit")
	fs.StringVar(&o.historyFilename, "history-filename", "", "print the latest journal entry for a filename and exit")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	o.args = fs.Args()
	o.flags = fs
	if o.configPath == "" {
		o.configPath = os.Getenv(configEnv)
	}
	return o, nil
}

// historyMode reports whether the invocation only reads the journal.
func (o *options) historyMode() bool {
	return o.history > 0 || o.historyFilename != ""
}

// apply overlays flags and positional arguments on the loaded config.
// Flags override the file and environment only when given explicitly.
func (o *options) apply(cfg *config.Config) error {
	if o.flags.Changed("uri") {
		cfg.MQTT.URI = o.uri
	}
	if o.flags.Changed("client-id-suffix") {
		cfg.MQTT.ClientIDSuffix = o.suffix
	}
	if o.flags.Changed("timeout") {
		cfg.Bridge.Timeout = o.timeout
	}
	cfg.Logging.Level = logging.Raise(cfg.Logging.Level, o.verbose)

	switch len(o.args) {
	case 0:
	case 2:
		cfg.Bridge.TopicPrefix = o.args[0]
		cfg.Bridge.Directory = o.args[1]
	default:
		return fmt.Errorf("expected <topic-prefix> <directory>, got %d arguments", len(o.args))
	}
	return nil
}

// run is the application logic, separated from main for testability.
//
// Returns:
//   - error: nil on graceful stop (shutdown or double idle timeout)
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "mqtt2file %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}

	logOut := stderr
	if cfg.Logging.Output == "stdout" {
		logOut = stdout
	}
	log := logging.New(cfg.Logging, version, logOut)

	if opts.historyMode() {
		return printHistory(ctx, cfg, opts, stdout)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := checkDirectory(cfg.Bridge.Directory); err != nil {
		return err
	}

	identity, err := session.BuildIdentity(os.Hostname, cfg.MQTT.ClientIDSuffix)
	if err != nil {
		return err
	}
	policy := session.BuildPolicy(identity.HasSuffix()).WithExpiry(cfg.MQTT.SessionExpiry)

	log.Info("starting mqtt2file",
		"version", version,
		"client_id", identity.ClientID(),
		"persistent", policy.Persistent,
		"filter", mqtt.TopicFilter(cfg.Bridge.TopicPrefix),
		"directory", cfg.Bridge.Directory,
	)

	sinks, err := openSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sinks.close(log)

	client, err := mqtt.New(cfg.MQTT, cfg.Bridge.QueueSize)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	client.SetLogger(log.With("component", "mqtt"))
	defer disconnect(client, log)

	manager := bridge.NewManager(client, identity, policy, cfg.Bridge.TopicPrefix, log.With("component", "lifecycle"))
	log.Debug("connecting", "broker", client.ServerURI(), "client_id", identity.ClientID(), "persistent", policy.Persistent)
	if _, err := manager.Start(ctx); err != nil {
		return err
	}

	supervisor := bridge.NewSupervisor(
		cfg.MQTT.Reconnect.Attempts,
		cfg.GetReconnectInterval(),
		log.With("component", "reconnect"),
		sinks.observers...,
	)
	handler := persist.NewHandler(cfg.Bridge.Directory, log.With("component", "persist"), sinks.recorders...)
	loop := bridge.NewLoop(manager, handler, supervisor, cfg.GetIdleTimeout(), log.With("component", "loop"))

	if err := loop.Run(ctx); err != nil {
		return err
	}

	log.Info("stopped")
	return nil
}

// checkDirectory verifies the target directory exists.
func checkDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("target directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("target directory: %s is not a directory", dir)
	}
	return nil
}

// disconnect sends DISCONNECT if the connection is still up.
func disconnect(client *mqtt.Client, log *logging.Logger) {
	if !client.IsConnected() {
		client.StopConsuming()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	log.Info("disconnecting from broker")
	if err := client.Disconnect(ctx); err != nil {
		log.Warn("error disconnecting from broker", "error", err)
	}
}

// sinks are the optional outcome recorders.
type sinks struct {
	db        *database.DB
	influx    *influxdb.Client
	recorders []persist.Recorder
	observers []bridge.Observer
}

// openSinks opens the journal and the statistics client when enabled.
func openSinks(ctx context.Context, cfg *config.Config, log *logging.Logger) (*sinks, error) {
	s := &sinks{}

	if cfg.Journal.Enabled {
		repo, db, err := openJournal(ctx, cfg.Journal)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.recorders = append(s.recorders, repo)
		log.Info("journal enabled", "path", db.Path())
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			s.close(log)
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		client.SetOnError(func(err error) {
			log.Warn("influxdb write failed", "error", err)
		})
		s.influx = client
		s.recorders = append(s.recorders, client)
		s.observers = append(s.observers, client)
		log.Info("influxdb enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	return s, nil
}

func (s *sinks) close(log *logging.Logger) {
	if s.influx != nil {
		if err := s.influx.Close(); err != nil {
			log.Warn("error closing InfluxDB", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Warn("error closing journal", "error", err)
		}
	}
}

// openJournal opens and migrates the journal database.
func openJournal(ctx context.Context, cfg config.JournalConfig) (*journal.SQLiteRepository, *database.DB, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal: %w", err)
	}
	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("migrating journal: %w", err)
	}
	return journal.NewSQLiteRepository(db.DB), db, nil
}

// printHistory writes journal entries as a table.
func printHistory(ctx context.Context, cfg *config.Config, opts *options, stdout io.Writer) error {
	if cfg.Journal.Path == "" {
		return errors.New("journal.path is required to print history")
	}

	repo, db, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Read-only use

	var entries []journal.Entry
	if opts.historyFilename != "" {
		e, err := repo.LatestByFilename(ctx, opts.historyFilename)
		if errors.Is(err, journal.ErrNotFound) {
			fmt.Fprintf(stdout, "no journal entry for %q\n", opts.historyFilename)
			return nil
		}
		if err != nil {
			return err
		}
		entries = []journal.Entry{*e}
	} else {
		entries, err = repo.Recent(ctx, opts.history)
		if err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECEIVED\tSTATUS\tTOPIC\tFILENAME\tSIZE\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ReceivedAt.Format(time.RFC3339), e.Status, e.Topic, e.Filename, e.Size, e.Error)
	}
	return tw.Flush()
}
