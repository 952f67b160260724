package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/soumenroys/imotaraapp-sub002/internal/config"
	"github.com/soumenroys/imotaraapp-sub002/internal/logging"
	"github.com/soumenroys/imotaraapp-sub002/internal/repository"
	"github.com/soumenroys/imotaraapp-sub002/internal/service"
	"github.com/soumenroys/imotaraapp-sub002/internal/storage"
	"github.com/soumenroys/imotaraapp-sub002/internal/transport"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format  string
	DataDir string
	Server  string

	// kv replaces the on-disk store in tests.
	kv storage.KV
	// remote replaces the HTTP remote in tests.
	remote service.HistoryRemote
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imotara",
		Short: "Local-first emotion history with sync",
		Long: `Record emotions locally and keep the history in step with the
Imotara history service. Works offline; changes are pushed on the next sync.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory holding the local history (default $IMOTARA_DATA_DIR or ~/.imotara)")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "history service url (default $IMOTARA_SERVER_URL)")

	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newEditCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newChoiceCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newDaemonCommand(opts))
	cmd.AddCommand(newConflictsCommand(opts))
	cmd.AddCommand(newSnapshotCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// app is everything a command needs, opened once per invocation.
type app struct {
	cfg   *config.ClientConfig
	store *storage.Store
	state *repository.LocalState

	records   *service.RecordService
	choices   *service.ChoiceService
	conflicts *service.ConflictService

	remote  service.HistoryRemote
	http    *transport.HTTPRemote
	conn    service.Connectivity
	syncSvc *service.SyncService

	closers []io.Closer
}

func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Server != "" {
		cfg.ServerURL = opts.Server
	}

	a := &app{cfg: cfg}

	if cfg.Logging.File != "" {
		a.closers = append(a.closers, logging.Setup(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups, cfg.Logging.MaxAgeDays))
	} else {
		log.SetOutput(io.Discard)
	}

	kv := opts.kv
	if kv == nil {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := storage.OpenSQLite(cfg.DBPath())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		kv = db
	}

	a.store = storage.NewStore(kv)
	a.state = repository.NewLocalState(a.store, repository.SystemClock)
	a.records = service.NewRecordService(a.state.History)
	a.choices = service.NewChoiceService(a.state.History, repository.SystemClock)
	a.conflicts = service.NewConflictService(a.store, repository.SystemClock)

	switch {
	case opts.remote != nil:
		a.remote = opts.remote
		a.conn = transport.Always{}
	case cfg.Online():
		a.http = transport.NewHTTPRemote(cfg.ServerURL, cfg.Token, cfg.DeviceID, cfg.HTTPTimeout)
		a.remote = a.http
		a.conn = transport.NewHealthCheck(cfg.ServerURL, cfg.HTTPTimeout)
	}
	if a.remote != nil {
		a.syncSvc = service.NewSyncService(a.store, a.remote, a.conn, repository.SystemClock)
	}

	return a, nil
}

func (a *app) requireRemote() error {
	if a.syncSvc == nil {
		return fmt.Errorf("no history service configured: set IMOTARA_SERVER_URL or pass --server")
	}
	return nil
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// withApp opens the app for the duration of fn.
func withApp(opts *RootOptions, fn func(a *app) error) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
