package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/service"
	"github.com/soumenroys/imotaraapp-sub002/internal/transport"

	"github.com/spf13/cobra"
)

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if err := a.requireRemote(); err != nil {
					return err
				}
				summary, err := a.syncSvc.Sync(cmd.Context())
				if err != nil && !errors.Is(err, service.ErrOffline) {
					return err
				}
				return output{opts.Format, cmd.OutOrStdout()}.summary(summary)
			})
		},
	}
}

type localStatus struct {
	Records    int    `json:"records"`
	Pending    int    `json:"pending"`
	Conflicts  int    `json:"conflicts"`
	SyncToken  *int64 `json:"syncToken,omitempty"`
	Server     string `json:"server,omitempty"`
	DeviceID   string `json:"deviceId"`
	DataDir    string `json:"dataDir"`
	ServerSeen bool   `json:"serverSeen"`
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what is waiting to sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				ctx := cmd.Context()

				rs, err := a.state.History.List(ctx)
				if err != nil {
					return err
				}
				pending, err := a.state.Ledger.ComputePending(ctx, rs)
				if err != nil {
					return err
				}
				open, err := a.conflicts.CountUnresolved(ctx)
				if err != nil {
					return err
				}
				token, err := a.state.Token.Get(ctx)
				if err != nil {
					return err
				}

				st := localStatus{
					Records:    len(rs),
					Pending:    len(pending),
					Conflicts:  open,
					SyncToken:  token,
					Server:     a.cfg.ServerURL,
					DeviceID:   a.cfg.DeviceID,
					DataDir:    a.cfg.DataDir,
					ServerSeen: token != nil,
				}

				o := output{opts.Format, cmd.OutOrStdout()}
				if opts.Format == "json" {
					return o.json(st)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Records:    %d\n", st.Records)
				fmt.Fprintf(w, "Pending:    %d\n", st.Pending)
				fmt.Fprintf(w, "Conflicts:  %d\n", st.Conflicts)
				if st.Server == "" {
					fmt.Fprintln(w, "Server:     (offline only)")
				} else {
					fmt.Fprintf(w, "Server:     %s\n", st.Server)
				}
				if token != nil {
					fmt.Fprintf(w, "Token:      %d\n", *token)
				}
				return nil
			})
		},
	}
}

func newDaemonCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep the local history in sync until interrupted",
		Long: `Syncs on start, every IMOTARA_SYNC_INTERVAL, when the server comes back
online and when another device changes the history. SIGUSR1 requests a
sync after IMOTARA_VISIBILITY_BACKOFF, as when the app returns to the foreground.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if err := a.requireRemote(); err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return runDaemon(ctx, a, cmd)
			})
		},
	}
}

func runDaemon(ctx context.Context, a *app, cmd *cobra.Command) error {
	sched := service.NewSyncScheduler(a.syncSvc, a.cfg.SyncInterval, a.cfg.VisibilityBackoff)

	var listener *transport.ChangeListener
	if a.http != nil {
		var err error
		listener, err = transport.NewChangeListener(a.cfg.ServerURL, a.cfg.Token, a.cfg.DeviceID, sched.OnRemoteChange)
		if err != nil {
			return err
		}
	}

	unsubscribe := a.syncSvc.Subscribe(func(s domain.SyncSummary) {
		switch s.Phase {
		case domain.PhaseDone:
			fmt.Fprintf(cmd.OutOrStdout(), "synced: pushed=%d pulled=%d conflicts=%d\n", s.Pushed, s.Pulled, s.Conflicts)
			if listener != nil {
				if tok, err := a.state.Token.Get(ctx); err == nil && tok != nil {
					if err := listener.Ack(*tok); err != nil {
						log.Printf("[Daemon] ack failed: %v", err)
					}
				}
			}
		case domain.PhaseError:
			fmt.Fprintf(cmd.ErrOrStderr(), "sync failed: %s\n", s.LastError)
		case domain.PhaseOffline:
			fmt.Fprintln(cmd.ErrOrStderr(), "offline")
		}
	})
	defer unsubscribe()

	if listener != nil {
		go listener.Run(ctx)
	}

	go watchConnectivity(ctx, a.conn, a.cfg.SyncInterval/3, sched.OnOnline)

	visible := make(chan os.Signal, 1)
	if sigs := visibilitySignals(); len(sigs) > 0 {
		signal.Notify(visible, sigs...)
		defer signal.Stop(visible)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-visible:
				sched.OnVisible()
			}
		}
	}()

	err := sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchConnectivity calls onOnline whenever connectivity flips from offline to
// online.
func watchConnectivity(ctx context.Context, conn service.Connectivity, every time.Duration, onOnline func()) {
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	online := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := conn.Online(ctx)
			if now && !online {
				log.Printf("[Daemon] back online")
				onOnline()
			}
			online = now
		}
	}
}

func newSnapshotCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the server's full history without changing local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if a.http == nil {
					return fmt.Errorf("no history service configured: set IMOTARA_SERVER_URL or pass --server")
				}
				rs, err := a.http.Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				return output{opts.Format, cmd.OutOrStdout()}.records(rs)
			})
		},
	}
}
