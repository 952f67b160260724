package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"

	"github.com/spf13/cobra"
)

func newConflictsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Inspect and resolve sync conflicts",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List conflicts waiting for a decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				var (
					cs  []*domain.HistoryConflict
					err error
				)
				if all {
					cs, err = a.conflicts.List(cmd.Context())
				} else {
					cs, err = a.conflicts.Unresolved(cmd.Context())
				}
				if err != nil {
					return err
				}
				return output{opts.Format, cmd.OutOrStdout()}.conflicts(cs)
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include resolved conflicts")
	cmd.AddCommand(list)

	var (
		keep       string
		mergedFile string
	)
	resolve := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Keep the local or remote version, or supply a merged record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := resolutionRequest(keep, mergedFile)
			if err != nil {
				return err
			}
			return withApp(opts, func(a *app) error {
				r, err := a.conflicts.Resolve(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				return output{opts.Format, cmd.OutOrStdout()}.record(r)
			})
		},
	}
	resolve.Flags().StringVar(&keep, "keep", "", "local|remote")
	resolve.Flags().StringVar(&mergedFile, "merged", "", "path to a JSON record to use as the merged version")
	cmd.AddCommand(resolve)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget every stored conflict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if err := a.conflicts.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Conflicts cleared.")
				return nil
			})
		},
	})

	return cmd
}

func resolutionRequest(keep, mergedFile string) (*domain.ConflictResolutionRequest, error) {
	switch {
	case mergedFile != "" && keep != "":
		return nil, fmt.Errorf("use either --keep or --merged, not both")
	case mergedFile != "":
		data, err := os.ReadFile(mergedFile)
		if err != nil {
			return nil, err
		}
		var merged domain.EmotionRecord
		if err := json.Unmarshal(data, &merged); err != nil {
			return nil, fmt.Errorf("invalid merged record: %w", err)
		}
		return &domain.ConflictResolutionRequest{Resolution: domain.ResolutionMerged, Merged: &merged}, nil
	case keep == "local":
		return &domain.ConflictResolutionRequest{Resolution: domain.ResolutionKeptLocal}, nil
	case keep == "remote":
		return &domain.ConflictResolutionRequest{Resolution: domain.ResolutionKeptRemote}, nil
	}
	return nil, fmt.Errorf("--keep must be local or remote")
}
