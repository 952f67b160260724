package cli

import (
	"fmt"
	"strings"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"

	"github.com/spf13/cobra"
)

func newAddCommand(opts *RootOptions) *cobra.Command {
	var (
		emotion   string
		intensity float64
		tags      []string
	)

	cmd := &cobra.Command{
		Use:   "add <message>",
		Short: "Record how you feel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				r, err := a.records.Create(cmd.Context(), &domain.CreateRecordRequest{
					Message:   strings.Join(args, " "),
					Emotion:   domain.Emotion(strings.ToLower(emotion)),
					Intensity: intensity,
					TopicTags: tags,
				})
				if err != nil {
					return err
				}
				return output{opts.Format, cmd.OutOrStdout()}.record(r)
			})
		},
	}

	cmd.Flags().StringVarP(&emotion, "emotion", "e", string(domain.EmotionNeutral), "joy|sadness|anger|fear|surprise|disgust|neutral")
	cmd.Flags().Float64VarP(&intensity, "intensity", "i", 0.5, "intensity between 0 and 1")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "topic tag (repeatable)")
	return cmd
}

func newListCommand(opts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				rs, err := a.records.List(cmd.Context(), all)
				if err != nil {
					return err
				}
				return output{opts.Format, cmd.OutOrStdout()}.records(rs)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include deleted records")
	return cmd
}

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one record and its choices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				r, err := a.records.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return output{opts.Format, cmd.OutOrStdout()}.record(r)
			})
		},
	}
}

func newEditCommand(opts *RootOptions) *cobra.Command {
	var (
		message   string
		emotion   string
		intensity float64
		tags      []string
		important bool
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := &domain.RecordPatch{}
			flags := cmd.Flags()
			if flags.Changed("message") {
				patch.Message = &message
			}
			if flags.Changed("emotion") {
				e := domain.Emotion(strings.ToLower(emotion))
				patch.Emotion = &e
			}
			if flags.Changed("intensity") {
				patch.Intensity = &intensity
			}
			if flags.Changed("tag") {
				patch.TopicTags = &tags
			}
			if flags.Changed("important") {
				patch.Important = &important
			}

			return withApp(opts, func(a *app) error {
				r, err := a.records.Edit(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}
				return output{opts.Format, cmd.OutOrStdout()}.record(r)
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "new message")
	cmd.Flags().StringVarP(&emotion, "emotion", "e", "", "new emotion")
	cmd.Flags().Float64VarP(&intensity, "intensity", "i", 0, "new intensity")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "replace topic tags")
	cmd.Flags().BoolVar(&important, "important", false, "mark or unmark as important")
	return cmd
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record (synced as a tombstone)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				r, err := a.records.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return output{opts.Format, cmd.OutOrStdout()}.json(r)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", r.ID)
				return nil
			})
		},
	}
}

func newChoiceCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "choice",
		Short: "Apply or undo suggested choices on a record",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "apply <record-id> <choice-id>",
		Short: "Apply a choice to a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				r, err := a.choices.Apply(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return output{opts.Format, cmd.OutOrStdout()}.record(r)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "undo <record-id>",
		Short: "Undo the last applied choice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				r, err := a.choices.Undo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return output{opts.Format, cmd.OutOrStdout()}.record(r)
			})
		},
	})

	return cmd
}
