package cmds

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/LinglingXiang/exodus-gw/internal/migrations"
	"github.com/LinglingXiang/exodus-gw/internal/types"
)

func newUpgradeCmd(a *app) *cobra.Command {
	var testData bool

	cmd := &cobra.Command{
		Use:   "upgrade [revision]",
		Short: "Applies revisions up to revision, or head",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := migrations.TargetHead
			if len(args) == 1 {
				target = args[0]
			}

			db, m, err := a.openMigrator(cmd.Context(), migrations.WithTestData(testData))
			if err != nil {
				return err
			}
			defer closeDatabase(cmd.Context(), db)

			applied, err := m.Upgrade(cmd.Context(), target)
			for _, id := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "upgraded %s\n", id)
			}

			return err
		},
	}

	cmd.Flags().BoolVar(&testData, "test-data", false, "Insert each revision's test data before applying it")

	return cmd
}

func newDowngradeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "downgrade <revision|base|-N>",
		Short: "Reverts applied revisions after revision, or all of them for base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, m, err := a.openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDatabase(cmd.Context(), db)

			reverted, err := m.Downgrade(cmd.Context(), args[0])
			for _, id := range reverted {
				fmt.Fprintf(cmd.OutOrStdout(), "downgraded %s\n", id)
			}

			return err
		},
	}
}

func newCurrentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Prints the applied revision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, m, err := a.openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDatabase(cmd.Context(), db)

			current, err := m.Current(cmd.Context())
			if err != nil {
				return err
			}

			if current == "" {
				current = migrations.TargetBase
			}
			if current == m.Chain().Head().ID {
				current += " (head)"
			}

			fmt.Fprintln(cmd.OutOrStdout(), current)
			return nil
		},
	}
}

// Needs no database
func newHistoryCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Lists the revision chain from base to head",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chain, err := migrations.Default()
			if err != nil {
				return err
			}

			for _, r := range chain.History() {
				down := migrations.TargetBase
				if r.DownRevision != "" {
					down = r.DownRevision
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s, %s\n", down, r.ID, r.Message)
			}

			return nil
		},
	}
}

type outputFormat string

const (
	outputText outputFormat = "text"
	outputYAML outputFormat = "yaml"
	outputJSON outputFormat = "json"
)

func (o *outputFormat) String() string {
	return string(*o)
}

func (o *outputFormat) Set(value string) error {
	switch outputFormat(value) {
	case outputText, outputYAML, outputJSON:
		*o = outputFormat(value)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", value)
	}
}

func (o *outputFormat) Type() string {
	return "format"
}

func revisionStatuses(statuses []migrations.RevisionStatus) []types.Revision {
	out := make([]types.Revision, 0, len(statuses))
	for _, status := range statuses {
		r := types.Revision{
			ID:           status.Revision.ID,
			DownRevision: status.Revision.DownRevision,
			Message:      status.Revision.Message,
			Created:      status.Revision.Created,
			Applied:      status.Applied,
		}
		if status.Applied {
			appliedAt := status.AppliedAt.UTC()
			r.AppliedAt = &appliedAt
		}
		out = append(out, r)
	}

	return out
}

func newStatusCmd(a *app) *cobra.Command {
	output := outputText

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Shows which revisions are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, m, err := a.openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDatabase(cmd.Context(), db)

			statuses, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}

			switch output {
			case outputYAML:
				content, err := yaml.Marshal(revisionStatuses(statuses))
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(content)
				return err
			case outputJSON:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(revisionStatuses(statuses))
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REVISION\tAPPLIED AT\tMESSAGE")
			for _, status := range statuses {
				appliedAt := "pending"
				if status.Applied {
					appliedAt = status.AppliedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", status.Revision.ID, appliedAt, status.Revision.Message)
			}

			return w.Flush()
		},
	}

	cmd.Flags().VarP(&output, "output", "o", `"text", "yaml" or "json"`)

	return cmd
}
