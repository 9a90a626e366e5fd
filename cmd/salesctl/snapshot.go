package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"sales-agent/internal/app"
	"sales-agent/internal/domain"
)

// openSnapshots returns the configured snapshot reader and a release func.
var openSnapshots = func(cmd *cobra.Command) (app.SnapshotReader, func(), error) {
	a, err := buildApp(cmd)
	if err != nil {
		return nil, nil, err
	}
	release := func() { _ = a.Close() }
	if a.Snapshots == nil {
		release()
		return nil, nil, errors.New("no snapshot table configured (set dynamodb.snapshot_table)")
	}
	return a.Snapshots, release, nil
}

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot <session-id>",
		Short: "Show the stored outcome of a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshot,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored session outcomes",
		Args:  cobra.NoArgs,
		RunE:  runSnapshotList,
	}
	list.Flags().StringP("model", "m", "", "only sessions served by this model")

	cmd.AddCommand(list, &cobra.Command{
		Use:   "models",
		Short: "List the models that served stored sessions",
		Args:  cobra.NoArgs,
		RunE:  runSnapshotModels,
	})
	return cmd
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	snaps, release, err := openSnapshots(cmd)
	if err != nil {
		return err
	}
	defer release()

	snap, err := snaps.GetSnapshot(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("no snapshot for session %s", args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session:     %s\n", snap.SessionID)
	fmt.Fprintf(out, "final state: %s\n", snap.FinalState)
	fmt.Fprintf(out, "model:       %s\n", snap.ModelUsed)
	fmt.Fprintf(out, "timestamp:   %s\n", snap.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "cart items:  %d\n", snap.CartItemCount)
	fmt.Fprintf(out, "total:       %s\n", snap.TotalValue.StringFixed(2))
	return nil
}

func runSnapshotList(cmd *cobra.Command, _ []string) error {
	snaps, release, err := openSnapshots(cmd)
	if err != nil {
		return err
	}
	defer release()

	model, _ := cmd.Flags().GetString("model")
	list, err := snaps.ListSnapshots(cmd.Context(), model)
	if err != nil {
		return err
	}
	return printSnapshots(cmd.OutOrStdout(), list)
}

func runSnapshotModels(cmd *cobra.Command, _ []string) error {
	snaps, release, err := openSnapshots(cmd)
	if err != nil {
		return err
	}
	defer release()

	models, err := snaps.ListModels(cmd.Context())
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Fprintln(cmd.OutOrStdout(), m)
	}
	return nil
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func printSnapshots(out io.Writer, list []domain.Snapshot) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("SESSION", "STATE", "MODEL", "ITEMS", "TOTAL", "TIMESTAMP")
	for _, s := range list {
		t.Row(s.SessionID, string(s.FinalState), s.ModelUsed, fmt.Sprint(s.CartItemCount),
			s.TotalValue.StringFixed(2), s.Timestamp.Format("2006-01-02 15:04"))
	}
	_, err := fmt.Fprintln(out, t.String())
	return err
}
