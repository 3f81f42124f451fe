package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fluxweb/internal/db"
	"fluxweb/internal/domain"
	"fluxweb/internal/migrate"
	"fluxweb/internal/repo"
)

// loadEvents reads an organisation's mutation log from the stub's workspace.
func loadEvents(ctx context.Context, workspace, org string) ([]domain.Event, error) {
	if _, err := os.Stat(db.Path(workspace)); err != nil {
		return nil, fmt.Errorf("no stub database in %s: %w", workspace, err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		return nil, err
	}
	return repo.Repo{DB: conn}.ListEvents(ctx, org)
}

func renderEvents(w io.Writer, evts []domain.Event) {
	if len(evts) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "TS", "Type", "Kind", "Entity"})
	for _, e := range evts {
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind, e.EntityID})
	}
	tw.Render()
}

func stubEventsCmd(workspace *string) *cobra.Command {
	return &cobra.Command{
		Use:   "events ORGANISATION",
		Short: "Show the stub's mutation log for an organisation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			evts, err := loadEvents(cmd.Context(), *workspace, args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				if evts == nil {
					evts = []domain.Event{}
				}
				return printJSON(evts)
			}
			renderEvents(os.Stdout, evts)
			return nil
		},
	}
}
