package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/store"
)

func newSessionsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted session statuses",
		Long:  "Lists the last persisted state for every tenant that ever started a session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to config file")
	return cmd
}

func runSessions(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}

	statuses, err := store.New(gormDB).AllStatuses()
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tSTATE\tPHONE\tEVER CONNECTED\tUPDATED")
	for _, s := range statuses {
		phone := s.Phone
		if phone == "" {
			phone = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
			s.TenantID, s.State, phone, s.EverConnected,
			s.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
