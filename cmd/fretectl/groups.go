package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arteita/fretebot/internal/app/bootstrap"
	"github.com/arteita/fretebot/internal/messaging"
	"github.com/arteita/fretebot/internal/opportunity"
)

var (
	groupActive   bool
	groupKeywords string
)

func init() {
	rootCmd.AddCommand(groupsCmd)
	groupsCmd.AddCommand(groupsSyncCmd, groupsListCmd, groupsConfigureCmd)

	groupsConfigureCmd.Flags().BoolVar(&groupActive, "active", false, "monitor the group")
	groupsConfigureCmd.Flags().StringVar(&groupKeywords, "keywords", "", "comma-separated keyword pre-filter (empty accepts every message)")
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Sync and configure monitored WhatsApp groups",
	Long: `Groups are discovered from the paired instance and start inactive.

Examples:
  # Import every group the device belongs to
  fretectl groups sync

  # Monitor a group for grain loads
  fretectl groups configure 1203630@g.us --active --keywords soja,milho`,
}

var groupsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import groups from the paired instance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()
		client, err := evolutionClient(cfg)
		if err != nil {
			return err
		}
		store, closeDB, err := openGroupStore(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return syncGroups(ctx, cmd.OutOrStdout(), client, store)
	},
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known groups",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, closeDB, err := openGroupStore(loadConfig().DatabaseURL)
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		groups, err := store.ListGroups(ctx)
		if err != nil {
			return err
		}
		return printGroups(cmd.OutOrStdout(), groups)
	},
}

var groupsConfigureCmd = &cobra.Command{
	Use:   "configure <remote-id>",
	Short: "Enable or disable a group and set its keywords",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openGroupStore(loadConfig().DatabaseURL)
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := store.Configure(ctx, args[0], groupActive, splitKeywords(groupKeywords)); err != nil {
			if errors.Is(err, opportunity.ErrGroupNotFound) {
				return fmt.Errorf("group %s not found; run groups sync first", args[0])
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "group %s active=%t\n", args[0], groupActive)
		return nil
	},
}

type groupFetcher interface {
	FetchGroups(ctx context.Context) ([]messaging.GroupInfo, error)
}

type groupSyncer interface {
	SyncGroup(ctx context.Context, remoteID, name string) (bool, error)
}

func syncGroups(ctx context.Context, w io.Writer, src groupFetcher, dst groupSyncer) error {
	groups, err := src.FetchGroups(ctx)
	if err != nil {
		return fmt.Errorf("fetch groups: %w", err)
	}
	changed := 0
	for _, g := range groups {
		if strings.TrimSpace(g.ID) == "" {
			continue
		}
		ok, err := dst.SyncGroup(ctx, g.ID, g.Subject)
		if err != nil {
			return err
		}
		if ok {
			changed++
		}
	}
	fmt.Fprintf(w, "synced %d groups (%d new or renamed)\n", len(groups), changed)
	return nil
}

func openGroupStore(databaseURL string) (*opportunity.SQLGroupStore, func(), error) {
	db, err := bootstrap.BuildSQLDB(databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	return opportunity.NewSQLGroupStore(db), func() { _ = db.Close() }, nil
}

func splitKeywords(raw string) []string {
	var out []string
	for _, kw := range strings.Split(raw, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func printGroups(w io.Writer, groups []opportunity.Group) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REMOTE ID\tNAME\tACTIVE\tKEYWORDS")
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", g.RemoteID, g.Name, g.Active, strings.Join(g.Keywords, ","))
	}
	return tw.Flush()
}
