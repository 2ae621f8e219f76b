package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kcrp/rp-dashboard/internal/domain/admin"
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/pkg/database"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// ── migrate ──────────────────────────────────────────────────────────────────

func migrateCmd(open connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withDeps(open, func(cmd *cobra.Command, d *deps, _ []string) error {
			if err := database.Migrate(d.db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		}),
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: withDeps(open, func(cmd *cobra.Command, d *deps, _ []string) error {
			if steps < 1 {
				return errors.New("--steps must be at least 1")
			}
			if err := database.MigrateDown(d.db, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

// ── sync ─────────────────────────────────────────────────────────────────────

func syncCmd(open connector) *cobra.Command {
	var trigger bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile every guild member with the dashboard",
		Args:  cobra.NoArgs,
		RunE: withDeps(open, func(cmd *cobra.Command, d *deps, _ []string) error {
			if trigger {
				if !d.hasRedis {
					return errors.New("--trigger needs Redis; run without it to sync here")
				}
				if err := d.scheduler.Trigger(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "sync triggered")
				return nil
			}

			report, err := d.scheduler.SyncAll(cmd.Context(), "cli")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total=%d synced=%d unchanged=%d skipped=%d failed=%d took=%s\n",
				report.Total, report.Synced, report.Unchanged, report.Skipped, report.Failed, report.Duration)
			if report.Failed > 0 {
				return fmt.Errorf("%d member(s) failed to sync", report.Failed)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&trigger, "trigger", false, "ask running schedulers to sync instead of syncing here")
	return cmd
}

// ── users ────────────────────────────────────────────────────────────────────

func usersCmd(open connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and manage dashboard users",
	}
	cmd.AddCommand(usersListCmd(open), usersGrantCmd(open))
	return cmd
}

func usersListCmd(open connector) *cobra.Command {
	var filter admin.UserFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: withDeps(open, func(cmd *cobra.Command, d *deps, _ []string) error {
			page, err := d.admin.ListUsers(cmd.Context(), filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tPRIMARY\tROLES\tSTATUS\tDISCORD")
			for _, u := range page.Users {
				discordID := "-"
				if u.Linked {
					discordID = u.DiscordID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					u.ID, u.Username, u.PrimaryRole, strings.Join(u.Roles, ","), u.Status, discordID)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(page.Users), page.Total)
			return nil
		}),
	}
	cmd.Flags().StringVar(&filter.Role, "role", "", "only users holding this role")
	cmd.Flags().StringVar(&filter.Status, "status", "", "active or banned")
	cmd.Flags().StringVar(&filter.Search, "search", "", "match username, email or Discord name")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "page size (max 100)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "page offset")
	return cmd
}

func usersGrantCmd(open connector) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "grant <user-id|username> <role>...",
		Short: "Add roles to a user",
		Long:  "Add roles to a user. Known roles: " + roleList() + ".",
		Args:  cobra.MinimumNArgs(2),
		RunE: withDeps(open, func(cmd *cobra.Command, d *deps, args []string) error {
			rec, err := resolveUser(cmd, d, args[0])
			if err != nil {
				return err
			}

			labels := args[1:]
			if !replace {
				labels = append(rec.RoleSet().Strings(), labels...)
			}
			// uuid.Nil marks the change as made by an operator outside the dashboard
			view, err := d.admin.SetRoles(cmd.Context(), uuid.Nil, rec.ID, labels)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now holds %s\n", view.Username, strings.Join(view.Roles, ", "))
			return nil
		}),
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "replace the user's roles instead of adding to them")
	return cmd
}

func resolveUser(cmd *cobra.Command, d *deps, ref string) (*identity.Record, error) {
	store := d.engine.Store()
	var (
		rec *identity.Record
		err error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		rec, err = store.FindByID(cmd.Context(), id)
	} else {
		rec, err = store.FindByUsername(cmd.Context(), ref)
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("user %q: %w", ref, identity.ErrNotFound)
	}
	return rec, nil
}

// roleList renders the vocabulary for help output.
func roleList() string {
	labels := roles.Vocabulary()
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return strings.Join(out, ", ")
}
