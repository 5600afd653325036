package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/userdesk/userdesk/engine/remote"
	"github.com/userdesk/userdesk/engine/user"
)

// ListCmd returns the user listing command.
func ListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Long:  "List users page by page with optional search and filters",
		RunE:  runList,
	}
	cmd.Flags().String("search", "", "Filter users by name or email")
	cmd.Flags().String("role", "", "Filter by role (user, admin, super_admin)")
	cmd.Flags().String("status", "", "Filter by status (active or banned)")
	cmd.Flags().Int("pages", 1, "Number of pages to fetch (0 for all)")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	search, err := cmd.Flags().GetString("search")
	if err != nil {
		return fmt.Errorf("failed to get search flag: %w", err)
	}
	role, err := cmd.Flags().GetString("role")
	if err != nil {
		return fmt.Errorf("failed to get role flag: %w", err)
	}
	status, err := cmd.Flags().GetString("status")
	if err != nil {
		return fmt.Errorf("failed to get status flag: %w", err)
	}
	pages, err := cmd.Flags().GetInt("pages")
	if err != nil {
		return fmt.Errorf("failed to get pages flag: %w", err)
	}
	if role != "" && !user.Role(role).Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	if status != "" && status != string(remote.StatusActive) && status != string(remote.StatusBanned) {
		return fmt.Errorf("unknown status %q", status)
	}
	return runWithEnv(cmd, func(ctx context.Context, e *env) error {
		e.store.SetSearch(ctx, search)
		e.store.SetRoleFilter(ctx, user.Role(role))
		e.store.SetStatusFilter(ctx, remote.StatusFilter(status))
		if err := loadPages(ctx, e, pages); err != nil {
			return err
		}
		rm := e.store.ReadModel()
		printUsers(cmd.OutOrStdout(), rm.Items)
		printStats(cmd.OutOrStdout(), rm)
		return nil
	})
}

// loadPages fetches up to n pages, all remaining when n is zero.
func loadPages(ctx context.Context, e *env, n int) error {
	for i := 0; n <= 0 || i < n; i++ {
		if !e.store.ReadModel().HasMore && i > 0 {
			return nil
		}
		h, err := e.store.LoadNextPage(ctx)
		if err != nil {
			return err
		}
		if err := h.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
