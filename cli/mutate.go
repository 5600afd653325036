package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/mutation"
	"github.com/userdesk/userdesk/engine/session"
	"github.com/userdesk/userdesk/engine/user"
)

// CreateCmd returns the user creation command.
func CreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE:  runCreate,
	}
	cmd.Flags().String("name", "", "Full name")
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("role", "user", "Role (user, admin, super_admin)")
	return cmd
}

func runCreate(cmd *cobra.Command, _ []string) error {
	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return fmt.Errorf("failed to get name flag: %w", err)
	}
	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return fmt.Errorf("failed to get email flag: %w", err)
	}
	role, err := cmd.Flags().GetString("role")
	if err != nil {
		return fmt.Errorf("failed to get role flag: %w", err)
	}
	return runWithEnv(cmd, func(ctx context.Context, e *env) error {
		h, err := e.store.CreateUser(ctx, &user.Draft{
			Name:  name,
			Email: email,
			Role:  user.Role(role),
		})
		return settle(ctx, h, err)
	})
}

// BanCmd returns the ban command.
func BanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ban [user-id]",
		Short: "Ban a user",
		Args:  cobra.ExactArgs(1),
		RunE:  runBan,
	}
	cmd.Flags().String("reason", "", "Reason shown on the banned account")
	return cmd
}

func runBan(cmd *cobra.Command, args []string) error {
	reason, err := cmd.Flags().GetString("reason")
	if err != nil {
		return fmt.Errorf("failed to get reason flag: %w", err)
	}
	return runWithEnv(cmd, func(ctx context.Context, e *env) error {
		if err := loadTarget(ctx, e, core.ID(args[0])); err != nil {
			return err
		}
		h, err := e.store.BanUser(ctx, core.ID(args[0]), reason)
		return settle(ctx, h, err)
	})
}

// UnbanCmd returns the unban command.
func UnbanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unban [user-id]",
		Short: "Lift a user's ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithEnv(cmd, func(ctx context.Context, e *env) error {
				if err := loadTarget(ctx, e, core.ID(args[0])); err != nil {
					return err
				}
				h, err := e.store.UnbanUser(ctx, core.ID(args[0]))
				return settle(ctx, h, err)
			})
		},
	}
}

// RemoveCmd returns the deletion command.
func RemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm [user-id]",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithEnv(cmd, func(ctx context.Context, e *env) error {
				if err := loadTarget(ctx, e, core.ID(args[0])); err != nil {
					return err
				}
				h, err := e.store.DeleteUser(ctx, core.ID(args[0]))
				return settle(ctx, h, err)
			})
		},
	}
}

// loadTarget pages through the listing until id is in the record store, so a
// targeted mutation has a loaded snapshot to roll back to.
func loadTarget(ctx context.Context, e *env, id core.ID) error {
	for {
		if e.records.Has(id) {
			return nil
		}
		if rm := e.store.ReadModel(); rm.Stats.Loaded > 0 && !rm.HasMore {
			return fmt.Errorf("user %s: %w", id, core.ErrNotFound)
		}
		h, err := e.store.LoadNextPage(ctx)
		if err != nil {
			return err
		}
		if err := h.Wait(ctx); err != nil {
			return err
		}
	}
}

// settle waits for a mutation handle; the sink already printed the outcome,
// so only the error surfaces.
func settle(ctx context.Context, h *mutation.Handle, err error) error {
	if err != nil {
		return err
	}
	_, err = h.Wait(ctx)
	return err
}

// settleBulk waits for a fan-out and prints its per-id report.
func settleBulk(ctx context.Context, out io.Writer, b *session.BulkHandle, err error) error {
	if err != nil {
		return err
	}
	report, err := b.Wait(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d succeeded, %d failed\n", len(report.Succeeded), len(report.Failed))
	for id, failErr := range report.Failed {
		fmt.Fprintf(out, "  %s: %s\n", id, failErr)
	}
	return nil
}
