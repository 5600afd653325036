package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/remote"
	"github.com/userdesk/userdesk/engine/user"
)

// BrowseCmd returns the interactive session command: a small prompt loop that
// drives the session store the way the admin screen would.
func BrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse users interactively",
		Long: "Drive a user-management session from the terminal: page through " +
			"the listing, search, select users and apply actions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithEnv(cmd, func(ctx context.Context, e *env) error {
				return browse(ctx, e, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

const browseHelp = `commands:
  next                     load the next page
  search <term>            set the search term (empty to clear)
  role <role>              filter by role (empty to clear)
  status <active|banned>   filter by ban status (empty to clear)
  show                     print the loaded users and stats
  select <id>              toggle a user in the selection
  all                      select every loaded user
  none                     clear the selection
  create <name> <email> <role>
  edit <id> name|email|role <value>
  ban <id> <reason>        ban one user
  unban <id>               lift one user's ban
  rm <id>                  delete one user
  ban-selected <reason>    ban every selected user
  rm-selected              delete every selected user
  quit`

func browse(ctx context.Context, e *env, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, browseHelp)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		done, err := dispatch(ctx, e, out, fields[0], fields[1:])
		if done {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
		}
	}
}

func dispatch(ctx context.Context, e *env, out io.Writer, command string, args []string) (bool, error) {
	switch command {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(out, browseHelp)
		return false, nil
	case "next":
		return false, loadPages(ctx, e, 1)
	case "search":
		e.store.SetSearch(ctx, strings.Join(args, " "))
		return false, loadPages(ctx, e, 1)
	case "role":
		role := user.Role(first(args))
		if role != "" && !role.Valid() {
			return false, fmt.Errorf("unknown role %q", role)
		}
		e.store.SetRoleFilter(ctx, role)
		return false, loadPages(ctx, e, 1)
	case "status":
		status := remote.StatusFilter(first(args))
		if status != remote.StatusAny && status != remote.StatusActive && status != remote.StatusBanned {
			return false, fmt.Errorf("unknown status %q", status)
		}
		e.store.SetStatusFilter(ctx, status)
		return false, loadPages(ctx, e, 1)
	case "show":
		rm := e.store.ReadModel()
		printUsers(out, rm.Items)
		printStats(out, rm)
		if len(rm.Selection) > 0 {
			fmt.Fprintf(out, "selected: %v\n", rm.Selection)
		}
		return false, nil
	case "select":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: select <id>")
		}
		e.store.ToggleSelection(ctx, core.ID(args[0]))
		return false, nil
	case "all":
		e.store.SelectAll()
		return false, nil
	case "none":
		e.store.ClearSelection()
		return false, nil
	default:
		return false, dispatchMutation(ctx, e, out, command, args)
	}
}

func dispatchMutation(ctx context.Context, e *env, out io.Writer, command string, args []string) error {
	switch command {
	case "create":
		if len(args) != 3 {
			return fmt.Errorf("usage: create <name> <email> <role>")
		}
		h, err := e.store.CreateUser(ctx, &user.Draft{Name: args[0], Email: args[1], Role: user.Role(args[2])})
		return settle(ctx, h, err)
	case "edit":
		if len(args) != 3 {
			return fmt.Errorf("usage: edit <id> name|email|role <value>")
		}
		patch, err := buildPatch(args[1], args[2])
		if err != nil {
			return err
		}
		h, err := e.store.UpdateUser(ctx, core.ID(args[0]), patch)
		return settle(ctx, h, err)
	case "ban":
		if len(args) < 2 {
			return fmt.Errorf("usage: ban <id> <reason>")
		}
		h, err := e.store.BanUser(ctx, core.ID(args[0]), strings.Join(args[1:], " "))
		return settle(ctx, h, err)
	case "unban":
		if len(args) != 1 {
			return fmt.Errorf("usage: unban <id>")
		}
		h, err := e.store.UnbanUser(ctx, core.ID(args[0]))
		return settle(ctx, h, err)
	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: rm <id>")
		}
		h, err := e.store.DeleteUser(ctx, core.ID(args[0]))
		return settle(ctx, h, err)
	case "ban-selected":
		if len(args) == 0 {
			return fmt.Errorf("usage: ban-selected <reason>")
		}
		b, err := e.store.BanSelected(ctx, strings.Join(args, " "))
		return settleBulk(ctx, out, b, err)
	case "rm-selected":
		b, err := e.store.DeleteSelected(ctx)
		return settleBulk(ctx, out, b, err)
	default:
		return fmt.Errorf("unknown command %q (try help)", command)
	}
}

func buildPatch(field, value string) (*user.Patch, error) {
	switch field {
	case "name":
		return &user.Patch{Name: &value}, nil
	case "email":
		return &user.Patch{Email: &value}, nil
	case "role":
		role := user.Role(value)
		return &user.Patch{Role: &role}, nil
	default:
		return nil, fmt.Errorf("unknown field %q", field)
	}
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
