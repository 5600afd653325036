package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/userdesk/userdesk/engine/feed"
	"github.com/userdesk/userdesk/engine/infra/httpapi"
	"github.com/userdesk/userdesk/engine/infra/monitoring"
	"github.com/userdesk/userdesk/engine/mutation"
	"github.com/userdesk/userdesk/engine/notify"
	"github.com/userdesk/userdesk/engine/record"
	"github.com/userdesk/userdesk/engine/session"
	"github.com/userdesk/userdesk/engine/user"
	"github.com/userdesk/userdesk/pkg/config"
)

// env is one assembled engine stack behind a command invocation.
type env struct {
	store   *session.Store
	records *record.Store
}

// newEnv builds the full stack: HTTP client, record store, feed and mutation
// engines and the session store, with notifications printed to out.
func newEnv(cfg *config.Config, out io.Writer) (*env, func(), error) {
	client, err := httpapi.NewClient(httpapi.Config{
		BaseURL:       cfg.Client.BaseURL,
		APIKey:        cfg.Client.APIKey,
		Timeout:       cfg.Client.Timeout,
		PageRetries:   cfg.Client.PageRetries,
		PageRetryBase: cfg.Client.PageRetryBase,
		Debug:         cfg.Client.Debug,
	})
	if err != nil {
		return nil, nil, err
	}
	var metrics *monitoring.Metrics
	if cfg.Runtime.MetricsEnabled {
		metrics = monitoring.NewMetrics(prometheus.DefaultRegisterer)
	}
	records := record.NewStore()
	feedEng, err := feed.NewEngine(client, records, feed.Options{
		PageSize:          cfg.Feed.PageSize,
		Prefetch:          cfg.Feed.Prefetch,
		PrefetchCacheSize: cfg.Feed.PrefetchCacheSize,
		Metrics:           metrics,
	})
	if err != nil {
		return nil, nil, err
	}
	sink := notify.SinkFunc(func(n notify.Notification) {
		prefix := "ok"
		if n.Kind == notify.KindError {
			prefix = "error"
		}
		fmt.Fprintf(out, "[%s] %s\n", prefix, n.Message)
	})
	mutEng, err := mutation.NewEngine(client, records, feedEng, mutation.Options{Sink: sink, Metrics: metrics})
	if err != nil {
		return nil, nil, err
	}
	store, err := session.NewStore(feedEng, mutEng, records, session.Options{
		TabDebounceWait:    cfg.Session.TabDebounceWait,
		TabDebounceMaxWait: cfg.Session.TabDebounceMaxWait,
	})
	if err != nil {
		return nil, nil, err
	}
	return &env{store: store, records: records}, store.Close, nil
}

// printUsers renders a user table.
func printUsers(out io.Writer, users []*user.User) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tSTATUS")
	for _, u := range users {
		status := "active"
		if u.Banned {
			status = "banned: " + u.BanReason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role, status)
	}
	w.Flush()
}

// printStats renders the read-model summary line.
func printStats(out io.Writer, rm *session.ReadModel) {
	fmt.Fprintf(out, "%d loaded of %d total (%d active, %d banned, %d admins)\n",
		rm.Stats.Loaded, rm.Stats.Total, rm.Stats.Active, rm.Stats.Banned, rm.Stats.Admins)
	if rm.HasMore {
		fmt.Fprintln(out, "more pages available")
	}
}

func runWithEnv(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	ctx := cmd.Context()
	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}
	e, closeEnv, err := newEnv(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeEnv()
	return fn(ctx, e)
}
