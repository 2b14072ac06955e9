package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/roasbeef/p4review/internal/activity"
	"github.com/roasbeef/p4review/internal/build"
	"github.com/roasbeef/p4review/internal/config"
	"github.com/roasbeef/p4review/internal/db"
	"github.com/roasbeef/p4review/internal/events"
	"github.com/roasbeef/p4review/internal/mail"
	"github.com/roasbeef/p4review/internal/mcp"
	"github.com/roasbeef/p4review/internal/p4"
	"github.com/roasbeef/p4review/internal/queue"
	"github.com/roasbeef/p4review/internal/review"
	"github.com/roasbeef/p4review/internal/store"
	"github.com/roasbeef/p4review/internal/versiondiff"
	"github.com/roasbeef/p4review/internal/web"
)

const (
	// maintenanceInterval is how often old tasks and activity are pruned.
	maintenanceInterval = time.Hour

	doneTaskRetention = 7 * 24 * time.Hour
	activityRetention = 365 * 24 * time.Hour
)

var (
	configPath string
	webAddr    string
	runMCP     bool
	noWorker   bool
)

var rootCmd = &cobra.Command{
	Use:   "p4reviewd",
	Short: "Perforce code review daemon",
	Long: `p4reviewd serves the review JSON API, accepts Perforce trigger
events on /queue/add and processes them with the queue worker.`,
	SilenceUsage: true,
	RunE:         runDaemon,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "",
		"Path to config file (default: layered lookup)")
	rootCmd.Flags().StringVar(&webAddr, "http", "",
		"HTTP listen address, overrides http.addr")
	rootCmd.Flags().BoolVar(&runMCP, "mcp", false,
		"Also serve MCP tools on stdio")
	rootCmd.Flags().BoolVar(&noWorker, "no-worker", false,
		"Do not poll the queue; tasks run only on /queue/worker")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(build.Summary("p4reviewd"))
		},
	})
}

// daemon holds the wired services.
type daemon struct {
	cfg *config.Config
	log *slog.Logger

	dbStore  *db.Store
	queue    *queue.Store
	worker   *queue.Worker
	reviews  *review.Service
	activity *activity.Service
	web      *web.Server
	mcp      *mcp.Server

	closers []io.Closer
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(nil).Load(configPath)
	if err != nil {
		return err
	}
	if webAddr != "" {
		cfg.HTTP.Addr = webAddr
	}

	d, err := newDaemon(cfg)
	if err != nil {
		return err
	}
	defer d.close()

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	return d.run(ctx)
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	log, logCloser, err := build.NewLogger(build.LogConfig{
		Level:       cfg.Log.Level,
		Dir:         cfg.Log.Dir,
		MaxFiles:    cfg.Log.MaxFiles,
		MaxFileSize: cfg.Log.MaxSizeMB,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	d := &daemon{
		cfg:     cfg,
		log:     log,
		closers: []io.Closer{logCloser},
	}

	d.dbStore, err = db.Open(cfg.DB.Path, log)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.closers = append(d.closers, d.dbStore)

	records := store.NewSqlcStore(d.dbStore)
	client := p4.NewCommandClient(p4.Config{
		Binary:  cfg.P4.Binary,
		Port:    cfg.P4.Port,
		User:    cfg.P4.User,
		Client:  cfg.P4.Client,
		Timeout: cfg.P4.Timeout,
	}, log)

	d.queue = queue.NewStore(d.dbStore, queue.Config{
		MaxAttempts: cfg.Queue.MaxAttempts,
		RetryDelay:  cfg.Queue.RetryDelay,
	})

	d.reviews = review.NewService(review.Config{
		Store: records,
		P4:    client,
		IDs: &review.ChangeIDAllocator{
			P4:     client,
			Client: cfg.P4.Client,
			User:   cfg.P4.User,
			Log:    log,
		},
		Queue:              d.queue,
		CallbackURL:        cfg.HTTP.BaseURL(),
		DisableCommit:      cfg.Reviews.DisableCommit,
		DisableSelfApprove: cfg.Reviews.DisableSelfApprove,
		Log:                log,
	})
	d.activity = activity.NewService(activity.ServiceConfig{
		Store: records,
		Log:   log,
	})

	sender, err := mail.NewSender(cfg.Mail.Sender, log)
	if err != nil {
		d.close()
		return nil, err
	}

	reg := queue.NewRegistry()
	d.reviews.Register(reg)
	d.activity.Register(reg)
	(&mail.Listener{Sender: sender, Domain: cfg.Mail.Domain}).Register(reg)

	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL, log)
		if err != nil {
			d.close()
			return nil, err
		}
		d.closers = append(d.closers, closerFunc(func() error {
			return nc.Drain()
		}))
		events.NewBus(nc, cfg.NATS.Subject, log).Register(reg)
	}

	d.worker = queue.NewWorker(queue.WorkerConfig{
		Store:    d.queue,
		Registry: reg,
		Lifetime: cfg.Queue.WorkerLifetime,
		Log:      log,
	})

	diffs := versiondiff.NewEngine(client, log)

	d.web = web.NewServer(web.Config{
		Addr:     cfg.HTTP.Addr,
		Reviews:  d.reviews,
		Diffs:    diffs,
		Activity: d.activity,
		Queue:    d.queue,
		Worker:   d.worker,
		P4:       client,
		Log:      log,
	})

	if runMCP {
		d.mcp = mcp.NewServer(mcp.Config{
			Reviews:  d.reviews,
			Diffs:    diffs,
			Activity: d.activity,
			Queue:    d.queue,
			Log:      log,
		})
	}

	return d, nil
}

func (d *daemon) run(ctx context.Context) error {
	d.log.Info("Starting p4reviewd", "version", build.Version(),
		"p4port", d.cfg.P4.Port, "db", d.cfg.DB.Path)

	errCh := make(chan error, 3)

	go func() {
		errCh <- d.web.Start()
	}()

	if !noWorker {
		go func() {
			errCh <- d.worker.Run(ctx)
		}()
	}

	if d.mcp != nil {
		go func() {
			errCh <- d.mcp.Run(ctx, &sdkmcp.StdioTransport{})
		}()
	}

	go d.maintain(ctx)

	var err error
	select {
	case <-ctx.Done():
		d.log.Info("Shutting down")

	case err = <-errCh:
		if err != nil {
			d.log.Error("Service stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), 10*time.Second,
	)
	defer cancel()

	if serr := d.web.Shutdown(shutdownCtx); serr != nil {
		d.log.Warn("Web server shutdown", "error", serr)
	}

	return err
}

// maintain prunes finished tasks and old activity entries.
func (d *daemon) maintain(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		purged, err := d.queue.PurgeDone(ctx, doneTaskRetention)
		if err != nil {
			d.log.WarnContext(ctx, "Unable to purge tasks", "error", err)
		} else if purged > 0 {
			d.log.InfoContext(ctx, "Purged finished tasks",
				"count", purged)
		}

		res, err := d.activity.Receive(ctx, activity.CleanupRequest{
			OlderThan: time.Now().Add(-activityRetention),
		}).Unpack()
		if err != nil {
			d.log.WarnContext(ctx, "Unable to prune activity",
				"error", err)
		} else if c, ok := res.(activity.CleanupResponse); ok &&
			c.Error != nil {

			d.log.WarnContext(ctx, "Unable to prune activity",
				"error", c.Error)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *daemon) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil && d.log != nil {
			d.log.Warn("Close failed", "error", err)
		}
	}
	d.closers = nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
