// Package cli implements the subcommands of the culprit executable.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"go.skia.org/culprit/culprit/go/builders"
	"go.skia.org/culprit/culprit/go/config"
	"go.skia.org/culprit/culprit/go/job"
	"go.skia.org/culprit/culprit/go/jobstore"
	"go.skia.org/culprit/culprit/go/queue"
	"go.skia.org/culprit/culprit/go/service"
	"go.skia.org/culprit/culprit/go/worker"
	"go.skia.org/culprit/go/httputils"
	"go.skia.org/culprit/go/metrics2"
	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sklog"
)

// flag names
const (
	configFlagName  = "config"
	requestFlagName = "request"
	limitFlagName   = "limit"
	portFlagName    = "port"
	localFlagName   = "local"
)

var (
	configFlag = &cli.StringSliceFlag{
		Name:     configFlagName,
		Usage:    "Instance config files, in JSON5. Later files override earlier ones.",
		Required: true,
	}
	requestFlag = &cli.StringFlag{
		Name:     requestFlagName,
		Usage:    "A job request file, in YAML or JSON5.",
		Required: true,
	}
	limitFlag = &cli.IntFlag{
		Name:  limitFlagName,
		Value: 20,
		Usage: "The maximum number of jobs to list.",
	}
	portFlag = &cli.StringFlag{
		Name:  portFlagName,
		Value: ":8000",
		Usage: "HTTP service address for health checks and /metrics.",
	}
	localFlag = &cli.BoolFlag{
		Name:  localFlagName,
		Usage: "Use in-memory store and queue, ignoring the config.",
	}
)

// App holds the collaborators shared by the subcommands.
type App struct {
	Config   *config.InstanceConfig
	Store    jobstore.Store
	Queue    queue.Queue
	Deps     job.Deps
	Notifier worker.Notifier
	Service  *service.Service
	Out      io.Writer
}

// NewApp builds an App from the given config.
func NewApp(ctx context.Context, instanceConfig *config.InstanceConfig) (*App, error) {
	store, err := builders.NewStoreFromConfig(ctx, instanceConfig)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	q, err := builders.NewQueueFromConfig(ctx, instanceConfig)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	r, err := builders.NewResolverFromConfig(instanceConfig)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	runner, err := builders.NewRunnerFromConfig(instanceConfig)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	notifier, err := builders.NewNotifierFromConfig(instanceConfig)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return &App{
		Config:   instanceConfig,
		Store:    store,
		Queue:    q,
		Deps:     job.Deps{Resolver: r, Runner: runner},
		Notifier: notifier,
		Service:  service.New(store, q, r, instanceConfig.JobDefaults),
		Out:      os.Stdout,
	}, nil
}

func appFromContext(c *cli.Context) (*App, error) {
	instanceConfig, err := config.Load(c.StringSlice(configFlagName)...)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if c.Bool(localFlagName) {
		instanceConfig.Store = config.StoreConfig{Type: config.MemoryStoreType}
		instanceConfig.Queue = config.QueueConfig{Type: config.MemoryQueueType}
	}
	return NewApp(c.Context, instanceConfig)
}

// withApp adapts an App method to a cli.ActionFunc.
func withApp(f func(*App, *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := appFromContext(c)
		if err != nil {
			return err
		}
		return f(a, c)
	}
}

// Commands returns all the subcommands.
func Commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "worker",
			Usage:  "Ticks queued jobs until interrupted.",
			Flags:  []cli.Flag{configFlag, portFlag},
			Action: withApp(func(a *App, c *cli.Context) error { return a.Work(c.Context, c.String(portFlagName)) }),
		},
		{
			Name:  "run",
			Usage: "Creates a job and ticks it in this process until it finishes.",
			Flags: []cli.Flag{configFlag, requestFlag, localFlag},
			Action: withApp(func(a *App, c *cli.Context) error {
				req, err := service.LoadRequest(c.String(requestFlagName))
				if err != nil {
					return err
				}
				return a.Run(c.Context, *req)
			}),
		},
		{
			Name:  "create",
			Usage: "Creates a job and queues it.",
			Flags: []cli.Flag{configFlag, requestFlag},
			Action: withApp(func(a *App, c *cli.Context) error {
				req, err := service.LoadRequest(c.String(requestFlagName))
				if err != nil {
					return err
				}
				return a.Create(c.Context, *req)
			}),
		},
		{
			Name:      "show",
			Usage:     "Prints a job as JSON.",
			ArgsUsage: "<job id>",
			Flags:     []cli.Flag{configFlag},
			Action:    withApp(func(a *App, c *cli.Context) error { return a.Show(c.Context, c.Args().First()) }),
		},
		{
			Name:   "list",
			Usage:  "Lists the most recent jobs.",
			Flags:  []cli.Flag{configFlag, limitFlag},
			Action: withApp(func(a *App, c *cli.Context) error { return a.List(c.Context, c.Int(limitFlagName)) }),
		},
		{
			Name:      "cancel",
			Usage:     "Cancels a job.",
			ArgsUsage: "<job id>",
			Flags:     []cli.Flag{configFlag},
			Action:    withApp(func(a *App, c *cli.Context) error { return a.Cancel(c.Context, c.Args().First()) }),
		},
	}
}

func (a *App) newWorker() *worker.Worker {
	var limiter *rate.Limiter
	if tps := a.Config.Worker.TicksPerSecond; tps > 0 {
		limiter = rate.NewLimiter(rate.Limit(tps), 1)
	}
	return worker.New(a.Store, a.Queue, a.Deps, a.Notifier, limiter)
}

// Work serves health checks and metrics on port and runs the worker until
// ctx is done.
func (a *App) Work(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httputils.HealthCheckHandler)
	mux.Handle("/metrics", metrics2.Handler())
	srv := &http.Server{
		Addr:              port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		sklog.Infof("Serving on %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sklog.Errorf("HTTP server: %s", err)
		}
	}()
	a.newWorker().Run(ctx, a.Config.Worker.Parallelism)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return skerr.Wrap(srv.Shutdown(shutdownCtx))
}

// Run creates a Job and ticks it until it finishes, then prints it.
func (a *App) Run(ctx context.Context, req service.Request) error {
	id, err := a.Service.CreateJob(ctx, req)
	if err != nil {
		return skerr.Wrap(err)
	}
	fmt.Fprintf(a.Out, "Created job %s\n", id)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := a.newWorker()
	for {
		if err := w.ProcessOne(ctx); err != nil && !jobstore.IsConcurrentUpdate(err) {
			return skerr.Wrap(err)
		}
		j, err := a.Service.GetJob(ctx, id)
		if err != nil {
			return skerr.Wrap(err)
		}
		if j.State.IsTerminal() {
			return a.print(j)
		}
	}
}

// Create creates a Job and prints its ID.
func (a *App) Create(ctx context.Context, req service.Request) error {
	id, err := a.Service.CreateJob(ctx, req)
	if err != nil {
		return skerr.Wrap(err)
	}
	_, err = fmt.Fprintln(a.Out, id)
	return skerr.Wrap(err)
}

// Show prints the Job with the given ID as JSON.
func (a *App) Show(ctx context.Context, id string) error {
	if id == "" {
		return skerr.Fmt("a job id is required")
	}
	j, err := a.Service.GetJob(ctx, id)
	if err != nil {
		return skerr.Wrap(err)
	}
	return a.print(j)
}

// List prints one line per Job, newest first.
func (a *App) List(ctx context.Context, limit int) error {
	jobs, err := a.Service.ListJobs(ctx, limit)
	if err != nil {
		return skerr.Wrap(err)
	}
	for _, j := range jobs {
		if _, err := fmt.Fprintf(a.Out, "%s\t%s\t%s\tticks=%d\tdifferences=%d\n", j.ID, j.CreatedAt.Format(time.RFC3339), j.State, j.Ticks, len(j.Differences)); err != nil {
			return skerr.Wrap(err)
		}
	}
	return nil
}

// Cancel cancels the Job with the given ID.
func (a *App) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return skerr.Fmt("a job id is required")
	}
	j, err := a.Service.CancelJob(ctx, id)
	if err != nil {
		return skerr.Wrap(err)
	}
	_, err = fmt.Fprintf(a.Out, "%s\t%s\tcancelled=%t\n", j.ID, j.State, j.Cancelled)
	return skerr.Wrap(err)
}

func (a *App) print(j *job.Job) error {
	b, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return skerr.Wrap(err)
	}
	_, err = fmt.Fprintln(a.Out, string(b))
	return skerr.Wrap(err)
}
