package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/globallink/internal/api"
	"github.com/wonny/globallink/internal/api/handlers"
	"github.com/wonny/globallink/internal/scheduler"
	"github.com/wonny/globallink/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run or inspect scheduled jobs",
	Long: `Starts the scheduler daemon or runs a registered job once.

Subcommands:
  start   - run jobs on their schedules until Ctrl+C
  list    - registered jobs
  run     - run one job now
  status  - job statistics of this process

Example:
  go run ./cmd/globallink scheduler start
  go run ./cmd/globallink scheduler run cycle`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Starts the scheduler and registers:
- cycle:  CYCLE_SCHEDULE (default every 30 minutes, 09-15 on weekdays)
- warmup: weekdays 08:30, seeds indicators that still have no history

With METRICS_ENABLED=true the ops endpoints are served on METRICS_PORT.`,
		Args: cobra.NoArgs,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		Args:  cobra.NoArgs,
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show job statistics",
		Args:  cobra.NoArgs,
		RunE:  showStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

// initScheduler registers the pipeline jobs on a fresh scheduler
func initScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log, scheduler.Options{
		Location:   a.loc,
		RetryDelay: a.cfg.Providers.RetryDelay,
		JobTimeout: 10 * time.Minute,
	})

	if err := sched.AddJob(jobs.NewCycleJob(a.cycle, a.cfg.CycleSchedule, a.log)); err != nil {
		return nil, fmt.Errorf("add cycle job: %w", err)
	}
	if err := sched.AddJob(jobs.NewWarmupJob(a.catalog, a.store, a.series, 5, a.log)); err != nil {
		return nil, fmt.Errorf("add warmup job: %w", err)
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	printHeader("Scheduler")
	sched.Start()
	defer sched.Stop()

	var server *api.Server
	serverErr := make(chan error, 1)
	if a.cfg.MetricsEnabled {
		server = a.server()
		go func() { serverErr <- server.Start() }()
	}

	fmt.Println("Registered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	fmt.Println("\nShutting down scheduler...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("HTTP server shutdown failed")
		}
	}
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.Stats()
	fmt.Println("Registered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %-8s %s\n", name, stats[name].Schedule)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	printHeader("Job: " + name)
	res, err := sched.RunNow(ctx, name)
	if res.JobName == "" {
		return fmt.Errorf("run job: %w", err)
	}
	if perr := printJSON(res); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("job %s failed after %d attempts: %w", name, res.Attempts, err)
	}
	printDone("Job %s completed in %s", name, res.Duration)
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Stats are per process; this shows schedules and next runs
	sched.Start()
	defer sched.Stop()
	return printJSON(sched.Stats())
}

func (a *app) server() *api.Server {
	matrix := handlers.NewMatrixHandler(a.processed, a.store, a.catalog, a.log)
	return api.New(a.cfg, a.log, api.NewRouter(matrix, a.registry, a.log))
}
