// Command vigil waits for a condition to hold: a file to land, a document to be written, a key
// to be set, a name to resolve, an endpoint to answer or a JSON-RPC call to return a result.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jkbrsn/vigil"
	"github.com/jkbrsn/vigil/pkg/metrics"
)

// Environment variables read as flag defaults.
const (
	envVerbose    = "VIGIL_VERBOSE_LOGGING"
	envLogLevel   = "VIGIL_LOG_LEVEL"
	envConsulAddr = "VIGIL_CONSUL_ADDR"
	envMongoURI   = "VIGIL_MONGO_URI"
	envWebHDFSURL = "VIGIL_WEBHDFS_URL"
)

// cli holds the flags shared by all subcommands and the state built from them.
type cli struct {
	pokeInterval time.Duration
	timeout      time.Duration
	noTimeout    bool
	softFail     bool
	expBackoff   bool
	maxWait      time.Duration
	mode         string
	verbose      bool
	logLevel     string
	console      bool
	printMetrics bool

	out      io.Writer
	loggers  *vigil.Loggers
	registry gometrics.Registry
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	root := &cobra.Command{
		Use:               "vigil",
		Short:             "Wait for a condition to hold",
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	defaults := vigil.DefaultPollConfig()
	flags := root.PersistentFlags()
	flags.DurationVar(&c.pokeInterval, "poke-interval", defaults.PokeInterval, "time between pokes")
	flags.DurationVar(&c.timeout, "timeout", defaults.Timeout, "give up after this long")
	flags.BoolVar(&c.noTimeout, "no-timeout", false, "poll until the condition holds")
	flags.BoolVar(&c.softFail, "soft-fail", false, "exit 0 as skipped on timeout")
	flags.BoolVar(&c.expBackoff, "exponential-backoff", false, "double the wait after every poke")
	flags.DurationVar(&c.maxWait, "max-wait", 0, "upper bound of the exponential wait, 0 for none")
	flags.StringVar(&c.mode, "mode", vigil.ModePoke.String(), "poke or reschedule")
	flags.BoolVar(&c.verbose, "verbose", envBool(envVerbose), "log hook requests, also "+envVerbose)
	flags.StringVar(&c.logLevel, "log-level", envString(envLogLevel, "info"), "log level, also "+envLogLevel)
	flags.BoolVar(&c.console, "console", true, "human readable logs")
	flags.BoolVar(&c.printMetrics, "print-metrics", false, "print run metrics to stderr on exit")

	root.AddCommand(
		makeFileCmd(c),
		makeFolderCmd(c),
		makeRegexCmd(c),
		makeDocCmd(c),
		makeKVCmd(c),
		makeDNSCmd(c),
		makeHTTPCmd(c),
		makeJSONRPCCmd(c),
	)
	return root
}

// setup loads .env, then builds and installs the loggers.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	// .env values only apply to flags left unset on the command line.
	flags := cmd.Flags()
	if !flags.Changed("verbose") {
		c.verbose = envBool(envVerbose)
	}
	if !flags.Changed("log-level") {
		c.logLevel = envString(envLogLevel, c.logLevel)
	}

	level, err := zerolog.ParseLevel(c.logLevel)
	if err != nil {
		return fmt.Errorf("%w: log level: %w", vigil.ErrInvalidConfig, err)
	}
	c.loggers = vigil.LogConfig{
		Level:   &level,
		Verbose: c.verbose,
		Output:  cmd.ErrOrStderr(),
		Console: c.console,
	}.Build()
	c.loggers.Install()
	c.registry = gometrics.NewRegistry()
	return nil
}

// sensorOptions translates the shared flags into sensor options.
func (c *cli) sensorOptions() ([]vigil.SensorOption, error) {
	cfg := vigil.DefaultPollConfig()
	cfg.PokeInterval = c.pokeInterval
	cfg.Timeout = c.timeout
	cfg.Unbounded = c.noTimeout
	cfg.SoftFail = c.softFail
	cfg.ExponentialBackoff = c.expBackoff
	cfg.MaxWait = c.maxWait
	switch c.mode {
	case vigil.ModePoke.String():
		cfg.Mode = vigil.ModePoke
	case vigil.ModeReschedule.String():
		cfg.Mode = vigil.ModeReschedule
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", vigil.ErrInvalidConfig, c.mode)
	}

	return []vigil.SensorOption{
		vigil.WithPollConfig(cfg),
		vigil.WithLogger(c.loggers.Base()),
		vigil.WithMetricsSink(metrics.NewRegistrySink(c.registry, "vigil")),
	}, nil
}

// run builds the sensor and waits for its outcome.
func (c *cli) run(cmd *cobra.Command, name string, poker vigil.Poker) error {
	opts, err := c.sensorOptions()
	if err != nil {
		return err
	}
	s, err := vigil.NewSensor(name, poker, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out vigil.Outcome
	if s.Config().Mode == vigil.ModeReschedule {
		out, err = c.reschedule(ctx, s)
	} else {
		out, err = s.Execute(ctx)
	}
	if c.printMetrics {
		gometrics.WriteOnce(c.registry, cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s %s after %d pokes in %s\n",
		out.TaskName, out.State, out.Pokes, out.Elapsed.Round(time.Millisecond))
	return nil
}

// reschedule runs the sensor on a Rescheduler and waits for its result.
func (c *cli) reschedule(ctx context.Context, s *vigil.Sensor) (vigil.Outcome, error) {
	r := vigil.NewRescheduler(1)
	defer func() { _ = r.Close() }()

	if err := r.Add(s); err != nil {
		return vigil.Outcome{}, err
	}
	select {
	case res := <-r.Results():
		return res.Outcome, res.Err
	case <-ctx.Done():
		log.Warn().Str("sensor", s.Name()).Msg("interrupted")
		return vigil.Outcome{TaskName: s.Name(), State: s.State()}, ctx.Err()
	}
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
