package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/siteprobe/cmd/internal/display"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/config"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/logger"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/orchestrator"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/siteprobe/internal/validation"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/report"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/shutdown"
	"github.com/CodeMonkeyCybersecurity/siteprobe/pkg/types"
)

const usage = "Usage: siteprobe <target_url>"

// shutdownTimeout bounds the telemetry flush after a scan.
const shutdownTimeout = 5 * time.Second

var errUsage = errors.New("expected exactly one target URL")

// Execute runs the root command against os.Args.
func Execute() error {
	return execute(os.Args[1:], os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, usage)
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return err
}

// newRootCmd builds the command with its own viper instance so repeated
// invocations never share flag or config state.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var (
		cfg *config.Config
		log *logger.Logger
	)

	cmd := &cobra.Command{
		Use:   "siteprobe <target_url>",
		Short: "Lightweight web application vulnerability scanner",
		Long: `siteprobe crawls a target web application and probes every page it finds.

The crawl starts at the target URL and follows links that stay under the page
they were found on, up to --depth levels. Each discovered URL is then checked
concurrently for:
  - SQL injection (error-based, query parameters)
  - reflected cross-site scripting (query parameters)
  - sensitive information in the response body
  - missing CSRF protections on a state-changing request

Findings are printed as they are discovered and summarized at the end.

Only scan applications you are authorized to test.`,
		Example: `  siteprobe http://localhost:8080/
  siteprobe --depth 2 --workers 10 https://staging.example.com/
  siteprobe --output report.yaml --format yaml https://staging.example.com/`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errUsage
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = loadConfig(v)
			if err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}

			log, err = logger.New(cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], cfg, log)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				// Sync on a terminal stderr returns EINVAL on Linux; nothing to report.
				_ = log.Sync()
			}
		},
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w\n%s", err, usage)
	})

	bindFlags(cmd, v)
	return cmd
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	defaults := config.DefaultConfig()
	flags := cmd.Flags()

	flags.String("config", "", "optional YAML config file")
	flags.Int("depth", defaults.Crawler.MaxDepth, "maximum crawl depth from the target URL")
	flags.Int("max-pages", defaults.Crawler.MaxPages, "stop discovering after this many URLs (0 = unlimited)")
	flags.Int("workers", defaults.Worker.Count, "number of concurrent probe workers")
	flags.Duration("timeout", defaults.HTTP.Timeout, "per-request timeout")
	flags.Bool("insecure", defaults.HTTP.InsecureSkipVerify, "skip TLS certificate verification")
	flags.String("user-agent", defaults.HTTP.UserAgent, "User-Agent header sent with every request")
	flags.Float64("rate", defaults.RateLimit.RequestsPerSecond, "maximum requests per second")
	flags.Int("burst", defaults.RateLimit.BurstSize, "rate limiter burst size")
	flags.String("output", "", "write a machine-readable report to this file")
	flags.String("format", defaults.Output.Format, "report format (json, yaml)")
	flags.String("log-level", defaults.Logger.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Logger.Format, "log format (json, console)")
	flags.Bool("telemetry", defaults.Telemetry.Enabled, "export traces and metrics over OTLP")
	flags.Bool("progress", defaults.Output.Progress, "show a progress bar on stderr")

	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("crawler.max_depth", flags.Lookup("depth"))
	_ = v.BindPFlag("crawler.max_pages", flags.Lookup("max-pages"))
	_ = v.BindPFlag("worker.count", flags.Lookup("workers"))
	_ = v.BindPFlag("http.timeout", flags.Lookup("timeout"))
	_ = v.BindPFlag("http.insecure_skip_verify", flags.Lookup("insecure"))
	_ = v.BindPFlag("http.user_agent", flags.Lookup("user-agent"))
	_ = v.BindPFlag("rate_limit.requests_per_second", flags.Lookup("rate"))
	_ = v.BindPFlag("rate_limit.burst_size", flags.Lookup("burst"))
	_ = v.BindPFlag("output.file", flags.Lookup("output"))
	_ = v.BindPFlag("output.format", flags.Lookup("format"))
	_ = v.BindPFlag("logger.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("logger.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("telemetry.enabled", flags.Lookup("telemetry"))
	_ = v.BindPFlag("output.progress", flags.Lookup("progress"))

	setDefaults(v, defaults)
}

// setDefaults registers every key that has no flag so config files and
// SITEPROBE_* variables can still override them.
func setDefaults(v *viper.Viper, d *config.Config) {
	v.SetDefault("logger.output_paths", d.Logger.OutputPaths)
	v.SetDefault("http.max_body_bytes", d.HTTP.MaxBodyBytes)
	v.SetDefault("http.follow_redirects", d.HTTP.FollowRedirects)
	v.SetDefault("http.max_redirects", d.HTTP.MaxRedirects)
	v.SetDefault("http.cookies", d.HTTP.Cookies)
	v.SetDefault("rate_limit.min_delay", d.RateLimit.MinDelay)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	v.SetEnvPrefix("SITEPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runScan(ctx context.Context, out, errOut io.Writer, target string, cfg *config.Config, log *logger.Logger) error {
	if v := validation.ValidateTarget(target); !v.Valid {
		log.Warnw("Target URL looks invalid, the crawl will find nothing", "target", target, "error", v.Error)
	} else {
		for _, w := range v.Warnings {
			log.Warnw(w, "target", target)
		}
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		log.LogWarning(ctx, err, "telemetry.New")
		tel = telemetry.NewNoop()
	}

	handler := shutdown.NewHandler(log)
	handler.RegisterShutdownFunc(tel.Close)
	defer func() {
		// an unreachable collector must not hold the process open
		if err := handler.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Warnw("Cleanup did not finish in time", "error", err)
		}
	}()

	ctx, stop := handler.NotifyContext(ctx)
	defer stop()

	display.Banner(out, target)

	factory := orchestrator.NewSessionFactory(cfg, tel, log,
		orchestrator.WithReporter(func(f types.Finding) { display.Finding(out, f) }),
		orchestrator.WithProgress(errOut),
	)
	session, err := factory.Build(target)
	if err != nil {
		return fmt.Errorf("failed to set up scan: %w", err)
	}

	result, err := session.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	display.Summary(out, result)

	if cfg.Output.File != "" {
		writeReport(ctx, out, cfg.Output, result, log)
	}
	return nil
}

// writeReport never fails the command; the scan itself already completed.
func writeReport(ctx context.Context, out io.Writer, oc config.OutputConfig, result *types.ScanResult, log *logger.Logger) {
	format, err := report.ParseFormat(oc.Format)
	if err == nil {
		err = report.WriteFile(oc.File, result, format)
	}
	if err != nil {
		log.LogError(ctx, err, "report.WriteFile", "path", oc.File)
		fmt.Fprintf(out, "Failed to save results: %v\n", err)
		return
	}
	display.ReportSaved(out, oc.File)
}
