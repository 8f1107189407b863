package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"workercfg/internal/artifact"
	"workercfg/internal/baseline"
	"workercfg/internal/cli"
	"workercfg/internal/config"
	"workercfg/internal/diagnostics"
	"workercfg/internal/drift"
	"workercfg/internal/loader"
	"workercfg/internal/logging"
	"workercfg/internal/report"
)

// Exit codes
const (
	exitOK      = 0
	exitUsage   = 1
	exitInvalid = 2
	exitLoad    = 3
)

func main() {
	exitCode := run(os.Args[1:], os.Environ(), ".", os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// exitError carries the exit code a command failed with. A nil err means
// the failure has already been reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// app is the state shared by every subcommand of one invocation
type app struct {
	opts    cli.Options
	environ []string
	dir     string
	stdout  io.Writer
	stderr  io.Writer
}

// run executes the command line and returns the process exit code.
// It is separated from main() to enable testing.
func run(args []string, environ []string, dir string, stdout, stderr io.Writer) int {
	a := &app{environ: environ, dir: dir, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return exitUsage
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "workercfg",
		Short: "Validate and resolve Worker configuration files",
		Long: `Validate and resolve Worker configuration files.

The configuration is read from --config, $WORKERCFG_CONFIG or the first
wrangler.json, wrangler.jsonc, wrangler.toml or wrangler.yaml found in the
current directory or one of its parents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.opts.Validate(); err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			logger := logging.New(a.opts.Verbose, a.stderr)
			cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
			return nil
		},
	}
	a.opts.BindFlags(root.PersistentFlags())

	root.AddCommand(a.checkCmd(), a.printCmd(), a.getCmd(), a.diffCmd(), a.baselineCmd())
	return root
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration",
		Long: `Validate the configuration and report every error and warning.

With --artifact-file the resolved environment is also written as a
flattened, versioned JSON artifact.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			if a.opts.JSONOutput {
				out, err := report.FormatJSON(res.diagnostics)
				if err != nil {
					return fmt.Errorf("cannot format diagnostics: %w", err)
				}
				fmt.Fprintln(a.stdout, out)
			} else {
				a.printDiagnostics(res)
			}
			if res.diagnostics.HasErrors() {
				return &exitError{code: exitInvalid}
			}

			if a.opts.ArtifactFile != "" {
				art, err := artifact.GenerateArtifact(res.cfg)
				if err != nil {
					return err
				}
				if err := art.WriteToFile(a.opts.ArtifactFile); err != nil {
					return err
				}
				logging.FromContext(cmd.Context()).Debug("wrote artifact", "path", a.opts.ArtifactFile, "version", art.ConfigVersion)
			}
			if !a.opts.JSONOutput {
				fmt.Fprintf(a.stdout, "✔ %s is valid (%s)\n", res.path, envLabel(res.cfg.EnvName))
			}
			return nil
		},
	}
}

func (a *app) printCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the resolved configuration",
		Long: `Print the resolved configuration of the selected environment.

The output uses the format of the configuration file unless --format is
given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.resolve(cmd.Context())
			if err != nil {
				return err
			}
			f := loader.Format(format)
			if f == "" {
				f, _ = loader.FormatFromPath(res.path)
			}
			out, err := loader.Marshal(f, res.cfg)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			fmt.Fprint(a.stdout, strings.TrimRight(string(out), "\n")+"\n")
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format (toml|json|jsonc|yaml)")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Print one value of the resolved configuration",
		Long: `Print one value of the resolved configuration.

The path uses GJSON syntax, e.g. "name", "kv_namespaces.0.id" or
"kv_namespaces.#.binding". Strings are printed raw, everything else as
JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.resolve(cmd.Context())
			if err != nil {
				return err
			}
			data, err := json.Marshal(res.cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			value := gjson.GetBytes(data, args[0])
			if !value.Exists() {
				return &exitError{code: exitUsage, err: fmt.Errorf("no value at %q", args[0])}
			}
			if value.Type == gjson.String {
				fmt.Fprintln(a.stdout, value.String())
			} else {
				fmt.Fprintln(a.stdout, value.Raw)
			}
			return nil
		},
	}
}

func (a *app) diffCmd() *cobra.Command {
	var against string
	cmd := &cobra.Command{
		Use:   "diff [<base-env>] <target-env>",
		Short: "Compare two resolved environments",
		Long: `Compare two resolved environments key by key.

With a single argument the environment is compared with the top level.
With --baseline the selected environment is compared with a saved
baseline instead.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if against != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.RangeArgs(1, 2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.resolve(cmd.Context())
			if err != nil {
				return err
			}

			var base, target artifact.ConfigArtifact
			if against != "" {
				b, err := a.baselineStore(res).Load(against)
				if err != nil {
					return &exitError{code: exitUsage, err: err}
				}
				base = b.Artifact
				if target, err = artifact.GenerateArtifact(res.cfg); err != nil {
					return err
				}
			} else {
				baseEnv, targetEnv := "", args[0]
				if len(args) == 2 {
					baseEnv, targetEnv = args[0], args[1]
				}
				if base, err = artifact.GenerateEnvironmentArtifact(res.cfg, baseEnv); err != nil {
					return &exitError{code: exitUsage, err: err}
				}
				if target, err = artifact.GenerateEnvironmentArtifact(res.cfg, targetEnv); err != nil {
					return &exitError{code: exitUsage, err: err}
				}
			}
			return a.printDrift(res, drift.Detect(base, target))
		},
	}
	cmd.Flags().StringVar(&against, "baseline", "", "compare the selected environment with this saved baseline")
	return cmd
}

func (a *app) printDrift(res *loaded, d drift.DriftReport) error {
	switch {
	case a.opts.JSONOutput:
		out, err := drift.FormatJSON(d)
		if err != nil {
			return fmt.Errorf("cannot format drift report: %w", err)
		}
		fmt.Fprintln(a.stdout, out)
	case a.ciMode():
		fmt.Fprint(a.stdout, drift.FormatCI(d, filepath.Base(res.path)))
	default:
		fmt.Fprint(a.stdout, drift.FormatCLI(d))
	}
	return nil
}

func (a *app) baselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage saved baselines",
		Long: `Manage saved baselines of resolved environments.

Baselines are kept in $WORKERCFG_BASELINE_DIR or in .workercfg/baselines
next to the configuration file. Compare against one with
'workercfg diff --baseline <name>'.`,
	}

	save := &cobra.Command{
		Use:   "save <name>",
		Short: "Save the selected environment as a baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.resolve(cmd.Context())
			if err != nil {
				return err
			}
			art, err := artifact.GenerateArtifact(res.cfg)
			if err != nil {
				return err
			}
			b := baseline.Baseline{Name: args[0], Config: res.path, Artifact: art, Timestamp: time.Now().UTC()}
			if err := a.baselineStore(res).Save(b); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Saved baseline %q (%s, %s)\n", b.Name, envLabel(art.Env), art.ConfigVersion)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved baselines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.resolve(cmd.Context())
			if err != nil {
				return err
			}
			summaries, err := a.baselineStore(res).List()
			if err != nil {
				return err
			}
			if a.opts.JSONOutput {
				data, err := json.MarshalIndent(summaries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, string(data))
				return nil
			}
			if len(summaries) == 0 {
				fmt.Fprintln(a.stdout, "No baselines saved.")
				return nil
			}
			for _, s := range summaries {
				fmt.Fprintf(a.stdout, "%s\t%s\t%s\t%s\n", s.Name, envLabel(s.Env), s.ConfigVersion, s.Timestamp.Format(time.RFC3339))
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.resolve(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.baselineStore(res).Delete(args[0]); err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			fmt.Fprintf(a.stdout, "Deleted baseline %q\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(save, list, remove)
	return cmd
}

func (a *app) baselineStore(res *loaded) *baseline.Store {
	return baseline.NewStore(baseline.ResolveDir(a.getenv, res.path))
}

// loaded is a configuration that has been read and normalised
type loaded struct {
	path        string
	raw         config.RawConfig
	cfg         *config.Config
	diagnostics *diagnostics.Diagnostics
}

// load reads and normalises the configuration. Only read and parse
// failures are returned as errors.
func (a *app) load(ctx context.Context) (*loaded, error) {
	getenv := a.getenv
	logger := logging.FromContext(ctx)

	path, err := a.opts.ResolveConfigPath(getenv, a.dir)
	if err != nil {
		return nil, &exitError{code: exitLoad, err: err}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.dir, path)
	}
	raw, err := loader.Load(path)
	if err != nil {
		return nil, &exitError{code: exitLoad, err: err}
	}
	logger.Debug("loaded configuration", "path", path, "environments", raw.EnvNames())

	n := config.NewNormalizer(config.WithLogger(logger))
	cfg, d := n.Normalize(raw, path, a.opts.ToArgs(getenv))
	if config.IsPagesConfig(raw) {
		logger.Debug("validating as a Pages project")
		d.AddChild(config.ValidatePagesConfig(cfg, raw.EnvNames(), ""))
	}
	return &loaded{path: path, raw: raw, cfg: cfg, diagnostics: d}, nil
}

// resolve loads the configuration and fails when it holds errors.
// Warnings are printed to stderr.
func (a *app) resolve(ctx context.Context) (*loaded, error) {
	res, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	if res.diagnostics.HasErrors() || res.diagnostics.HasWarnings() {
		a.printDiagnostics(res)
	}
	if res.diagnostics.HasErrors() {
		return nil, &exitError{code: exitInvalid}
	}
	return res, nil
}

func (a *app) printDiagnostics(res *loaded) {
	if a.ciMode() {
		fmt.Fprint(a.stderr, report.FormatCI(res.diagnostics, filepath.Base(res.path)))
		return
	}
	fmt.Fprint(a.stderr, report.FormatCLI(res.diagnostics, report.NewStyles(a.stderr)))
}

func (a *app) ciMode() bool {
	return a.opts.CIMode || getEnvBool(a.environ, "WORKERCFG_CI") || getEnvBool(a.environ, "CI")
}

func (a *app) getenv(name string) string {
	prefix := name + "="
	for _, env := range a.environ {
		if strings.HasPrefix(env, prefix) {
			return strings.TrimPrefix(env, prefix)
		}
	}
	return ""
}

// getEnvBool checks if an environment variable is set to a truthy value
func getEnvBool(environ []string, name string) bool {
	prefix := name + "="
	for _, env := range environ {
		if strings.HasPrefix(env, prefix) {
			val := strings.ToLower(strings.TrimPrefix(env, prefix))
			return val == "true" || val == "1" || val == "yes"
		}
	}
	return false
}

func envLabel(name string) string {
	if name == "" {
		return "top level"
	}
	return "env." + name
}
