package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"workercfg/internal/config"
	"workercfg/internal/loader"
)

// Environment variables consulted when the matching flag is not given
const (
	EnvConfigPath  = "WORKERCFG_CONFIG"
	EnvEnvironment = "WORKERCFG_ENV"
)

// ErrInvalidProtocol is returned for a protocol other than http or https
var ErrInvalidProtocol = errors.New("protocol must be http or https")

// Options are the flags shared by every subcommand
type Options struct {
	// Output flags
	ConfigPath   string // --config <path>
	CIMode       bool   // --ci
	JSONOutput   bool   // --json
	ArtifactFile string // --artifact-file <path>
	Verbose      bool   // --verbose

	// Normalisation flags, see config.Args
	Env               string // --env <name>
	Name              string // --name <worker>
	LegacyEnv         bool   // --legacy-env
	DispatchNamespace string // --dispatch-namespace <ns>
	Remote            bool   // --remote
	LocalProtocol     string // --local-protocol <http|https>
	UpstreamProtocol  string // --upstream-protocol <http|https>

	legacyEnvSet func() bool
}

// BindFlags registers the options on fs
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigPath, "config", "c", "", "path to the configuration file")
	fs.StringVarP(&o.Env, "env", "e", "", "environment to resolve")
	fs.BoolVar(&o.CIMode, "ci", false, "print GitHub Actions annotations")
	fs.BoolVar(&o.JSONOutput, "json", false, "print machine readable output")
	fs.StringVar(&o.ArtifactFile, "artifact-file", "", "write the resolved artifact to this path")
	fs.BoolVarP(&o.Verbose, "verbose", "v", false, "log debug output to stderr")

	fs.StringVar(&o.Name, "name", "", "override the worker name")
	fs.BoolVar(&o.LegacyEnv, "legacy-env", true, "use legacy (non service) environments")
	fs.StringVar(&o.DispatchNamespace, "dispatch-namespace", "", "dispatch namespace to deploy into")
	fs.BoolVar(&o.Remote, "remote", false, "run against the remote runtime")
	fs.StringVar(&o.LocalProtocol, "local-protocol", "", "protocol of the local dev server (http|https)")
	fs.StringVar(&o.UpstreamProtocol, "upstream-protocol", "", "protocol of the upstream origin (http|https)")

	o.legacyEnvSet = func() bool { return fs.Changed("legacy-env") }
}

// Validate checks the flag values that normalisation does not
func (o *Options) Validate() error {
	for flag, value := range map[string]string{
		"--local-protocol":    o.LocalProtocol,
		"--upstream-protocol": o.UpstreamProtocol,
	} {
		if value != "" && value != "http" && value != "https" {
			return fmt.Errorf("%s %q: %w", flag, value, ErrInvalidProtocol)
		}
	}
	return nil
}

// ResolveConfigPath returns the configuration file to load: the --config
// flag, then $WORKERCFG_CONFIG, then discovery upward from dir
func (o *Options) ResolveConfigPath(getenv func(string) string, dir string) (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	if path := getenv(EnvConfigPath); path != "" {
		return path, nil
	}
	return loader.Find(dir)
}

// ResolveEnvironment returns the environment to resolve: the --env flag,
// then $WORKERCFG_ENV
func (o *Options) ResolveEnvironment(getenv func(string) string) string {
	if o.Env != "" {
		return o.Env
	}
	return getenv(EnvEnvironment)
}

// ToArgs converts the options for the normaliser. --legacy-env only
// counts when given explicitly.
func (o *Options) ToArgs(getenv func(string) string) config.Args {
	args := config.Args{
		Name:              o.Name,
		Env:               o.ResolveEnvironment(getenv),
		DispatchNamespace: o.DispatchNamespace,
		Remote:            o.Remote,
		LocalProtocol:     o.LocalProtocol,
		UpstreamProtocol:  o.UpstreamProtocol,
	}
	if o.legacyEnvSet != nil && o.legacyEnvSet() {
		legacy := o.LegacyEnv
		args.LegacyEnv = &legacy
	}
	return args
}
