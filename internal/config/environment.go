package config

import (
	"encoding/json"
	"fmt"
)

// Route is a route pattern, written either as a bare string or as an object
// naming its zone or marking it as a custom domain
type Route struct {
	Pattern      string `json:"pattern"`
	ZoneID       string `json:"zone_id,omitempty"`
	ZoneName     string `json:"zone_name,omitempty"`
	CustomDomain *bool  `json:"custom_domain,omitempty"`
}

// IsSimple reports whether the route is a bare pattern
func (r Route) IsSimple() bool {
	return r.ZoneID == "" && r.ZoneName == "" && r.CustomDomain == nil
}

// MarshalJSON writes simple routes back as strings
func (r Route) MarshalJSON() ([]byte, error) {
	if r.IsSimple() {
		return json.Marshal(r.Pattern)
	}
	type route Route
	return json.Marshal(route(r))
}

// UnmarshalJSON accepts a string or an object
func (r *Route) UnmarshalJSON(data []byte) error {
	var pattern string
	if err := json.Unmarshal(data, &pattern); err == nil {
		*r = Route{Pattern: pattern}
		return nil
	}
	type route Route
	var out route
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("route must be a string or an object: %w", err)
	}
	*r = Route(out)
	return nil
}

// Triggers holds the cron schedules of a worker
type Triggers struct {
	Crons []string `json:"crons"`
}

// Limits holds per-invocation resource limits
type Limits struct {
	CPUMs float64 `json:"cpu_ms"`
}

// Placement controls where invocations run
type Placement struct {
	Mode string `json:"mode"`
	Hint string `json:"hint,omitempty"`
}

// Build describes a custom build step
type Build struct {
	Command  string   `json:"command,omitempty"`
	Cwd      string   `json:"cwd,omitempty"`
	WatchDir []string `json:"watch_dir,omitempty"`
}

// Observability toggles log collection
type Observability struct {
	Enabled          bool     `json:"enabled"`
	HeadSamplingRate *float64 `json:"head_sampling_rate,omitempty"`
}

// RenamedClass records a Durable Object class rename
type RenamedClass struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Migration is one tagged Durable Object migration step
type Migration struct {
	Tag              string         `json:"tag"`
	NewClasses       []string       `json:"new_classes,omitempty"`
	NewSqliteClasses []string       `json:"new_sqlite_classes,omitempty"`
	RenamedClasses   []RenamedClass `json:"renamed_classes,omitempty"`
	DeletedClasses   []string       `json:"deleted_classes,omitempty"`
}

// DurableObjectBinding binds a Durable Object class to a name
type DurableObjectBinding struct {
	Name        string `json:"name"`
	ClassName   string `json:"class_name"`
	ScriptName  string `json:"script_name,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// DurableObjects holds the Durable Object bindings of an environment
type DurableObjects struct {
	Bindings []DurableObjectBinding `json:"bindings"`
}

// KVNamespace binds a KV namespace
type KVNamespace struct {
	Binding   string `json:"binding"`
	ID        string `json:"id"`
	PreviewID string `json:"preview_id,omitempty"`
}

// R2Bucket binds an R2 bucket
type R2Bucket struct {
	Binding           string `json:"binding"`
	BucketName        string `json:"bucket_name"`
	PreviewBucketName string `json:"preview_bucket_name,omitempty"`
	Jurisdiction      string `json:"jurisdiction,omitempty"`
}

// D1Database binds a D1 database
type D1Database struct {
	Binding           string `json:"binding"`
	DatabaseID        string `json:"database_id"`
	DatabaseName      string `json:"database_name,omitempty"`
	PreviewDatabaseID string `json:"preview_database_id,omitempty"`
	MigrationsDir     string `json:"migrations_dir,omitempty"`
	MigrationsTable   string `json:"migrations_table,omitempty"`
}

// ServiceBinding binds another worker
type ServiceBinding struct {
	Binding     string `json:"binding"`
	Service     string `json:"service"`
	Environment string `json:"environment,omitempty"`
	Entrypoint  string `json:"entrypoint,omitempty"`
}

// AnalyticsEngineDataset binds an Analytics Engine dataset
type AnalyticsEngineDataset struct {
	Binding string `json:"binding"`
	Dataset string `json:"dataset,omitempty"`
}

// Hyperdrive binds a Hyperdrive config
type Hyperdrive struct {
	Binding               string `json:"binding"`
	ID                    string `json:"id"`
	LocalConnectionString string `json:"localConnectionString,omitempty"`
}

// Vectorize binds a Vectorize index
type Vectorize struct {
	Binding   string `json:"binding"`
	IndexName string `json:"index_name"`
}

// MTLSCertificate binds an mTLS client certificate
type MTLSCertificate struct {
	Binding       string `json:"binding"`
	CertificateID string `json:"certificate_id"`
}

// QueueProducer lets the worker send to a queue
type QueueProducer struct {
	Binding       string   `json:"binding"`
	Queue         string   `json:"queue"`
	DeliveryDelay *float64 `json:"delivery_delay,omitempty"`
}

// QueueConsumer makes the worker consume a queue
type QueueConsumer struct {
	Queue               string   `json:"queue"`
	Type                string   `json:"type,omitempty"`
	MaxBatchSize        *float64 `json:"max_batch_size,omitempty"`
	MaxBatchTimeout     *float64 `json:"max_batch_timeout,omitempty"`
	MaxRetries          *float64 `json:"max_retries,omitempty"`
	DeadLetterQueue     string   `json:"dead_letter_queue,omitempty"`
	MaxConcurrency      *float64 `json:"max_concurrency,omitempty"`
	VisibilityTimeoutMs *float64 `json:"visibility_timeout_ms,omitempty"`
	RetryDelay          *float64 `json:"retry_delay,omitempty"`
}

// Queues holds queue producers and consumers
type Queues struct {
	Producers []QueueProducer `json:"producers"`
	Consumers []QueueConsumer `json:"consumers"`
}

// TailConsumer receives the trace events of the worker
type TailConsumer struct {
	Service     string `json:"service"`
	Environment string `json:"environment,omitempty"`
}

// NamedBinding is a single binding identified only by its name
type NamedBinding struct {
	Binding string `json:"binding"`
}

// Unsafe carries bindings and metadata passed through without checks
type Unsafe struct {
	Bindings []map[string]any `json:"bindings"`
	Metadata map[string]any   `json:"metadata,omitempty"`
	Capnp    map[string]any   `json:"capnp,omitempty"`
}

// Environment is the resolved value of every field an environment can set
type Environment struct {
	// Inherited fields
	Name               string         `json:"name,omitempty"`
	AccountID          string         `json:"account_id,omitempty"`
	CompatibilityDate  string         `json:"compatibility_date,omitempty"`
	CompatibilityFlags []string       `json:"compatibility_flags"`
	Main               string         `json:"main,omitempty"`
	BaseDir            string         `json:"base_dir,omitempty"`
	WorkersDev         *bool          `json:"workers_dev,omitempty"`
	Route              *Route         `json:"route,omitempty"`
	Routes             []Route        `json:"routes,omitempty"`
	Triggers           Triggers       `json:"triggers"`
	UsageModel         string         `json:"usage_model,omitempty"`
	Limits             *Limits        `json:"limits,omitempty"`
	Placement          *Placement     `json:"placement,omitempty"`
	Build              Build          `json:"build"`
	JSXFactory         string         `json:"jsx_factory"`
	JSXFragment        string         `json:"jsx_fragment"`
	Minify             *bool          `json:"minify,omitempty"`
	NoBundle           *bool          `json:"no_bundle,omitempty"`
	Logpush            *bool          `json:"logpush,omitempty"`
	UploadSourceMaps   *bool          `json:"upload_source_maps,omitempty"`
	Observability      *Observability `json:"observability,omitempty"`
	Migrations         []Migration    `json:"migrations"`
	ZoneID             string         `json:"zone_id,omitempty"`

	// Not inherited fields
	Vars                    map[string]any           `json:"vars"`
	Define                  map[string]string        `json:"define"`
	DurableObjects          DurableObjects           `json:"durable_objects"`
	KVNamespaces            []KVNamespace            `json:"kv_namespaces"`
	R2Buckets               []R2Bucket               `json:"r2_buckets"`
	D1Databases             []D1Database             `json:"d1_databases"`
	Services                []ServiceBinding         `json:"services"`
	AnalyticsEngineDatasets []AnalyticsEngineDataset `json:"analytics_engine_datasets"`
	Hyperdrive              []Hyperdrive             `json:"hyperdrive"`
	Vectorize               []Vectorize              `json:"vectorize"`
	MTLSCertificates        []MTLSCertificate        `json:"mtls_certificates"`
	Queues                  Queues                   `json:"queues"`
	TailConsumers           []TailConsumer           `json:"tail_consumers,omitempty"`
	AI                      *NamedBinding            `json:"ai,omitempty"`
	Browser                 *NamedBinding            `json:"browser,omitempty"`
	VersionMetadata         *NamedBinding            `json:"version_metadata,omitempty"`
	Unsafe                  *Unsafe                  `json:"unsafe,omitempty"`
}

// DevConfig holds local development settings
type DevConfig struct {
	IP               string `json:"ip"`
	Port             *int   `json:"port,omitempty"`
	InspectorPort    *int   `json:"inspector_port,omitempty"`
	LocalProtocol    string `json:"local_protocol"`
	UpstreamProtocol string `json:"upstream_protocol"`
	Host             string `json:"host,omitempty"`
}

// Config is the fully resolved configuration. The active environment is
// embedded; every named environment is also kept in Environments.
type Config struct {
	ConfigPath string `json:"-"`
	// EnvName is the active environment, empty for the top level
	EnvName string `json:"-"`

	LegacyEnv           bool   `json:"legacy_env"`
	SendMetrics         *bool  `json:"send_metrics,omitempty"`
	KeepVars            *bool  `json:"keep_vars,omitempty"`
	PagesBuildOutputDir string `json:"pages_build_output_dir,omitempty"`

	Environment

	Dev   DevConfig         `json:"dev"`
	Alias map[string]string `json:"alias,omitempty"`

	Environments map[string]*Environment `json:"-"`
}
