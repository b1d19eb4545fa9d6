package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"comfyd/internal/common/fsutil"
)

// Config holds runtime parameters for the daemon. Load starts from
// Default and overlays the file, so zero values in the file mean
// "keep the default".
type Config struct {
	Addr       string          `json:"addr" yaml:"addr" toml:"addr"`
	VolumeRoot string          `json:"volume_root" yaml:"volume_root" toml:"volume_root"`
	Log        LogConfig       `json:"log" yaml:"log" toml:"log"`
	Engine     EngineConfig    `json:"engine" yaml:"engine" toml:"engine"`
	Workflows  WorkflowsConfig `json:"workflows" yaml:"workflows" toml:"workflows"`
	Jobs       JobsConfig      `json:"jobs" yaml:"jobs" toml:"jobs"`
	Storage    StorageConfig   `json:"storage" yaml:"storage" toml:"storage"`
	Queue      QueueConfig     `json:"queue" yaml:"queue" toml:"queue"`
	CORS       CORSConfig      `json:"cors" yaml:"cors" toml:"cors"`
}

// LogConfig selects log verbosity and output shape.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"` // console or json
}

// EngineConfig describes the supervised inference server.
type EngineConfig struct {
	// Managed spawns and supervises the engine process. When false the
	// daemon only probes BaseURL (engine runs elsewhere).
	Managed bool `json:"managed" yaml:"managed" toml:"managed"`
	// Command is the engine argv without listen arguments; the
	// supervisor appends --port and --listen from Host/Port.
	Command []string `json:"command" yaml:"command" toml:"command"`
	WorkDir string   `json:"work_dir" yaml:"work_dir" toml:"work_dir"`
	Host    string   `json:"host" yaml:"host" toml:"host"`
	Port    int      `json:"port" yaml:"port" toml:"port"`
	// Readiness probing: up to ReadyAttempts probes of /system_stats,
	// ReadyIntervalSeconds apart, each bounded by ProbeTimeoutSeconds.
	ReadyAttempts        int `json:"ready_attempts" yaml:"ready_attempts" toml:"ready_attempts"`
	ReadyIntervalSeconds int `json:"ready_interval_seconds" yaml:"ready_interval_seconds" toml:"ready_interval_seconds"`
	ProbeTimeoutSeconds  int `json:"probe_timeout_seconds" yaml:"probe_timeout_seconds" toml:"probe_timeout_seconds"`
	StopGraceSeconds     int `json:"stop_grace_seconds" yaml:"stop_grace_seconds" toml:"stop_grace_seconds"`
}

// BaseURL is the engine HTTP endpoint derived from Host and Port.
func (e EngineConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", e.Host, e.Port)
}

func (e EngineConfig) ReadyInterval() time.Duration {
	return time.Duration(e.ReadyIntervalSeconds) * time.Second
}

func (e EngineConfig) ProbeTimeout() time.Duration {
	return time.Duration(e.ProbeTimeoutSeconds) * time.Second
}

func (e EngineConfig) StopGrace() time.Duration {
	return time.Duration(e.StopGraceSeconds) * time.Second
}

// WorkflowsConfig locates workflow definitions and engine data dirs.
type WorkflowsConfig struct {
	Dir string `json:"dir" yaml:"dir" toml:"dir"`
	// InputDir receives fetched image assets for load-image nodes.
	InputDir string `json:"input_dir" yaml:"input_dir" toml:"input_dir"`
	// OutputDir is where the engine writes produced media.
	OutputDir string `json:"output_dir" yaml:"output_dir" toml:"output_dir"`
}

// JobsConfig bounds job execution.
type JobsConfig struct {
	PollIntervalSeconds int  `json:"poll_interval_seconds" yaml:"poll_interval_seconds" toml:"poll_interval_seconds"`
	TimeoutSeconds      int  `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	QueueWaitSeconds    int  `json:"queue_wait_seconds" yaml:"queue_wait_seconds" toml:"queue_wait_seconds"`
	Prewarm             bool `json:"prewarm" yaml:"prewarm" toml:"prewarm"`
}

func (j JobsConfig) PollInterval() time.Duration {
	return time.Duration(j.PollIntervalSeconds) * time.Second
}

func (j JobsConfig) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

func (j JobsConfig) QueueWait() time.Duration {
	return time.Duration(j.QueueWaitSeconds) * time.Second
}

// StorageConfig carries the S3-compatible delivery target. All four of
// EndpointURL, Bucket, AccessKeyID and SecretAccessKey must be present
// for uploads; otherwise delivery falls back to inline encoding.
type StorageConfig struct {
	EndpointURL     string `json:"endpoint_url" yaml:"endpoint_url" toml:"endpoint_url"`
	Bucket          string `json:"bucket" yaml:"bucket" toml:"bucket"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key" toml:"secret_access_key"`
	Region          string `json:"region" yaml:"region" toml:"region"`
	KeyPrefix       string `json:"key_prefix" yaml:"key_prefix" toml:"key_prefix"`
}

// Complete reports whether the four required values are all set.
func (s StorageConfig) Complete() bool {
	return s.EndpointURL != "" && s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// QueueConfig enables the Redis job intake when RedisAddr is set.
type QueueConfig struct {
	RedisAddr         string `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword     string `json:"redis_password" yaml:"redis_password" toml:"redis_password"`
	RedisDB           int    `json:"redis_db" yaml:"redis_db" toml:"redis_db"`
	JobsList          string `json:"jobs_list" yaml:"jobs_list" toml:"jobs_list"`
	ResultsList       string `json:"results_list" yaml:"results_list" toml:"results_list"`
	PopTimeoutSeconds int    `json:"pop_timeout_seconds" yaml:"pop_timeout_seconds" toml:"pop_timeout_seconds"`
}

func (q QueueConfig) Enabled() bool { return q.RedisAddr != "" }

func (q QueueConfig) PopTimeout() time.Duration {
	return time.Duration(q.PopTimeoutSeconds) * time.Second
}

// CORSConfig configures the HTTP CORS middleware (opt-in).
type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Default returns the deployment defaults: a managed ComfyUI under
// /comfyui listening on loopback 8188.
func Default() Config {
	return Config{
		Addr:       ":8080",
		VolumeRoot: "/workspace",
		Log:        LogConfig{Level: "info", Format: "console"},
		Engine: EngineConfig{
			Managed:              true,
			Command:              []string{"python", "-u", "/comfyui/main.py"},
			WorkDir:              "/comfyui",
			Host:                 "127.0.0.1",
			Port:                 8188,
			ReadyAttempts:        60,
			ReadyIntervalSeconds: 2,
			ProbeTimeoutSeconds:  2,
			StopGraceSeconds:     5,
		},
		Workflows: WorkflowsConfig{
			Dir:       "/comfyui/workflows",
			InputDir:  os.TempDir(),
			OutputDir: "/comfyui/output",
		},
		Jobs: JobsConfig{
			PollIntervalSeconds: 1,
			TimeoutSeconds:      600,
			QueueWaitSeconds:    0,
			Prewarm:             true,
		},
		Storage: StorageConfig{KeyPrefix: "generated"},
		Queue: QueueConfig{
			JobsList:          "comfyd:jobs",
			ResultsList:       "comfyd:results",
			PopTimeoutSeconds: 5,
		},
	}
}

// ApplyEnv overlays environment variables onto cfg. The storage values
// honor the deployment's existing S3_* names.
func ApplyEnv(cfg *Config) {
	setenvString(&cfg.Storage.EndpointURL, "S3_ENDPOINT_URL")
	setenvString(&cfg.Storage.Bucket, "S3_BUCKET")
	setenvString(&cfg.Storage.AccessKeyID, "S3_ACCESS_KEY_ID")
	setenvString(&cfg.Storage.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	setenvString(&cfg.Storage.Region, "S3_REGION")
	setenvString(&cfg.VolumeRoot, "VOLUME_ROOT")
	setenvString(&cfg.Addr, "COMFYD_ADDR")
	setenvString(&cfg.Engine.Host, "COMFYD_ENGINE_HOST")
	setenvInt(&cfg.Engine.Port, "COMFYD_ENGINE_PORT")
	setenvString(&cfg.Workflows.Dir, "COMFYD_WORKFLOWS_DIR")
	setenvString(&cfg.Workflows.InputDir, "COMFYD_INPUT_DIR")
	setenvString(&cfg.Workflows.OutputDir, "COMFYD_OUTPUT_DIR")
	setenvString(&cfg.Queue.RedisAddr, "COMFYD_REDIS_ADDR")
	setenvString(&cfg.Log.Level, "COMFYD_LOG_LEVEL")
}

func setenvString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setenvInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Normalize expands home-relative paths and anchors relative data
// directories under the volume root.
func (c *Config) Normalize() error {
	for _, p := range []*string{&c.Workflows.Dir, &c.Workflows.InputDir, &c.Workflows.OutputDir, &c.VolumeRoot} {
		expanded, err := fsutil.ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	c.Workflows.Dir = fsutil.ResolveUnder(c.VolumeRoot, c.Workflows.Dir)
	c.Workflows.InputDir = fsutil.ResolveUnder(c.VolumeRoot, c.Workflows.InputDir)
	c.Workflows.OutputDir = fsutil.ResolveUnder(c.VolumeRoot, c.Workflows.OutputDir)
	return nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.Engine.Host == "" {
		return fmt.Errorf("engine.host must not be empty")
	}
	if c.Engine.Port <= 0 || c.Engine.Port > 65535 {
		return fmt.Errorf("engine.port out of range: %d", c.Engine.Port)
	}
	if c.Engine.Managed && len(c.Engine.Command) == 0 {
		return fmt.Errorf("engine.command must not be empty when engine.managed is true")
	}
	if c.Engine.ReadyAttempts <= 0 {
		return fmt.Errorf("engine.ready_attempts must be positive")
	}
	if c.Engine.ReadyIntervalSeconds <= 0 {
		return fmt.Errorf("engine.ready_interval_seconds must be positive")
	}
	if c.Workflows.Dir == "" {
		return fmt.Errorf("workflows.dir must not be empty")
	}
	if c.Workflows.OutputDir == "" {
		return fmt.Errorf("workflows.output_dir must not be empty")
	}
	if c.Jobs.PollIntervalSeconds <= 0 {
		return fmt.Errorf("jobs.poll_interval_seconds must be positive")
	}
	if c.Jobs.TimeoutSeconds <= 0 {
		return fmt.Errorf("jobs.timeout_seconds must be positive")
	}
	if c.Jobs.QueueWaitSeconds < 0 {
		return fmt.Errorf("jobs.queue_wait_seconds must not be negative")
	}
	if c.Queue.Enabled() {
		if c.Queue.JobsList == "" || c.Queue.ResultsList == "" {
			return fmt.Errorf("queue.jobs_list and queue.results_list must be set when redis_addr is set")
		}
		if c.Queue.PopTimeoutSeconds <= 0 {
			return fmt.Errorf("queue.pop_timeout_seconds must be positive")
		}
	}
	return nil
}
