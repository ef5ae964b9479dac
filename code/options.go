package code

import "time"

// Option configures a Subprocess or Container runner.
type Option func(*runnerConfig)

type runnerConfig struct {
	// Shared options.
	timeout   time.Duration
	maxOutput int
	workspace string
	env       map[string]string

	// Subprocess options.
	pythonBin string
	nodeBin   string

	// Container options.
	image      string
	memory     int64
	nanoCPUs   int64
	pullPolicy PullPolicy
}

func defaultConfig() runnerConfig {
	return runnerConfig{
		timeout:    30 * time.Second,
		maxOutput:  64 * 1024, // 64KB
		pythonBin:  "python3",
		nodeBin:    "node",
		memory:     512 << 20, // 512MB
		nanoCPUs:   1e9,       // one CPU
		pullPolicy: PullMissing,
	}
}

// PullPolicy controls when the Container runner pulls its image.
type PullPolicy string

const (
	// PullMissing pulls only when the image is absent locally.
	PullMissing PullPolicy = "missing"
	// PullAlways pulls before every execution.
	PullAlways PullPolicy = "always"
	// PullNever fails when the image is absent locally.
	PullNever PullPolicy = "never"
)

// WithTimeout sets the maximum execution duration for code.
// Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *runnerConfig) { c.timeout = d }
}

// WithMaxOutput sets the maximum captured size in bytes for each of stdout
// and stderr. Output beyond this limit is discarded. Default: 64KB.
func WithMaxOutput(bytes int) Option {
	return func(c *runnerConfig) { c.maxOutput = bytes }
}

// WithWorkspace sets a persistent workspace directory. Files written by one
// execution are visible to the next. Default: a fresh temp directory per
// execution, removed afterwards.
func WithWorkspace(dir string) Option {
	return func(c *runnerConfig) { c.workspace = dir }
}

// WithEnv adds one environment variable to the execution environment.
// Repeat the option for multiple variables.
func WithEnv(key, value string) Option {
	return func(c *runnerConfig) {
		if c.env == nil {
			c.env = make(map[string]string)
		}
		c.env[key] = value
	}
}

// WithPythonBin sets the Python binary for the Subprocess runner.
// Default: "python3".
func WithPythonBin(bin string) Option {
	return func(c *runnerConfig) { c.pythonBin = bin }
}

// WithNodeBin sets the Node.js binary for the Subprocess runner.
// Default: "node".
func WithNodeBin(bin string) Option {
	return func(c *runnerConfig) { c.nodeBin = bin }
}

// WithImage overrides the Container runner's image for every runtime.
// Default: "python:3.12-slim" for python, "node:22-slim" for node.
func WithImage(ref string) Option {
	return func(c *runnerConfig) { c.image = ref }
}

// WithMemoryLimit caps the container's memory in bytes. Default: 512MB.
func WithMemoryLimit(bytes int64) Option {
	return func(c *runnerConfig) { c.memory = bytes }
}

// WithCPULimit caps the container's CPU time in whole-CPU units
// (0.5 = half a core). Default: 1.
func WithCPULimit(cpus float64) Option {
	return func(c *runnerConfig) { c.nanoCPUs = int64(cpus * 1e9) }
}

// WithPullPolicy controls image pulling for the Container runner.
// Default: PullMissing.
func WithPullPolicy(p PullPolicy) Option {
	return func(c *runnerConfig) { c.pullPolicy = p }
}
