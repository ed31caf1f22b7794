package timer

import (
	"flag"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultMaxTimersPerController = 1 << 20
	defaultWorkerPoolSize         = 16

	workerPoolSizeFlag = "timer.worker-pool-size"
	maxTimersFlag      = "timer.max-timers-per-controller"
)

var (
	errInvalidWorkerPoolSize = errors.New("timer: worker pool size must be positive")
	errInvalidMaxTimers      = errors.New("timer: max timers per controller must be positive")
	errInvalidResolution     = errors.New("timer: default resolution must be at least one tick")
)

// Config controls a Service's worker pool. MaxTimersPerController and
// DefaultResolution are validated but not otherwise read: a Service creates
// no controller at startup, and NewController takes its timer budget and
// resolution as arguments.
type Config struct {
	WorkerPoolSize         int           `yaml:"worker_pool_size"`
	MaxTimersPerController int           `yaml:"max_timers_per_controller"`
	DefaultResolution      time.Duration `yaml:"default_resolution"`
}

// RegisterFlags registers the flags controlling this config.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.IntVar(&cfg.WorkerPoolSize, workerPoolSizeFlag, defaultWorkerPoolSize, "Number of worker goroutines draining expired timers from the dispatch queue.")
	f.IntVar(&cfg.MaxTimersPerController, maxTimersFlag, defaultMaxTimersPerController, "Maximum number of timers per controller. Only validated: NewController takes its own budget.")
	f.DurationVar(&cfg.DefaultResolution, "timer.default-resolution", time.Duration(MillisPerTick)*time.Millisecond, "Default controller resolution. Only validated: the service creates no controller at startup and NewController takes its own resolution.")
}

// Validate the config.
func (cfg *Config) Validate() error {
	if cfg.WorkerPoolSize <= 0 {
		return errInvalidWorkerPoolSize
	}
	if cfg.MaxTimersPerController <= 0 {
		return errInvalidMaxTimers
	}
	if cfg.DefaultResolution < time.Duration(MillisPerTick)*time.Millisecond {
		return errInvalidResolution
	}
	return nil
}
