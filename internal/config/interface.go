package config

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

// options holds internal configuration options
type options struct {
	configPath string
	envPrefix  string
	args       []string
	dotenv     []string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "TEMPLOGGER"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithArgs parses the given command line instead of os.Args[1:].
func WithArgs(args []string) Option {
	return func(o *options) error {
		o.args = args
		return nil
	}
}

// WithDotenv loads the given .env files before reading the environment.
// Missing files are ignored. Default is ".env" in the working directory.
func WithDotenv(paths ...string) Option {
	return func(o *options) error {
		o.dotenv = paths
		return nil
	}
}

// ErrorPolicy decides what the polling loop does after a failed read.
type ErrorPolicy string

const (
	// PolicyContinue keeps the schedule and tries again after the interval.
	PolicyContinue ErrorPolicy = "continue"
	// PolicyStop moves the loop to idle and reports the failure.
	PolicyStop ErrorPolicy = "stop"
)

// IsValid returns whether the policy is known
func (p ErrorPolicy) IsValid() bool {
	switch p {
	case PolicyContinue, PolicyStop:
		return true
	default:
		return false
	}
}

func (p ErrorPolicy) String() string {
	return string(p)
}
