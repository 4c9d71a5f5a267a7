package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/templogger/internal/errors"
	"codeberg.org/mutker/templogger/internal/logger"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultIdentity = "IDN:OXFORD INSTRUMENTS:MERCURY ITC:224550324:2.6.04.000"
	DefaultQuery    = "READ:DEV:MB1.T1:TEMP:SIG:TEMP"
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 2 * time.Second
	DefaultBaud     = 9600
	DefaultLogLevel = "info"

	defaultEnvPrefix  = "TEMPLOGGER"
	configName        = "templogger"
	metricsDBName     = "samples.db"
	defaultDotenvFile = ".env"
)

type Config struct {
	Endpoint     string        `mapstructure:"endpoint"`
	Identity     string        `mapstructure:"identity"`
	Query        string        `mapstructure:"query"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Baud         int           `mapstructure:"baud"`
	PrologixPort string        `mapstructure:"prologix_port"`

	LogRoot  string `mapstructure:"log_root"`
	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`

	Interactive bool        `mapstructure:"interactive"`
	OnError     ErrorPolicy `mapstructure:"on_error"`
	MaxFailures int         `mapstructure:"max_failures"`

	Metrics   bool   `mapstructure:"metrics"`
	MetricsDB string `mapstructure:"metrics_db"`

	InfluxURL    string `mapstructure:"influx_url"`
	InfluxToken  string `mapstructure:"influx_token"`
	InfluxOrg    string `mapstructure:"influx_org"`
	InfluxBucket string `mapstructure:"influx_bucket"`

	// ListPorts is a command line action, not a persisted setting.
	ListPorts bool `mapstructure:"-"`
}

// Destination returns where samples are appended: the log file if one is
// configured, otherwise the log root directory.
func (c *Config) Destination() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return c.LogRoot
}

// InfluxEnabled reports whether samples are exported to InfluxDB.
func (c *Config) InfluxEnabled() bool {
	return c.InfluxURL != ""
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix: defaultEnvPrefix,
		args:      os.Args[1:],
		dotenv:    []string{defaultDotenvFile},
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	for _, path := range o.dotenv {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	flags := newFlagSet()
	if err := flags.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if err := bindFlags(v, flags); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, flags, o); err != nil {
		return nil, err
	}

	config := &Config{}
	hook := mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(config, viper.DecodeHook(hook)); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	config.ListPorts, _ = flags.GetBool("list-ports")

	if config.MetricsDB == "" {
		config.MetricsDB = filepath.Join(config.LogRoot, metricsDBName)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks value ranges. An empty endpoint is valid here: in
// interactive mode the port is chosen later.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.Timeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidTimeout, c.Timeout)
	}
	if c.Baud <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "baud rate must be positive")
	}
	if c.LogRoot == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "log root must be set")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if !c.OnError.IsValid() {
		return errFactory.WithData(errors.ErrInvalidPolicy, c.OnError)
	}
	if c.MaxFailures < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "max failures must not be negative")
	}
	if c.InfluxEnabled() && (c.InfluxOrg == "" || c.InfluxBucket == "") {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "influx export needs influx_org and influx_bucket")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "")
	v.SetDefault("identity", DefaultIdentity)
	v.SetDefault("query", DefaultQuery)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("baud", DefaultBaud)
	v.SetDefault("prologix_port", "")
	v.SetDefault("log_root", defaultLogRoot())
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("interactive", false)
	v.SetDefault("on_error", string(PolicyContinue))
	v.SetDefault("max_failures", 0)
	v.SetDefault("metrics", false)
	v.SetDefault("metrics_db", "")
	v.SetDefault("influx_url", "")
	v.SetDefault("influx_token", "")
	v.SetDefault("influx_org", "")
	v.SetDefault("influx_bucket", "")
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringP("config", "c", "", "Path to a TOML config file")
	fs.StringP("endpoint", "p", "", "Instrument endpoint, e.g. ASRL/dev/ttyACM0::INSTR")
	fs.String("identity", DefaultIdentity, "Expected *IDN? response")
	fs.String("query", DefaultQuery, "Temperature query command")
	fs.Duration("interval", DefaultInterval, "Delay between samples")
	fs.Duration("timeout", DefaultTimeout, "Instrument response timeout")
	fs.Int("baud", DefaultBaud, "Serial baud rate")
	fs.String("prologix-port", "", "Serial port of a Prologix GPIB-USB controller")
	fs.String("log-root", defaultLogRoot(), "Directory for general.log and the sample log")
	fs.String("log-file", "", "Sample log file (default <log-root>/tmp_log.csv)")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning, error")
	fs.BoolP("interactive", "i", false, "Show the live terminal display")
	fs.String("on-error", string(PolicyContinue), "After a failed read: continue or stop")
	fs.Int("max-failures", 0, "Stop after this many failed reads in a row (0 = never)")
	fs.Bool("metrics", false, "Mirror samples into a SQLite database")
	fs.String("metrics-db", "", "SQLite database path (default <log-root>/samples.db)")
	fs.String("influx-url", "", "InfluxDB URL; enables export when set")
	fs.String("influx-token", "", "InfluxDB token")
	fs.String("influx-org", "", "InfluxDB organization")
	fs.String("influx-bucket", "", "InfluxDB bucket")
	fs.Bool("list-ports", false, "List available serial ports and exit")

	return fs
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Name == "config" || f.Name == "list-ports" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		bindErr = v.BindPFlag(key, f)
	})

	return bindErr
}

func readConfigFile(v *viper.Viper, flags *pflag.FlagSet, o *options) error {
	errFactory := errors.New()

	path := o.configPath
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}
	if flagPath, _ := flags.GetString("config"); flagPath != "" {
		path = flagPath
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, configName))
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// secondsToDurationHook lets config files say interval = 5 and mean seconds.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch n := data.(type) {
		case int:
			return time.Duration(n) * time.Second, nil
		case int64:
			return time.Duration(n) * time.Second, nil
		case float64:
			return time.Duration(n * float64(time.Second)), nil
		case string:
			if secs, err := strconv.ParseFloat(n, 64); err == nil {
				return time.Duration(secs * float64(time.Second)), nil
			}
		}
		return data, nil
	}
}

func defaultLogRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, configName)
	}
	return filepath.Join(os.TempDir(), configName)
}
