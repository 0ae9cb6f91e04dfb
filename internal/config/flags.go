package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// CLIConfig holds the command-line settings of pdpsolve.
type CLIConfig struct {
	Instance    string
	EnvFile     string
	Format      string // text or json
	Compare     []string
	Workers     int
	MetricsFile string
	RedisURL    string
	Channel     string
	Secret      string
	Version     bool
	Watch       int    // reports to read from the channel, no solve
	Fetch       string // run id to read back, no solve
}

// FromFlags parses args into a CLIConfig. Defaults come from PDP_* environment
// variables, so LoadEnv should run first.
func FromFlags(fs *flag.FlagSet, args []string) (CLIConfig, error) {
	var c CLIConfig
	var compare string
	workers, err := strconv.Atoi(getEnv("PDP_WORKERS", "0"))
	if err != nil {
		return c, fmt.Errorf("config: PDP_WORKERS: %w", err)
	}
	fs.StringVar(&c.Instance, "instance", getEnv("PDP_INSTANCE", ""), "instance file (.yaml, .json or .csv)")
	fs.StringVar(&c.EnvFile, "env", "", "extra .env file to load")
	fs.StringVar(&c.Format, "format", getEnv("PDP_FORMAT", "text"), "output format: text or json")
	fs.StringVar(&compare, "compare", getEnv("PDP_COMPARE", ""), "comma separated strategies to run side by side, or \"all\"")
	fs.IntVar(&c.Workers, "workers", workers, "parallel solves when comparing (0 means no limit)")
	fs.StringVar(&c.MetricsFile, "metrics-file", getEnv("PDP_METRICS_FILE", ""), "write Prometheus metrics to this textfile")
	fs.StringVar(&c.RedisURL, "redis-url", getEnv("REDIS_URL", ""), "publish reports to this Redis")
	fs.StringVar(&c.Channel, "channel", getEnv("PDP_CHANNEL", "pdp:reports"), "Redis channel for reports")
	fs.StringVar(&c.Secret, "secret", getEnv("PDP_SIGNING_SECRET", ""), "HMAC secret for published reports")
	fs.BoolVar(&c.Version, "version", false, "print the version and exit")
	fs.IntVar(&c.Watch, "watch", 0, "print this many reports received on the Redis channel and exit")
	fs.StringVar(&c.Fetch, "fetch", "", "print the stored report of this run id and exit")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	switch c.Format {
	case "text", "json":
	default:
		return c, fmt.Errorf("config: unknown format %q", c.Format)
	}
	if c.Version {
		return c, nil
	}
	if c.Watch < 0 {
		return c, fmt.Errorf("config: -watch must not be negative")
	}
	if c.Watch > 0 || c.Fetch != "" {
		if c.RedisURL == "" {
			return c, fmt.Errorf("config: -watch and -fetch need -redis-url")
		}
		return c, nil
	}
	if c.Instance == "" && fs.NArg() > 0 {
		c.Instance = fs.Arg(0)
	}
	if c.Instance == "" {
		return c, fmt.Errorf("config: no instance file given")
	}
	for _, s := range strings.Split(compare, ",") {
		if s = strings.TrimSpace(s); s != "" {
			c.Compare = append(c.Compare, s)
		}
	}
	return c, nil
}
