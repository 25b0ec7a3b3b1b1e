package relaycli

import (
	"time"

	"github.com/urfave/cli/v2"
)

var CommonOpts struct {
	Console       bool
	Env           string
	Port          int
	DefaultTTL    time.Duration
	SweepInterval time.Duration
}

var ConsoleFlag = cli.BoolFlag{
	Name:        "console",
	Usage:       "whether to run in console mode or lambda mode",
	Value:       false,
	EnvVars:     []string{"CONSOLE"},
	Destination: &CommonOpts.Console,
}
var EnvFlag = cli.StringFlag{
	Name:        "env",
	Usage:       "environment",
	Value:       "local",
	EnvVars:     []string{"ENV"},
	Destination: &CommonOpts.Env,
}
var DefaultTTLFlag = cli.DurationFlag{
	Name:        "default-ttl",
	Usage:       "connection record time-to-live applied when a connect request omits ttlSeconds",
	Value:       60 * time.Second,
	EnvVars:     []string{"DEFAULT_TTL"},
	Destination: &CommonOpts.DefaultTTL,
}
var SweepIntervalFlag = cli.DurationFlag{
	Name:        "sweep-interval",
	Usage:       "how often the expiry sweeper scans for stale connection records (console mode)",
	Value:       30 * time.Second,
	EnvVars:     []string{"SWEEP_INTERVAL"},
	Destination: &CommonOpts.SweepInterval,
}
var PortFlag = func(p int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        "port",
		Usage:       "Port to listen to, if running locally",
		Value:       p,
		EnvVars:     []string{"PORT"},
		Destination: &CommonOpts.Port,
	}
}

var CommonFlags = []cli.Flag{
	&ConsoleFlag,
	&EnvFlag,
	&DefaultTTLFlag,
}

// StringFlag constructs a string flag bound to dest with the flag name
// upper-snake-cased as the env var.
func StringFlag(name, usage string, dest *string, defaults ...string) *cli.StringFlag {
	var value string
	if len(defaults) > 0 {
		value = defaults[0]
	}
	return &cli.StringFlag{
		Name:        name,
		Usage:       usage,
		Value:       value,
		EnvVars:     []string{envVar(name)},
		Destination: dest,
	}
}

func BoolFlag(name, usage string, dest *bool) *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     []string{envVar(name)},
		Destination: dest,
	}
}

func envVar(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '-':
			out = append(out, '_')
		case c >= 'a' && c <= 'z':
			out = append(out, c-('a'-'A'))
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
