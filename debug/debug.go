package debug

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
)

var (
	Debug bool
)

func init() {
	debugEnv, exists := os.LookupEnv("DEVSETTINGS_DEBUG")
	if exists {
		if val, err := strconv.ParseBool(debugEnv); err == nil {
			Debug = val
		}
	}
	if Debug {
		_ = log.SetLevel("debug")
	}
}

// Printf writes a debug-level line when debugging is enabled.
func Printf(format string, v ...interface{}) {
	if Debug {
		log.L.Debugf(format, v...)
	}
}

func Enable() {
	Debug = true
	_ = log.SetLevel("debug")
}

func Disable() {
	Debug = false
	if log.GetLevel() == log.DebugLevel {
		_ = log.SetLevel("info")
	}
}

// Setup configures the process-wide logger. An empty level or format keeps
// the current setting; the debug toggle wins over level.
func Setup(level, format string) error {
	if level = strings.TrimSpace(level); level != "" && !Debug {
		if err := log.SetLevel(level); err != nil {
			return fmt.Errorf("debug: invalid log level %q: %w", level, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "":
	case string(log.TextFormat):
		return log.SetFormat(log.TextFormat)
	case string(log.JSONFormat):
		return log.SetFormat(log.JSONFormat)
	default:
		return fmt.Errorf("debug: unknown log format %q", format)
	}
	return nil
}

// SetOutput redirects log lines, e.g. away from a terminal owned by a TUI.
func SetOutput(w io.Writer) {
	logrus.SetOutput(w)
}
