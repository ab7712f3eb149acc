package params

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var returns the trimmed value of an environment variable.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// LogLevel reads SEQ2SEQ_DEBUG: a boolean enables debug, an integer n sets level -4n.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("SEQ2SEQ_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// ApplyEnv overrides Config fields from SEQ2SEQ_* variables. Flags are applied after.
func ApplyEnv() {
	if s := Var("SEQ2SEQ_DATA"); s != "" {
		Config.DataDir = s
	}
	if s := Var("SEQ2SEQ_MODEL"); s != "" {
		Config.ModelPath = s
	}
	if s := Var("SEQ2SEQ_SEED"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err != nil {
			slog.Warn("invalid environment variable, using default", "key", "SEQ2SEQ_SEED", "value", s, "default", Config.Seed)
		} else {
			Config.Seed = n
		}
	}
	if LogLevel() <= slog.LevelDebug {
		Config.Debug = true
	}
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"SEQ2SEQ_DEBUG": {"SEQ2SEQ_DEBUG", LogLevel(), "Show additional debug information (e.g. SEQ2SEQ_DEBUG=1)"},
		"SEQ2SEQ_DATA":  {"SEQ2SEQ_DATA", Var("SEQ2SEQ_DATA"), "Directory holding {train,val,test}.{de,en}"},
		"SEQ2SEQ_MODEL": {"SEQ2SEQ_MODEL", Var("SEQ2SEQ_MODEL"), "Checkpoint path (default models/seq2seq.gob)"},
		"SEQ2SEQ_SEED":  {"SEQ2SEQ_SEED", Var("SEQ2SEQ_SEED"), "Seed for initialisation, shuffling and teacher forcing"},
	}
}
