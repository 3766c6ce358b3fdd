package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const envPrefix = "LENDHOOK_"

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	LogLevel       string
	Owner          string
	HookAddress    string
	Caller         string
	Chain          string
	RPCURL         string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration
	// LogLevel is empty when logging is disabled.
	LogLevel        string
	Owner           string
	HookAddress     string
	Caller          string
	Chain           string
	RPCURL          string
	Simulate        bool
	StorePath       string
	StoreLockPath   string
	ActionStorePath string
	ActionLockPath  string
}

type fileConfig struct {
	Output   string `yaml:"output"`
	Timeout  string `yaml:"timeout"`
	LogLevel string `yaml:"log_level"`
	Hook     struct {
		Owner   string `yaml:"owner"`
		Address string `yaml:"address"`
		Caller  string `yaml:"caller"`
	} `yaml:"hook"`
	Chain struct {
		Name     string `yaml:"name"`
		RPCURL   string `yaml:"rpc_url"`
		Simulate *bool  `yaml:"simulate"`
	} `yaml:"chain"`
	Store struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"store"`
	Execution struct {
		ActionsPath     string `yaml:"actions_path"`
		ActionsLockPath string `yaml:"actions_lock_path"`
	} `yaml:"execution"`
}

// Load resolves settings with precedence flags > env > file > defaults.
func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}
	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return Settings{}, fmt.Errorf("output must be json or plain")
	}
	if settings.LogLevel != "" {
		if _, err := zapcore.ParseLevel(settings.LogLevel); err != nil {
			return Settings{}, fmt.Errorf("log level: %w", err)
		}
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	dir, err := defaultStateDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		Timeout:         30 * time.Second,
		Chain:           "arbitrum",
		Simulate:        true,
		StorePath:       filepath.Join(dir, "hook.db"),
		StoreLockPath:   filepath.Join(dir, "hook.lock"),
		ActionStorePath: filepath.Join(dir, "actions.db"),
		ActionLockPath:  filepath.Join(dir, "actions.lock"),
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "lendhook", "config.yaml"), nil
}

func defaultStateDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "lendhook"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	setString(&settings.LogLevel, strings.ToLower(cfg.LogLevel))
	setString(&settings.Owner, cfg.Hook.Owner)
	setString(&settings.HookAddress, cfg.Hook.Address)
	setString(&settings.Caller, cfg.Hook.Caller)
	setString(&settings.Chain, cfg.Chain.Name)
	setString(&settings.RPCURL, cfg.Chain.RPCURL)
	if cfg.Chain.Simulate != nil {
		settings.Simulate = *cfg.Chain.Simulate
	}
	setString(&settings.StorePath, cfg.Store.Path)
	setString(&settings.StoreLockPath, cfg.Store.LockPath)
	setString(&settings.ActionStorePath, cfg.Execution.ActionsPath)
	setString(&settings.ActionLockPath, cfg.Execution.ActionsLockPath)
	return nil
}

func applyEnv(settings *Settings) error {
	env := func(key string) string { return strings.TrimSpace(os.Getenv(envPrefix + key)) }

	if v := env("OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := env("TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", envPrefix, err)
		}
		settings.Timeout = d
	}
	if v := env("SIMULATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSIMULATE: %w", envPrefix, err)
		}
		settings.Simulate = b
	}
	setString(&settings.LogLevel, strings.ToLower(env("LOG_LEVEL")))
	setString(&settings.Owner, env("OWNER"))
	setString(&settings.HookAddress, env("HOOK_ADDRESS"))
	setString(&settings.Caller, env("CALLER"))
	setString(&settings.Chain, env("CHAIN"))
	setString(&settings.RPCURL, env("RPC_URL"))
	setString(&settings.StorePath, env("STORE_PATH"))
	setString(&settings.StoreLockPath, env("STORE_LOCK_PATH"))
	setString(&settings.ActionStorePath, env("ACTIONS_PATH"))
	setString(&settings.ActionLockPath, env("ACTIONS_LOCK_PATH"))
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if fields := splitList(flags.Select); len(fields) > 0 {
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly
	if allowed := splitList(flags.EnableCommands); len(allowed) > 0 {
		settings.EnableCommands = allowed
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	setString(&settings.LogLevel, strings.ToLower(flags.LogLevel))
	setString(&settings.Owner, flags.Owner)
	setString(&settings.HookAddress, flags.HookAddress)
	setString(&settings.Caller, flags.Caller)
	setString(&settings.Chain, flags.Chain)
	setString(&settings.RPCURL, flags.RPCURL)
	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
