package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "STREAK"

// Keys understood by Load.
const (
	KeyIdentity     = "identity"
	KeyPassword     = "password"
	KeyUser         = "user"
	KeyNotebook     = "notebook"
	KeyBaseURL      = "base_url"
	KeyContract     = "contract"
	KeyStatusPolicy = "status_policy"
	KeyTarget       = "target"
	KeyPage         = "page"
	KeyRefresh      = "refresh"
	KeyTimeout      = "timeout"
	KeyUserAgent    = "user_agent"
	KeyHistoryPath  = "history.path"
	KeyServeAddr    = "serve.addr"
	KeyLogLevel     = "log.level"
)

// Targets.
const (
	TargetStreak   = "streak"
	TargetIdentity = "identity"
	TargetPage     = "page"
)

// ErrConfiguration marks a missing or invalid configuration value.
var ErrConfiguration = errors.New("configuration error")

// MissingError names the required keys that have no value.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	parts := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		parts[i] = fmt.Sprintf("%s (%s)", k, strings.Join(envNames(k), " or "))
	}
	return "missing required configuration: " + strings.Join(parts, ", ")
}

func (e *MissingError) Is(target error) bool { return target == ErrConfiguration }

// Config holds one run's settings. Identity and Password are secrets.
type Config struct {
	Identity string
	Password string

	// User is the account handle used for returnUrl and notebook pages.
	User     string
	Notebook string

	BaseURL      string
	Contract     string
	StatusPolicy string
	Target       string
	Page         string
	Refresh      bool
	Timeout      time.Duration
	UserAgent    string

	HistoryPath string
	ServeAddr   string
	LogLevel    string
}

// legacyEnv maps keys to the additional environment variable names used by
// older deployments. STREAK_<KEY> always takes precedence.
var legacyEnv = map[string][]string{
	KeyIdentity: {"KAGGLE_EMAIL", "EMAIL"},
	KeyPassword: {"KAGGLE_PASSWORD", "PASSWORD"},
	KeyUser:     {"KAGGLE_USER"},
}

func envNames(key string) []string {
	primary := EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
	return append([]string{primary}, legacyEnv[key]...)
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyBaseURL, "https://www.kaggle.com")
	v.SetDefault(KeyContract, "internal")
	v.SetDefault(KeyStatusPolicy, "strict")
	v.SetDefault(KeyTarget, TargetStreak)
	v.SetDefault(KeyNotebook, "exercise-syntax-variables-and-numbers")
	v.SetDefault(KeyRefresh, true)
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyHistoryPath, DefaultHistoryPath())
	v.SetDefault(KeyServeAddr, ":8080")
	v.SetDefault(KeyLogLevel, "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key := range legacyEnv {
		_ = v.BindEnv(append([]string{key}, envNames(key)...)...)
	}
	return v
}

// ReadFile merges a YAML config file into v. When path is empty the
// default locations are searched and a missing file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("streakkeeper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(userConfigDir(), "streakkeeper"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

// ReadDotEnv loads KEY=value pairs from a dotenv file as fallbacks below
// the real environment. A missing file is not an error.
func ReadDotEnv(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return fmt.Errorf("reading env file %s: %w", path, err)
	}

	for _, key := range knownKeys() {
		for _, name := range envNames(key) {
			// Empty variables count as unset, as they do for AutomaticEnv.
			if os.Getenv(name) != "" {
				break
			}
			envKey := strings.ToLower(name)
			if dv.IsSet(envKey) {
				// Beats built-in defaults, loses to the environment and flags.
				v.SetDefault(key, dv.GetString(envKey))
				break
			}
		}
	}
	return nil
}

func knownKeys() []string {
	return []string{
		KeyIdentity, KeyPassword, KeyUser, KeyNotebook, KeyBaseURL, KeyContract,
		KeyStatusPolicy, KeyTarget, KeyPage, KeyRefresh, KeyTimeout, KeyUserAgent,
		KeyHistoryPath, KeyServeAddr, KeyLogLevel,
	}
}

// Load reads the settings out of v.
func Load(v *viper.Viper) Config {
	return Config{
		Identity:     strings.TrimSpace(v.GetString(KeyIdentity)),
		Password:     v.GetString(KeyPassword),
		User:         strings.TrimSpace(v.GetString(KeyUser)),
		Notebook:     strings.TrimSpace(v.GetString(KeyNotebook)),
		BaseURL:      strings.TrimSpace(v.GetString(KeyBaseURL)),
		Contract:     strings.TrimSpace(v.GetString(KeyContract)),
		StatusPolicy: strings.TrimSpace(v.GetString(KeyStatusPolicy)),
		Target:       strings.ToLower(strings.TrimSpace(v.GetString(KeyTarget))),
		Page:         strings.TrimSpace(v.GetString(KeyPage)),
		Refresh:      v.GetBool(KeyRefresh),
		Timeout:      v.GetDuration(KeyTimeout),
		UserAgent:    v.GetString(KeyUserAgent),
		HistoryPath:  strings.TrimSpace(v.GetString(KeyHistoryPath)),
		ServeAddr:    strings.TrimSpace(v.GetString(KeyServeAddr)),
		LogLevel:     strings.TrimSpace(v.GetString(KeyLogLevel)),
	}
}

// Validate checks that everything a run needs is present. It must be called
// before any network traffic.
func (c Config) Validate() error {
	var missing []string
	if c.Identity == "" {
		missing = append(missing, KeyIdentity)
	}
	if c.Password == "" {
		missing = append(missing, KeyPassword)
	}

	switch c.Target {
	case TargetStreak, TargetIdentity:
	case TargetPage:
		if c.Page == "" && (c.User == "" || c.Notebook == "") {
			if c.User == "" {
				missing = append(missing, KeyUser)
			}
			if c.Notebook == "" {
				missing = append(missing, KeyNotebook)
			}
		}
	default:
		return fmt.Errorf("%w: unknown target %q (expected %s, %s or %s)",
			ErrConfiguration, c.Target, TargetStreak, TargetIdentity, TargetPage)
	}

	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	return nil
}

// PagePath returns the page a "page" run visits: the configured page, or
// the edit page of the configured notebook.
func (c Config) PagePath() string {
	if c.Page != "" {
		return c.Page
	}
	return fmt.Sprintf("/code/%s/%s/edit", c.User, c.Notebook)
}

// ReturnURL returns the sign-in returnUrl, or "" without a user.
func (c Config) ReturnURL() string {
	if c.User == "" {
		return ""
	}
	return "/" + c.User
}
