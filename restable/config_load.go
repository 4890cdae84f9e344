package restable

import (
	"fmt"

	"github.com/spf13/viper"
)

// SessionConfig is the Viper-unmarshalable projection of the four
// enumerated session options from spec.md §6, loaded from a config file,
// environment, or flags by the CLI before being copied onto a *Session
// (the core itself only ever sees the plain Session struct — see §9's
// "no process-wide mutable state" note, carried into SPEC_FULL.md §2).
type SessionConfig struct {
	KeepBroken      bool `mapstructure:"keep_broken"`
	AnalysisMode    bool `mapstructure:"analysis_mode"`
	SharedLibrary   bool `mapstructure:"shared_library"`
	SparseResources bool `mapstructure:"sparse_resources"`
}

// LoadSessionConfig reads arscdump's session options the way
// LoadDMGConfig reads go-apfs's: a named config file searched across a
// handful of conventional paths, overridable by ARSCDUMP_-prefixed
// environment variables, with SetDefault providing the strict-mode
// defaults when no file and no env var is present. configFile, if
// non-empty, is read instead of searching those paths.
func LoadSessionConfig(configFile string) (*SessionConfig, error) {
	viper.SetConfigName("arscdump")
	viper.SetConfigType("yaml")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("$HOME/.arscdump")
		viper.AddConfigPath("/etc/arscdump")
	}

	viper.SetDefault("keep_broken", false)
	viper.SetDefault("analysis_mode", false)
	viper.SetDefault("shared_library", false)
	viper.SetDefault("sparse_resources", false)

	viper.SetEnvPrefix("ARSCDUMP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("restable: read config: %w", err)
		}
	}

	var cfg SessionConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("restable: unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ApplyTo copies the loaded options onto sess.
func (c *SessionConfig) ApplyTo(sess *Session) {
	sess.KeepBroken = c.KeepBroken
	sess.AnalysisMode = c.AnalysisMode
	sess.SharedLibrary = c.SharedLibrary
	sess.SparseResources = c.SparseResources
}
