// Package config loads the command line configuration from a config file,
// .env files and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/asaidimu/go-dataloader/core/loader"
	"github.com/asaidimu/go-dataloader/supabase"
	"github.com/asaidimu/go-dataloader/taskqueue"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem config and .env files are looked up on.
var AppFs = afero.NewOsFs()

// EnvPrefix prefixes every setting read from the environment, e.g.
// DATALOADER_SUPABASE_URL or DATALOADER_LOADER_PAGE_SIZE.
const EnvPrefix = "DATALOADER"

// Config holds the command line configuration.
type Config struct {
	Supabase supabase.Config  `mapstructure:"supabase"`
	Queue    taskqueue.Config `mapstructure:"queue"`
	Loader   loader.Options   `mapstructure:"loader"`
	Verbose  bool             `mapstructure:"verbose"`
}

// unprefixed maps settings to the environment variable names the Supabase
// and QStash tooling already use.
var unprefixed = map[string]string{
	"supabase.url":      "SUPABASE_URL",
	"supabase.anon_key": "SUPABASE_ANON_KEY",
	"supabase.email":    "SUPABASE_TEST_EMAIL",
	"supabase.password": "SUPABASE_TEST_PASSWORD",
	"queue.url":         "QSTASH_QUEUE_URL",
	"queue.token":       "QSTASH_TOKEN",
}

// Load reads the configuration. dir is searched for .dataloader.yaml, .env
// and .env.local, with "" meaning the working directory; the home directory
// is searched for the config file as well. file, when set, names the config
// file explicitly.
func Load(dir, file string) (*Config, error) {
	if dir == "" {
		dir = "."
	}

	v := viper.New()
	v.SetFs(AppFs)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".dataloader")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config", "dataloader"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, env := range unprefixed {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := loadEnvFiles(dir); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	supa := supabase.DefaultConfig()
	v.SetDefault("supabase.url", supa.URL)
	v.SetDefault("supabase.anon_key", supa.AnonKey)
	v.SetDefault("supabase.schema", supa.Schema)
	v.SetDefault("supabase.email", "")
	v.SetDefault("supabase.password", "")

	v.SetDefault("queue.url", "")
	v.SetDefault("queue.token", "")
	v.SetDefault("queue.base_url", taskqueue.DefaultBaseURL)

	opts := loader.DefaultOptions()
	v.SetDefault("loader.count", string(opts.Count))
	v.SetDefault("loader.join", string(opts.Join))
	v.SetDefault("loader.page_size", opts.PageSize)
	v.SetDefault("loader.skip_validation", opts.SkipValidation)
	v.SetDefault("loader.strict", opts.Strict)

	v.SetDefault("verbose", false)
}

// loadEnvFiles loads .env without overriding the environment, then
// .env.local over both. Both are read from AppFs.
func loadEnvFiles(dir string) error {
	if err := applyEnvFile(filepath.Join(dir, ".env"), false); err != nil {
		return err
	}
	return applyEnvFile(filepath.Join(dir, ".env.local"), true)
}

func applyEnvFile(path string, override bool) error {
	data, err := afero.ReadFile(AppFs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	values, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	for key, value := range values {
		if _, set := os.LookupEnv(key); set && !override {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s from %s: %w", key, path, err)
		}
	}
	return nil
}
