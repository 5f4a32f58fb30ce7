package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/openmined/gridsync/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "GRIDSYNC"
	configFileName = "config"
)

func loadConfig(cmd *cobra.Command) error {
	// config path
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(config.DefaultDataDir)
		viper.AddConfigPath(filepath.Join(home(), ".config", "gridsync"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	// credentials may live in a .env next to the config
	if used := viper.ConfigFileUsed(); used != "" {
		envFile := filepath.Join(filepath.Dir(used), ".env")
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	// Bind flags to viper
	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("grid_dir", cmd.Flags().Lookup("griddir"))
	viper.BindPFlag("owner", cmd.Flags().Lookup("owner"))
	viper.BindPFlag("workers", cmd.Flags().Lookup("workers"))

	// Set up environment variables, e.g. GRIDSYNC_DROPBOX_REFRESH_TOKEN
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return nil
}

// configFromViper builds the config from file, env and flag values. A backend
// is configured when any of its keys is set.
func configFromViper(v *viper.Viper) *config.Config {
	cfg := &config.Config{
		Path:        v.ConfigFileUsed(),
		DataDir:     v.GetString("data_dir"),
		GridDir:     v.GetString("grid_dir"),
		Owner:       v.GetString("owner"),
		AliasesFile: v.GetString("aliases_file"),
		Workers:     v.GetInt("workers"),
		Include:     v.GetStringSlice("include"),
	}

	if anySet(v, "dropbox", "app_key", "app_secret", "refresh_token") {
		cfg.Dropbox = &config.DropboxConfig{
			AppKey:       v.GetString("dropbox.app_key"),
			AppSecret:    v.GetString("dropbox.app_secret"),
			RefreshToken: v.GetString("dropbox.refresh_token"),
		}
	}
	if anySet(v, "webdav", "url", "username", "password", "root") {
		cfg.WebDAV = &config.WebDAVConfig{
			URL:      v.GetString("webdav.url"),
			Username: v.GetString("webdav.username"),
			Password: v.GetString("webdav.password"),
			Root:     v.GetString("webdav.root"),
		}
	}
	if anySet(v, "s3", "bucket", "region", "endpoint", "access_key", "secret_key") {
		cfg.S3 = &config.S3Config{
			Bucket:    v.GetString("s3.bucket"),
			Region:    v.GetString("s3.region"),
			Endpoint:  v.GetString("s3.endpoint"),
			AccessKey: v.GetString("s3.access_key"),
			SecretKey: v.GetString("s3.secret_key"),
		}
	}
	return cfg
}

func anySet(v *viper.Viper, section string, keys ...string) bool {
	for _, k := range keys {
		if v.GetString(section+"."+k) != "" {
			return true
		}
	}
	return false
}

func home() string {
	h, _ := os.UserHomeDir()
	return h
}
