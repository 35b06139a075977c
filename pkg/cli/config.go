// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-snapvault.
//
// go-snapvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/backup"
	"github.com/jeremyhahn/go-snapvault/pkg/common"
	"github.com/jeremyhahn/go-snapvault/pkg/factory"
	"github.com/jeremyhahn/go-snapvault/pkg/scheduler"
)

const (
	// BackendLocal represents the local filesystem backend type
	BackendLocal = "local"
	// BackendAzure represents the Azure Blob Storage backend type
	BackendAzure = "azure"
	// BackendMinIO represents an S3-compatible server reached through an explicit endpoint
	BackendMinIO = "minio"

	// maxContainerNameLength is the longest container name the cloud
	// backends accept.
	maxContainerNameLength = 63
)

// Config holds the CLI configuration settings.
type Config struct {
	Backend                string `json:"backend"`
	BackupMode             string `json:"backup_mode"`
	AccountEndpoint        string `json:"account_endpoint,omitempty"`
	AccountCredential      string `json:"account_credential,omitempty"`
	ContainerName          string `json:"container_name,omitempty"`
	PartitionID            string `json:"partition_id,omitempty"`
	Region                 string `json:"region,omitempty"`
	KeyRangeMin            int64  `json:"key_range_min"`
	KeyRangeMax            int64  `json:"key_range_max"`
	BackupFrequencySeconds int    `json:"backup_frequency_seconds"`
	BackupThreshold        uint64 `json:"backup_threshold"`
	MaxBackupsToKeep       uint32 `json:"max_backups_to_keep"`
	LocalTempDirectory     string `json:"local_temp_directory"`
	DownloadConcurrency    int    `json:"download_concurrency"`
	LogLevel               string `json:"log_level"`
	LogFormat              string `json:"log_format"`
	OutputFormat           string `json:"output_format"`
	Listen                 string `json:"listen"`
}

// InitConfig initializes the configuration using Viper.
// Configuration priority: flags > env vars > config file > defaults.
func InitConfig(cfgFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("backend", BackendLocal)
	v.SetDefault("backup-mode", "store")
	v.SetDefault("key-range-min", int64(-1<<63))
	v.SetDefault("key-range-max", int64(1<<63-1))
	v.SetDefault("backup-frequency-seconds", 0)
	v.SetDefault("backup-threshold", scheduler.DefaultBackupThreshold)
	v.SetDefault("max-backups-to-keep", 3)
	v.SetDefault("local-temp-directory", filepath.Join(os.TempDir(), "snapvault"))
	v.SetDefault("download-concurrency", 1)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("output-format", string(FormatText))
	v.SetDefault("listen", "127.0.0.1:8080")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".snapvault")
		v.SetConfigType("yaml")
	}

	// SNAPVAULT_ACCOUNT_ENDPOINT maps to account-endpoint.
	v.SetEnvPrefix("SNAPVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return v, nil
}

// GetConfig extracts the configuration from Viper into a Config struct.
func GetConfig(v *viper.Viper) *Config {
	return &Config{
		Backend:                v.GetString("backend"),
		BackupMode:             v.GetString("backup-mode"),
		AccountEndpoint:        v.GetString("account-endpoint"),
		AccountCredential:      v.GetString("account-credential"),
		ContainerName:          v.GetString("container-name"),
		PartitionID:            v.GetString("partition-id"),
		Region:                 v.GetString("region"),
		KeyRangeMin:            v.GetInt64("key-range-min"),
		KeyRangeMax:            v.GetInt64("key-range-max"),
		BackupFrequencySeconds: v.GetInt("backup-frequency-seconds"),
		BackupThreshold:        v.GetUint64("backup-threshold"),
		MaxBackupsToKeep:       v.GetUint32("max-backups-to-keep"),
		LocalTempDirectory:     v.GetString("local-temp-directory"),
		DownloadConcurrency:    v.GetInt("download-concurrency"),
		LogLevel:               v.GetString("log-level"),
		LogFormat:              v.GetString("log-format"),
		OutputFormat:           v.GetString("output-format"),
		Listen:                 v.GetString("listen"),
	}
}

// DeriveContainerName turns a partition identifier into a container name:
// lowercased, dashes and other non-alphanumerics dropped, at most 63
// characters. A GUID therefore becomes its 32-digit hex form.
func DeriveContainerName(partitionID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(partitionID) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
		if b.Len() == maxContainerNameLength {
			break
		}
	}
	return b.String()
}

// Container returns the configured container name, deriving it from the
// partition identifier when unset.
func (c *Config) Container() string {
	if c.ContainerName != "" {
		return c.ContainerName
	}
	return DeriveContainerName(c.PartitionID)
}

// KeyRange returns the partition's key range.
func (c *Config) KeyRange() backup.KeyRange {
	return backup.KeyRange{Min: c.KeyRangeMin, Max: c.KeyRangeMax}
}

// BackupFrequency returns backup-frequency-seconds as a duration.
func (c *Config) BackupFrequency() time.Duration {
	return time.Duration(c.BackupFrequencySeconds) * time.Second
}

// InboxDirectory is where the agent looks for snapshot markers.
func (c *Config) InboxDirectory() string {
	return filepath.Join(c.LocalTempDirectory, "inbox")
}

// StorageSettings converts Config to storage backend settings.
func (c *Config) StorageSettings() map[string]string {
	settings := map[string]string{
		common.SettingContainer: c.Container(),
	}
	if c.AccountEndpoint != "" {
		settings[common.SettingEndpoint] = c.AccountEndpoint
	}
	if c.AccountCredential != "" {
		settings[common.SettingCredential] = c.AccountCredential
	}
	if c.Region != "" {
		settings[common.SettingRegion] = c.Region
	}
	return settings
}

// ValidateConfig validates the configuration. It expands a leading ~ in
// local paths.
func ValidateConfig(cfg *Config) error {
	if !slices.Contains(factory.Backends(), cfg.Backend) {
		return fmt.Errorf("%w: %q (available: %s)", ErrUnsupportedBackend, cfg.Backend, strings.Join(factory.Backends(), ", "))
	}
	if _, err := scheduler.ParseMode(cfg.BackupMode); err != nil {
		return err
	}
	if _, err := adapters.ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	switch cfg.Backend {
	case BackendLocal, BackendAzure, BackendMinIO:
		if cfg.AccountEndpoint == "" {
			return fmt.Errorf("%w for %s backend", ErrEndpointRequired, cfg.Backend)
		}
	}
	if cfg.Backend == BackendLocal {
		path, err := expandHome(cfg.AccountEndpoint)
		if err != nil {
			return err
		}
		cfg.AccountEndpoint = path
	}
	path, err := expandHome(cfg.LocalTempDirectory)
	if err != nil {
		return err
	}
	cfg.LocalTempDirectory = path

	if cfg.Container() == "" {
		return ErrContainerRequired
	}
	if cfg.KeyRangeMin > cfg.KeyRangeMax {
		return ErrInvalidKeyRange
	}
	if cfg.DownloadConcurrency < 1 {
		return ErrInvalidConcurrency
	}

	switch OutputFormat(cfg.OutputFormat) {
	case FormatText, FormatJSON, FormatTable:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedOutputFormat, cfg.OutputFormat)
	}
	return nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

// DisplayConfig formats the effective configuration. Credentials are masked.
func DisplayConfig(cfg *Config, format OutputFormat) string {
	masked := *cfg
	if masked.AccountCredential != "" {
		masked.AccountCredential = maskSecret(masked.AccountCredential)
	}
	if masked.ContainerName == "" {
		masked.ContainerName = masked.Container()
	}

	if format == FormatJSON {
		data, err := json.MarshalIndent(masked, "", "  ")
		if err != nil {
			return FormatError(err, format)
		}
		return string(data) + "\n"
	}

	rows := [][2]string{
		{"Backend", masked.Backend},
		{"Backup Mode", masked.BackupMode},
		{"Account Endpoint", masked.AccountEndpoint},
		{"Account Credential", masked.AccountCredential},
		{"Container", masked.ContainerName},
		{"Partition ID", masked.PartitionID},
		{"Region", masked.Region},
		{"Key Range", fmt.Sprintf("%d..%d", masked.KeyRangeMin, masked.KeyRangeMax)},
		{"Backup Threshold", fmt.Sprintf("%d", masked.BackupThreshold)},
		{"Backup Frequency", masked.BackupFrequency().String()},
		{"Max Backups", fmt.Sprintf("%d", masked.MaxBackupsToKeep)},
		{"Temp Directory", masked.LocalTempDirectory},
		{"Downloads", fmt.Sprintf("%d", masked.DownloadConcurrency)},
		{"Log Level", masked.LogLevel},
		{"Log Format", masked.LogFormat},
		{"Output Format", masked.OutputFormat},
		{"Listen", masked.Listen},
	}

	var b strings.Builder
	if format == FormatTable {
		b.WriteString("┌────────────────────┬────────────────────────────────────────┐\n")
		b.WriteString("│ Setting            │ Value                                  │\n")
		b.WriteString("├────────────────────┼────────────────────────────────────────┤\n")
		for _, r := range rows {
			if r[1] != "" {
				fmt.Fprintf(&b, "│ %-18s │ %-38s │\n", r[0], truncate(r[1], 38))
			}
		}
		b.WriteString("└────────────────────┴────────────────────────────────────────┘\n")
		return b.String()
	}
	for _, r := range rows {
		if r[1] != "" {
			fmt.Fprintf(&b, "%s: %s\n", r[0], r[1])
		}
	}
	return b.String()
}

// maskSecret masks sensitive information, showing only first 4 characters.
func maskSecret(s string) string {
	if len(s) < 5 {
		return "****"
	}
	return s[:4] + "****"
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
