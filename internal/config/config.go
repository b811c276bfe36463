// Package config loads service configuration from optional config
// files, the environment (CLAW_ prefix) and a local .env file, with
// environment values taking precedence over files.
package config

import (
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// CustomizerConfig pins the workspace customizer (janebot-cli) a
// fresh droplet installs. The ref is a commit hash so every bot boots
// the same tool.
type CustomizerConfig struct {
	RepoURL       string
	Ref           string
	WorkspaceDir  string
	AgentName     string
	OwnerName     string
	SkipQMD       bool
	SkipCron      bool
	SkipGit       bool
	SkipHeartbeat bool
}

// ToolchainConfig selects what the bootstrap installs before the
// worker starts.
type ToolchainConfig struct {
	NodeMajor     int
	InstallPnpm   bool
	PnpmVersion   string
	InstallRust   bool
	RustToolchain string
	AptPackages   []string
	NpmPackages   []string
	CargoCrates   []string
}

type Config struct {
	DatabaseURL       string
	DigitalOceanToken string
	EncryptionKey     string

	ServerHost  string
	ServerPort  int
	MetricsPort int

	OpenclawImage   string
	ControlPlaneURL string

	// AdminToken guards the operator endpoints. Empty means no token
	// is configured and admin routes refuse everything.
	AdminToken string

	StaleTimeout       time.Duration
	StaleCheckInterval time.Duration

	Customizer CustomizerConfig
	Toolchain  ToolchainConfig
}

// Load reads config/default and config/local (both optional), then
// the environment. A .env file is folded into the environment first
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CLAW")
	v.AutomaticEnv()
	setDefaults(v)

	v.AddConfigPath("config")
	v.SetConfigName("default")
	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, errors.Wrap(err, "failed to read config/default")
	}
	v.SetConfigName("local")
	if err := v.MergeInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, errors.Wrap(err, "failed to read config/local")
	}

	cfg := &Config{
		DatabaseURL:       v.GetString("database_url"),
		DigitalOceanToken: v.GetString("digitalocean_token"),
		EncryptionKey:     v.GetString("encryption_key"),
		ServerHost:        v.GetString("server_host"),
		ServerPort:        v.GetInt("server_port"),
		MetricsPort:       v.GetInt("metrics_port"),
		OpenclawImage:     v.GetString("openclaw_image"),
		ControlPlaneURL:   v.GetString("control_plane_url"),
		AdminToken:        v.GetString("admin_token"),

		StaleTimeout:       v.GetDuration("stale_timeout"),
		StaleCheckInterval: v.GetDuration("stale_check_interval"),

		Customizer: CustomizerConfig{
			RepoURL:       v.GetString("customizer_repo_url"),
			Ref:           v.GetString("customizer_ref"),
			WorkspaceDir:  v.GetString("customizer_workspace_dir"),
			AgentName:     v.GetString("customizer_agent_name"),
			OwnerName:     v.GetString("customizer_owner_name"),
			SkipQMD:       v.GetBool("customizer_skip_qmd"),
			SkipCron:      v.GetBool("customizer_skip_cron"),
			SkipGit:       v.GetBool("customizer_skip_git"),
			SkipHeartbeat: v.GetBool("customizer_skip_heartbeat"),
		},
		Toolchain: ToolchainConfig{
			NodeMajor:     v.GetInt("toolchain_node_major"),
			InstallPnpm:   v.GetBool("toolchain_install_pnpm"),
			PnpmVersion:   v.GetString("toolchain_pnpm_version"),
			InstallRust:   v.GetBool("toolchain_install_rust"),
			RustToolchain: v.GetString("toolchain_rust_toolchain"),
			AptPackages:   splitList(v.GetString("toolchain_apt_packages")),
			NpmPackages:   splitList(v.GetString("toolchain_npm_packages")),
			CargoCrates:   splitList(v.GetString("toolchain_cargo_crates")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8080)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("openclaw_image", "ubuntu-22-04-x64")
	v.SetDefault("control_plane_url", "https://api.example.com")
	v.SetDefault("admin_token", "")
	v.SetDefault("stale_timeout", "5m")
	v.SetDefault("stale_check_interval", "1m")

	// Customizer defaults are pinned for reproducible workspaces.
	v.SetDefault("customizer_repo_url", "https://github.com/janebot2026/janebot-cli.git")
	v.SetDefault("customizer_ref", "4b170b4aa31f79bda84f7383b3992ca8681d06d3")
	v.SetDefault("customizer_workspace_dir", "/opt/openclaw/workspace")
	v.SetDefault("customizer_agent_name", "Jane")
	v.SetDefault("customizer_owner_name", "Cedros")
	v.SetDefault("customizer_skip_qmd", true)
	v.SetDefault("customizer_skip_cron", true)
	v.SetDefault("customizer_skip_git", true)
	v.SetDefault("customizer_skip_heartbeat", true)

	v.SetDefault("toolchain_node_major", 22)
	v.SetDefault("toolchain_install_pnpm", true)
	v.SetDefault("toolchain_pnpm_version", "9.15.0")
	v.SetDefault("toolchain_install_rust", false)
	v.SetDefault("toolchain_rust_toolchain", "stable")
	v.SetDefault("toolchain_apt_packages", "build-essential,git,curl,jq")
	v.SetDefault("toolchain_npm_packages", "")
	v.SetDefault("toolchain_cargo_crates", "")
}

func (c *Config) validate() error {
	var merr *multierror.Error
	if c.DatabaseURL == "" {
		merr = multierror.Append(merr, errors.New("database_url is required"))
	}
	if c.DigitalOceanToken == "" {
		merr = multierror.Append(merr, errors.New("digitalocean_token is required"))
	}
	if c.EncryptionKey == "" {
		merr = multierror.Append(merr, errors.New("encryption_key is required"))
	}
	return merr.ErrorOrNil()
}

// splitList parses a comma-separated value, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
