package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/version"
)

const (
	// EnvConfigPath overrides the default config location.
	EnvConfigPath = "CACS_CONFIG"

	// UserConfigPath is the default path to the cacs config.
	UserConfigPath = "~/.config/cacs/sync_config.yaml"

	// LocalConfigPath is checked, relative to the working directory, when
	// there is no user config.
	LocalConfigPath = "sync_config.yaml"
)

// Load finds, parses, and validates the cacs config. The explicit path, if
// non-empty, takes precedence over every other location.
func Load(explicit string) (Config, error) {
	path, err := FindPath(explicit)
	if err != nil {
		return Config{}, errors.ConfigError{Err: errors.WithContext(err, "find config")}
	}

	cfg, err := parse(path)
	if err != nil {
		return Config{}, errors.ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// FindPath resolves the location of the config file. The precedence is the
// explicit path, then $CACS_CONFIG, then the user config if it exists, then
// ./sync_config.yaml if it exists. If none of them exist, the user config path
// is returned so that the error names the place users are expected to write
// it.
func FindPath(explicit string) (string, error) {
	if explicit != "" {
		return homedirExpand(explicit)
	}

	if env := getenv(EnvConfigPath); env != "" {
		return homedirExpand(env)
	}

	userPath, err := homedirExpand(UserConfigPath)
	if err != nil {
		return "", errors.WithContext(err, "expand user config path")
	}

	for _, candidate := range []string{userPath, LocalConfigPath} {
		if _, err := fs.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return userPath, nil
}

func parse(path string) (Config, error) {
	cfg := Config{
		Version:    InitialVersion,
		Branch:     DefaultBranch,
		BackupDir:  DefaultBackupDir,
		MaxBackups: DefaultMaxBackups,
		WorkDir:    filepath.Join(xdg.CacheHome, "cacs", "repo"),
		StateFile:  filepath.Join(xdg.StateHome, "cacs", "state.json"),
		Author: Author{
			Name:  DefaultAuthorName,
			Email: DefaultAuthorMail,
		},
	}
	if err := parseConfig(path, &cfg, SupportedVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Config{}, errors.NewFriendlyError("The cacs config "+
				"file doesn't exist at %q. Please create it, or point to it "+
				"with --config or $%s.", path, EnvConfigPath)
		}
		return Config{}, errors.WithContext(err, "parse")
	}
	cfg.Path = path

	if err := cfg.resolvePaths(); err != nil {
		return Config{}, err
	}

	for i := range cfg.Items {
		if cfg.Items[i].Type == "" {
			cfg.Items[i].Type = File
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	for _, item := range cfg.Items {
		if item.Type == Directory && len(item.IgnoreFields) > 0 {
			log.WithField("item", item.Name).Warn(
				"Ignore fields only apply to JSON files. They will have no effect on this directory.")
		}
	}

	if cfg.Requires != "" {
		ok, err := version.Satisfies(cfg.Requires)
		if err != nil {
			return Config{}, errors.NewFriendlyError(
				"The version constraint %q in %q is invalid: %s", cfg.Requires, path, err)
		}
		if !ok {
			return Config{}, errors.NewFriendlyError("The configuration file %q "+
				"requires cacs %s, but this is version %s. Please upgrade cacs.",
				path, cfg.Requires, version.Version)
		}
	}
	return cfg, nil
}

func (cfg *Config) resolvePaths() error {
	paths := []*string{
		&cfg.BackupDir,
		&cfg.WorkDir,
		&cfg.StateFile,
		&cfg.Auth.SSHKey,
		&cfg.Auth.KnownHosts,
	}
	for i := range cfg.Items {
		paths = append(paths, &cfg.Items[i].TargetPath)
	}

	for _, path := range paths {
		resolved, err := resolvePath(cfg.Path, *path)
		if err != nil {
			return errors.WithContext(err, "resolve path")
		}
		*path = resolved
	}
	return nil
}
