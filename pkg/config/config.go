package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/sidkik/cacs/pkg/errors"
)

const (
	// InitialVersion is the first version of the cacs config. Config files
	// that do not specify a version default to this version.
	InitialVersion = "v1"

	// SupportedVersion is the config version supported by this binary.
	SupportedVersion = "v1"

	DefaultBranch     = "main"
	DefaultBackupDir  = "~/.config/cacs/backups"
	DefaultMaxBackups = 10
	DefaultAuthorName = "cacs"
	DefaultAuthorMail = "cacs@localhost"
)

// parseConfigErrTemplate is a template for when the CLI fails to parse yaml
// configuration files. This can happen for a multitude of reasons, including
// extraneous fields and incorrect field types. However, the yaml library
// constructs errors in a way that loses context, and so we can only pass the
// error message on.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// ItemType is the kind of filesystem object a sync item refers to.
type ItemType string

const (
	File      ItemType = "file"
	Directory ItemType = "directory"
)

// Config is the cacs sync configuration. It is loaded once per invocation and
// passed by value; nothing in cacs keeps a global current configuration.
type Config struct {
	Version    string `json:"version,omitempty"`
	Repo       string `json:"repo" validate:"required"`
	Branch     string `json:"branch,omitempty" validate:"required"`
	BackupDir  string `json:"backup_dir,omitempty" validate:"required"`
	MaxBackups int    `json:"max_backups,omitempty" validate:"min=1"`

	// WorkDir is where the repository is cloned.
	WorkDir string `json:"work_dir,omitempty" validate:"required"`

	// StateFile records the item digests as of the last sync.
	StateFile string `json:"state_file,omitempty" validate:"required"`

	// Requires is an optional constraint on the version of the cacs binary.
	Requires string `json:"requires,omitempty"`

	Author Author `json:"author,omitempty"`
	Auth   Auth   `json:"auth,omitempty"`
	Items  []Item `json:"items" validate:"unique=Name,dive"`

	// Path is the file the config was loaded from.
	Path string `json:"-"`
}

// Item is one file or directory pairing between the local machine and the
// repository.
type Item struct {
	Name string `json:"name" validate:"required,itemname"`

	// RepoPath is relative to the root of the repository.
	RepoPath   string   `json:"repo_path" validate:"required,repopath"`
	TargetPath string   `json:"target_path" validate:"required"`
	Type       ItemType `json:"type,omitempty" validate:"oneof=file directory"`

	// IgnoreFields are dot separated key paths that are excluded from
	// syncing. They only apply to JSON files.
	IgnoreFields []string `json:"ignore_fields,omitempty"`
}

// Author is the signature used for commits.
type Author struct {
	Name  string `json:"name,omitempty" validate:"required"`
	Email string `json:"email,omitempty" validate:"required"`
}

// Auth configures how cacs authenticates to the git remote.
type Auth struct {
	// SSHKey is a path to a private key. If empty, the SSH agent is used.
	SSHKey string `json:"ssh_key,omitempty"`

	// SSHPassphraseEnv names the environment variable holding the key's
	// passphrase.
	SSHPassphraseEnv string `json:"ssh_passphrase_env,omitempty"`

	// KnownHosts is a known_hosts file used to verify host keys.
	KnownHosts string `json:"known_hosts,omitempty"`

	// TokenEnv names the environment variable holding an HTTPS access token.
	TokenEnv string `json:"token_env,omitempty"`
}

// HasIgnoreFields returns whether the item is a file with fields that are
// excluded from syncing.
func (item Item) HasIgnoreFields() bool {
	return item.Type == File && len(item.IgnoreFields) > 0
}

// GetItem returns the item with the given name.
func (cfg Config) GetItem(name string) (Item, bool) {
	for _, item := range cfg.Items {
		if item.Name == name {
			return item, true
		}
	}
	return Item{}, false
}

func (cfg Config) getVersion() string {
	return cfg.Version
}

type configInterface interface {
	getVersion() string
}

type incompatibleVersionError struct {
	path, exp, actual string
}

func (err incompatibleVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err incompatibleVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The configuration file %q is incompatible "+
		"with this version of cacs.\n"+
		"Expected version %q, but got %q.", err.path, err.exp, err.actual)
}

func parseConfig(path string, config configInterface, expVersion string) error {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileNotFound{Path: path}
		}
		return errors.WithContext(err, "read file")
	}

	err = yaml.Unmarshal(configBytes, config)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	if config.getVersion() != expVersion {
		return incompatibleVersionError{path, expVersion, config.getVersion()}
	}

	// Do a strict unmarshal to check for any extra fields. We do a non-strict
	// unmarshal first so that we can catch version errors before erroring on
	// extra fields.
	err = yaml.UnmarshalStrict(configBytes, config, yaml.DisallowUnknownFields)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}
	return nil
}

// resolvePath expands `~`, and evaluates relative paths relative to the
// directory containing the config file.
func resolvePath(configPath, path string) (string, error) {
	if path == "" {
		return "", nil
	}

	expanded, err := homedirExpand(path)
	if err != nil {
		return "", errors.WithContext(err, "expand home directory")
	}

	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(filepath.Dir(configPath), expanded)
	}
	return filepath.Clean(expanded), nil
}
