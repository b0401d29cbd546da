package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

//go:embed default/config.yaml
var defaultConfigData []byte

const (
	ConfigurationName = "config.yaml"
	ScratchDirName    = "scratch"
	AppLogName        = "app.log"
)

type Configuration struct {
	configFs afero.Fs
	baseDir  string

	// Home is the directory tilde expands to inside commands.
	Home string `json:"home" validate:"required"`

	// DefaultTimeoutSecs bounds one invocation when the caller gives none.
	DefaultTimeoutSecs int `json:"default_timeout_secs" validate:"gte=0"`

	// MaxSubstitutionDepth bounds nested command substitution.
	MaxSubstitutionDepth int `json:"max_substitution_depth" validate:"gte=1,lte=16"`

	Aliases map[string]string `json:"aliases"`

	Workspaces []Workspace `json:"workspaces" validate:"unique=Virtual,dive"`

	Shell Shell `json:"shell"`

	Sandbox Sandbox `json:"sandbox"`
}

// Workspace maps a virtual root commands reference to a host directory.
type Workspace struct {
	Virtual string `json:"virtual" validate:"required,startswith=/"`
	Host    string `json:"host" validate:"required"`
}

type Shell struct {
	// PosixCandidates are probed in order for a usable POSIX shell, e.g.
	// a Git Bash or MSYS bash install.
	PosixCandidates []string `json:"posix_candidates"`

	// ScriptShell launches emulation scripts, argv prefix form.
	ScriptShell []string `json:"script_shell" validate:"required,min=1"`

	// NativeBinaries maps command names to host binaries that implement
	// them faithfully.
	NativeBinaries map[string]string `json:"native_binaries"`
}

type Sandbox struct {
	BlockedCommands []string `json:"blocked_commands"`
	AllowNetwork    bool     `json:"allow_network"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// ScratchPath is the scratch directory as a host path. Paths under it are
// embedded into command text, so they must resolve from any working
// directory a backend runs in.
func (c *Configuration) ScratchPath() string {
	return filepath.Join(c.baseDir, ScratchDirName)
}

// OpenAppLog opens the application log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// AllowedRoots are the virtual roots absolute paths may reference.
func (c *Configuration) AllowedRoots() []string {
	out := make([]string, 0, len(c.Workspaces))
	for _, w := range c.Workspaces {
		out = append(out, w.Virtual)
	}
	return out
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Initialize writes the default configuration into the directory. Existing
// files are left alone so re-running init is safe.
func Initialize(path string) (*Configuration, error) {
	fs := afero.NewBasePathFs(afero.NewOsFs(), path)
	if err := fs.MkdirAll(".", 0700); err != nil {
		return nil, err
	}

	configPath := filepath.Join(".", ConfigurationName)
	if _, err := fs.Stat(configPath); os.IsNotExist(err) {
		if err := afero.WriteFile(fs, configPath, defaultConfigData, 0600); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return Load(path)
}
