// Package config loads cubicle's configuration file: a YAML document
// with keys runner, auto_update, builtin_package_dir, plus
// runner-specific subsections (§6). Loading follows the layered
// pattern invowk uses for its own config (file defaults, merged with
// environment variable overrides via viper), but validates the file
// itself with a strict yaml.v3 decode first, since viper's merge
// alone does not reject unknown keys.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ongardie/cubicle/internal/cubicleerr"
)

// EnvVarPrefix namespaces environment variable overrides, e.g.
// CUBICLE_RUNNER=nsrunner.
const EnvVarPrefix = "CUBICLE"

// Config is the parsed contents of the configuration file.
type Config struct {
	// Runner names which Runner backend to use: "nsrunner" (the
	// namespace-isolated default), "oci", or "useraccount".
	Runner string `yaml:"runner"`

	// AutoUpdate is the artifact age threshold (§4.4): "never", or a
	// duration string like "12h" or "3.5 days".
	AutoUpdate string `yaml:"auto_update"`

	// BuiltinPackageDir overrides the built-in package search root
	// bundled with the cubicle installation.
	BuiltinPackageDir string `yaml:"builtin_package_dir,omitempty"`

	NSRunner    NSRunnerConfig    `yaml:"nsrunner,omitempty"`
	OCI         OCIConfig         `yaml:"oci,omitempty"`
	UserAccount UserAccountConfig `yaml:"useraccount,omitempty"`
}

type NSRunnerConfig struct {
	// BridgeInterface names a host-side veth/bridge. It is parsed and
	// kept, but nsrunner does not read it: its sandboxes get a
	// loopback-only network namespace.
	BridgeInterface string `yaml:"bridge_interface,omitempty"`
}

type OCIConfig struct {
	Image string `yaml:"image,omitempty"`
}

type UserAccountConfig struct {
	ShellPath string `yaml:"shell_path,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Runner:     "nsrunner",
		AutoUpdate: "12h",
	}
}

// Load reads and validates the configuration file at path. A missing
// file is not an error; Default is returned instead. Unknown keys
// anywhere in the document are rejected (§6: "Unknown keys are an
// error").
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return applyEnv(cfg)
	}
	if err != nil {
		return Config{}, &cubicleerr.IOError{Path: path, Err: err}
	}

	if err := strictUnmarshal(raw, &cfg); err != nil {
		return Config{}, &cubicleerr.IOError{Path: path, Err: err}
	}

	return applyEnv(cfg)
}

// strictUnmarshal decodes YAML into cfg, failing on any field not
// present in the target struct at every nesting level, the yaml.v3
// equivalent of json.Decoder.DisallowUnknownFields.
func strictUnmarshal(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnv layers environment variable overrides on top of the file
// (or default) configuration: each key is bound in viper with the
// current value as its default and read back with GetString, rather
// than through hand-rolled os.Getenv lookups, so that nested keys use
// the conventional CUBICLE_SECTION_FIELD spelling.
func applyEnv(cfg Config) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("runner", cfg.Runner)
	v.SetDefault("auto_update", cfg.AutoUpdate)
	v.SetDefault("builtin_package_dir", cfg.BuiltinPackageDir)
	v.SetDefault("nsrunner.bridge_interface", cfg.NSRunner.BridgeInterface)
	v.SetDefault("oci.image", cfg.OCI.Image)
	v.SetDefault("useraccount.shell_path", cfg.UserAccount.ShellPath)

	for _, key := range []string{"runner", "auto_update", "builtin_package_dir",
		"nsrunner.bridge_interface", "oci.image", "useraccount.shell_path"} {
		_ = v.BindEnv(key)
	}

	out := cfg
	out.Runner = v.GetString("runner")
	out.AutoUpdate = v.GetString("auto_update")
	out.BuiltinPackageDir = v.GetString("builtin_package_dir")
	out.NSRunner.BridgeInterface = v.GetString("nsrunner.bridge_interface")
	out.OCI.Image = v.GetString("oci.image")
	out.UserAccount.ShellPath = v.GetString("useraccount.shell_path")
	return out, nil
}
