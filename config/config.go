// Package config holds the executor configuration. The scheduler's whole
// configuration file is retained as a raw section map because worker pods
// re-materialize it as environment variables; the kubernetes section is
// additionally decoded into typed fields.
package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/BurntSushi/toml"
)

const (
	CoreSection       = "core"
	KubernetesSection = "kubernetes"

	defaultNamespace = "default"
)

// ErrConfig is wrapped by every fatal configuration error.
var ErrConfig = errors.New("configuration error")

type Config struct {
	// Sections is the raw section -> key -> value view of the config file.
	Sections map[string]map[string]string

	DagsFolder  string
	Parallelism int

	ContainerImage   string
	Namespace        string
	DeleteWorkerPods bool

	DagsVolumeClaim   string
	DagsVolumeSubpath string

	GitRepo     string
	GitBranch   string
	GitSubpath  string
	GitUser     string
	GitPassword string
}

func (c *Config) get(section, key string) string {
	if c.Sections == nil {
		return ""
	}
	return c.Sections[section][key]
}

func (c *Config) getBool(section, key string, fallback bool) bool {
	v := c.get(section, key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func (c *Config) getInt(section, key string, fallback int) int {
	v := c.get(section, key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

// FromSections builds a Config from a raw section map and validates it.
func FromSections(sections map[string]map[string]string) (*Config, error) {
	c := &Config{Sections: sections}

	c.DagsFolder = c.get(CoreSection, "dags_folder")
	c.Parallelism = c.getInt(CoreSection, "parallelism", 0)

	c.ContainerImage = c.get(KubernetesSection, "container_image")
	c.Namespace = c.get(KubernetesSection, "namespace")
	if c.Namespace == "" {
		c.Namespace = defaultNamespace
	}
	c.DeleteWorkerPods = c.getBool(KubernetesSection, "delete_worker_pods", true)

	c.DagsVolumeClaim = c.get(KubernetesSection, "dags_volume_claim")
	c.DagsVolumeSubpath = c.get(KubernetesSection, "dags_volume_subpath")

	c.GitRepo = c.get(KubernetesSection, "git_repo")
	c.GitBranch = c.get(KubernetesSection, "git_branch")
	c.GitSubpath = c.get(KubernetesSection, "git_subpath")
	c.GitUser = c.get(KubernetesSection, "git_user")
	c.GitPassword = c.get(KubernetesSection, "git_password")

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads a TOML config file.
func Load(path string) (*Config, error) {
	var raw map[string]map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrConfig, path, err)
	}

	sections := make(map[string]map[string]string, len(raw))
	for section, kv := range raw {
		sections[section] = make(map[string]string, len(kv))
		for key, value := range kv {
			sections[section][key] = fmt.Sprintf("%v", value)
		}
	}
	return FromSections(sections)
}

// Validate enforces that exactly one DAG distribution mode is configured:
// a persistent volume claim, or a git repo plus branch.
func (c *Config) Validate() error {
	hasClaim := c.DagsVolumeClaim != ""
	hasGit := c.GitRepo != "" && c.GitBranch != ""

	if !hasClaim && !hasGit {
		return fmt.Errorf(
			"%w: in kubernetes mode you must set `dags_volume_claim` or `git_repo and git_branch` in the `kubernetes` section",
			ErrConfig)
	}
	if hasClaim && hasGit {
		return fmt.Errorf(
			"%w: `dags_volume_claim` and `git_repo`/`git_branch` are mutually exclusive",
			ErrConfig)
	}
	return nil
}
