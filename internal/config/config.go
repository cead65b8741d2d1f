package config

import (
	"fmt"
	"os"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/patchrun/patchrun/internal/inventory"
	"github.com/patchrun/patchrun/internal/models"
	"sigs.k8s.io/yaml"
)

const (
	DefaultConnectTimeout        = 30 * time.Second
	DefaultCommandTimeout        = 600 * time.Second
	DefaultRebootTimeout         = 10 * time.Second
	DefaultSnapshotDeleteTimeout = 300 * time.Second
	DefaultSnapshotCreateTimeout = 600 * time.Second
	DefaultHostDelay             = 5 * time.Second
	DefaultLogDir                = "/var/log/patchrun"

	DefaultTruncateAfter = 50
	DefaultTruncateHead  = 20
	DefaultTruncateTail  = 10
)

// Config is the fully validated, typed view of the configuration document.
// All downstream code consumes these values; nothing re-reads the document.
type Config struct {
	Settings    models.Settings
	Hypervisors map[string]models.Hypervisor
	Hosts       []models.TargetHost
	Consul      *inventory.ConsulConfig
}

type document struct {
	Settings    settingsDoc             `json:"settings"`
	Hypervisors []models.Hypervisor     `json:"hypervisors"`
	Hosts       []hostDoc               `json:"hosts"`
	Consul      *inventory.ConsulConfig `json:"consul,omitempty"`
}

type settingsDoc struct {
	SnapshotName          string `json:"snapshot_name"`
	ConnectTimeout        string `json:"connect_timeout,omitempty"`
	CommandTimeout        string `json:"command_timeout,omitempty"`
	RebootTimeout         string `json:"reboot_timeout,omitempty"`
	SnapshotDeleteTimeout string `json:"snapshot_delete_timeout,omitempty"`
	SnapshotCreateTimeout string `json:"snapshot_create_timeout,omitempty"`
	HostDelay             string `json:"host_delay,omitempty"`
	LogDir                string `json:"log_dir,omitempty"`
	TruncateAfter         *int   `json:"truncate_after,omitempty"`
	TruncateHead          *int   `json:"truncate_head,omitempty"`
	TruncateTail          *int   `json:"truncate_tail,omitempty"`
}

// hostDoc mirrors models.TargetHost but defaults enabled to true when the
// field is omitted.
type hostDoc struct {
	Name       string            `json:"name"`
	Hypervisor string            `json:"hypervisor"`
	VMID       string            `json:"vm_id"`
	Address    string            `json:"address"`
	Port       int               `json:"port,omitempty"`
	User       string            `json:"user"`
	Credential models.Credential `json:"auth"`
	Enabled    *bool             `json:"enabled,omitempty"`
	Commands   []string          `json:"commands"`
}

// Load reads, parses, and validates the configuration document in one step.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var doc document
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	settings, err := buildSettings(doc.Settings)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Settings:    settings,
		Hypervisors: make(map[string]models.Hypervisor, len(doc.Hypervisors)),
		Consul:      doc.Consul,
	}

	for _, hv := range doc.Hypervisors {
		cfg.Hypervisors[hv.Name] = hv
	}

	for _, h := range doc.Hosts {
		enabled := true
		if h.Enabled != nil {
			enabled = *h.Enabled
		}
		cfg.Hosts = append(cfg.Hosts, models.TargetHost{
			Name:       h.Name,
			Hypervisor: h.Hypervisor,
			VMID:       h.VMID,
			Address:    h.Address,
			Port:       h.Port,
			User:       h.User,
			Credential: h.Credential,
			Enabled:    enabled,
			Commands:   h.Commands,
		})
	}

	if err := cfg.validate(doc.Hypervisors); err != nil {
		return nil, err
	}

	return cfg, nil
}

func buildSettings(doc settingsDoc) (models.Settings, error) {
	s := models.Settings{
		SnapshotName:  doc.SnapshotName,
		LogDir:        doc.LogDir,
		TruncateAfter: DefaultTruncateAfter,
		TruncateHead:  DefaultTruncateHead,
		TruncateTail:  DefaultTruncateTail,
	}
	if s.LogDir == "" {
		s.LogDir = DefaultLogDir
	}
	if doc.TruncateAfter != nil {
		s.TruncateAfter = *doc.TruncateAfter
	}
	if doc.TruncateHead != nil {
		s.TruncateHead = *doc.TruncateHead
	}
	if doc.TruncateTail != nil {
		s.TruncateTail = *doc.TruncateTail
	}

	var err error
	if s.ConnectTimeout, err = duration(doc.ConnectTimeout, DefaultConnectTimeout); err != nil {
		return s, fmt.Errorf("settings.connect_timeout: %w", err)
	}
	if s.CommandTimeout, err = duration(doc.CommandTimeout, DefaultCommandTimeout); err != nil {
		return s, fmt.Errorf("settings.command_timeout: %w", err)
	}
	if s.RebootTimeout, err = duration(doc.RebootTimeout, DefaultRebootTimeout); err != nil {
		return s, fmt.Errorf("settings.reboot_timeout: %w", err)
	}
	if s.SnapshotDeleteTimeout, err = duration(doc.SnapshotDeleteTimeout, DefaultSnapshotDeleteTimeout); err != nil {
		return s, fmt.Errorf("settings.snapshot_delete_timeout: %w", err)
	}
	if s.SnapshotCreateTimeout, err = duration(doc.SnapshotCreateTimeout, DefaultSnapshotCreateTimeout); err != nil {
		return s, fmt.Errorf("settings.snapshot_create_timeout: %w", err)
	}
	if s.HostDelay, err = duration(doc.HostDelay, DefaultHostDelay); err != nil {
		return s, fmt.Errorf("settings.host_delay: %w", err)
	}

	return s, nil
}

func duration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return d, nil
}

func (c *Config) validate(hypervisors []models.Hypervisor) error {
	var result *multierror.Error

	if c.Settings.SnapshotName == "" {
		result = multierror.Append(result, fmt.Errorf("settings.snapshot_name is required"))
	}

	seenHV := make(map[string]bool)
	for _, hv := range hypervisors {
		if hv.Name == "" {
			result = multierror.Append(result, fmt.Errorf("hypervisor with empty name"))
			continue
		}
		if seenHV[hv.Name] {
			result = multierror.Append(result, fmt.Errorf("duplicate hypervisor %q", hv.Name))
		}
		seenHV[hv.Name] = true
		if hv.Address == "" {
			result = multierror.Append(result, fmt.Errorf("hypervisor %q: address is required", hv.Name))
		}
		if hv.User == "" {
			result = multierror.Append(result, fmt.Errorf("hypervisor %q: user is required", hv.Name))
		}
	}

	seen := make(map[string]bool)
	for _, h := range c.Hosts {
		if h.Name == "" {
			result = multierror.Append(result, fmt.Errorf("host with empty name"))
			continue
		}
		if seen[h.Name] {
			result = multierror.Append(result, fmt.Errorf("duplicate host %q", h.Name))
		}
		seen[h.Name] = true

		if !h.Enabled {
			continue
		}
		if h.Address == "" {
			result = multierror.Append(result, fmt.Errorf("host %q: address is required", h.Name))
		}
		if h.User == "" {
			result = multierror.Append(result, fmt.Errorf("host %q: user is required", h.Name))
		}
		if _, ok := c.Hypervisors[h.Hypervisor]; !ok {
			result = multierror.Append(result, fmt.Errorf("host %q: unknown hypervisor %q", h.Name, h.Hypervisor))
		}
		if err := validateCredential(h.Name, h.Credential); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

func validateCredential(host string, cred models.Credential) error {
	switch cred.Method {
	case models.AuthKey:
		if cred.KeyPath == "" {
			return fmt.Errorf("host %q: auth method key requires key_path", host)
		}
	case models.AuthPassword:
		if cred.Password == "" {
			return fmt.Errorf("host %q: auth method password requires password", host)
		}
	default:
		return fmt.Errorf("host %q: unknown auth method %q", host, cred.Method)
	}
	return nil
}
