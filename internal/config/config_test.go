package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/patchrun/patchrun/internal/models"
)

const validConfig = `
settings:
  snapshot_name: pre-patch
  command_timeout: 300s
  host_delay: 2s
  log_dir: /tmp/patchrun
hypervisors:
  - name: hv1
    address: hv1.example.com
    user: root
    auth:
      method: key
      key_path: ~/.ssh/id_ed25519
hosts:
  - name: web1
    hypervisor: hv1
    vm_id: web1-vm
    address: web1.example.com
    user: patch
    auth:
      method: key
      key_path: ~/.ssh/id_ed25519
    commands:
      - apt-get update
      - apt-get -y upgrade
  - name: db1
    hypervisor: hv1
    vm_id: db1-vm
    address: db1.example.com
    user: patch
    enabled: false
    auth:
      method: password
      password: hunter2
    commands:
      - yum -y update
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if cfg.Settings.SnapshotName != "pre-patch" {
		t.Errorf("Expected snapshot name pre-patch, got %q", cfg.Settings.SnapshotName)
	}
	if cfg.Settings.CommandTimeout != 300*time.Second {
		t.Errorf("Expected command timeout 300s, got %s", cfg.Settings.CommandTimeout)
	}
	if cfg.Settings.HostDelay != 2*time.Second {
		t.Errorf("Expected host delay 2s, got %s", cfg.Settings.HostDelay)
	}
	if cfg.Settings.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("Expected default connect timeout, got %s", cfg.Settings.ConnectTimeout)
	}
	if cfg.Settings.TruncateAfter != DefaultTruncateAfter {
		t.Errorf("Expected default truncate threshold, got %d", cfg.Settings.TruncateAfter)
	}

	if len(cfg.Hosts) != 2 {
		t.Fatalf("Expected 2 hosts, got %d", len(cfg.Hosts))
	}
	if !cfg.Hosts[0].Enabled {
		t.Error("Expected web1 to default to enabled")
	}
	if cfg.Hosts[1].Enabled {
		t.Error("Expected db1 to be disabled")
	}
	if cfg.Hosts[1].Credential.Method != models.AuthPassword {
		t.Errorf("Expected password auth for db1, got %q", cfg.Hosts[1].Credential.Method)
	}

	hv, ok := cfg.Hypervisors["hv1"]
	if !ok {
		t.Fatal("Expected hypervisor hv1 to be registered")
	}
	if hv.Address != "hv1.example.com" {
		t.Errorf("Expected hypervisor address hv1.example.com, got %q", hv.Address)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patchrun.yaml")
	if err := os.WriteFile(path, []byte(validConfig), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if len(cfg.Hosts) != 2 {
		t.Errorf("Expected 2 hosts, got %d", len(cfg.Hosts))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestMissingSnapshotName(t *testing.T) {
	doc := strings.Replace(validConfig, "snapshot_name: pre-patch", "snapshot_name: \"\"", 1)
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("Expected error for missing snapshot name")
	}
}

func TestDuplicateHostNames(t *testing.T) {
	doc := strings.Replace(validConfig, "name: db1", "name: web1", 1)
	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatal("Expected error for duplicate host names")
	}
	if !strings.Contains(err.Error(), "duplicate host") {
		t.Errorf("Expected duplicate host error, got: %v", err)
	}
}

func TestEnabledHostWithUnknownHypervisor(t *testing.T) {
	doc := strings.Replace(validConfig, "hypervisor: hv1\n    vm_id: web1-vm", "hypervisor: hv9\n    vm_id: web1-vm", 1)
	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatal("Expected error for unknown hypervisor reference")
	}
	if !strings.Contains(err.Error(), "unknown hypervisor") {
		t.Errorf("Expected unknown hypervisor error, got: %v", err)
	}
}

func TestDisabledHostMayReferenceUnknownHypervisor(t *testing.T) {
	doc := strings.Replace(validConfig, "hypervisor: hv1\n    vm_id: db1-vm", "hypervisor: hv9\n    vm_id: db1-vm", 1)
	if _, err := Parse([]byte(doc)); err != nil {
		t.Fatalf("Expected disabled host to skip hypervisor validation: %v", err)
	}
}

func TestKeyAuthRequiresPath(t *testing.T) {
	doc := strings.Replace(validConfig, "method: key\n      key_path: ~/.ssh/id_ed25519\n    commands:", "method: key\n    commands:", 1)
	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatal("Expected error for key auth without key_path")
	}
}

func TestInvalidDuration(t *testing.T) {
	doc := strings.Replace(validConfig, "command_timeout: 300s", "command_timeout: soon", 1)
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("Expected error for unparseable duration")
	}
}

func TestNegativeDurationRejected(t *testing.T) {
	doc := strings.Replace(validConfig, "host_delay: 2s", "host_delay: -5s", 1)
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("Expected error for negative duration")
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	doc := validConfig + "\nsurprise: true\n"
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("Expected strict parsing to reject unknown fields")
	}
}

func TestConsulSectionParsed(t *testing.T) {
	doc := validConfig + `
consul:
  address: 127.0.0.1:8500
  service: patch-targets
  defaults:
    user: patch
    auth:
      method: key
      key_path: ~/.ssh/id_ed25519
    hypervisor: hv1
    commands:
      - apt-get -y upgrade
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Failed to parse config with consul section: %v", err)
	}
	if cfg.Consul == nil {
		t.Fatal("Expected consul config to be present")
	}
	if cfg.Consul.Service != "patch-targets" {
		t.Errorf("Expected service patch-targets, got %q", cfg.Consul.Service)
	}
	if cfg.Consul.Defaults.User != "patch" {
		t.Errorf("Expected default user patch, got %q", cfg.Consul.Defaults.User)
	}
}
