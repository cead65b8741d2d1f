package models

// AuthMethod selects how the SSH transport authenticates.
type AuthMethod string

const (
	AuthKey      AuthMethod = "key"
	AuthPassword AuthMethod = "password"
)

type Credential struct {
	Method   AuthMethod `json:"method"`
	KeyPath  string     `json:"key_path,omitempty"`
	Password string     `json:"password,omitempty"`
}

// TargetHost is one virtual machine to be patched. Loaded once at startup,
// read-only for the duration of the run.
type TargetHost struct {
	Name       string     `json:"name"`
	Hypervisor string     `json:"hypervisor"`
	VMID       string     `json:"vm_id"`
	Address    string     `json:"address"`
	Port       int        `json:"port"`
	User       string     `json:"user"`
	Credential Credential `json:"auth"`
	Enabled    bool       `json:"enabled"`
	Commands   []string   `json:"commands"`
}

// Hypervisor is the management endpoint used to manipulate VM snapshots.
// Multiple targets may reference the same hypervisor.
type Hypervisor struct {
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	Port       int        `json:"port"`
	User       string     `json:"user"`
	Credential Credential `json:"auth"`
}
