package inventory

import (
	"context"
	"fmt"
	"sort"

	consul "github.com/hashicorp/consul/api"
	"github.com/patchrun/patchrun/internal/models"
)

// TargetDefaults fills the fields Consul service registrations do not carry.
type TargetDefaults struct {
	User       string            `json:"user"`
	Port       int               `json:"port,omitempty"`
	Credential models.Credential `json:"auth"`
	Hypervisor string            `json:"hypervisor,omitempty"`
	Commands   []string          `json:"commands"`
}

// ConsulConfig enables pulling targets from a Consul catalog service instead
// of the static host list. Per-VM fields come from service meta: vm_id,
// hypervisor, and an optional enabled flag.
type ConsulConfig struct {
	Address  string         `json:"address"`
	Service  string         `json:"service"`
	Tag      string         `json:"tag,omitempty"`
	Defaults TargetDefaults `json:"defaults"`
}

// Consul lists healthy instances of the configured service and maps them to
// target hosts.
type Consul struct {
	client *consul.Client
	cfg    ConsulConfig
}

func NewConsul(cfg ConsulConfig) (*Consul, error) {
	config := consul.DefaultConfig()
	if cfg.Address != "" {
		config.Address = cfg.Address
	}

	client, err := consul.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}

	return &Consul{client: client, cfg: cfg}, nil
}

func (c *Consul) Targets(ctx context.Context) ([]models.TargetHost, error) {
	opts := (&consul.QueryOptions{}).WithContext(ctx)
	entries, _, err := c.client.Health().Service(c.cfg.Service, c.cfg.Tag, true, opts)
	if err != nil {
		return nil, fmt.Errorf("query consul: %w", err)
	}

	var targets []models.TargetHost
	for _, entry := range entries {
		addr := entry.Service.Address
		if addr == "" {
			addr = entry.Node.Address
		}
		targets = append(targets, targetFromService(entry.Node.Node, addr, entry.Service.Meta, c.cfg.Defaults))
	}

	// Catalog order is not stable; process alphabetically so repeated runs
	// walk the fleet in the same order.
	sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })

	return targets, nil
}

func targetFromService(node, address string, meta map[string]string, defaults TargetDefaults) models.TargetHost {
	name := meta["name"]
	if name == "" {
		name = node
	}

	hv := meta["hypervisor"]
	if hv == "" {
		hv = defaults.Hypervisor
	}

	return models.TargetHost{
		Name:       name,
		Hypervisor: hv,
		VMID:       meta["vm_id"],
		Address:    address,
		Port:       defaults.Port,
		User:       defaults.User,
		Credential: defaults.Credential,
		Enabled:    meta["enabled"] != "false",
		Commands:   defaults.Commands,
	}
}
