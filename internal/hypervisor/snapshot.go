package hypervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patchrun/patchrun/internal/models"
	"github.com/patchrun/patchrun/internal/sshexec"
)

// SnapshotError identifies which snapshot step failed. The reason becomes the
// host's failure reason verbatim.
type SnapshotError struct {
	Reason string
	Err    error
}

func (e *SnapshotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// listTimeout bounds the snapshot-list query. Listing is cheap compared to
// deletion or creation, so it gets its own short budget.
const listTimeout = 60 * time.Second

// Manager reconciles the single retained pre-patch snapshot per VM by running
// virsh on the hypervisor host.
type Manager struct {
	exec          sshexec.Executor
	deleteTimeout time.Duration
	createTimeout time.Duration
	now           func() time.Time
}

func NewManager(exec sshexec.Executor, deleteTimeout, createTimeout time.Duration) *Manager {
	return &Manager{
		exec:          exec,
		deleteTimeout: deleteTimeout,
		createTimeout: createTimeout,
		now:           time.Now,
	}
}

// Reconcile deletes the named snapshot if present and then creates a fresh
// one. A deletion failure aborts before creation so a storage problem is
// never masked by a second same-named snapshot.
func (m *Manager) Reconcile(ctx context.Context, hv models.Hypervisor, vmID, name string) error {
	names, err := m.listSnapshots(ctx, hv, vmID)
	if err != nil {
		return &SnapshotError{Reason: "snapshot listing failed", Err: err}
	}

	if contains(names, name) {
		if err := m.deleteSnapshot(ctx, hv, vmID, name); err != nil {
			return &SnapshotError{Reason: "snapshot deletion failed", Err: err}
		}
	}

	if err := m.createSnapshot(ctx, hv, vmID, name); err != nil {
		return &SnapshotError{Reason: "snapshot creation failed", Err: err}
	}

	return nil
}

func (m *Manager) listSnapshots(ctx context.Context, hv models.Hypervisor, vmID string) ([]string, error) {
	res, err := m.run(ctx, hv, listTimeout, "virsh", "snapshot-list", vmID, "--name")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("virsh snapshot-list exited %d: %s", res.ExitCode, strings.TrimSpace(res.Output))
	}

	var names []string
	for _, line := range strings.Split(res.Output, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *Manager) deleteSnapshot(ctx context.Context, hv models.Hypervisor, vmID, name string) error {
	res, err := m.run(ctx, hv, m.deleteTimeout, "virsh", "snapshot-delete", vmID, name)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("virsh snapshot-delete exited %d: %s", res.ExitCode, strings.TrimSpace(res.Output))
	}
	return nil
}

func (m *Manager) createSnapshot(ctx context.Context, hv models.Hypervisor, vmID, name string) error {
	desc := fmt.Sprintf("patchrun pre-patch snapshot taken %s", m.now().Format(time.RFC3339))
	res, err := m.run(ctx, hv, m.createTimeout,
		"virsh", "snapshot-create-as", vmID, "--name", name, "--description", desc)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("virsh snapshot-create-as exited %d: %s", res.ExitCode, strings.TrimSpace(res.Output))
	}
	return nil
}

func (m *Manager) run(ctx context.Context, hv models.Hypervisor, timeout time.Duration, argv ...string) (sshexec.Result, error) {
	return m.exec.Execute(ctx, sshexec.Request{
		Address:    hv.Address,
		Port:       hv.Port,
		User:       hv.User,
		Credential: hv.Credential,
		Command:    sshexec.Join(argv...),
		Timeout:    timeout,
	})
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
