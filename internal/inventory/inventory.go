package inventory

import (
	"context"

	"github.com/patchrun/patchrun/internal/models"
)

// Source yields the ordered target list for a run.
type Source interface {
	Targets(ctx context.Context) ([]models.TargetHost, error)
}

// Static serves the host list loaded from the configuration document.
type Static struct {
	hosts []models.TargetHost
}

func NewStatic(hosts []models.TargetHost) *Static {
	return &Static{hosts: hosts}
}

func (s *Static) Targets(ctx context.Context) ([]models.TargetHost, error) {
	out := make([]models.TargetHost, len(s.hosts))
	copy(out, s.hosts)
	return out, nil
}
