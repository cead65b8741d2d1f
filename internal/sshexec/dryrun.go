package sshexec

import (
	"context"

	"github.com/patchrun/patchrun/internal/eventlog"
)

// DryRun reports every command it would run and returns a synthetic success
// without touching the network.
type DryRun struct {
	events   *eventlog.Log
	Commands []Request
}

func NewDryRun(events *eventlog.Log) *DryRun {
	return &DryRun{events: events}
}

func (d *DryRun) Execute(ctx context.Context, req Request) (Result, error) {
	d.Commands = append(d.Commands, req)
	if d.events != nil {
		d.events.Info("", "dry-run: would execute %q on %s@%s", req.Command, req.User, req.Address)
	}
	return Result{Output: ""}, nil
}
