package report

import (
	"fmt"
	"os"

	"github.com/patchrun/patchrun/internal/models"
	"github.com/shirou/gopsutil/v3/host"
)

// CollectRunnerInfo records which machine the maintenance pass ran from.
// Best-effort: a probe failure never fails the run.
func CollectRunnerInfo() models.RunnerInfo {
	info := models.RunnerInfo{}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if hi, err := host.Info(); err == nil {
		info.Platform = fmt.Sprintf("%s %s", hi.Platform, hi.PlatformVersion)
		info.UptimeSeconds = int64(hi.Uptime)
	}

	return info
}
