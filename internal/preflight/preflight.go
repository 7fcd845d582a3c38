package preflight

import (
	"context"

	"brightd/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckReadableDir("DRM connectors", cfg.Sysfs.DRMDir),
	}

	if cfg.DDC.Enabled {
		results = append(results, CheckI2CDevices(cfg.Sysfs.DevDir))
	}

	if cfg.Backlight.Enabled {
		results = append(results, CheckBacklightAccess(cfg.Sysfs.BacklightDir))
		if cfg.Backlight.UseLogind {
			results = append(results, CheckLogind(ctx))
		}
	}

	return results
}
