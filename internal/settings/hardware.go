package settings

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/cattern/rovercam/internal/logging"
)

// CollectHardware gathers host facts for the settings document. Each
// probe is independent; a failing one leaves its fields at the previous
// values rather than failing the collection.
func CollectHardware(prev Hardware) Hardware {
	logger := logging.GetLogger("settings")
	hw := prev

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		hw.CPUModel = infos[0].ModelName
	} else if err != nil {
		logger.Warn("CPU probe failed", "error", err)
	}
	if count, err := cpu.Counts(true); err == nil {
		hw.CPUCores = count
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		hw.MemoryMB = vm.Total / (1024 * 1024)
	} else {
		logger.Warn("Memory probe failed", "error", err)
	}

	hw.OSName = runtime.GOOS
	if info, err := host.Info(); err == nil {
		hw.OSVersion = info.PlatformVersion
		hw.Platform = info.Platform
	} else {
		logger.Warn("Host probe failed", "error", err)
	}

	return hw
}
