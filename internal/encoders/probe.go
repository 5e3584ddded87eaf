package encoders

import (
	"errors"
	"os/exec"
	"strings"
	"sync"

	"github.com/cattern/rovercam/internal/logging"
)

// Backend identifies the H.264 encoder implementation ffmpeg will use.
type Backend string

const (
	// BackendV4L2M2M is the hardware memory-to-memory encoder found on
	// Raspberry Pi class boards.
	BackendV4L2M2M Backend = "h264_v4l2m2m"

	// BackendLibx264 is the software fallback.
	BackendLibx264 Backend = "libx264"
)

// ErrNoEncoder is returned when ffmpeg is missing from PATH.
var ErrNoEncoder = errors.New("ffmpeg not found in PATH")

var (
	probeOnce    sync.Once
	probedResult Backend
	probedErr    error
)

// SelectBackend probes the ffmpeg installation for the best available
// encoder. Hardware wins when present and enabled. The probe runs once
// per process; availability does not change at runtime.
func SelectBackend(cfg H264Config) (Backend, error) {
	probeOnce.Do(func() {
		probedResult, probedErr = probe()
	})
	if probedErr != nil {
		return "", probedErr
	}
	if !cfg.UseHardware && probedResult == BackendV4L2M2M {
		return BackendLibx264, nil
	}
	return probedResult, nil
}

func probe() (Backend, error) {
	logger := logging.GetLogger("encoders")

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return "", ErrNoEncoder
	}

	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil {
		logger.Warn("Encoder probe failed, assuming software only", "error", err)
		return BackendLibx264, nil
	}

	backend := parseEncoderList(string(out))
	logger.Info("Encoder probe complete", "backend", string(backend))
	return backend, nil
}

// parseEncoderList picks the hardware backend when the encoder listing
// advertises it, otherwise software.
func parseEncoderList(out string) Backend {
	if strings.Contains(out, string(BackendV4L2M2M)) {
		return BackendV4L2M2M
	}
	return BackendLibx264
}
