package encoders

import (
	"fmt"
	"strconv"
)

// BuildCommand assembles the ffmpeg argument list for one transcode
// session: raw BGR24 frames on stdin, an H.264 elementary stream on
// stdout. The first element is the binary name.
func BuildCommand(backend Backend, cfg H264Config, preset Preset) []string {
	cmd := []string{
		"ffmpeg",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "rawvideo",
		"-pixel_format", "bgr24",
		"-video_size", fmt.Sprintf("%dx%d", preset.Width, preset.Height),
		"-framerate", strconv.Itoa(preset.FPS),
		"-i", "-",
	}

	switch backend {
	case BackendV4L2M2M:
		cmd = append(cmd,
			"-c:v", string(BackendV4L2M2M),
			"-b:v", preset.Bitrate,
		)
	default:
		cmd = append(cmd,
			"-c:v", string(BackendLibx264),
			"-preset", cfg.SWPreset,
			"-tune", cfg.Tune,
			"-b:v", preset.Bitrate,
			"-g", strconv.Itoa(cfg.GOPSize),
		)
	}

	return append(cmd, "-f", "h264", "-")
}
