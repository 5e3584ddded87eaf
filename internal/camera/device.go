package camera

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cattern/rovercam/internal/logging"
)

// FFmpegDevice reads raw BGR24 frames from a V4L2 device through an
// ffmpeg pipe. Format negotiation happens through v4l2-ctl before the
// pipe is spawned, so the properties reported are what the driver
// actually granted, never the requested values.
type FFmpegDevice struct {
	logger logging.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	props  Properties
	closed bool
}

// NewFFmpegDevice creates an unopened device reader.
func NewFFmpegDevice(logger logging.Logger) *FFmpegDevice {
	if logger == nil {
		logger = logging.GetLogger("camera")
	}
	return &FFmpegDevice{logger: logger}
}

var (
	widthHeightRe = regexp.MustCompile(`Width/Height\s*:\s*(\d+)/(\d+)`)
	pixFormatRe   = regexp.MustCompile(`Pixel Format\s*:\s*'(\w+)'`)
	fpsRe         = regexp.MustCompile(`Frames per second\s*:\s*([\d.]+)`)
)

// Open negotiates the format with the driver and spawns the ffmpeg
// rawvideo pipe at the negotiated geometry.
func (d *FFmpegDevice) Open(cfg Config) (Properties, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd != nil {
		return Properties{}, errors.New("device already open")
	}
	if _, err := os.Stat(cfg.Device); err != nil {
		return Properties{}, fmt.Errorf("device %s not available: %w", cfg.Device, err)
	}

	props, err := negotiateFormat(cfg)
	if err != nil {
		return Properties{}, err
	}
	if props.Width != cfg.Width || props.Height != cfg.Height {
		d.logger.Warn("Device did not honor requested geometry",
			"device", cfg.Device,
			"requested", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"actual", fmt.Sprintf("%dx%d", props.Width, props.Height))
	}

	inputFormat := "mjpeg"
	if strings.EqualFold(props.PixelFormat, "YUYV") {
		inputFormat = "yuyv422"
	}

	cmd := exec.Command("ffmpeg",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "v4l2",
		"-input_format", inputFormat,
		"-video_size", fmt.Sprintf("%dx%d", props.Width, props.Height),
		"-framerate", strconv.FormatFloat(props.FPS, 'f', -1, 64),
		"-i", cfg.Device,
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-",
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Properties{}, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Properties{}, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Properties{}, fmt.Errorf("failed to start capture pipe: %w", err)
	}

	go d.logStderr(cfg.Device, stderr)

	d.cmd = cmd
	d.stdout = stdout
	d.props = props
	d.closed = false
	return props, nil
}

// ReadFrame reads exactly one frame's worth of bytes from the pipe.
// Unblocked by Close killing the pipe process.
func (d *FFmpegDevice) ReadFrame() (*Frame, error) {
	d.mu.Lock()
	stdout := d.stdout
	props := d.props
	d.mu.Unlock()

	if stdout == nil {
		return nil, errors.New("device not open")
	}

	frame := NewFrame(props.Width, props.Height)
	if _, err := io.ReadFull(stdout, frame.Data); err != nil {
		return nil, fmt.Errorf("pipe read failed: %w", err)
	}
	return frame, nil
}

// Close terminates the capture pipe and releases the device. Any pending
// ReadFrame returns an error once the pipe breaks.
func (d *FFmpegDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil || d.closed {
		return nil
	}
	d.closed = true

	if d.cmd.Process != nil {
		_ = d.cmd.Process.Signal(syscall.SIGINT)

		done := make(chan struct{})
		go func() {
			_ = d.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			_ = d.cmd.Process.Kill()
			<-done
		}
	}

	d.cmd = nil
	d.stdout = nil
	return nil
}

func (d *FFmpegDevice) logStderr(device string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		d.logger.Debug("ffmpeg", "device", device, "line", scanner.Text())
	}
}

// negotiateFormat asks the driver for the requested format and reads
// back what it actually granted.
func negotiateFormat(cfg Config) (Properties, error) {
	pixFmt := cfg.PixelFormat
	if pixFmt == "" {
		pixFmt = "MJPG"
	}

	// Best effort; some drivers reject set-fmt while still delivering a
	// usable default.
	_ = exec.Command("v4l2-ctl", "--device", cfg.Device,
		"--set-fmt-video", fmt.Sprintf("width=%d,height=%d,pixelformat=%s", cfg.Width, cfg.Height, pixFmt),
	).Run()
	_ = exec.Command("v4l2-ctl", "--device", cfg.Device,
		"--set-parm", strconv.Itoa(cfg.FPS),
	).Run()

	fmtOut, err := exec.Command("v4l2-ctl", "--device", cfg.Device, "--get-fmt-video").Output()
	if err != nil {
		return Properties{}, fmt.Errorf("failed to query device format: %w", err)
	}

	props, err := parseFormatOutput(string(fmtOut))
	if err != nil {
		return Properties{}, err
	}

	props.FPS = float64(cfg.FPS)
	if parmOut, err := exec.Command("v4l2-ctl", "--device", cfg.Device, "--get-parm").Output(); err == nil {
		if m := fpsRe.FindStringSubmatch(string(parmOut)); m != nil {
			if fps, err := strconv.ParseFloat(m[1], 64); err == nil && fps > 0 {
				props.FPS = fps
			}
		}
	}
	return props, nil
}

// parseFormatOutput extracts geometry and pixel format from
// `v4l2-ctl --get-fmt-video` output.
func parseFormatOutput(out string) (Properties, error) {
	var props Properties

	m := widthHeightRe.FindStringSubmatch(out)
	if m == nil {
		return Properties{}, errors.New("no geometry in v4l2-ctl output")
	}
	props.Width, _ = strconv.Atoi(m[1])
	props.Height, _ = strconv.Atoi(m[2])
	if props.Width <= 0 || props.Height <= 0 {
		return Properties{}, fmt.Errorf("invalid geometry %dx%d", props.Width, props.Height)
	}

	if m := pixFormatRe.FindStringSubmatch(out); m != nil {
		props.PixelFormat = m[1]
	}
	return props, nil
}
