// Package devices enumerates V4L2 capture devices and resolves
// human-readable names for them.
package devices

import (
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/cattern/rovercam/internal/logging"
)

// Device is one enumerated video device.
type Device struct {
	Path    string `json:"path" example:"/dev/video0" doc:"Device node path"`
	Name    string `json:"name" example:"HD Webcam C270" doc:"Human-readable device name"`
	Bus     string `json:"bus,omitempty" example:"usb-0000:00:14.0-1" doc:"Bus location"`
	Present bool   `json:"present" doc:"Whether the device node exists"`
}

var videoNumRe = regexp.MustCompile(`video(\d+)$`)

// List enumerates capture devices via v4l2-ctl. A missing tool or empty
// listing yields an empty slice, not an error; a headless rover without
// cameras is a normal state.
func List() []Device {
	logger := logging.GetLogger("devices")

	out, err := exec.Command("v4l2-ctl", "--list-devices").Output()
	if err != nil {
		// v4l2-ctl exits nonzero when no devices exist but still prints
		// any partial listing.
		logger.Debug("v4l2-ctl --list-devices failed", "error", err)
	}
	devs := parseDeviceList(string(out))
	for i := range devs {
		if _, err := os.Stat(devs[i].Path); err == nil {
			devs[i].Present = true
		}
	}
	return devs
}

// parseDeviceList parses `v4l2-ctl --list-devices` output: a name line
// ending in a colon followed by indented device nodes. Only video nodes
// are kept; media and subdev nodes are not capture targets.
func parseDeviceList(out string) []Device {
	var devs []Device
	var name, bus string

	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "\t") && !strings.HasPrefix(line, " ") {
			header := strings.TrimSuffix(strings.TrimSpace(line), ":")
			name, bus = splitHeader(header)
			continue
		}

		path := strings.TrimSpace(line)
		if !strings.HasPrefix(path, "/dev/video") {
			continue
		}
		devs = append(devs, Device{Path: path, Name: name, Bus: bus})
	}
	return devs
}

// splitHeader separates "HD Webcam C270 (usb-0000:00:14.0-1)" into name
// and bus.
func splitHeader(header string) (name, bus string) {
	open := strings.LastIndex(header, "(")
	if open < 0 || !strings.HasSuffix(header, ")") {
		return header, ""
	}
	return strings.TrimSpace(header[:open]), header[open+1 : len(header)-1]
}

// DisplayName resolves the friendliest available name for a device
// node, consulting udevadm properties before falling back to a generic
// label derived from the node number.
func DisplayName(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "Not Found"
	}

	props := udevProperties(path)
	if p := props["ID_V4L_PRODUCT"]; p != "" {
		return p
	}
	if m := props["ID_MODEL"]; m != "" {
		return strings.ReplaceAll(m, "_", " ")
	}

	if m := videoNumRe.FindStringSubmatch(path); m != nil {
		return "Camera " + m[1]
	}
	return "Unknown Camera"
}

// udevProperties queries udevadm for a device's property map. Failures
// return an empty map; naming degrades gracefully.
func udevProperties(path string) map[string]string {
	props := make(map[string]string)

	out, err := exec.Command("udevadm", "info", "--query=property", "--name="+path).Output()
	if err != nil {
		logging.GetLogger("devices").Debug("udevadm query failed", "device", path, "error", err)
		return props
	}

	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if ok && key != "" {
			props[key] = value
		}
	}
	return props
}
