package encoders

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/cattern/rovercam/internal/camera"
)

func TestLookupPreset(t *testing.T) {
	tests := []struct {
		name       string
		wantWidth  int
		wantHeight int
		wantFPS    int
		wantErr    bool
	}{
		{name: "low", wantWidth: 640, wantHeight: 480, wantFPS: 15},
		{name: "medium", wantWidth: 1280, wantHeight: 720, wantFPS: 30},
		{name: "high", wantWidth: 1920, wantHeight: 1080, wantFPS: 30},
		{name: "ultra", wantErr: true},
		{name: "", wantErr: true},
		{name: "MEDIUM", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := LookupPreset(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownPreset) {
					t.Fatalf("err = %v, want ErrUnknownPreset", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LookupPreset(%q): %v", tt.name, err)
			}
			if p.Width != tt.wantWidth || p.Height != tt.wantHeight || p.FPS != tt.wantFPS {
				t.Errorf("preset = %+v", p)
			}
		})
	}
}

func TestPresetsSorted(t *testing.T) {
	all := Presets()
	if len(all) != 3 {
		t.Fatalf("got %d presets, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Name >= all[i].Name {
			t.Errorf("presets out of order: %s before %s", all[i-1].Name, all[i].Name)
		}
	}
}

func TestBuildCommand(t *testing.T) {
	cfg := DefaultH264Config()
	preset := Preset{Name: "medium", Width: 1280, Height: 720, FPS: 30, Bitrate: "1M"}

	t.Run("hardware", func(t *testing.T) {
		cmd := strings.Join(BuildCommand(BackendV4L2M2M, cfg, preset), " ")
		for _, want := range []string{
			"-f rawvideo",
			"-pixel_format bgr24",
			"-video_size 1280x720",
			"-framerate 30",
			"-c:v h264_v4l2m2m",
			"-b:v 1M",
			"-f h264",
		} {
			if !strings.Contains(cmd, want) {
				t.Errorf("command missing %q: %s", want, cmd)
			}
		}
		if strings.Contains(cmd, "-tune") {
			t.Errorf("hardware command carries software tuning: %s", cmd)
		}
	})

	t.Run("software", func(t *testing.T) {
		cmd := strings.Join(BuildCommand(BackendLibx264, cfg, preset), " ")
		for _, want := range []string{
			"-c:v libx264",
			"-preset ultrafast",
			"-tune zerolatency",
			"-g 30",
		} {
			if !strings.Contains(cmd, want) {
				t.Errorf("command missing %q: %s", want, cmd)
			}
		}
	})

	t.Run("reads stdin writes stdout", func(t *testing.T) {
		cmd := BuildCommand(BackendLibx264, cfg, preset)
		if cmd[len(cmd)-1] != "-" {
			t.Errorf("command does not end with stdout marker: %v", cmd)
		}
	})
}

func TestParseEncoderList(t *testing.T) {
	hw := ` V..... h264_v4l2m2m         V4L2 mem2mem H.264 encoder wrapper (codec h264)
 V..... libx264              libx264 H.264 / AVC / MPEG-4 AVC
`
	if got := parseEncoderList(hw); got != BackendV4L2M2M {
		t.Errorf("parseEncoderList(hw) = %s, want hardware", got)
	}

	sw := ` V..... libx264              libx264 H.264 / AVC / MPEG-4 AVC
`
	if got := parseEncoderList(sw); got != BackendLibx264 {
		t.Errorf("parseEncoderList(sw) = %s, want software", got)
	}
}

func TestEncodeJPEG(t *testing.T) {
	frame := camera.NewFrame(8, 8)
	for i := 0; i < len(frame.Data); i += 3 {
		frame.Data[i] = 0xFF // blue in BGR
	}

	data, err := EncodeJPEG(frame, 80)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		t.Error("output missing JPEG SOI marker")
	}
	if !bytes.HasSuffix(data, []byte{0xFF, 0xD9}) {
		t.Error("output missing JPEG EOI marker")
	}
}

func TestEncodeJPEGRejectsBadFrames(t *testing.T) {
	if _, err := EncodeJPEG(nil, 80); err == nil {
		t.Error("nil frame accepted")
	}

	short := camera.NewFrame(8, 8)
	short.Data = short.Data[:10]
	if _, err := EncodeJPEG(short, 80); err == nil {
		t.Error("truncated frame accepted")
	}
}

func TestEncodeJPEGQualityClamp(t *testing.T) {
	frame := camera.NewFrame(4, 4)
	if _, err := EncodeJPEG(frame, 0); err != nil {
		t.Errorf("quality 0 should fall back to default: %v", err)
	}
	if _, err := EncodeJPEG(frame, 500); err != nil {
		t.Errorf("quality 500 should fall back to default: %v", err)
	}
}
