package robot

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"go.bug.st/serial"
)

// fakePort implements serial.Port over in-memory buffers.
type fakePort struct {
	wrote    bytes.Buffer
	response *bytes.Reader
	closed   bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.response == nil {
		return 0, io.EOF
	}
	return p.response.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error)                  { return p.wrote.Write(b) }
func (p *fakePort) Close() error                                 { p.closed = true; return nil }
func (p *fakePort) SetMode(*serial.Mode) error                   { return nil }
func (p *fakePort) Drain() error                                 { return nil }
func (p *fakePort) ResetInputBuffer() error                      { return nil }
func (p *fakePort) ResetOutputBuffer() error                     { return nil }
func (p *fakePort) SetDTR(bool) error                            { return nil }
func (p *fakePort) SetRTS(bool) error                            { return nil }
func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (p *fakePort) SetReadTimeout(time.Duration) error           { return nil }
func (p *fakePort) Break(time.Duration) error                    { return nil }

func connectedController(port *fakePort) *Controller {
	c := NewController("/dev/ttyUSB0", 0)
	c.conn = port
	return c
}

func TestSendEncodesJSONLine(t *testing.T) {
	port := &fakePort{}
	c := connectedController(port)

	if err := c.Send([]any{1, -0.5, "stop"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := port.wrote.String(); got != "[1,-0.5,\"stop\"]\n" {
		t.Errorf("wrote %q", got)
	}
}

func TestSendNotConnected(t *testing.T) {
	c := NewController("/dev/ttyUSB0", 0)
	if err := c.Send([]any{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if _, err := c.SendWithResponse([]any{1}, 1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestSendWithResponse(t *testing.T) {
	port := &fakePort{response: bytes.NewReader([]byte("ok\nbattery=7.4\n"))}
	c := connectedController(port)

	resp, err := c.SendWithResponse([]any{0, 0}, 2)
	if err != nil {
		t.Fatalf("SendWithResponse: %v", err)
	}
	if resp != "ok\nbattery=7.4" {
		t.Errorf("response = %q", resp)
	}
}

func TestDefaultBaudRate(t *testing.T) {
	c := NewController("/dev/ttyACM0", 0)
	info := c.Info()
	if info.BaudRate != DefaultBaudRate {
		t.Errorf("BaudRate = %d, want %d", info.BaudRate, DefaultBaudRate)
	}
	if info.Connected {
		t.Error("fresh controller reports connected")
	}
	if info.Port != "/dev/ttyACM0" {
		t.Errorf("Port = %q", info.Port)
	}
}

func TestDisconnect(t *testing.T) {
	port := &fakePort{}
	c := connectedController(port)

	c.Disconnect()
	c.Disconnect()

	if !port.closed {
		t.Error("port not closed")
	}
	if c.Connected() {
		t.Error("controller still reports connected")
	}
}
