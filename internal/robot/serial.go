// Package robot talks to the USB motor controller board over a serial
// line. Commands are JSON arrays, one per line.
package robot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/cattern/rovercam/internal/logging"
)

// DefaultBaudRate matches the Arduino and Waveshare controller
// firmware.
const DefaultBaudRate = 115200

// ErrNotConnected is returned for commands sent before Connect.
var ErrNotConnected = errors.New("robot controller not connected")

// Controller is a thread-safe serial link to the robot board.
type Controller struct {
	port     string
	baudRate int
	timeout  time.Duration
	logger   logging.Logger

	mu   sync.Mutex
	conn serial.Port
}

// NewController creates a disconnected controller for the given port,
// for example /dev/ttyUSB0 or /dev/ttyACM0. A baudRate of 0 selects the
// default.
func NewController(port string, baudRate int) *Controller {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	return &Controller{
		port:     port,
		baudRate: baudRate,
		timeout:  time.Second,
		logger:   logging.GetLogger("robot"),
	}
}

// Connect opens the serial port. Connecting twice is a no-op.
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := serial.Open(c.port, &serial.Mode{BaudRate: c.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.port, err)
	}
	if err := conn.SetReadTimeout(c.timeout); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	c.conn = conn
	c.logger.Info("Connected to robot controller", "port", c.port, "baud", c.baudRate)
	return nil
}

// Disconnect closes the serial port.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("Error closing serial port", "port", c.port, "error", err)
	}
	c.conn = nil
	c.logger.Info("Disconnected from robot controller", "port", c.port)
}

// Connected reports whether the serial link is open.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one command array to the controller as a JSON line.
func (c *Controller) Send(command []any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(command)
}

func (c *Controller) sendLocked(command []any) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	line, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	line = append(line, '\n')

	n, err := c.conn.Write(line)
	if err != nil {
		return fmt.Errorf("serial write failed: %w", err)
	}
	c.logger.Debug("Sent robot command", "bytes", n)
	return nil
}

// SendWithResponse writes a command and reads up to lines response
// lines, bounded by the port's read timeout.
func (c *Controller) SendWithResponse(command []any, lines int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sendLocked(command); err != nil {
		return "", err
	}

	var out []string
	scanner := bufio.NewScanner(c.conn)
	for i := 0; i < lines && scanner.Scan(); i++ {
		if text := scanner.Text(); text != "" {
			out = append(out, text)
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("Error reading robot response", "error", err)
	}

	response := ""
	for i, l := range out {
		if i > 0 {
			response += "\n"
		}
		response += l
	}
	return response, nil
}

// Info describes the controller link for status endpoints.
type Info struct {
	Port      string `json:"port" example:"/dev/ttyUSB0" doc:"Serial port path"`
	BaudRate  int    `json:"baud_rate" example:"115200" doc:"Serial baud rate"`
	Connected bool   `json:"connected" doc:"Whether the link is open"`
}

// Info returns the link's current state.
func (c *Controller) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{
		Port:      c.port,
		BaudRate:  c.baudRate,
		Connected: c.conn != nil,
	}
}
