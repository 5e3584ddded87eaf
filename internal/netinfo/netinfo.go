// Package netinfo discovers the rover's local and public IP addresses.
package netinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cattern/rovercam/internal/logging"
	"github.com/cattern/rovercam/internal/settings"
)

// fetchTimeout bounds the cloud IP lookup.
const fetchTimeout = 10 * time.Second

// LocalIP returns the LAN address of the interface that routes to the
// internet. The UDP dial only selects a route; no packet is sent.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("failed to determine local route: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}

// PublicIP asks the cloud service what address the rover appears as.
func PublicIP(ctx context.Context, cloudLocation string) (string, error) {
	if cloudLocation == "" {
		return "", fmt.Errorf("no cloud location configured")
	}
	url := strings.TrimRight(cloudLocation, "/") + "/api/getMyIP?format=json"

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloud IP lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cloud IP lookup returned %s", resp.Status)
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("invalid cloud IP response: %w", err)
	}
	if body.IP == "" {
		return "", fmt.Errorf("cloud returned no IP address")
	}
	return body.IP, nil
}

// RunStartupTasks detects addresses and hardware facts and records them
// in the settings store. Every step is best effort; the server starts
// regardless.
func RunStartupTasks(ctx context.Context, store *settings.Store) {
	logger := logging.GetLogger("netinfo")

	if ip, err := LocalIP(); err == nil {
		if _, err := store.Update(func(v *settings.Values) { v.LANIP = ip }); err == nil {
			logger.Info("Detected local IP", "ip", ip)
		}
	} else {
		logger.Warn("Failed to detect local IP", "error", err)
	}

	cloud := store.Get().CloudLocation
	if cloud == "" {
		logger.Info("No cloud location configured, skipping public IP detection")
	} else if ip, err := PublicIP(ctx, cloud); err == nil {
		if _, err := store.Update(func(v *settings.Values) { v.RoverIP = ip }); err == nil {
			logger.Info("Fetched public IP", "ip", ip)
		}
	} else {
		logger.Warn("Failed to fetch public IP, continuing without it", "error", err)
	}

	hw := settings.CollectHardware(store.Get().Hardware)
	if _, err := store.Update(func(v *settings.Values) { v.Hardware = hw }); err != nil {
		logger.Warn("Failed to persist hardware facts", "error", err)
	}
}
