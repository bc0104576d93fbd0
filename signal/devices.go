package signal

import (
	"context"
	"encoding/json"
	"fmt"
)

// DeviceManager is the typed façade over signal-cli's linked-device
// operations.
type DeviceManager struct {
	client *Client
}

// Devices returns the device manager.
func (c *Client) Devices() *DeviceManager {
	return &DeviceManager{client: c}
}

// Device describes one linked device.
type Device struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Created  int64  `json:"createdTimestamp"`
	LastSeen int64  `json:"lastSeenTimestamp"`
}

// List returns the account's linked devices.
func (m *DeviceManager) List(ctx context.Context) ([]Device, error) {
	result, err := m.client.Call(ctx, "listDevices", m.client.accountParams())
	if err != nil {
		return nil, err
	}
	var devices []Device
	if err := json.Unmarshal(result, &devices); err != nil {
		return nil, fmt.Errorf("parsing device list: %w", err)
	}
	return devices, nil
}

// Link adds a new linked device from a device link URI.
func (m *DeviceManager) Link(ctx context.Context, uri string) error {
	if uri == "" {
		return &ValidationError{Field: "device uri", Reason: "cannot be empty"}
	}
	params := m.client.accountParams()
	params["uri"] = uri
	_, err := m.client.Call(ctx, "addDevice", params)
	return err
}

// Remove unlinks a device by id.
func (m *DeviceManager) Remove(ctx context.Context, deviceID int) error {
	if deviceID <= 0 {
		return &ValidationError{Field: "device id", Reason: "must be positive"}
	}
	params := m.client.accountParams()
	params["deviceId"] = deviceID
	_, err := m.client.Call(ctx, "removeDevice", params)
	return err
}
