package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockBLEBackend is an in-memory BLEBackend. The emulator uses it as the
// board's radio, and tests use it to script discovery failures.
//
// Unlike a real radio, notifications emitted while nobody is subscribed are
// queued and delivered on the next Subscribe.
type MockBLEBackend struct {
	mu        sync.Mutex
	devices   map[string]*mockBLEDevice
	order     []string
	scanErr   error
	writeErr  error
	onWrite   func(address string, data []byte)
	onConnect func(address string)
	onDisc    func(address string)
}

type mockBLEDevice struct {
	info            BLEDevice
	connected       bool
	characteristics map[string]bool // "SERVICE/CHAR"
	writes          [][]byte
	subscriber      func([]byte)
	pending         [][]byte
}

// NewMockBLEBackend creates a mock BLE backend.
func NewMockBLEBackend() *MockBLEBackend {
	return &MockBLEBackend{
		devices: make(map[string]*mockBLEDevice),
	}
}

func charKey(serviceUUID, charUUID string) string {
	return strings.ToUpper(serviceUUID) + "/" + strings.ToUpper(charUUID)
}

// AddDevice adds a discoverable device to the mock.
func (m *MockBLEBackend) AddDevice(address, name string, rssi int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[address]; !ok {
		m.order = append(m.order, address)
	}
	m.devices[address] = &mockBLEDevice{
		info:            BLEDevice{Address: address, Name: name, RSSI: rssi},
		characteristics: make(map[string]bool),
	}
}

// AddCharacteristic exposes a GATT characteristic on a device.
func (m *MockBLEBackend) AddCharacteristic(address, serviceUUID, charUUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dev, ok := m.devices[address]; ok {
		dev.characteristics[charKey(serviceUUID, charUUID)] = true
	}
}

// SetScanError makes every Scan fail with err.
func (m *MockBLEBackend) SetScanError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanErr = err
}

// SetWriteError makes every WriteCharacteristic fail with err.
func (m *MockBLEBackend) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// OnWrite registers the device-side handler for characteristic writes.
func (m *MockBLEBackend) OnWrite(fn func(address string, data []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWrite = fn
}

// OnConnect registers a hook run after a central connects.
func (m *MockBLEBackend) OnConnect(fn func(address string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = fn
}

// OnDisconnect registers a hook run after a central disconnects.
func (m *MockBLEBackend) OnDisconnect(fn func(address string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisc = fn
}

// Notify emits a notification from the device at address.
func (m *MockBLEBackend) Notify(address string, data []byte) {
	m.mu.Lock()
	dev, ok := m.devices[address]
	if !ok {
		m.mu.Unlock()
		return
	}
	buf := append([]byte{}, data...)
	fn := dev.subscriber
	if fn == nil {
		dev.pending = append(dev.pending, buf)
	}
	m.mu.Unlock()

	if fn != nil {
		fn(buf)
	}
}

// Writes returns a copy of every payload written to the device.
func (m *MockBLEBackend) Writes(address string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[address]
	if !ok {
		return nil
	}
	out := make([][]byte, len(dev.writes))
	copy(out, dev.writes)
	return out
}

// IsConnected reports whether a central is connected to the device.
func (m *MockBLEBackend) IsConnected(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[address]
	return ok && dev.connected
}

func (m *MockBLEBackend) Scan(_ context.Context, _ time.Duration, match func(BLEDevice) bool) ([]BLEDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	var result []BLEDevice
	for _, addr := range m.order {
		info := m.devices[addr].info
		result = append(result, info)
		if match != nil && match(info) {
			break
		}
	}
	return result, nil
}

func (m *MockBLEBackend) Connect(_ context.Context, address string) error {
	m.mu.Lock()
	dev, ok := m.devices[address]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("device %s not found", address)
	}
	if dev.connected {
		m.mu.Unlock()
		return fmt.Errorf("device %s already connected", address)
	}
	dev.connected = true
	hook := m.onConnect
	m.mu.Unlock()

	if hook != nil {
		hook(address)
	}
	return nil
}

func (m *MockBLEBackend) Disconnect(address string) error {
	m.mu.Lock()
	dev, ok := m.devices[address]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("device %s not found", address)
	}
	if !dev.connected {
		m.mu.Unlock()
		return fmt.Errorf("device %s not connected", address)
	}
	dev.connected = false
	dev.subscriber = nil
	dev.pending = nil
	hook := m.onDisc
	m.mu.Unlock()

	if hook != nil {
		hook(address)
	}
	return nil
}

func (m *MockBLEBackend) Discover(_ context.Context, address, serviceUUID, charUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, err := m.connectedLocked(address)
	if err != nil {
		return err
	}
	if !dev.characteristics[charKey(serviceUUID, charUUID)] {
		return fmt.Errorf("characteristic %s not found in service %s", charUUID, serviceUUID)
	}
	return nil
}

func (m *MockBLEBackend) WriteCharacteristic(_ context.Context, address, serviceUUID, charUUID string, data []byte) error {
	m.mu.Lock()
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return err
	}
	dev, err := m.connectedLocked(address)
	if err == nil && !dev.characteristics[charKey(serviceUUID, charUUID)] {
		err = fmt.Errorf("characteristic %s not found", charUUID)
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}
	buf := append([]byte{}, data...)
	dev.writes = append(dev.writes, buf)
	handler := m.onWrite
	m.mu.Unlock()

	if handler != nil {
		handler(address, buf)
	}
	return nil
}

func (m *MockBLEBackend) Subscribe(_ context.Context, address, serviceUUID, charUUID string, fn func([]byte)) (func() error, error) {
	m.mu.Lock()
	dev, err := m.connectedLocked(address)
	if err == nil && !dev.characteristics[charKey(serviceUUID, charUUID)] {
		err = fmt.Errorf("characteristic %s not found", charUUID)
	}
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	dev.subscriber = fn
	pending := dev.pending
	dev.pending = nil
	m.mu.Unlock()

	for _, buf := range pending {
		fn(buf)
	}

	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		dev.subscriber = nil
		return nil
	}, nil
}

func (m *MockBLEBackend) connectedLocked(address string) (*mockBLEDevice, error) {
	dev, ok := m.devices[address]
	if !ok {
		return nil, fmt.Errorf("device %s not found", address)
	}
	if !dev.connected {
		return nil, fmt.Errorf("device %s not connected", address)
	}
	return dev, nil
}

var _ BLEBackend = (*MockBLEBackend)(nil)
