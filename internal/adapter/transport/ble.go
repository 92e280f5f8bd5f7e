package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chessprobe/internal/domain"
)

// DefaultScanTimeout bounds the search for the board's advertisement.
const DefaultScanTimeout = 10 * time.Second

// BLEBackend abstracts Bluetooth Low Energy operations for testability.
type BLEBackend interface {
	// Scan reports advertising devices until timeout. When match is non-nil
	// the scan stops at the first device it accepts.
	Scan(ctx context.Context, timeout time.Duration, match func(BLEDevice) bool) ([]BLEDevice, error)
	Connect(ctx context.Context, address string) error
	Disconnect(address string) error
	// Discover resolves a characteristic on a connected device. A missing
	// service or characteristic is ErrCharacteristicNotFound.
	Discover(ctx context.Context, address, serviceUUID, charUUID string) error
	WriteCharacteristic(ctx context.Context, address, serviceUUID, charUUID string, data []byte) error
	// Subscribe enables notifications and returns a function that disables them.
	Subscribe(ctx context.Context, address, serviceUUID, charUUID string, fn func([]byte)) (func() error, error)
}

// BLEDevice describes a discovered BLE device.
type BLEDevice struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
}

// BLEConfig configures a BLETransport.
type BLEConfig struct {
	DeviceName         string
	ServiceUUID        string
	CharacteristicUUID string
	ScanTimeout        time.Duration
}

func (c *BLEConfig) applyDefaults() {
	if c.DeviceName == "" {
		c.DeviceName = domain.BLEDeviceName
	}
	if c.ServiceUUID == "" {
		c.ServiceUUID = domain.BLEServiceUUID
	}
	if c.CharacteristicUUID == "" {
		c.CharacteristicUUID = domain.BLECharacteristicUUID
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
}

// BLETransport writes envelopes to the board's GATT characteristic and
// receives notifications from it.
type BLETransport struct {
	cfg     BLEConfig
	backend BLEBackend
	logger  *slog.Logger

	mu      sync.Mutex
	address string
}

// NewBLE creates a BLE transport over the given backend.
func NewBLE(cfg BLEConfig, backend BLEBackend, logger *slog.Logger) *BLETransport {
	cfg.applyDefaults()
	return &BLETransport{cfg: cfg, backend: backend, logger: logger}
}

func (t *BLETransport) Name() string { return "ble" }

// Address returns the connected device address, or "" when disconnected.
func (t *BLETransport) Address() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.address
}

// Connect scans for the board by advertised name, connects, and resolves the
// protocol characteristic. Any failure leaves the transport disconnected.
func (t *BLETransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.address != "" {
		return nil
	}

	t.logger.Info("scanning for board", "name", t.cfg.DeviceName, "timeout", t.cfg.ScanTimeout)
	devices, err := t.backend.Scan(ctx, t.cfg.ScanTimeout, func(d BLEDevice) bool {
		return t.matches(d)
	})
	if err != nil {
		return domain.NewDomainError("BLE.Connect", domain.ErrDeviceNotFound, "scan failed: "+err.Error())
	}
	var target *BLEDevice
	for i := range devices {
		if t.matches(devices[i]) {
			target = &devices[i]
			break
		}
	}
	if target == nil {
		return domain.NewDomainError("BLE.Connect", domain.ErrDeviceNotFound, t.cfg.DeviceName)
	}
	t.logger.Info("board found", "name", target.Name, "address", target.Address, "rssi", target.RSSI)

	if err := t.backend.Connect(ctx, target.Address); err != nil {
		return domain.NewDomainError("BLE.Connect", domain.ErrDeviceUnreachable, err.Error())
	}
	if err := t.backend.Discover(ctx, target.Address, t.cfg.ServiceUUID, t.cfg.CharacteristicUUID); err != nil {
		_ = t.backend.Disconnect(target.Address)
		return domain.NewDomainError("BLE.Connect", domain.ErrCharacteristicNotFound, err.Error())
	}

	t.address = target.Address
	t.logger.Info("connected to board", "address", target.Address)
	return nil
}

func (t *BLETransport) matches(d BLEDevice) bool {
	return d.Name == t.cfg.DeviceName
}

// Disconnect drops the link. Calling it while disconnected is a no-op.
func (t *BLETransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.address == "" {
		return nil
	}
	addr := t.address
	t.address = ""
	if err := t.backend.Disconnect(addr); err != nil {
		return domain.NewDomainError("BLE.Disconnect", domain.ErrTransport, err.Error())
	}
	t.logger.Info("disconnected from board", "address", addr)
	return nil
}

// Send performs one characteristic write.
func (t *BLETransport) Send(ctx context.Context, payload []byte) error {
	addr := t.Address()
	if addr == "" {
		return domain.WrapOp("BLE.Send", domain.ErrNotConnected)
	}
	if err := t.backend.WriteCharacteristic(ctx, addr, t.cfg.ServiceUUID, t.cfg.CharacteristicUUID, payload); err != nil {
		return domain.NewDomainError("BLE.Send", domain.ErrTransport, err.Error())
	}
	return nil
}

// Subscribe enables notifications on the protocol characteristic.
func (t *BLETransport) Subscribe(ctx context.Context, fn func([]byte)) (func() error, error) {
	addr := t.Address()
	if addr == "" {
		return nil, domain.WrapOp("BLE.Subscribe", domain.ErrNotConnected)
	}
	unsubscribe, err := t.backend.Subscribe(ctx, addr, t.cfg.ServiceUUID, t.cfg.CharacteristicUUID, fn)
	if err != nil {
		return nil, domain.NewDomainError("BLE.Subscribe", domain.ErrTransport, err.Error())
	}
	return func() error {
		if err := unsubscribe(); err != nil {
			t.logger.Warn("unsubscribe failed", "error", err)
		}
		return nil
	}, nil
}

// Listen subscribes to notifications for d, then unsubscribes.
func (t *BLETransport) Listen(ctx context.Context, d time.Duration, fn func([]byte)) error {
	return domain.WrapOp("BLE.Listen", listenFor(ctx, t, d, fn))
}

var _ Transport = (*BLETransport)(nil)
