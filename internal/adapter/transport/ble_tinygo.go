package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// TinyGoBackend drives the host Bluetooth adapter through tinygo.org/x/bluetooth.
type TinyGoBackend struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	enabled bool
	seen    map[string]bluetooth.Address
	devices map[string]bluetooth.Device
	chars   map[string]bluetooth.DeviceCharacteristic // address + "/" + charKey
}

// NewTinyGoBackend creates a backend on the default adapter. The adapter is
// enabled lazily on first scan.
func NewTinyGoBackend() *TinyGoBackend {
	return &TinyGoBackend{
		adapter: bluetooth.DefaultAdapter,
		seen:    make(map[string]bluetooth.Address),
		devices: make(map[string]bluetooth.Device),
		chars:   make(map[string]bluetooth.DeviceCharacteristic),
	}
}

func (b *TinyGoBackend) enable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enabled {
		return nil
	}
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}
	b.enabled = true
	return nil
}

func (b *TinyGoBackend) Scan(ctx context.Context, timeout time.Duration, match func(BLEDevice) bool) ([]BLEDevice, error) {
	if err := b.enable(); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		found   []BLEDevice
		indexed = make(map[string]int)
	)
	done := make(chan error, 1)
	go func() {
		done <- b.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			dev := BLEDevice{Address: r.Address.String(), Name: r.LocalName(), RSSI: int(r.RSSI)}

			b.mu.Lock()
			b.seen[dev.Address] = r.Address
			b.mu.Unlock()

			mu.Lock()
			if i, ok := indexed[dev.Address]; ok {
				if found[i].Name == "" {
					found[i].Name = dev.Name
				}
				found[i].RSSI = dev.RSSI
			} else {
				indexed[dev.Address] = len(found)
				found = append(found, dev)
			}
			mu.Unlock()

			if match != nil && match(dev) {
				_ = a.StopScan()
			}
		})
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var err error
	select {
	case err = <-done:
	case <-timer.C:
		_ = b.adapter.StopScan()
		err = <-done
	case <-ctx.Done():
		_ = b.adapter.StopScan()
		<-done
		err = ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]BLEDevice{}, found...), err
}

func (b *TinyGoBackend) Connect(_ context.Context, address string) error {
	b.mu.Lock()
	addr, ok := b.seen[address]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("device %s was not seen in a scan", address)
	}

	dev, err := b.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect %s: %w", address, err)
	}
	b.mu.Lock()
	b.devices[address] = dev
	b.mu.Unlock()
	return nil
}

func (b *TinyGoBackend) Disconnect(address string) error {
	b.mu.Lock()
	dev, ok := b.devices[address]
	delete(b.devices, address)
	for k := range b.chars {
		if strings.HasPrefix(k, address+"/") {
			delete(b.chars, k)
		}
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("device %s not connected", address)
	}
	return dev.Disconnect()
}

func (b *TinyGoBackend) Discover(_ context.Context, address, serviceUUID, charUUID string) error {
	b.mu.Lock()
	dev, ok := b.devices[address]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("device %s not connected", address)
	}

	svcID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return fmt.Errorf("parse service uuid: %w", err)
	}
	chrID, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return fmt.Errorf("parse characteristic uuid: %w", err)
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{svcID})
	if err != nil || len(services) == 0 {
		return fmt.Errorf("service %s not found: %v", serviceUUID, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{chrID})
	if err != nil || len(chars) == 0 {
		return fmt.Errorf("characteristic %s not found: %v", charUUID, err)
	}

	b.mu.Lock()
	b.chars[address+"/"+charKey(serviceUUID, charUUID)] = chars[0]
	b.mu.Unlock()
	return nil
}

func (b *TinyGoBackend) characteristic(address, serviceUUID, charUUID string) (bluetooth.DeviceCharacteristic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chars[address+"/"+charKey(serviceUUID, charUUID)]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("characteristic %s not discovered on %s", charUUID, address)
	}
	return c, nil
}

func (b *TinyGoBackend) WriteCharacteristic(_ context.Context, address, serviceUUID, charUUID string, data []byte) error {
	c, err := b.characteristic(address, serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if _, err := c.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("write characteristic: %w", err)
	}
	return nil
}

func (b *TinyGoBackend) Subscribe(_ context.Context, address, serviceUUID, charUUID string, fn func([]byte)) (func() error, error) {
	c, err := b.characteristic(address, serviceUUID, charUUID)
	if err != nil {
		return nil, err
	}
	// The stack reuses its buffer between notifications.
	err = c.EnableNotifications(func(buf []byte) {
		fn(append([]byte{}, buf...))
	})
	if err != nil {
		return nil, fmt.Errorf("enable notifications: %w", err)
	}
	return func() error {
		return c.EnableNotifications(nil)
	}, nil
}

var _ BLEBackend = (*TinyGoBackend)(nil)
