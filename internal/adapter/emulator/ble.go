package emulator

import (
	"chessprobe/internal/adapter/transport"
	"chessprobe/internal/domain"
)

// DefaultBLEAddress is the address the emulated board advertises on.
const DefaultBLEAddress = "NA:0C:HE:55:00:01"

// NewBLELink returns an in-memory radio that connects a BLE transport to b.
// Writes are handled by the board; its notifications are delivered to the
// connected central. The greeting emitted on connect is held until the
// central subscribes.
func NewBLELink(b *Board, address string) *transport.MockBLEBackend {
	if address == "" {
		address = DefaultBLEAddress
	}
	radio := transport.NewMockBLEBackend()
	radio.AddDevice(address, b.cfg.Name, -48)
	radio.AddCharacteristic(address, domain.BLEServiceUUID, domain.BLECharacteristicUUID)

	b.Subscribe(func(raw []byte) {
		if radio.IsConnected(address) {
			radio.Notify(address, raw)
		}
	})
	radio.OnConnect(func(string) {
		b.SetBluetoothConnected(true)
		b.logger.Info("central connected", "address", address)
		b.Greet()
	})
	radio.OnDisconnect(func(string) {
		b.SetBluetoothConnected(false)
		b.logger.Info("central disconnected", "address", address)
	})
	radio.OnWrite(func(_ string, data []byte) {
		b.Handle(data)
	})
	return radio
}
