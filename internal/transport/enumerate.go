package transport

import (
	"log"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one discovered device.
type PortInfo struct {
	Device    string // e.g. /dev/ttyUSB0
	Product   string // USB product string, if any
	Bluetooth bool
}

// ListSerialPorts returns every serial device on the system.
func ListSerialPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Device:    d.Name,
			Product:   d.Product,
			Bluetooth: looksBluetooth(d.Name, d.Product),
		})
	}
	if len(ports) == 0 {
		log.Printf("[USB] no serial ports found")
	}
	return ports, nil
}

// ListBluetoothPorts returns likely Bluetooth SPP devices. Detection is a
// name heuristic: rfcomm devices and ports whose product string mentions
// bluetooth. Adapters paired outside those conventions must be given
// explicitly.
func ListBluetoothPorts() ([]PortInfo, error) {
	all, err := ListSerialPorts()
	if err != nil {
		return nil, err
	}
	var bt []PortInfo
	for _, p := range all {
		if p.Bluetooth {
			bt = append(bt, p)
		}
	}
	if len(bt) == 0 {
		log.Printf("[BT] no bluetooth ports detected, specify the port manually")
	}
	return bt, nil
}

func looksBluetooth(device, product string) bool {
	return strings.Contains(strings.ToLower(device), "rfcomm") ||
		strings.Contains(strings.ToLower(product), "bluetooth")
}
