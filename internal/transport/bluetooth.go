package transport

// NewBluetoothPort creates a port for a Bluetooth SPP adapter. At the OS
// level an SPP link is exposed as a serial device (rfcomm on Linux, a COM
// port on Windows), so the implementation is the serial one; only the
// component tag differs so errors render as [BT] instead of [USB].
func NewBluetoothPort(cfg SerialConfig) *SerialPort {
	p := NewSerialPort(cfg)
	p.component = "BT"
	return p
}
