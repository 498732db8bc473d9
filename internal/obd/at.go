package obd

// ELM327 configuration commands used by the init handshake and the console.
const (
	CmdReset         = "AT Z"
	CmdWarmStart     = "AT WS"
	CmdEchoOff       = "AT E0"
	CmdLinefeedsOff  = "AT L0"
	CmdHeadersOff    = "AT H0"
	CmdHeadersOn     = "AT H1"
	CmdSpacesOff     = "AT S0"
	CmdAutoProtocol  = "AT SP 0"
	CmdDescribeProto = "AT DP"
	CmdProtoNumber   = "AT DPN"
	CmdVersion       = "AT I"
	CmdReadVoltage   = "AT RV"
	CmdDeviceDesc    = "AT @1"
)

// ATCommands maps console-friendly names to adapter commands, for the
// interactive console's named sends.
var ATCommands = map[string]string{
	"RESET":          CmdReset,
	"WARM_START":     CmdWarmStart,
	"ECHO_OFF":       CmdEchoOff,
	"ECHO_ON":        "AT E1",
	"LINEFEEDS_OFF":  CmdLinefeedsOff,
	"LINEFEEDS_ON":   "AT L1",
	"HEADERS_OFF":    CmdHeadersOff,
	"HEADERS_ON":     CmdHeadersOn,
	"SPACES_OFF":     CmdSpacesOff,
	"SPACES_ON":      "AT S1",
	"AUTO_PROTOCOL":  CmdAutoProtocol,
	"PROTOCOL_CAN":   "AT SP 6",
	"DESCRIBE_PROTO": CmdDescribeProto,
	"PROTO_NUMBER":   CmdProtoNumber,
	"VOLTAGE":        CmdReadVoltage,
	"VERSION":        CmdVersion,
	"DEVICE_DESC":    CmdDeviceDesc,
}

// Mode 09 vehicle-information parameters.
const (
	InfoVIN           = "0902"
	InfoECUName       = "090A"
	InfoCalibrationID = "0904"
)
