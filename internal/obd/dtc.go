package obd

// DTCCategory is the vehicle system a trouble code belongs to, encoded in
// the top two bits of the code's first byte.
type DTCCategory uint8

const (
	CategoryPowertrain DTCCategory = iota // 00
	CategoryChassis                       // 01
	CategoryBody                          // 10
	CategoryNetwork                       // 11
)

// Letter returns the SAE code prefix: P, C, B or U.
func (c DTCCategory) Letter() string {
	switch c {
	case CategoryChassis:
		return "C"
	case CategoryBody:
		return "B"
	case CategoryNetwork:
		return "U"
	default:
		return "P"
	}
}

func (c DTCCategory) String() string {
	switch c {
	case CategoryChassis:
		return "Chassis"
	case CategoryBody:
		return "Body"
	case CategoryNetwork:
		return "Network"
	default:
		return "Powertrain"
	}
}

// DTCStatus distinguishes the three DTC stores the vehicle keeps.
type DTCStatus int

const (
	StatusStored    DTCStatus = iota // mode 03
	StatusPending                    // mode 07
	StatusPermanent                  // mode 0A
)

// Mode returns the OBD service that reads this store.
func (s DTCStatus) Mode() string {
	switch s {
	case StatusPending:
		return "07"
	case StatusPermanent:
		return "0A"
	default:
		return "03"
	}
}

// ResponseByte is the positive-response echo for this store's mode.
func (s DTCStatus) ResponseByte() byte {
	switch s {
	case StatusPending:
		return 0x47
	case StatusPermanent:
		return 0x4A
	default:
		return 0x43
	}
}

func (s DTCStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusPermanent:
		return "Permanent"
	default:
		return "Stored"
	}
}

// DTC is one decoded diagnostic trouble code. Values are produced fresh on
// every read and never mutated.
type DTC struct {
	Category DTCCategory `json:"category"`
	Code     string      `json:"code"` // 4 hex digits, e.g. "0101"
	Status   DTCStatus   `json:"status"`
}

// String renders the logical code, e.g. "P0101".
func (d DTC) String() string { return d.Category.Letter() + d.Code }

const hexDigits = "0123456789ABCDEF"

// DecodeDTCPair turns one 2-byte code into a DTC. The top two bits of hi
// select the category; the remaining 14 bits form the 4-digit code.
// ok=false for the 00 00 "no code" filler.
func DecodeDTCPair(hi, lo byte, status DTCStatus) (DTC, bool) {
	if hi == 0 && lo == 0 {
		return DTC{}, false
	}
	code := []byte{
		hexDigits[(hi&0x30)>>4],
		hexDigits[hi&0x0F],
		hexDigits[(lo&0xF0)>>4],
		hexDigits[lo&0x0F],
	}
	return DTC{
		Category: DTCCategory((hi & 0xC0) >> 6),
		Code:     string(code),
		Status:   status,
	}, true
}
