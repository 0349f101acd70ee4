package tables

// Endian identifies the byte order a meter's tables use for multi-byte
// fields beyond the fixed C12.18 packet header, per spec.md section
// 4.6. C12.19 does not mandate one; table 0 bit 0 of byte 0 tells a
// reader which the device actually uses.
type Endian int

const (
	EndianUnknown Endian = iota
	EndianBig
	EndianLittle
)

func (e Endian) String() string {
	switch e {
	case EndianBig:
		return "big"
	case EndianLittle:
		return "little"
	default:
		return "unknown"
	}
}

// ProbeEndian reads table 0 and latches the device's endianness from
// bit 0 of its first byte: 1 means big-endian, 0 means little-endian.
// The result is cached on TableIO so repeated calls after the first
// do not re-read the wire, matching how a probed fact rather than a
// table value should behave.
func (t *TableIO) ProbeEndian() (Endian, error) {
	if t.endian != EndianUnknown {
		return t.endian, nil
	}
	data, err := t.ReadTable(table0)
	if err != nil {
		return EndianUnknown, err
	}
	if len(data) < 1 {
		return EndianUnknown, errShortBody
	}
	if data[0]&0x01 != 0 {
		t.endian = EndianBig
	} else {
		t.endian = EndianLittle
	}
	return t.endian, nil
}
