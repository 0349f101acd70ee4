package commands

import "fmt"

// hexDump renders data the way the tool this command set is modeled on
// renders a table body: 16 bytes per line, hex on the left, an ASCII
// gutter on the right that only shows a byte as itself when it is
// above space (0x20) and below 0x80, so DEL (0x7F) is shown as itself.
func hexDump(data []byte) string {
	var out string
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[i:end]
		out += fmt.Sprintf("%04x  ", i)
		for j := 0; j < 16; j++ {
			if j < len(row) {
				out += fmt.Sprintf("%02x ", row[j])
			} else {
				out += "   "
			}
		}
		out += " "
		for _, b := range row {
			if b > 32 && b < 128 {
				out += string(b)
			} else {
				out += "."
			}
		}
		out += "\n"
	}
	return out
}
