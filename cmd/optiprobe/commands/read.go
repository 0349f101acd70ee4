package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	readTable  int
	readOffset int
	readOctets int
	readIndex  int
	readCount  int
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Log on and read a C12.19 table (full, offset, or index form)",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, cfg, closeFn, err := openMeter()
		if err != nil {
			return err
		}
		defer closeFn()

		password, err := cfg.PasswordBytes()
		if err != nil {
			return err
		}
		if _, err := m.Login(cfg.Username, uint16(cfg.UserID), password); err != nil {
			m.ForceClose()
			return err
		}
		defer func() { _ = m.Logout() }()

		var data []byte
		switch {
		case cmd.Flags().Changed("index"):
			data, err = m.ReadTableIndex(readTable, readIndex, readCount)
		case cmd.Flags().Changed("offset"):
			data, err = m.ReadTableOffset(readTable, readOffset, readOctets)
		default:
			data, err = m.ReadTable(readTable)
		}
		if err != nil {
			return err
		}

		fmt.Printf("table %d (%d bytes):\n%s", readTable, len(data), hexDump(data))
		return nil
	},
}

func init() {
	f := readCmd.Flags()
	f.IntVar(&readTable, "table", 0, "table number to read")
	f.IntVar(&readOffset, "offset", 0, "byte offset for a partial read")
	f.IntVar(&readOctets, "octets", 0, "octet count for an offset read")
	f.IntVar(&readIndex, "index", 0, "element index for an indexed read")
	f.IntVar(&readCount, "count", 0, "element count for an indexed read")
}
