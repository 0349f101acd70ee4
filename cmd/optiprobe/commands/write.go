package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	writeTable  int
	writeOffset int
	writeData   string
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Log on and write a C12.19 table (full, or partial by offset)",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hex.DecodeString(writeData)
		if err != nil {
			return fmt.Errorf("--data must be hex-encoded: %w", err)
		}

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

		if cmd.Flags().Changed("offset") {
			err = m.WriteTableOffset(writeTable, writeOffset, data)
		} else {
			err = m.WriteTable(writeTable, data)
		}
		if err != nil {
			return err
		}

		fmt.Printf("wrote %d bytes to table %d\n", len(data), writeTable)
		return nil
	},
}

func init() {
	f := writeCmd.Flags()
	f.IntVar(&writeTable, "table", 0, "table number to write")
	f.IntVar(&writeOffset, "offset", 0, "byte offset for a partial write")
	f.StringVar(&writeData, "data", "", "hex-encoded bytes to write")
}
