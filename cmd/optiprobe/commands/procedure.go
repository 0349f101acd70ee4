package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cascade-sec/optiprobe/tables"
)

var (
	procNbr    int
	procMfg    bool
	procParams string
)

var procedureCmd = &cobra.Command{
	Use:   "procedure",
	Short: "Log on and invoke a standard or manufacturer-defined procedure",
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := hex.DecodeString(procParams)
		if err != nil {
			return fmt.Errorf("--params must be hex-encoded: %w", err)
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

		code, data, err := m.RunProcedure(procNbr, procMfg, params)
		if err != nil {
			return err
		}

		fmt.Printf("procedure %d (%s): %s\n", procNbr, tables.ProcedureName(procNbr), tables.ProcedureResultName(code))
		if len(data) > 0 {
			fmt.Print(hexDump(data))
		}
		return nil
	},
}

func init() {
	f := procedureCmd.Flags()
	f.IntVar(&procNbr, "proc", 0, "procedure number")
	f.BoolVar(&procMfg, "manufacturer", false, "treat proc as manufacturer-defined")
	f.StringVar(&procParams, "params", "", "hex-encoded procedure parameters")
}
