package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logonCmd = &cobra.Command{
	Use:   "logon",
	Short: "Run the full IDENT/NEGOTIATE/LOGON/SECURITY handshake",
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

		id, err := m.Login(cfg.Username, uint16(cfg.UserID), password)
		if err != nil {
			m.ForceClose()
			return err
		}
		defer func() { _ = m.Logout() }()

		fmt.Printf("identified: protocol %d revision %d feature %d\n", id.ProtocolVersion, id.Revision, id.Feature)
		fmt.Printf("session state: %s\n", m.State())
		return nil
	},
}
