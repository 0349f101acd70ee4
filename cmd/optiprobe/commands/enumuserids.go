package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cascade-sec/optiprobe/transport"
)

var (
	enumStart int
	enumEnd   int
)

// enumUserIDsCmd brute-forces the LOGON user id space, the way
// termineter's enum_userids module probes a meter one id at a time
// without ever attempting SECURITY: LOGON alone is enough to learn
// which ids the meter accepts.
var enumUserIDsCmd = &cobra.Command{
	Use:   "enum-userids",
	Short: "Probe a range of LOGON user ids and report which ones the meter accepts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if enumEnd < enumStart {
			return fmt.Errorf("--end must be >= --start")
		}

		m, cfg, closeFn, err := openMeter()
		if err != nil {
			return err
		}
		defer closeFn()

		found := 0
		for id := enumStart; id <= enumEnd; id++ {
			if _, err := m.Open(); err != nil {
				return fmt.Errorf("userid %d: opening session: %w", id, err)
			}
			if err := m.Negotiate(cfg.PacketSize, cfg.NbrPackets); err != nil {
				m.ForceClose()
				return fmt.Errorf("userid %d: negotiating: %w", id, err)
			}

			err := m.Session.Logon(cfg.Username, uint16(id))
			var logonErr *transport.LogonError
			switch {
			case err == nil:
				fmt.Printf("userid %d: accepted\n", id)
				found++
			case errors.As(err, &logonErr):
				// rejected, keep scanning
			default:
				m.ForceClose()
				return fmt.Errorf("userid %d: %w", id, err)
			}
			m.ForceClose()
		}

		fmt.Printf("%d of %d user ids accepted\n", found, enumEnd-enumStart+1)
		return nil
	},
}

func init() {
	f := enumUserIDsCmd.Flags()
	f.IntVar(&enumStart, "start", 0, "first user id to try")
	f.IntVar(&enumEnd, "end", 9, "last user id to try (inclusive)")
}
