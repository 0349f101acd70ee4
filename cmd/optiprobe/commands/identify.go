package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Open a session and print the meter's IDENT response",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, _, closeFn, err := openMeter()
		if err != nil {
			return err
		}
		defer closeFn()

		id, err := m.Open()
		if err != nil {
			return err
		}
		defer m.ForceClose()

		fmt.Printf("protocol version: %d\n", id.ProtocolVersion)
		fmt.Printf("revision:         %d\n", id.Revision)
		fmt.Printf("feature:          %d\n", id.Feature)
		return nil
	},
}
