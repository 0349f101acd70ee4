// Package commands implements optiprobe's cobra command tree.
package commands

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cascade-sec/optiprobe/meter"
	"github.com/cascade-sec/optiprobe/metrics"
	"github.com/cascade-sec/optiprobe/optionsconfig"
	"github.com/cascade-sec/optiprobe/serial"
	"github.com/cascade-sec/optiprobe/transport"
)

var (
	flagConfigFile  string
	flagPort        string
	flagBaudRate    int
	flagByteSize    int
	flagStopBits    int
	flagParity      string
	flagPktSize     int
	flagNbrPkts     int
	flagCacheTables bool
	flagUsername    string
	flagUserID      int
	flagPassword    string
	flagPasswordHex bool
	flagMetricsAddr string
)

var rootCmd = &cobra.Command{
	Use:           "optiprobe",
	Short:         "ANSI C12.18/C12.19 optical-port assessment toolkit",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree. Called once by cmd/optiprobe/main.go.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	d := optionsconfig.Defaults()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfigFile, "config", "", "path to a YAML/TOML/JSON options file")
	pf.StringVar(&flagPort, "port", "/dev/ttyUSB0", "serial device path of the optical probe")
	pf.IntVar(&flagBaudRate, "baudrate", d.BaudRate, "serial baud rate")
	pf.IntVar(&flagByteSize, "bytesize", d.ByteSize, "serial byte size (5-8)")
	pf.IntVar(&flagStopBits, "stopbits", d.StopBits, "serial stop bits (1 or 2)")
	pf.StringVar(&flagParity, "parity", d.Parity, "serial parity: none, odd, even")
	pf.IntVar(&flagPktSize, "pktsize", d.PacketSize, "proposed C12.18 packet size")
	pf.IntVar(&flagNbrPkts, "nbrpkts", d.NbrPackets, "proposed C12.18 max packets per service")
	pf.BoolVar(&flagCacheTables, "cachetbls", d.CacheTables, "cache full table reads")
	pf.StringVar(&flagUsername, "username", d.Username, "C12.18 LOGON username (<=10 chars)")
	pf.IntVar(&flagUserID, "userid", d.UserID, "C12.18 LOGON user id")
	pf.StringVar(&flagPassword, "password", d.Password, "C12.18 SECURITY password")
	pf.BoolVar(&flagPasswordHex, "passwordhex", d.PasswordHex, "treat --password as hex-encoded octets")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled if empty)")

	rootCmd.AddCommand(identifyCmd)
	rootCmd.AddCommand(logonCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(procedureCmd)
	rootCmd.AddCommand(enumUserIDsCmd)
}

// loadOptions merges --config (if given) with the bound CLI flags, the
// CLI flags taking precedence over a config file's values.
func loadOptions() (optionsconfig.Config, error) {
	cfg, err := optionsconfig.Load(flagConfigFile)
	if err != nil {
		return optionsconfig.Config{}, err
	}
	cfg.BaudRate = flagBaudRate
	cfg.ByteSize = flagByteSize
	cfg.StopBits = flagStopBits
	cfg.Parity = flagParity
	cfg.PacketSize = flagPktSize
	cfg.NbrPackets = flagNbrPkts
	cfg.CacheTables = flagCacheTables
	cfg.Username = flagUsername
	cfg.UserID = flagUserID
	cfg.Password = flagPassword
	cfg.PasswordHex = flagPasswordHex
	if err := cfg.Validate(); err != nil {
		return optionsconfig.Config{}, err
	}
	return cfg, nil
}

// openMeter dials the configured serial port, optionally starts a
// metrics HTTP listener, and returns a Meter ready for Login.
func openMeter() (m *meter.Meter, cfg optionsconfig.Config, closeFn func(), err error) {
	cfg, err = loadOptions()
	if err != nil {
		return nil, cfg, nil, err
	}

	serialCfg := serial.Config{
		BaudRate: cfg.BaudRate,
		ByteSize: cfg.ByteSize,
		StopBits: cfg.StopBits,
		Parity:   parseParity(cfg.Parity),
	}
	port, err := serial.Open(flagPort, serialCfg)
	if err != nil {
		return nil, cfg, nil, fmt.Errorf("opening %s: %w", flagPort, err)
	}

	tcfg := transport.DefaultConfig()
	tcfg.ProposedPacketSize = cfg.PacketSize
	tcfg.ProposedMaxPackets = cfg.NbrPackets

	if flagMetricsAddr != "" {
		var collector *metrics.Collector
		m, collector = meter.NewWithMetrics(port, tcfg)
		serveMetrics(flagMetricsAddr, collector)
	} else {
		m = meter.New(port, tcfg)
	}
	m.SetCachePolicy(cfg.CacheTables)
	return m, cfg, func() { port.Close() }, nil
}

func parseParity(s string) serial.Parity {
	switch s {
	case "odd":
		return serial.ParityOdd
	case "even":
		return serial.ParityEven
	default:
		return serial.ParityNone
	}
}

// serveMetrics starts a background HTTP server exposing collector on
// /metrics. A listen failure is logged rather than fatal: metrics are
// diagnostic, not required for the assessment operation the subcommand
// is running.
func serveMetrics(addr string, collector *metrics.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Println("optiprobe: metrics server:", err)
		}
	}()
}
