// Package optionsconfig loads the operator-tunable options spec.md
// section 6 defines (serial framing, negotiation proposals, cache
// policy, and credentials) from environment variables and an optional
// config file; command-line flags are applied by package
// cmd/optiprobe, not here. It follows the way marmos91/dittofs's pkg/config layers
// viper over a typed struct instead of hand-rolling flag parsing.
package optionsconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config mirrors the option table in spec.md section 6.
type Config struct {
	// Serial framing.
	BaudRate int    `mapstructure:"baudrate"`
	ByteSize int    `mapstructure:"bytesize"`
	StopBits int    `mapstructure:"stopbits"`
	Parity   string `mapstructure:"parity"` // "none", "odd", "even"

	// C12.18 negotiation proposals.
	PacketSize int `mapstructure:"pktsize"`
	NbrPackets int `mapstructure:"nbrpkts"`

	// Table cache policy.
	CacheTables bool `mapstructure:"cachetbls"`

	// Credentials.
	Username    string `mapstructure:"username"`
	UserID      int    `mapstructure:"userid"`
	Password    string `mapstructure:"password"`
	PasswordHex bool   `mapstructure:"passwordhex"`
}

// Defaults returns the spec.md section 6 default option values.
func Defaults() Config {
	return Config{
		BaudRate:    9600,
		ByteSize:    8,
		StopBits:    1,
		Parity:      "none",
		PacketSize:  512,
		NbrPackets:  2,
		CacheTables: true,
		Username:    "0000",
		UserID:      0,
		PasswordHex: true,
	}
}

// Validate enforces the range and length limits spec.md section 6
// assigns each option.
func (c Config) Validate() error {
	if c.PacketSize <= 0 || c.PacketSize > 1024 {
		return fmt.Errorf("optionsconfig: pktsize must be in 1..1024, got %d", c.PacketSize)
	}
	if c.NbrPackets <= 0 || c.NbrPackets > 255 {
		return fmt.Errorf("optionsconfig: nbrpkts must be in 1..255, got %d", c.NbrPackets)
	}
	if len(c.Username) > 10 {
		return fmt.Errorf("optionsconfig: username must be at most 10 characters, got %d", len(c.Username))
	}
	if c.UserID < 0 || c.UserID > 0xFFFF {
		return fmt.Errorf("optionsconfig: userid must be in 0..65535, got %d", c.UserID)
	}
	passwordLen := len(c.Password)
	if c.PasswordHex {
		passwordLen = len(c.Password) / 2
	}
	if passwordLen > 20 {
		return fmt.Errorf("optionsconfig: password must be at most 20 octets, got %d", passwordLen)
	}
	switch c.Parity {
	case "none", "odd", "even":
	default:
		return fmt.Errorf("optionsconfig: parity must be none, odd, or even, got %q", c.Parity)
	}
	return nil
}

// PasswordBytes decodes Password per PasswordHex: hex-decoded when
// true, taken as literal ASCII octets otherwise.
func (c Config) PasswordBytes() ([]byte, error) {
	if c.Password == "" {
		return nil, nil
	}
	if !c.PasswordHex {
		return []byte(c.Password), nil
	}
	clean := strings.ReplaceAll(c.Password, " ", "")
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("optionsconfig: hex password must have an even number of digits")
	}
	out := make([]byte, len(clean)/2)
	for i := range out {
		var b byte
		if _, err := fmt.Sscanf(clean[i*2:i*2+2], "%02x", &b); err != nil {
			return nil, fmt.Errorf("optionsconfig: invalid hex password: %w", err)
		}
		out[i] = b
	}
	return out, nil
}

// Load reads options from an optional config file (YAML/TOML/JSON,
// whichever viper detects by extension), then overlays OPTIPROBE_*
// environment variables, on top of Defaults.
func Load(configPath string) (Config, error) {
	v := viper.New()
	cfg := Defaults()

	v.SetEnvPrefix("OPTIPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("optionsconfig: reading %s: %w", configPath, err)
		}
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return Config{}, fmt.Errorf("optionsconfig: unmarshal: %w", err)
	}
	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("baudrate", cfg.BaudRate)
	v.SetDefault("bytesize", cfg.ByteSize)
	v.SetDefault("stopbits", cfg.StopBits)
	v.SetDefault("parity", cfg.Parity)
	v.SetDefault("pktsize", cfg.PacketSize)
	v.SetDefault("nbrpkts", cfg.NbrPackets)
	v.SetDefault("cachetbls", cfg.CacheTables)
	v.SetDefault("username", cfg.Username)
	v.SetDefault("userid", cfg.UserID)
	v.SetDefault("password", cfg.Password)
	v.SetDefault("passwordhex", cfg.PasswordHex)
}
