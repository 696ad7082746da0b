// Package nodeconfig is the YAML-backed configuration of spec.md §6: a
// create-default-on-first-run, load-then-upgrade shape covering libp2p
// network settings alongside the node's own recognised options.
package nodeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every option spec.md §6 names plus the network and
// storage settings needed to run the node, grouping identity/network/
// storage/logging together.
type Config struct {
	Version int `yaml:"version"`

	// ReceiveMinimum is the floor below which sends are ignored by
	// wallets but still processed by the ledger (spec.md §6).
	ReceiveMinimum string `yaml:"receive_minimum"`

	// InactiveSupply adjusts invariant I3 (spec.md §2): total balances
	// plus pending equals genesis supply minus this value.
	InactiveSupply string `yaml:"inactive_supply"`

	PasswordFanout int `yaml:"password_fanout"`
	IOThreads      int `yaml:"io_threads"`
	WorkThreads    int `yaml:"work_threads"`

	BootstrapFractionNumerator int           `yaml:"bootstrap_fraction_numerator"`
	CreationRebroadcast        int           `yaml:"creation_rebroadcast"`
	RebroadcastDelay           time.Duration `yaml:"rebroadcast_delay"`
	PacketDelayMicroseconds    int           `yaml:"packet_delay_microseconds"`

	PreconfiguredPeers           []string `yaml:"preconfigured_peers"`
	PreconfiguredRepresentatives []string `yaml:"preconfigured_representatives"`
	WorkPeers                    []string `yaml:"work_peers"`

	Network NetworkConfig `yaml:"network"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// NetworkConfig holds the libp2p transport settings: listen addresses,
// bootstrap peers, NAT traversal, and connection limits.
type NetworkConfig struct {
	ListenAddrs        []string      `yaml:"listen_addrs"`
	BootstrapPeers     []string      `yaml:"bootstrap_peers"`
	EnableMDNS         bool          `yaml:"enable_mdns"`
	EnableDHT          bool          `yaml:"enable_dht"`
	EnableRelay        bool          `yaml:"enable_relay"`
	EnableNAT          bool          `yaml:"enable_nat"`
	EnableHolePunching bool          `yaml:"enable_hole_punching"`
	ConnMgr            ConnMgrConfig `yaml:"conn_mgr"`
}

type ConnMgrConfig struct {
	LowWater    int           `yaml:"low_water"`
	HighWater   int           `yaml:"high_water"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// CurrentVersion is the version new configs are created at and the
// target UpgradeChain upgrades older configs to.
const CurrentVersion = 1

// DefaultConfig returns a Config with sensible defaults for a freshly
// initialized node.
func DefaultConfig() *Config {
	return &Config{
		Version:        CurrentVersion,
		ReceiveMinimum: "1000000000000000000000000", // 10^24 raw, the wallet's historical floor
		InactiveSupply: "0",
		PasswordFanout: 1024,
		IOThreads:      4,
		WorkThreads:    4,

		BootstrapFractionNumerator: 1,
		CreationRebroadcast:        2,
		RebroadcastDelay:           3 * time.Second,
		PacketDelayMicroseconds:    0,

		PreconfiguredPeers:           []string{},
		PreconfiguredRepresentatives: []string{},
		WorkPeers:                    []string{},

		Network: NetworkConfig{
			ListenAddrs: []string{
				"/ip4/0.0.0.0/tcp/4001",
				"/ip4/0.0.0.0/udp/4001/quic-v1",
			},
			BootstrapPeers:     []string{},
			EnableMDNS:         true,
			EnableDHT:          true,
			EnableRelay:        true,
			EnableNAT:          true,
			EnableHolePunching: true,
			ConnMgr: ConnMgrConfig{
				LowWater:    100,
				HighWater:   400,
				GracePeriod: time.Minute,
			},
		},
		Storage: StorageConfig{DataDir: "~/.raiblocks"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// FileName is the default config file name.
const FileName = "config.yaml"

// Path returns the full config file path for a data directory.
func Path(dataDir string) string {
	return filepath.Join(expandPath(dataDir), FileName)
}

// Load reads configuration from dataDir, creating a default one on
// first run, then applies UpgradeChain to bring an older persisted
// version up to CurrentVersion.
func Load(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	path := filepath.Join(expandedDir, FileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("nodeconfig: create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nodeconfig: read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("nodeconfig: parse config file: %w", err)
	}

	if err := Upgrade(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("nodeconfig: create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("nodeconfig: marshal config: %w", err)
	}

	header := []byte("# raiblocksd node configuration\n# generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("nodeconfig: write config file: %w", err)
	}
	return nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
