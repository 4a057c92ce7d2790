package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Profile is a static node profile loadable from a TOML file: the subset of
// Config a deployment may want to check in rather than pass as environment
// variables. Grounded on gopatchy-artmap/config/config.go's
// toml.DecodeFile-based loader for its own Art-Net remap tool.
//
// Load() treats a Profile as a second layer of defaults beneath environment
// variables: a file value is used when the corresponding env var is unset,
// and replaces the built-in default (i.e. env wins over file, file wins over
// built-in).
type Profile struct {
	BindInterface string `toml:"interface"`

	ShortName string `toml:"short_name"`
	LongName  string `toml:"long_name"`

	NetAddress    *int `toml:"net_address"`
	SubnetAddress *int `toml:"subnet_address"`

	OEM  *int `toml:"oem"`
	ESTA *int `toml:"esta"`

	BroadcastThreshold  *int  `toml:"broadcast_threshold"`
	AlwaysBroadcast     *bool `toml:"always_broadcast"`
	UseLimitedBroadcast *bool `toml:"use_limited_broadcast"`
	SendReplyOnChange   *bool `toml:"send_reply_on_change"`

	InputUniverses  []int    `toml:"input_universes"`
	OutputUniverses []int    `toml:"output_universes"`
	OutputMergeMode []string `toml:"output_merge_modes"`

	StatusAddr string `toml:"status_addr"`
}

// LoadProfile reads a node profile from a TOML file at path.
func LoadProfile(path string) (*Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("config: failed to load profile %s: %w", path, err)
	}
	return &p, nil
}

// applyTo overlays the Profile fields that are set (non-empty strings,
// non-nil pointers even when they point at zero, and the leading elements
// of each list) onto cfg. Must run before the
// environment-variable layer so env vars still take precedence when set.
func (p *Profile) applyTo(cfg *Config) {
	if p == nil {
		return
	}
	if p.BindInterface != "" {
		cfg.BindInterface = p.BindInterface
	}
	if p.ShortName != "" {
		cfg.ShortName = p.ShortName
	}
	if p.LongName != "" {
		cfg.LongName = p.LongName
	}
	if p.NetAddress != nil {
		cfg.NetAddress = *p.NetAddress
	}
	if p.SubnetAddress != nil {
		cfg.SubnetAddress = *p.SubnetAddress
	}
	if p.OEM != nil {
		cfg.OEM = *p.OEM
	}
	if p.ESTA != nil {
		cfg.ESTA = *p.ESTA
	}
	if p.BroadcastThreshold != nil {
		cfg.BroadcastThreshold = *p.BroadcastThreshold
	}
	if p.AlwaysBroadcast != nil {
		cfg.AlwaysBroadcast = *p.AlwaysBroadcast
	}
	if p.UseLimitedBroadcast != nil {
		cfg.UseLimitedBroadcast = *p.UseLimitedBroadcast
	}
	if p.SendReplyOnChange != nil {
		cfg.SendReplyOnChange = *p.SendReplyOnChange
	}
	for i := 0; i < 4 && i < len(p.InputUniverses); i++ {
		cfg.InputUniverses[i] = p.InputUniverses[i]
	}
	for i := 0; i < 4 && i < len(p.OutputUniverses); i++ {
		cfg.OutputUniverses[i] = p.OutputUniverses[i]
	}
	for i := 0; i < 4 && i < len(p.OutputMergeMode); i++ {
		cfg.OutputMergeModes[i] = p.OutputMergeMode[i]
	}
	if p.StatusAddr != "" {
		cfg.StatusAddr = p.StatusAddr
	}
}
