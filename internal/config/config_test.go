package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ShortName != "artnetnode" {
		t.Errorf("ShortName = %q, want %q", cfg.ShortName, "artnetnode")
	}
	if cfg.NetAddress != 0 || cfg.SubnetAddress != 0 {
		t.Errorf("NetAddress/SubnetAddress = %d/%d, want 0/0", cfg.NetAddress, cfg.SubnetAddress)
	}
	if cfg.BroadcastThreshold != 30 {
		t.Errorf("BroadcastThreshold = %d, want 30", cfg.BroadcastThreshold)
	}
	if cfg.AlwaysBroadcast {
		t.Errorf("AlwaysBroadcast = true, want false")
	}
	if !cfg.SendReplyOnChange {
		t.Errorf("SendReplyOnChange = false, want true")
	}
	if cfg.OutputUniverses[0] != 0 || cfg.OutputUniverses[1] != 0xF0 {
		t.Errorf("OutputUniverses = %v, want [0 0xF0 0xF0 0xF0]", cfg.OutputUniverses)
	}
	if cfg.OutputMergeModes[0] != "HTP" {
		t.Errorf("OutputMergeModes[0] = %q, want HTP", cfg.OutputMergeModes[0])
	}
	if cfg.StatusAddr != ":8090" {
		t.Errorf("StatusAddr = %q, want :8090", cfg.StatusAddr)
	}
}

func TestLoadCustomEnvironment(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("ARTNET_INTERFACE", "eth0")
	t.Setenv("ARTNET_SHORT_NAME", "studio")
	t.Setenv("ARTNET_NET", "1")
	t.Setenv("ARTNET_SUBNET", "2")
	t.Setenv("ARTNET_BROADCAST_THRESHOLD", "5")
	t.Setenv("ARTNET_ALWAYS_BROADCAST", "true")
	t.Setenv("ARTNET_OUTPUT_UNIVERSES", "0,1,0xF0,3")
	t.Setenv("ARTNET_MERGE_MODES", "ltp,htp")
	t.Setenv("STATUS_ADDR", ":9000")

	cfg := Load()

	if cfg.Env != "production" {
		t.Errorf("Env = %q, want production", cfg.Env)
	}
	if cfg.BindInterface != "eth0" {
		t.Errorf("BindInterface = %q, want eth0", cfg.BindInterface)
	}
	if cfg.ShortName != "studio" {
		t.Errorf("ShortName = %q, want studio", cfg.ShortName)
	}
	if cfg.NetAddress != 1 || cfg.SubnetAddress != 2 {
		t.Errorf("NetAddress/SubnetAddress = %d/%d, want 1/2", cfg.NetAddress, cfg.SubnetAddress)
	}
	if cfg.BroadcastThreshold != 5 {
		t.Errorf("BroadcastThreshold = %d, want 5", cfg.BroadcastThreshold)
	}
	if !cfg.AlwaysBroadcast {
		t.Errorf("AlwaysBroadcast = false, want true")
	}
	want := [4]int{0, 1, 0xF0, 3}
	if cfg.OutputUniverses != want {
		t.Errorf("OutputUniverses = %v, want %v", cfg.OutputUniverses, want)
	}
	wantModes := [4]string{"LTP", "HTP", "HTP", "HTP"}
	if cfg.OutputMergeModes != wantModes {
		t.Errorf("OutputMergeModes = %v, want %v", cfg.OutputMergeModes, wantModes)
	}
	if cfg.StatusAddr != ":9000" {
		t.Errorf("StatusAddr = %q, want :9000", cfg.StatusAddr)
	}
}

func TestIsDevelopmentIsProduction(t *testing.T) {
	tests := []struct {
		env      string
		wantDev  bool
		wantProd bool
	}{
		{"development", true, false},
		{"production", false, true},
		{"staging", false, false},
	}
	for _, tt := range tests {
		cfg := &Config{Env: tt.env}
		if got := cfg.IsDevelopment(); got != tt.wantDev {
			t.Errorf("Env=%q IsDevelopment() = %v, want %v", tt.env, got, tt.wantDev)
		}
		if got := cfg.IsProduction(); got != tt.wantProd {
			t.Errorf("Env=%q IsProduction() = %v, want %v", tt.env, got, tt.wantProd)
		}
	}
}
