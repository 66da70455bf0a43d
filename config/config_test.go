package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("GHL_HOST_LOCATIONS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "3000" {
		t.Fatalf("expected default port 3000, got %q", cfg.Server.Port)
	}
	if cfg.CRM.APIVersion != "2021-07-28" {
		t.Fatalf("unexpected crm version %q", cfg.CRM.APIVersion)
	}
	if len(cfg.CRM.HostLocations) != 0 {
		t.Fatalf("expected empty host table, got %v", cfg.CRM.HostLocations)
	}
}

func TestLoadHostLocations(t *testing.T) {
	t.Setenv("GHL_HOST_LOCATIONS", " Support.Example.com = loc-1 ,bad, other.example.com=loc-2,=x")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := map[string]string{"support.example.com": "loc-1", "other.example.com": "loc-2"}
	if len(cfg.CRM.HostLocations) != len(want) {
		t.Fatalf("unexpected table %v", cfg.CRM.HostLocations)
	}
	for k, v := range want {
		if cfg.CRM.HostLocations[k] != v {
			t.Fatalf("host %s: expected %q, got %q", k, v, cfg.CRM.HostLocations[k])
		}
	}
}

func TestLoadLocationFallback(t *testing.T) {
	t.Setenv("GHL_HOST_LOCATIONS", "")
	t.Setenv("GHL_LOCATION_ID", " loc-default ")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CRM.LocationID != "loc-default" {
		t.Fatalf("expected fallback location loc-default, got %q", cfg.CRM.LocationID)
	}
}
