package config

import "testing"

func TestBindAddrLoopbackOutsideProduction(t *testing.T) {
	c := &Config{NodeEnv: "development", Port: "8000"}
	if got := c.BindAddr(); got != "127.0.0.1:8000" {
		t.Fatalf("BindAddr()=%q, expected loopback outside production", got)
	}
}

func TestBindAddrAllInterfacesInProduction(t *testing.T) {
	c := &Config{NodeEnv: "production", Port: "8000"}
	if got := c.BindAddr(); got != "0.0.0.0:8000" {
		t.Fatalf("BindAddr()=%q, expected 0.0.0.0 in production", got)
	}
}

func TestGetEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("MARKETDAY_TEST_UNSET_VAR", "")
	if got := getEnv("MARKETDAY_TEST_UNSET_VAR", "fallback"); got != "fallback" {
		t.Fatalf("getEnv=%q, expected fallback", got)
	}
}

func TestGetEnvPrefersSetValue(t *testing.T) {
	t.Setenv("MARKETDAY_TEST_SET_VAR", "configured")
	if got := getEnv("MARKETDAY_TEST_SET_VAR", "fallback"); got != "configured" {
		t.Fatalf("getEnv=%q, expected the configured value", got)
	}
}

func TestGetEnvIntIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("MARKETDAY_TEST_INT_VAR", "not-a-number")
	if got := getEnvInt("MARKETDAY_TEST_INT_VAR", 7); got != 7 {
		t.Fatalf("getEnvInt=%d, expected fallback 7 for an unparsable value", got)
	}
}

func TestGetEnvIntParsesValidValues(t *testing.T) {
	t.Setenv("MARKETDAY_TEST_INT_VAR", "42")
	if got := getEnvInt("MARKETDAY_TEST_INT_VAR", 7); got != 42 {
		t.Fatalf("getEnvInt=%d, expected 42", got)
	}
}
