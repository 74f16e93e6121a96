package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	doc := `
title = "test"

[options]
query-timeout = "2s"
branch-timeout = "750ms"

[domain_groups]
internal = ["corp.example.com", "10.in-addr.arpa"]
default = []

[providers.corp]
addr = "10.0.0.53:443"
hostname = "dns.corp.example.com"
domain_groups = ["internal"]

[providers.cloudflare]
addr = "1.1.1.1:443"
hostname = "cloudflare-dns.com"
domain_groups = ["default"]
method = "GET"

[providers.quad9]
addr = "9.9.9.9:443"
hostname = "dns.quad9.net"
domain_groups = ["default"]
transport = "quic"
`
	name := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(name, []byte(doc), 0644))

	c, providers, groups, err := loadConfig(name)
	require.NoError(t, err)

	// Declaration order must be preserved, maps alone don't carry it
	require.Equal(t, []string{"internal", "default"}, groups)
	require.Equal(t, []string{"corp", "cloudflare", "quad9"}, providers)

	require.Equal(t, 2*time.Second, c.Options.QueryTimeout.Duration)
	require.Equal(t, 750*time.Millisecond, c.Options.BranchTimeout.Duration)

	p, ok := c.Providers["cloudflare"]
	require.True(t, ok)
	require.Equal(t, "1.1.1.1:443", p.Addr)
	require.Equal(t, "cloudflare-dns.com", p.Hostname)
	require.Equal(t, "GET", p.Method)
	require.Equal(t, []string{"default"}, p.DomainGroups)

	require.Equal(t, "quic", c.Providers["quad9"].Transport)
	require.Empty(t, c.DomainGroups["default"])
	require.Len(t, c.DomainGroups["internal"], 2)
	require.Nil(t, c.Syslog)
	require.Nil(t, c.Admin)
}

func TestLoadConfigBadDuration(t *testing.T) {
	doc := `
[options]
query-timeout = "not-a-duration"
`
	name := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(name, []byte(doc), 0644))

	_, _, _, err := loadConfig(name)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, _, _, err := loadConfig("does-not-exist.toml")
	require.Error(t, err)
}
