package main

import (
	"time"

	"github.com/BurntSushi/toml"
)

type config struct {
	Title        string
	Providers    map[string]provider
	DomainGroups map[string][]string `toml:"domain_groups"`
	Options      options
	Syslog       *syslogConfig
	Admin        *adminConfig
}

type provider struct {
	Addr         string
	Hostname     string
	DomainGroups []string `toml:"domain_groups"`
	Method       string
	Transport    string
	CA           string `toml:"ca"`
	ClientKey    string `toml:"client-key"`
	ClientCrt    string `toml:"client-crt"`
}

type options struct {
	QueryTimeout  duration `toml:"query-timeout"`
	BranchTimeout duration `toml:"branch-timeout"`
}

type syslogConfig struct {
	Network     string
	Address     string
	Priority    int
	Tag         string
	LogRequest  bool `toml:"log-request"`
	LogResponse bool `toml:"log-response"`
}

type adminConfig struct {
	Addr      string
	ServerCrt string `toml:"server-crt"`
	ServerKey string `toml:"server-key"`
	CA        string `toml:"ca"`
	MutualTLS bool   `toml:"mutual-tls"`
}

// duration wraps time.Duration so timeouts can be given as strings like "2s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// loadConfig reads a config file and returns the decoded structure along
// with the provider and domain group names in the order they appear in the
// file. TOML decodes tables into maps, but declaration order is significant
// for routing, so it is recovered from the decoder metadata.
func loadConfig(name string) (config, []string, []string, error) {
	var c config
	md, err := toml.DecodeFile(name, &c)
	if err != nil {
		return c, nil, nil, err
	}
	var providers, groups []string
	for _, key := range md.Keys() {
		if len(key) != 2 {
			continue
		}
		switch key[0] {
		case "providers":
			providers = append(providers, key[1])
		case "domain_groups":
			groups = append(groups, key[1])
		}
	}
	return c, providers, groups, nil
}
