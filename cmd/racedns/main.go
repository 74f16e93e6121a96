package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/racedns/racedns"
)

var version = "dev"

func main() {
	var (
		port       int
		logFile    string
		configFile string
	)
	cmd := &cobra.Command{
		Use:   "racedns",
		Short: "Racing DNS-over-HTTPS proxy",
		Long: `Racing DNS-over-HTTPS proxy.

It listens for incoming DNS requests over UDP and TCP and forwards
each of them to multiple upstream DoH providers concurrently,
answering with the first acceptable response. Domain groups route
queries for certain names to different provider subsets, for example
internal domains to a private resolver while everything else is
raced across public ones.
`,
		Example:      `  racedns -c race-dns-proxy.toml -p 5653`,
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return start(port, logFile, configFile)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 5653, "client-facing listening port")
	cmd.Flags().StringVar(&logFile, "log", "", "log output file")
	cmd.Flags().StringVarP(&configFile, "config", "c", "race-dns-proxy.toml", "configuration file path")
	cmd.Flags().BoolP("version", "V", false, "version for racedns")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func start(port int, logFile, configFile string) error {
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Wrap(err, "failed to open log file")
		}
		defer f.Close()
		racedns.Log.SetOutput(f)
	}

	c, providerOrder, groupOrder, err := loadConfig(configFile)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	providers := make([]*racedns.Provider, 0, len(providerOrder))
	for _, name := range providerOrder {
		p := c.Providers[name]
		providers = append(providers, &racedns.Provider{
			Name:          name,
			Addr:          p.Addr,
			Hostname:      p.Hostname,
			DomainGroups:  p.DomainGroups,
			Method:        p.Method,
			Transport:     p.Transport,
			CAFile:        p.CA,
			ClientKeyFile: p.ClientKey,
			ClientCrtFile: p.ClientCrt,
		})
	}
	groups := make([]*racedns.DomainGroup, 0, len(groupOrder))
	for _, name := range groupOrder {
		groups = append(groups, &racedns.DomainGroup{
			Name:     name,
			Patterns: c.DomainGroups[name],
		})
	}

	registry, err := racedns.NewRegistry(providers, groups)
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	router := racedns.NewRouter(registry)
	pool, err := racedns.NewPool(registry)
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	upstreams := make(map[string]racedns.Resolver)
	for _, p := range registry.Providers() {
		upstreams[p.Name] = racedns.NewUpstream(p, pool)
	}
	race, err := racedns.NewRace("race", router, upstreams, racedns.RaceOptions{
		QueryTimeout:  c.Options.QueryTimeout.Duration,
		BranchTimeout: c.Options.BranchTimeout.Duration,
	})
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	var resolver racedns.Resolver = race
	if c.Syslog != nil {
		resolver = racedns.NewSyslog("syslog", resolver, racedns.SyslogOptions{
			Network:     c.Syslog.Network,
			Address:     c.Syslog.Address,
			Priority:    c.Syslog.Priority,
			Tag:         c.Syslog.Tag,
			LogRequest:  c.Syslog.LogRequest,
			LogResponse: c.Syslog.LogResponse,
		})
	}

	// The same port serves both datagram and stream clients.
	addr := fmt.Sprintf(":%d", port)
	listeners := []racedns.Listener{
		racedns.NewDNSListener("udp", addr, "udp", racedns.ListenOptions{}, resolver),
		racedns.NewDNSListener("tcp", addr, "tcp", racedns.ListenOptions{}, resolver),
	}
	if c.Admin != nil {
		opt := racedns.AdminListenerOptions{}
		if c.Admin.ServerCrt != "" {
			tlsConfig, err := racedns.TLSServerConfig(c.Admin.CA, c.Admin.ServerCrt, c.Admin.ServerKey, c.Admin.MutualTLS)
			if err != nil {
				return errors.Wrap(err, "invalid admin TLS configuration")
			}
			opt.TLSConfig = tlsConfig
		}
		listeners = append(listeners, racedns.NewAdminListener("admin", c.Admin.Addr, opt))
	}

	racedns.Log.WithField("version", version).Info("starting racedns")

	errCh := make(chan error, len(listeners))
	for _, l := range listeners {
		go func(l racedns.Listener) {
			errCh <- l.Start()
		}(l)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		// A listener that can't start (e.g. port already bound) takes the
		// whole process down.
		return err
	case sig := <-sigCh:
		racedns.Log.WithField("signal", sig.String()).Info("shutting down")
		for _, l := range listeners {
			if s, ok := l.(interface{ Stop() error }); ok {
				_ = s.Stop()
			}
		}
	}
	return nil
}
