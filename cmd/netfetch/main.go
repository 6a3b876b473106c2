// Command netfetch is a small CLI around the netfetch Fetcher: point it
// at an http(s):// or gemini://\spartan:// URL and it streams the fetch
// to stdout the way a browser's network core would feed its renderer.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	netfetch "github.com/mossbrook/go-netfetch"
	"github.com/mossbrook/go-netfetch/pkg/auth"
	"github.com/mossbrook/go-netfetch/pkg/config"
	"github.com/mossbrook/go-netfetch/pkg/cookiejar"
	"github.com/mossbrook/go-netfetch/pkg/observer"
)

var log = logrus.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:   "netfetch <url>",
		Short: "Fetch a URL over HTTP(S) or Gemini/Spartan and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Bind(v, cmd.Flags()); err != nil {
				return err
			}
			cfg := config.Load(v)
			if cfg.Verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			return run(cmd.Context(), args[0], cfg)
		},
	}

	cmd.Flags().String("proxy", "", "proxy host:port to route the request through")
	cmd.Flags().String("user-agent", "", "User-Agent spoof string (empty uses the netfetch default)")
	cmd.Flags().String("tls-profile", "modern", "TLS cipher policy profile")
	cmd.Flags().Bool("verbose", false, "log connection lifecycle events to stderr")

	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt)
	cmd.SetContext(ctx)

	return cmd
}

func run(ctx context.Context, rawURL string, cfg config.Config) error {
	f := netfetch.New()
	jar := cookiejar.NewMemJar()

	var body bytes.Buffer
	sink := observer.Func(func(attr string, value interface{}) {
		switch attr {
		case observer.NetStatus:
			log.Debugf("status: %v", value)
		case observer.Data:
			if b, ok := value.([]byte); ok {
				body.Write(b)
			}
		case observer.Error:
			log.Errorf("error: %v", value)
		case observer.MovedTo, observer.TempMovedTo, observer.SeeOther:
			log.Debugf("redirect: %s -> %v", attr, value)
		}
	})

	req := netfetch.FetchRequest{
		URL:            rawURL,
		UserAgentSpoof: cfg.UserAgentSpoof,
		TrustPrompt:    promptTrustOnce,
		AuthPrompt:     promptAuthOnce,
		Jar:            jar,
	}
	if cfg.ProxyURL != "" {
		host, port, plain := splitProxy(cfg.ProxyURL)
		req.ProxyHost, req.ProxyPort, req.ProxyPlain = host, port, plain
	}

	res, err := f.Do(ctx, req, sink)
	if err != nil {
		color.Red("fetch failed: %v", err)
		return err
	}

	color.Green("HTTP %d", res.StatusCode)
	log.Debugf("timing: %s", res.Timing)
	os.Stdout.Write(body.Bytes())
	return nil
}

// promptTrustOnce denies any certificate the standard chain didn't
// already verify; a real terminal UI would ask the user instead, and
// Store.Accept remembers a positive answer for the rest of the process.
func promptTrustOnce(host, subject string) bool {
	fmt.Fprintf(os.Stderr, "certificate for %s (%s) was not trusted by the system roots\n", host, subject)
	return false
}

func promptAuthOnce(host, realm string, proxy bool) (auth.Credentials, bool) {
	fmt.Fprintf(os.Stderr, "authentication required for %s (realm %q); run with credentials configured to continue\n", host, realm)
	return auth.Credentials{}, false
}

func splitProxy(raw string) (host string, port int, plain bool) {
	host = raw
	port = 8080
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		host = raw[:i]
		fmt.Sscanf(raw[i+1:], "%d", &port)
	}
	return host, port, false
}
