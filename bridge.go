package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/url"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zero8dotdev/godspeed-cli/api"
	"github.com/zero8dotdev/godspeed-cli/config"
	"github.com/zero8dotdev/godspeed-cli/log"
	"github.com/zero8dotdev/godspeed-cli/server"
)

// defaultWebClient is where the web editor is served from
const defaultWebClient = "http://localhost:3000"

func newBridgeCmd() *cobra.Command {
	var (
		port     int
		host     string
		root     string
		template string
		origins  []string
		noWatch  bool
	)
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Export a directory to the web editor over a websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.FromAppConfig(config.Get())

			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("root") {
				abs, err := filepath.Abs(root)
				if err != nil {
					return err
				}
				cfg.Root = abs
			}
			if flags.Changed("template") {
				cfg.TemplatePath = template
			}
			if flags.Changed("allow-origin") {
				cfg.AllowedOrigins = origins
			}
			cfg.WatchEnabled = !noWatch

			return runBridge(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (0 picks a free port); overrides PORT")
	cmd.Flags().StringVar(&host, "host", "", "interface to listen on; overrides HOST")
	cmd.Flags().StringVar(&root, "root", "", "directory to export; overrides GODSPEED_ROOT")
	cmd.Flags().StringVar(&template, "template", "", "project template for create (directory or archive)")
	cmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "web client origins allowed to connect")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not restart the dev process when sources change")
	return cmd
}

// runBridge serves the bridge until ctx is cancelled or a signal arrives
func runBridge(ctx context.Context, out io.Writer, cfg *server.Config) error {
	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	api.SetupRoutes(srv.Router(), api.NewHandlers(srv))

	if err := srv.Listen(); err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	_, port, _ := net.SplitHostPort(srv.Addr())
	serverURL := "http://localhost:" + port
	fmt.Fprintln(out, "your files are exported successfully, check godspeed-web")
	fmt.Fprintf(out, "Connect URL: %s\n", connectURL(webClient(cfg.AllowedOrigins), serverURL))
	if cfg.Host != "localhost" && cfg.Host != "127.0.0.1" {
		printNetworkAddresses(port)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// connectURL is the web client URL that opens a session against serverURL
func connectURL(webClient, serverURL string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(serverURL))
	return strings.TrimSuffix(webClient, "/") + "/?serverUrl=" + url.QueryEscape(encoded)
}

// webClient picks the web client from the allowed origins
func webClient(origins []string) string {
	for _, origin := range origins {
		if origin != "*" {
			return origin
		}
	}
	return defaultWebClient
}

func printNetworkAddresses(port string) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					log.Info().Str("url", fmt.Sprintf("http://%s:%s", ip4.String(), port)).Msg("network")
				}
			}
		}
	}
}
