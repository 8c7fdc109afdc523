package commands

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/internal/fakebackend"
	"github.com/teranos/scrapedash/logger"
)

const mockShutdownTimeout = 5 * time.Second

// MockBackendCmd serves an in-memory scraping backend
var MockBackendCmd = &cobra.Command{
	Use:   "mock-backend",
	Short: "Run an in-memory backend for local use",
	Long: `Serve the scraping backend's HTTP and push endpoints from memory.

Jobs walk through every lifecycle stage, one stage per mock.step_millis.
Hosts ending in .invalid fail to download. Nothing is fetched from the network.

Examples:
  scrapedash mock-backend
  scrapedash mock-backend --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := LoadConfig()
		if err != nil {
			return err
		}
		addr := c.Mock.Addr
		if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
			addr = flagAddr
		}

		fake := fakebackend.New(fakebackend.Options{
			Step:   c.MockStep(),
			Quota:  c.Dashboard.ActiveQuota,
			Logger: logger.ComponentLogger("mock"),
		})
		defer fake.Close()

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.WithHint(errors.Wrapf(err, "failed to listen on %s", addr), "pass --addr or set mock.addr")
		}

		srv := &http.Server{
			Handler:           fake.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errChan := make(chan error, 1)
		go func() {
			errChan <- srv.Serve(listener)
		}()

		pterm.Success.Printf("Mock backend listening on http://%s/\n", listener.Addr())
		pterm.Info.Printf("Point the dashboard at it with SCRAPEDASH_BACKEND_URL=http://%s/\n", listener.Addr())

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case err := <-errChan:
			return errors.Wrap(err, "mock backend stopped")
		case <-sigChan:
			pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")
		}

		// push connections are hijacked, so close them before Shutdown waits
		fake.Close()

		shutdownDone := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), mockShutdownTimeout)
			defer cancel()
			shutdownDone <- srv.Shutdown(ctx)
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Mock backend stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	},
}

func init() {
	MockBackendCmd.Flags().String("addr", "", "Listen address (default: mock.addr)")
}
