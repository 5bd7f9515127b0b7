package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/undergrace/mbc/pkg/broadcast"
	"github.com/undergrace/mbc/pkg/janitor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event stream server and scheduled maintenance",
	Long: `Start the WebSocket event stream (when enabled in config) and the
scheduled store maintenance, and block until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	var server *broadcast.Server
	if rt.cfg.Broadcasting.Enabled {
		server, err = broadcast.NewServer(broadcast.ServerConfig{
			Port:      rt.cfg.Broadcasting.Port,
			AuthToken: rt.cfg.Broadcasting.AuthToken,
			Logger:    rt.logger.Logger,
		})
		if err != nil {
			return err
		}
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()
	}

	j := janitor.New(rt.store, janitor.Config{
		RetainFinished: time.Duration(rt.cfg.Storage.PruneAfterDays) * 24 * time.Hour,
	}, rt.logger.Logger)
	if err := j.Start(); err != nil {
		return err
	}
	defer j.Stop()

	fmt.Println("mbc serve: running, press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println("shutting down")
	return nil
}
