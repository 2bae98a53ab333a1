package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/harun/medibook/internal/daemon"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show the current status of the medibook daemon.
When the daemon is running its /health endpoint is queried for the
registered channels and the number of active sessions.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	pidFile := getPIDFilePath()

	if !isRunning(pidFile) {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Status: running\n")
	fmt.Fprintf(out, "PID: %d\n", pid)

	// PID file modification time approximates the start time
	if fileInfo, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(fileInfo.ModTime())))
	}

	if cfg, err := loadConfig(); err == nil {
		printHealth(out, healthURL(cfg.Webhook.Host, cfg.Webhook.Port))
	}
	return nil
}

func healthURL(host string, port int) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d/health", host, port)
}

// printHealth reports channels and sessions from the daemon's health
// endpoint. An unreachable endpoint is reported, not returned.
func printHealth(out io.Writer, url string) {
	resp, err := resty.New().SetTimeout(3 * time.Second).R().Get(url)
	if err != nil {
		fmt.Fprintf(out, "Health: unreachable (%v)\n", err)
		return
	}

	body := gjson.ParseBytes(resp.Body())
	fmt.Fprintf(out, "Health: %s\n", body.Get("status").String())

	var names []string
	for _, ch := range body.Get("channels").Array() {
		names = append(names, ch.String())
	}
	fmt.Fprintf(out, "Channels: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(out, "Sessions: %d\n", body.Get("sessions").Int())
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
