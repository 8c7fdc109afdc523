package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/scrapedash/am"
	"github.com/teranos/scrapedash/dashboard"
	"github.com/teranos/scrapedash/errors"
	"github.com/teranos/scrapedash/job"
	"github.com/teranos/scrapedash/logger"
)

const watchHelp = `Commands:
  page N                  show page N (1-based)
  submit URL... [@TIME]   submit one batch, optionally scheduled at an RFC 3339 time
  cancel ID               cancel a job by id or unique id prefix
  refresh                 reload the job list from the backend
  resize N                show N jobs per page and save it to the config file
  help                    show this help
  quit                    leave the dashboard`

// WatchCmd runs the interactive dashboard
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive dashboard with live updates",
	Long: `Load the job list, follow the backend's push channel and accept commands
on stdin. Type 'help' for the command list.

The page size follows the config file: edits to it are applied live.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := LoadConfig()
	if err != nil {
		return err
	}
	verbosity, _ := cmd.Flags().GetCount("verbose")

	client, err := newClient(c, verbosity)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	view := NewTerminalView(out, verbosity)
	session := dashboard.New(dashboard.Options{
		Backend:    client,
		Subscriber: newDialer(c, client),
		Renderer:   view,
		Notifier:   view,
		PageSize:   c.Dashboard.PageSize,
		Quota:      c.Dashboard.ActiveQuota,
		Logger:     logger.ComponentLogger("dashboard"),
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	configFile := activeConfigFile()
	if configFile != "" {
		stopWatcher := watchConfig(ctx, configFile, session)
		defer stopWatcher()
	}

	if logger.ShouldOutput(verbosity, logger.OutputProgress) {
		pterm.Info.Printf("Connecting to %s\n", client.BaseURL())
	}
	fmt.Fprintln(out, pterm.Gray("Type 'help' for commands."))

	lines := readLines(cmd.InOrStdin())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return shutdown(session, done)
			}
			quit, err := execute(ctx, session, configFile, line, out)
			if err != nil {
				fmt.Fprintln(out, FormatError(err))
			}
			if quit {
				return shutdown(session, done)
			}
		case <-sigChan:
			pterm.Info.Println("\nShutting down...")
			return shutdown(session, done)
		case err := <-done:
			return err
		}
	}
}

func shutdown(session *dashboard.Session, done <-chan error) error {
	session.Stop()
	return <-done
}

// watchConfig resizes the session whenever the config file changes on disk.
func watchConfig(ctx context.Context, path string, session *dashboard.Session) func() {
	watcher, err := am.NewConfigWatcher(path, loadConfig)
	if err != nil {
		logger.Warnw("Config hot reload disabled", logger.FieldPath, path, logger.FieldError, err)
		return func() {}
	}

	watcher.OnReload(func(c *am.Config) error {
		return session.Resize(ctx, c.Dashboard.PageSize)
	})
	watcher.Start()
	am.SetGlobalWatcher(watcher)

	return func() {
		am.SetGlobalWatcher(nil)
		if err := watcher.Stop(); err != nil {
			logger.Debugw("Config watcher stop failed", logger.FieldError, err)
		}
	}
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// execute runs one command line against session. Failures the session
// already reported through its notifier are not returned again.
func execute(ctx context.Context, session *dashboard.Session, configFile, line string, out io.Writer) (bool, error) {
	c, err := parseCommand(line)
	if err != nil {
		return false, err
	}

	switch c.name {
	case "":
		return false, nil
	case "help":
		fmt.Fprintln(out, watchHelp)
	case "quit":
		return true, nil
	case "page":
		err = session.SelectPage(ctx, c.page)
		if errors.Is(err, errors.ErrPageOutOfRange) {
			if view, verr := session.View(ctx); verr == nil {
				err = errors.WithHintf(err, "there are %d page(s)", len(view.Pages))
			}
		}
	case "submit":
		_, err = session.Submit(ctx, c.urls, c.at)
		err = unlessNotified(err)
	case "cancel":
		var records []job.Record
		if records, err = session.Records(ctx); err != nil {
			break
		}
		var id string
		if id, err = resolveID(records, c.id); err != nil {
			break
		}
		err = unlessNotified(session.Cancel(ctx, id))
	case "refresh":
		err = unlessNotified(session.Refresh(ctx))
	case "resize":
		if configFile != "" {
			if _, serr := am.UpdatePageSize(configFile, c.size); serr != nil {
				logger.Warnw("Page size not saved", logger.FieldPath, configFile, logger.FieldError, serr)
			}
		}
		err = session.Resize(ctx, c.size)
	}

	if errors.Is(err, errors.ErrSessionStopped) {
		return true, err
	}
	return false, err
}

func unlessNotified(err error) error {
	if err == nil || errors.Is(err, errors.ErrSessionStopped) {
		return err
	}
	logger.Debugw("Command failed", logger.FieldError, err)
	return nil
}

type command struct {
	name string
	page int // 0-based
	size int
	urls []string
	at   time.Time
	id   string
}

// parseCommand parses one REPL line. An empty line yields an empty name.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, nil
	}

	c := command{name: strings.ToLower(fields[0])}
	args := fields[1:]

	switch c.name {
	case "help", "quit", "refresh":
		if len(args) != 0 {
			return command{}, errors.Newf("%s takes no arguments", c.name)
		}
	case "exit", "q":
		c.name = "quit"
	case "page", "resize":
		if len(args) != 1 {
			return command{}, errors.WithHint(errors.Newf("%s needs one number", c.name), "e.g. "+c.name+" 2")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return command{}, errors.Newf("%s: %q is not a positive number", c.name, args[0])
		}
		if c.name == "page" {
			c.page = n - 1
		} else {
			c.size = n
		}
	case "submit":
		c.at = time.Now()
		if len(args) > 0 && strings.HasPrefix(args[len(args)-1], "@") {
			raw := strings.TrimPrefix(args[len(args)-1], "@")
			at, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return command{}, errors.WithHint(errors.Newf("submit: invalid time %q", raw), "use RFC 3339, e.g. @2026-10-17T18:00:00Z")
			}
			c.at = at
			args = args[:len(args)-1]
		}
		if len(args) == 0 {
			return command{}, errors.WithHint(errors.New("submit needs at least one URL"), "e.g. submit https://go.dev")
		}
		c.urls = args
	case "cancel":
		if len(args) != 1 {
			return command{}, errors.WithHint(errors.New("cancel needs one job id"), "ids are shown in the first column")
		}
		c.id = args[0]
	default:
		return command{}, errors.WithHint(errors.Newf("unknown command %q", c.name), "type 'help' for the command list")
	}
	return c, nil
}

// resolveID maps an id or a unique id prefix onto a known job id.
func resolveID(records []job.Record, prefix string) (string, error) {
	var matches []string
	for _, rec := range records {
		if rec.ID == prefix {
			return rec.ID, nil
		}
		if strings.HasPrefix(rec.ID, prefix) {
			matches = append(matches, rec.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", errors.Wrapf(errors.ErrUnknownJob, "no job matches %q", prefix)
	case 1:
		return matches[0], nil
	}
	return "", errors.WithHintf(errors.Newf("job id %q is ambiguous", prefix), "%d jobs match; type more characters", len(matches))
}
