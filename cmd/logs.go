package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Unidata/tds-sub001/cli"
	"github.com/Unidata/tds-sub001/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Long: `Prints the daemon's log file for today. Lines written as JSON are
reformatted; plain text lines are printed as they are.

Examples:
  # Follow the log
  tdm logs -f

  # Last 100 lines as JSON Lines, only from the fanout component
  tdm logs -n 100 --json --component fanout
`,
		RunE: runLogsE,
	}

	cmd.Flags().BoolP("follow", "f", false, "Follow log output")
	cmd.Flags().IntP("lines", "n", 50, "Number of lines to show from the end of the log (0 for all)")
	cmd.Flags().String("component", "", "Only show lines from this component")
	cmd.Flags().String("file", "", "Log file to read (default: today's daemon log)")

	return cmd
}

func runLogsE(cmd *cobra.Command, args []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	lines, _ := cmd.Flags().GetInt("lines")
	component, _ := cmd.Flags().GetString("component")
	path, _ := cmd.Flags().GetString("file")
	jsonOutput := cli.GetOptions(cmd).JSONOutput

	if path == "" {
		if _, _, err := cli.LoadConfig(cmd); err != nil {
			cli.GetLogger(cmd, "logs").WithError(err).Debug("No configuration, using default log file")
		}
		path = logging.LoadConfig().LogFile(time.Now())
	}

	out := cmd.OutOrStdout()
	emit := func(line string) {
		if component != "" && lineComponent(line) != component {
			return
		}
		if jsonOutput {
			printLogJSON(out, line)
		} else {
			printLogText(out, line)
		}
	}

	initial, err := lastLines(path, lines)
	if err != nil && !(follow && os.IsNotExist(err)) {
		return fmt.Errorf("failed to read log file %s: %w", path, err)
	}
	for _, line := range initial {
		emit(line)
	}
	if !follow {
		return nil
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    stdlog.New(io.Discard, "", 0),
	})
	if err != nil {
		return fmt.Errorf("failed to follow log file %s: %w", path, err)
	}
	defer t.Cleanup()
	defer t.Stop()

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				continue
			}
			emit(line.Text)
		}
	}
}

// lastLines returns the last n non-empty lines of path, or all of them
// when n <= 0.
func lastLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, scanner.Err()
}

func lineComponent(line string) string {
	var logMap map[string]interface{}
	if err := json.Unmarshal([]byte(line), &logMap); err == nil {
		c, _ := logMap["component"].(string)
		return c
	}
	// Text format: "<time> [component] LEVEL msg"
	if start := strings.Index(line, "["); start >= 0 {
		if end := strings.Index(line[start:], "]"); end > 0 {
			return line[start+1 : start+end]
		}
	}
	return ""
}

// printLogJSON prints a log line as JSON, wrapping lines that are not JSON.
func printLogJSON(w io.Writer, line string) {
	var logMap map[string]interface{}
	if err := json.Unmarshal([]byte(line), &logMap); err != nil {
		logMap = map[string]interface{}{"raw_line": line}
	}
	data, _ := json.Marshal(logMap)
	fmt.Fprintln(w, string(data))
}

// printLogText pretty-prints a JSON log line for human consumption.
func printLogText(w io.Writer, line string) {
	var logMap map[string]interface{}
	if err := json.Unmarshal([]byte(line), &logMap); err != nil {
		fmt.Fprintln(w, line)
		return
	}

	ts, _ := logMap["time"].(string)
	level, _ := logMap["level"].(string)
	msg, _ := logMap["msg"].(string)
	component, _ := logMap["component"].(string)

	parsedTime, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		parsedTime, _ = time.Parse(time.RFC3339, ts)
	}

	var levelStyle lipgloss.Style
	switch strings.ToLower(level) {
	case "error", "fatal", "panic":
		levelStyle = errStyle
	case "warning", "warn":
		levelStyle = warnStyle
	case "info":
		levelStyle = okStyle
	default:
		levelStyle = mutedStyle
	}

	keys := make([]string, 0, len(logMap))
	for k := range logMap {
		switch k {
		case "time", "level", "msg", "component":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", mutedStyle.Render(k), logMap[k]))
	}

	fmt.Fprintf(w, "%s %s %s %s %s\n",
		parsedTime.Format("15:04:05"),
		mutedStyle.Render("["+component+"]"),
		levelStyle.Render(strings.ToUpper(level)),
		msg,
		strings.Join(fields, " "),
	)
}
