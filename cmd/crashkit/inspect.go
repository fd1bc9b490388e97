// inspect.go lists stored payloads without decoding them.

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/strongdm/ai-crashkit/pkg/crashkit/config"
	"github.com/strongdm/ai-crashkit/pkg/crashkit/store"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// storedFile is one row of the inspect table.
type storedFile struct {
	kind        string
	name        string
	timestamp   time.Time
	apiKey      string
	uuid        string
	launchCrash bool
	size        int64
	parseErr    error
}

func newInspectCmd(root *rootOptions) *cobra.Command {
	var dir, format string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List stored events and sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := config.Load(root.configPath)
				if err != nil {
					return err
				}
				dir = cfg.Persistence.Directory
			}
			if dir == "" {
				return errors.New("no persistence directory: pass --dir or set persistence.directory")
			}

			files, err := listStored(dir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				cmd.Println("no stored payloads")
				return nil
			}

			switch resolveFormat(format, cmd.OutOrStdout()) {
			case "table":
				cmd.Println(renderTable(files))
			case "plain":
				cmd.Print(renderPlain(files))
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "persistence directory (defaults to the config's persistence.directory)")
	cmd.Flags().StringVar(&format, "format", "auto", "table, plain, or auto (table on a terminal)")
	return cmd
}

// listStored reads dir/events and dir/sessions. Missing subdirectories are empty.
func listStored(dir string) ([]storedFile, error) {
	var files []storedFile
	for _, kind := range []string{"events", "sessions"} {
		entries, err := os.ReadDir(filepath.Join(dir, kind))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", kind, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			f := describe(kind, entry.Name())
			if info, err := entry.Info(); err == nil {
				f.size = info.Size()
			}
			files = append(files, f)
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].kind != files[j].kind {
			return files[i].kind < files[j].kind
		}
		return files[i].timestamp.Before(files[j].timestamp)
	})
	return files, nil
}

func describe(kind, name string) storedFile {
	f := storedFile{kind: kind, name: name}
	if kind == "events" {
		parsed, err := store.ParseEventFilename(name)
		f.parseErr = err
		f.timestamp, f.apiKey, f.uuid, f.launchCrash = parsed.Timestamp, parsed.APIKey, parsed.UUID, parsed.LaunchCrash
		return f
	}
	parsed, err := store.ParseSessionFilename(name)
	f.parseErr = err
	f.timestamp, f.uuid = parsed.Timestamp, parsed.UUID
	return f
}

// resolveFormat maps "auto" to table output on a terminal and plain otherwise.
func resolveFormat(format string, out io.Writer) string {
	if format != "auto" {
		return format
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(f.Fd()) {
		return "table"
	}
	return "plain"
}

func renderPlain(files []storedFile) string {
	var b strings.Builder
	b.WriteString(strings.Join(columns, "\t") + "\n")
	for _, row := range tableRows(files) {
		b.WriteString(strings.Join(row, "\t") + "\n")
	}
	return b.String()
}

var columns = []string{"KIND", "CAPTURED", "API KEY", "UUID", "LAUNCH CRASH", "BYTES"}

func renderTable(files []storedFile) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(columns...).
		Rows(tableRows(files)...)
	return t.Render()
}

func tableRows(files []storedFile) [][]string {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		if f.parseErr != nil {
			rows = append(rows, []string{f.kind, "-", "-", f.name, "unparseable", fmt.Sprintf("%d", f.size)})
			continue
		}
		launch := "no"
		if f.launchCrash {
			launch = "yes"
		}
		if f.kind == "sessions" {
			launch = "-"
		}
		apiKey := f.apiKey
		if apiKey == "" {
			apiKey = "-"
		}
		rows = append(rows, []string{
			f.kind,
			f.timestamp.UTC().Format(time.RFC3339),
			apiKey,
			f.uuid,
			launch,
			fmt.Sprintf("%d", f.size),
		})
	}
	return rows
}
