package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bryanchriswhite/ScreenShotSender/internal/overlay"
	"github.com/bryanchriswhite/ScreenShotSender/internal/window"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List windows that can be captured",
	Long: `List the top-level windows of the X display together with whether the
overlay would treat each one as the main application window.

The first window marked as main is the one captured when no target is
registered.`,
	Example: `  # List windows in table format (default)
  screenshotsender windows

  # List windows in JSON format
  screenshotsender windows --format json

  # Include windows that are not mapped
  screenshotsender windows --all`,
	RunE: runWindows,
}

var (
	windowsFormat string
	windowsAll    bool
)

func init() {
	rootCmd.AddCommand(windowsCmd)

	windowsCmd.Flags().StringVarP(&windowsFormat, "format", "f", "table", "output format (table or json)")
	windowsCmd.Flags().BoolVarP(&windowsAll, "all", "a", false, "include hidden windows")
}

type windowInfo struct {
	ID      string `json:"id"`
	Class   string `json:"class"`
	Title   string `json:"title"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Visible bool   `json:"visible"`
	Main    bool   `json:"main"`
}

func runWindows(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	d, err := window.Open(displayName)
	if err != nil {
		return err
	}
	defer d.Close()

	candidates, err := d.Candidates()
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}

	windows := make([]windowInfo, 0, len(candidates))
	for _, c := range candidates {
		if !c.Visible && !windowsAll {
			continue
		}
		windows = append(windows, windowInfo{
			ID:      fmt.Sprintf("0x%x", c.ID),
			Class:   c.Owner,
			Title:   c.Title,
			Width:   c.Width,
			Height:  c.Height,
			Visible: c.Visible,
			Main:    c.Visible && overlay.LooksLikeMainSurface(c),
		})
	}

	switch windowsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(windows)
	case "table":
		printWindowsTable(windows)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", windowsFormat)
	}
}

func printWindowsTable(windows []windowInfo) {
	if len(windows) == 0 {
		fmt.Println("No windows found")
		return
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleColoredBright)
	t.AppendHeader(table.Row{"ID", "Class", "Title", "Size", "Visible", "Main"})
	for _, w := range windows {
		t.AppendRow(table.Row{
			w.ID,
			w.Class,
			w.Title,
			fmt.Sprintf("%dx%d", w.Width, w.Height),
			yesNo(w.Visible),
			yesNo(w.Main),
		})
	}
	fmt.Println(t.Render())
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
