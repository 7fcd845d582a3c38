package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"brightd/internal/daemon"
	"brightd/internal/native"
	"brightd/internal/session"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List displays and their brightness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(cmd.Context(), cmd.ErrOrStderr(), func(d *daemon.Daemon) error {
				monitors := d.Snapshot()
				if asJSON {
					return writeJSON(cmd, monitors)
				}
				out := cmd.OutOrStdout()
				if len(monitors) == 0 {
					fmt.Fprintln(out, "No displays found")
					return nil
				}
				fmt.Fprintln(out, renderMonitorTable(out, monitors))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderMonitorTable(out io.Writer, monitors []daemon.MonitorStatus) string {
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(monitors))
	for _, m := range monitors {
		description := m.Description
		if description == "" {
			description = "-"
		}
		rows = append(rows, []string{
			m.ID,
			m.Connector,
			description,
			percentCell(m.Brightness),
			percentCell(m.Contrast),
			yesNo(m.Target),
			statusLabel(m.Reason, colorize),
		})
	}
	headers := []string{"ID", "Connector", "Description", "Brightness", "Contrast", "Target", "Status"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}
	return renderTable(out, headers, rows, aligns)
}

func percentCell(v int) string {
	if v < 0 {
		return "-"
	}
	return strconv.Itoa(v) + "%"
}

func newSetCommand(ctx *commandContext) *cobra.Command {
	var contrast bool
	var at string

	cmd := &cobra.Command{
		Use:   "set [id] <percent>",
		Short: "Set a display's brightness (or contrast) from 0 to 100",
		Long: "Set a display's brightness (or contrast) from 0 to 100.\n\n" +
			"Without an id the display marked selected in the config is used; " +
			"--at picks the display under a desktop point instead.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := args[len(args)-1]
			percent, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
			if err != nil {
				return fmt.Errorf("invalid percent %q", raw)
			}
			var id string
			if len(args) == 2 {
				id = strings.TrimSpace(args[0])
			}
			var point *session.Point
			if at != "" {
				if id != "" {
					return errors.New("--at and an explicit id are mutually exclusive")
				}
				if contrast {
					return errors.New("--at only applies to brightness")
				}
				p, err := parsePoint(at)
				if err != nil {
					return err
				}
				point = &p
			}
			property := "brightness"
			if contrast {
				property = "contrast"
			}
			return ctx.withDaemon(cmd.Context(), cmd.ErrOrStderr(), func(d *daemon.Daemon) error {
				var result native.AccessResult
				var err error
				switch {
				case point != nil:
					id, result, err = d.SetBrightnessAt(cmd.Context(), *point, percent)
					if err == nil && result.Status == native.NoLongerExist && id == "" {
						return fmt.Errorf("no display at %s", at)
					}
				default:
					if id == "" {
						selected, ok := d.Selected()
						if !ok {
							return errors.New("no id given and no display is selected; pass an id or set selected = true under [monitors] in the config")
						}
						id = selected
					}
					if contrast {
						result, err = d.SetContrast(cmd.Context(), id, percent)
					} else {
						result, err = d.SetBrightness(cmd.Context(), id, percent)
					}
				}
				if errors.Is(err, daemon.ErrUnknownMonitor) {
					return fmt.Errorf("no display with id %q; run `brightd list` to see ids", id)
				}
				if err != nil {
					return err
				}
				if !result.OK() {
					return fmt.Errorf("set %s on %s: %s: %s", property, id, result.Status, result.Message)
				}
				value := min(max(percent, 0), 100)
				if status, ok := d.Status(id); ok {
					value = status.Brightness
					if contrast {
						value = status.Contrast
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s of %s to %d%%\n", property, id, value)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&contrast, "contrast", false, "Set contrast instead of brightness")
	cmd.Flags().StringVar(&at, "at", "", "Pick the display under desktop point X,Y")
	return cmd
}

func parsePoint(value string) (session.Point, error) {
	xs, ys, ok := strings.Cut(value, ",")
	if !ok {
		return session.Point{}, fmt.Errorf("invalid point %q; want X,Y", value)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(xs))
	y, errY := strconv.Atoi(strings.TrimSpace(ys))
	if errX != nil || errY != nil {
		return session.Point{}, fmt.Errorf("invalid point %q; want X,Y", value)
	}
	return session.Point{X: x, Y: y}, nil
}

func newFailuresCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Show recent display access failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return errors.New("failure journal is disabled (journal.enabled = false)")
			}
			d, err := daemon.New(cfg, nil)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			failures, err := d.Failures(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, failures)
			}
			out := cmd.OutOrStdout()
			if len(failures) == 0 {
				fmt.Fprintln(out, "No access failures recorded")
				return nil
			}
			rows := make([][]string, 0, len(failures))
			for _, f := range failures {
				rows = append(rows, []string{
					f.OccurredAt.Local().Format("2006-01-02 15:04:05"),
					f.DeviceID,
					f.Status,
					f.Message,
				})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Time", "Device", "Status", "Message"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of failures to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
