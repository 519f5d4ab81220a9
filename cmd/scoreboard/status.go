package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/swim.report/internal/api"
	"github.com/banshee-data/swim.report/internal/httputil"
	"github.com/banshee-data/swim.report/internal/race"
	"github.com/banshee-data/swim.report/internal/serialmux"
)

func newStatusCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the race state of a running scoreboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: timeout}
			return printStatus(cmd, client, strings.TrimRight(url, "/"))
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080", "base URL of the scoreboard")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "HTTP timeout")
	return cmd
}

func printStatus(cmd *cobra.Command, client httputil.HTTPClient, base string) error {
	var state api.StateResponse
	if err := httputil.GetJSON(cmd.Context(), client, base+"/api/state", &state); err != nil {
		return err
	}
	var summary race.HeatSummary
	if err := httputil.GetJSON(cmd.Context(), client, base+"/api/summary", &summary); err != nil {
		return err
	}
	writeStatus(cmd.OutOrStdout(), state, summary)
	return nil
}

func writeStatus(out io.Writer, resp api.StateResponse, summary race.HeatSummary) {
	s := resp.State
	fmt.Fprintf(out, "Event %s  Heat %s  %s\n", orDash(s.EventNumber), orDash(s.HeatNumber), s.EventTitle)
	if s.EventSubtitle != "" {
		fmt.Fprintln(out, s.EventSubtitle)
	}
	fmt.Fprintf(out, "Clock %s  (update %d)\n\n", orDash(s.RunningTime), resp.Seq)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LANE\tNAME\tTEAM\tPLACE\tTIME")
	for _, lane := range s.Lanes {
		t := "-"
		if lane.Time != nil {
			t = *lane.Time
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", lane.Number, lane.Name, lane.Team, lane.Place, t)
	}
	tw.Flush()

	if summary.Recorded > 0 {
		fmt.Fprintf(out, "\n%d recorded, fastest lane %d in %s, mean %.2fs\n",
			summary.Recorded, summary.FastestLane, summary.FastestTime, summary.MeanSeconds)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serialmux.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
