package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/showtime-sync/internal/handler"
	"github.com/iliyamo/showtime-sync/internal/rule"
	"github.com/iliyamo/showtime-sync/internal/schedule"
)

func newParseCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "parse RULE",
		Short: "Compile a rule and print its weekdays, times and diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := rule.Parse(args[0])
			out := handler.NewRuleResponse(args[0], res)
			if start != "" || end != "" {
				iv, err := schedule.ParseInterval(start, end)
				if err != nil {
					return err
				}
				n := schedule.Count(res.Rule, iv)
				out.Count = &n
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first date (YYYY-MM-DD) for counting slots")
	cmd.Flags().StringVar(&end, "end", "", "last date (YYYY-MM-DD) for counting slots")
	return cmd
}

func newPreviewCmd() *cobra.Command {
	var (
		raw, start, end, pid string
		seats                int
		summary              bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Materialize a rule over a date range without touching storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if seats < 1 {
				return fmt.Errorf("--seats must be positive, got %d", seats)
			}
			iv, err := schedule.ParseInterval(start, end)
			if err != nil {
				return err
			}
			if !iv.Valid() {
				return fmt.Errorf("start date %s is after end date %s", start, end)
			}
			res := rule.Parse(raw)
			for _, d := range res.Diagnostics {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", d.Error())
			}
			slots := schedule.Materialize(res.Rule, iv, schedule.Params{PerformanceID: pid, TotalSeats: seats})
			if summary {
				return writeJSON(cmd.OutOrStdout(), schedule.Summarize(slots))
			}
			w := cmd.OutOrStdout()
			for _, s := range slots {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ScheduleID, s.DayOfWeek, s.Date, s.Time)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&raw, "rule", "", "recurrence rule, e.g. \"Tue~Fri 19:30 / Sat, Sun 14:00, 19:00\"")
	cmd.Flags().StringVar(&start, "start", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last date (YYYY-MM-DD), inclusive")
	cmd.Flags().StringVar(&pid, "performance", "preview", "performance id used in slot keys")
	cmd.Flags().IntVar(&seats, "seats", 1240, "seats per slot")
	cmd.Flags().BoolVar(&summary, "summary", false, "print the per-day summary as JSON instead of slot lines")
	_ = cmd.MarkFlagRequired("rule")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
