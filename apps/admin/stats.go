package main

import (
	"context"
	"time"

	"github.com/fatih/color"

	"github.com/trezcool/feedback/core/stats"
)

var bandColors = map[stats.Band]*color.Color{
	stats.BandSuccess: color.New(color.FgGreen),
	stats.BandWarning: color.New(color.FgYellow),
	stats.BandDanger:  color.New(color.FgRed),
}

// printStats prints one line per form, newest first, colored by completion band.
func (cli *commandLine) printStats() error {
	dash, err := cli.reportSvc.TeacherDashboard(context.Background())
	if err != nil {
		return err
	}

	color.New(color.Bold).Fprintf(cli.out, "%d students, %d forms\n", dash.TotalStudents, len(dash.Forms))
	for _, summary := range dash.Forms {
		cs := summary.Completion
		bandColors[cs.Band()].Fprintf(
			cli.out,
			"%-40s due %s  %d/%d  %d%%\n",
			summary.Form.Title,
			summary.Form.DueDate.Format("2006-01-02"),
			cs.Completed,
			cs.Total,
			cs.Percentage(),
		)
	}
	return nil
}

func (cli *commandLine) remind(within time.Duration) error {
	sent, err := cli.formSvc.SendReminders(context.Background(), within)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(cli.out, "%d reminders sent\n", sent)
	return nil
}
