package main

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/clipcast/api/internal/model"
)

func renderStatus(s model.StatusResponse) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Field", "Value"})

	tw.AppendRow(table.Row{"Job", s.JobID})
	tw.AppendRow(table.Row{"Status", string(s.Status)})
	if s.UserID != "" {
		tw.AppendRow(table.Row{"User", s.UserID})
	}
	if s.CreatedAt > 0 {
		tw.AppendRow(table.Row{"Created", formatMillis(s.CreatedAt)})
	}
	if s.FinishedAt > 0 {
		tw.AppendRow(table.Row{"Finished", formatMillis(s.FinishedAt)})
	}
	if s.ResultURL != "" {
		tw.AppendRow(table.Row{"Result", s.ResultURL})
	}
	if s.Error != "" {
		tw.AppendRow(table.Row{"Error", s.Error})
	}

	return tw.Render()
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format(time.RFC3339)
}
