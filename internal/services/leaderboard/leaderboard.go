// Package leaderboard ranks room members by score and renders the result as
// a text table or an HTML fragment.
package leaderboard

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/mcoot/coursebattle/internal/model"
)

// Row is one ranked line of the leaderboard
type Row struct {
	Rank      int
	PlayerID  model.PlayerID
	Name      string
	Score     int
	Done      int
	Total     int
	UpdatedAt *time.Time
}

// Rank orders members by score, highest first, without modifying the input.
// Equal scores keep their incoming order.
func Rank(members []*model.Member) []Row {
	ordered := make([]*model.Member, 0, len(members))
	for _, m := range members {
		if m != nil {
			ordered = append(ordered, m)
		}
	}
	model.SortByScore(ordered)

	rows := make([]Row, len(ordered))
	for i, m := range ordered {
		row := Row{
			Rank:      i + 1,
			PlayerID:  m.PlayerID,
			Name:      m.Label(),
			Score:     m.Score,
			UpdatedAt: m.LastProgressAt,
		}
		if m.Progress != nil {
			row.Done = m.Progress.Done
			row.Total = m.Progress.Total
		}
		rows[i] = row
	}
	return rows
}

// Updated formats the row's last update relative to now
func (r Row) Updated(now time.Time) string {
	if r.UpdatedAt == nil {
		return "never"
	}
	d := now.Sub(*r.UpdatedAt)
	switch {
	case d < 5*time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return r.UpdatedAt.Format("2006-01-02")
	}
}

// Lessons formats the done/total count, or "-" when no progress was reported
func (r Row) Lessons() string {
	if r.Total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", r.Done, r.Total)
}

// RenderText writes rows as an aligned text table
func RenderText(w io.Writer, rows []Row, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPLAYER\tSCORE\tLESSONS\tUPDATED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%d%%\t%s\t%s\n", r.Rank, r.Name, r.Score, r.Lessons(), r.Updated(now))
	}
	return tw.Flush()
}

// RenderHTML renders the table component to a string
func RenderHTML(ctx context.Context, rows []Row, viewer model.PlayerID, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := Table(rows, viewer, now).Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
