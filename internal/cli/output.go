package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcoot/coursebattle/internal/api/response"
	"github.com/mcoot/coursebattle/internal/client"
	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/services/leaderboard"
	"github.com/mcoot/coursebattle/internal/services/progress"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(jsonView(data))
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

// jsonView converts model values to their wire form so JSON output matches
// the API
func jsonView(data any) any {
	switch v := data.(type) {
	case *model.Room:
		return response.RoomFromModel(v)
	case []*model.Room:
		return response.RoomsFromModel(v)
	case *model.Member:
		return response.MemberFromModel(v)
	case []*model.Member:
		return response.MembersFromModel(v)
	case *model.ChatMessage:
		return response.ChatMessageFromModel(v)
	case []*model.ChatMessage:
		return response.ChatMessagesFromModel(v)
	case model.ChangeEvent:
		return response.ChangeEventFromModel(v)
	default:
		return data
	}
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case *response.Player:
		o.printPlayer(*v)
	case *response.AuthResponse:
		o.printAuthResult(*v)
	case *model.Room:
		o.printRoom(v)
	case []*model.Room:
		o.printRooms(v)
	case *model.Member:
		o.printMember(v)
	case []*model.Member:
		o.printLeaderboard(v)
	case *response.FinishResult:
		o.printFinishResult(v)
	case *model.ChatMessage:
		o.printChatMessage(v)
	case []*model.ChatMessage:
		for _, m := range v {
			o.printChatMessage(m)
		}
	case model.ChangeEvent:
		o.printChangeEvent(v)
	case *response.Profile:
		o.printProfile(v)
	case *progress.Result:
		o.printProgress(v)
	case *client.HealthResult:
		o.printHealthResult(*v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(jsonView(data))
	}
}

func (o *Output) printPlayer(p response.Player) {
	guestStr := "no"
	if p.IsGuest {
		guestStr = "yes"
	}
	fmt.Fprintf(o.w, "Player: %s (%s)\n", p.DisplayName, p.ID)
	fmt.Fprintf(o.w, "Guest: %s\n", guestStr)
}

func (o *Output) printAuthResult(a response.AuthResponse) {
	o.printPlayer(a.Player)
	fmt.Fprintf(o.w, "Token: %s\n", a.SessionToken)
}

func (o *Output) printRoom(r *model.Room) {
	fmt.Fprintf(o.w, "Room: %s\n", r.ID)
	fmt.Fprintf(o.w, "Code: %s\n", r.Code)
	fmt.Fprintf(o.w, "Course: %s (%s)\n", r.CourseName, r.CourseID)
	fmt.Fprintf(o.w, "Status: %s\n", r.Status())
	if r.IsPrivate {
		fmt.Fprintln(o.w, "Private: yes")
	}
	if r.JoinLocked {
		fmt.Fprintln(o.w, "Joining: locked")
	}
	if r.StartedAt != nil {
		fmt.Fprintf(o.w, "Started: %s\n", r.StartedAt.Format(time.DateTime))
	}
	if r.FinishedAt != nil {
		fmt.Fprintf(o.w, "Finished: %s\n", r.FinishedAt.Format(time.DateTime))
	}
}

func (o *Output) printRooms(rooms []*model.Room) {
	if len(rooms) == 0 {
		fmt.Fprintln(o.w, "No rooms")
		return
	}
	for _, r := range rooms {
		fmt.Fprintf(o.w, "%s  %s  %-11s  %s\n", r.Code, r.ID, r.Status(), r.CourseName)
	}
}

func (o *Output) printMember(m *model.Member) {
	fmt.Fprintf(o.w, "Member: %s (%s)\n", m.DisplayName, m.PlayerID)
	fmt.Fprintf(o.w, "Score: %d%%\n", m.Score)
	if m.Progress != nil {
		fmt.Fprintf(o.w, "Lessons: %d/%d\n", m.Progress.Done, m.Progress.Total)
	}
}

func (o *Output) printLeaderboard(members []*model.Member) {
	_ = leaderboard.RenderText(o.w, leaderboard.Rank(members), time.Now())
}

func (o *Output) printFinishResult(r *response.FinishResult) {
	fmt.Fprintf(o.w, "Room %s finished\n", r.Room.Code)
	if r.WinnerID == nil {
		fmt.Fprintln(o.w, "No winner")
		return
	}
	ranking := make([]*model.Member, len(r.Ranking))
	for i, m := range r.Ranking {
		ranking[i] = m.ToModel()
	}
	rows := leaderboard.Rank(ranking)
	for _, row := range rows {
		if string(row.PlayerID) == *r.WinnerID {
			fmt.Fprintf(o.w, "Winner: %s (%d%%)\n", row.Name, row.Score)
		}
	}
	fmt.Fprintln(o.w)
	_ = leaderboard.RenderText(o.w, rows, time.Now())
}

func (o *Output) printChatMessage(m *model.ChatMessage) {
	fmt.Fprintf(o.w, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.SenderID, m.Content)
}

func (o *Output) printChangeEvent(e model.ChangeEvent) {
	switch {
	case e.Message != nil:
		o.printChatMessage(e.Message)
	case e.Member != nil:
		fmt.Fprintf(o.w, "%s %s: %s %d%%\n", e.Table, e.Op, e.Member.DisplayName, e.Member.Score)
	case e.Room != nil:
		fmt.Fprintf(o.w, "%s %s: %s %s\n", e.Table, e.Op, e.Room.Code, e.Room.Status())
	default:
		fmt.Fprintf(o.w, "%s %s: %s\n", e.Table, e.Op, e.RoomID)
	}
}

func (o *Output) printProfile(p *response.Profile) {
	fmt.Fprintf(o.w, "Player: %s\n", p.PlayerID)
	fmt.Fprintf(o.w, "Wins: %d\n", p.Wins)
	fmt.Fprintf(o.w, "Losses: %d\n", p.Losses)
}

func (o *Output) printProgress(r *progress.Result) {
	s := r.Snapshot
	fmt.Fprintf(o.w, "Course: %s\n", s.CourseUUID)
	fmt.Fprintf(o.w, "Score: %d%% (%d/%d lessons)\n", r.Score, s.Done, s.Total)
	if len(s.Chapters) == 0 {
		return
	}
	width := 0
	for _, c := range s.Chapters {
		width = max(width, len(c.Title))
	}
	for _, c := range s.Chapters {
		fmt.Fprintf(o.w, "  %s%s  %d/%d\n", c.Title, strings.Repeat(" ", width-len(c.Title)), c.Done, c.Total)
	}
}

func (o *Output) printHealthResult(h client.HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
}
