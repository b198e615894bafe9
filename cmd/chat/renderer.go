package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"chat-app/domain"
	"chat-app/presence"
	"chat-app/session"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// renderer owns stdout. Messages arrive from the follow goroutine and from
// the input loop (warnings), so every print goes through the mutex.
type renderer struct {
	mu       sync.Mutex
	username string
	printed  int
	typing   []string
}

func newRenderer(username string) *renderer {
	return &renderer{username: username}
}

func (r *renderer) banner(room string) {
	header := fmt.Sprintf("  ====== %s ======", room)
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(header))
	fmt.Println(color.New(color.FgGray).Render("  /msg <user> <text>  /who  /clear  /quit"))
}

// follow prints messages and typing changes as the session publishes updates.
func (r *renderer) follow(ctx context.Context, s *session.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, open := <-s.Updates():
			if !open {
				return
			}
			r.history(s.Messages())
			r.typingLine(s.Roster().Typing)
		}
	}
}

// history prints the messages not shown yet. After a clear the slice shrinks
// and the counter resets through reset().
func (r *renderer) history(messages []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(messages) < r.printed {
		r.printed = 0
	}
	for _, m := range messages[r.printed:] {
		fmt.Println(r.format(m))
	}
	r.printed = len(messages)
}

func (r *renderer) format(m domain.Message) string {
	sender := color.New(color.FgGreen).Render(m.Sender)
	if m.Sender == r.username {
		sender = color.New(color.FgCyan).Render(m.Sender)
	}
	line := fmt.Sprintf("[%s] %s: %s", m.At.Local().Format("15:04:05"), sender, m.Body)
	if m.Private() {
		tag := color.New(color.FgMagenta).Render(fmt.Sprintf("(private to %s)", m.Recipient))
		line += " " + tag
	}
	return line
}

func (r *renderer) typingLine(typing []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lo.ElementsMatch(r.typing, typing) {
		return
	}
	r.typing = typing
	if len(typing) == 0 {
		return
	}
	line := fmt.Sprintf("  %s typing...", strings.Join(typing, ", "))
	fmt.Println(color.New(color.FgGray).Render(line))
}

func (r *renderer) roster(roster presence.Roster) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User", "State"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, username := range roster.Online {
		state := "online"
		if lo.Contains(roster.Typing, username) {
			state = "typing"
		}
		table.Append([]string{username, state})
	}
	if len(roster.Online) == 0 {
		table.Append([]string{"(nobody else)", ""})
	}
	table.Render()
}

func (r *renderer) warn(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Println(color.New(color.FgYellow).Render("  " + text))
}

// reset forgets the printed counter after a /clear.
func (r *renderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printed = 0
	fmt.Println(color.New(color.FgGray).Render("  (history cleared)"))
}
