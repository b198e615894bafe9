package bot

import "context"

// GreeterResponder is the endpoint-free bot: it cycles through canned
// replies, one per answered message.
type GreeterResponder struct {
	replies []string
	next    int
}

func NewGreeterResponder() *GreeterResponder {
	return &GreeterResponder{
		replies: []string{
			"Hello there!",
			"Nice to see you around.",
			"How is everyone doing?",
			"Welcome to the room!",
		},
	}
}

func (g *GreeterResponder) Reply(_ context.Context, _ string) (string, error) {
	reply := g.replies[g.next%len(g.replies)]
	g.next++
	return reply, nil
}
