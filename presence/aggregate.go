// Package presence derives typing and online views from ephemeral records and
// debounces local keystrokes into typing transitions. Nothing here is
// persisted; the registry lives on the transport.
package presence

import (
	"sort"

	"chat-app/domain"

	"github.com/samber/lo"
)

// Roster is the derived view of a presence snapshot.
type Roster struct {
	Online []string
	Typing []string
}

// Aggregate flattens the connection-keyed registry into deduplicated online
// and typing user lists, excluding the viewer's own records. A username
// backed by several connections counts as typing when any of its records is
// typing (logical OR). Lists are sorted for stable rendering.
func Aggregate(snapshot map[string][]domain.PresenceRecord, viewer string) Roster {
	records := lo.Filter(lo.Flatten(lo.Values(snapshot)), func(r domain.PresenceRecord, _ int) bool {
		return r.Username != "" && r.Username != viewer
	})
	online := lo.Uniq(lo.Map(records, func(r domain.PresenceRecord, _ int) string {
		return r.Username
	}))
	typing := lo.Uniq(lo.FilterMap(records, func(r domain.PresenceRecord, _ int) (string, bool) {
		return r.Username, r.IsTyping
	}))
	sort.Strings(online)
	sort.Strings(typing)
	return Roster{Online: online, Typing: typing}
}
