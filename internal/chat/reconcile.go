package chat

import (
	"time"

	"github.com/tullo/messenger/internal/models"
)

// ReconcileWindow bounds how far apart a temp message and its server
// echo may be stamped and still match.
const ReconcileWindow = 5 * time.Second

// MatchesTemp reports whether echo is the server confirmation of the
// local temp message: both attributed to the current user, identical
// content, timestamps within the window. Two identical rapid sends from
// the same user can mis-match; a client-generated id echoed back by the
// server would make this exact.
func MatchesTemp(temp, echo models.Message, selfID string) bool {
	if !temp.IsTemp() {
		return false
	}
	if temp.Sender.ID != selfID || echo.Sender.ID != selfID {
		return false
	}
	if temp.Content != echo.Content {
		return false
	}
	d := echo.CreatedAt.Sub(temp.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d < ReconcileWindow
}

// Reconcile folds an inbound message into the timeline. The first
// matching temp message is replaced in place (same position, server
// id); with no match the message is appended, favoring visible
// duplication over silent loss. The input slice is never mutated.
func Reconcile(list []models.Message, echo models.Message, selfID string) ([]models.Message, bool) {
	for i := range list {
		if MatchesTemp(list[i], echo, selfID) {
			out := make([]models.Message, len(list))
			copy(out, list)
			out[i] = echo
			return out, true
		}
	}
	out := make([]models.Message, 0, len(list)+1)
	out = append(out, list...)
	out = append(out, echo)
	return out, false
}
