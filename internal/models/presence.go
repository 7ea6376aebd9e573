package models

import "time"

// PresenceSnapshot is the wholesale poll result for online status. It
// replaces the previous snapshot entirely, never merges into it.
type PresenceSnapshot struct {
	OnlineUserIDs    []string             `json:"onlineUserIds"`
	LastSeenByUserID map[string]time.Time `json:"lastSeenByUserId"`
}
