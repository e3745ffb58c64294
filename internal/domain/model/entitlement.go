package model

import "time"

type Entitlement struct {
	UserID             string    `json:"user_id"`
	Coins              int64     `json:"coins"`
	UnlockedContentIDs []string  `json:"unlocked_content_ids"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (e Entitlement) HasUnlocked(contentID string) bool {
	for _, id := range e.UnlockedContentIDs {
		if id == contentID {
			return true
		}
	}
	return false
}

// UnlockResult describes the outcome of a debit or grant. AlreadyUnlocked is a
// success: nothing was spent and the unlocked set did not change.
type UnlockResult struct {
	UserID          string
	ContentID       string
	Balance         int64
	Spent           int64
	AlreadyUnlocked bool
}
