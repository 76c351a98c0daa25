package notify

import "github.com/recach/recach/internal/models"

// MaxCaretID returns the highest notification id, or 0 for none
func MaxCaretID(notes []models.CaretNotification) int64 {
	var maxID int64
	for _, n := range notes {
		maxID = max(maxID, n.ID)
	}
	return maxID
}

// UnreadCarets reports whether any notification is newer than the watermark
func UnreadCarets(notes []models.CaretNotification, seen int64) bool {
	return len(notes) > 0 && MaxCaretID(notes) > seen
}

// PendingContacts reports whether a contact request still awaits an answer
func PendingContacts(items []models.InboxItem) bool {
	for _, item := range items {
		if item.Type == models.InboxContactRequest && models.ContactStatus(item.Status) == models.ContactPending {
			return true
		}
	}
	return false
}

// UnreadInbox reports whether any non contact request item is unread
func UnreadInbox(items []models.InboxItem) bool {
	for _, item := range items {
		if item.Type != models.InboxContactRequest && item.Status == models.InboxUnread {
			return true
		}
	}
	return false
}
