package normalize

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// NotificationClickResult describes what was tapped.
type NotificationClickResult struct {
	ActionID *string `json:"actionId,omitempty"`
	URL      *string `json:"url,omitempty"`
}

// NotificationClickEvent is delivered when the user opens a notification.
type NotificationClickEvent struct {
	Notification Notification            `json:"notification"`
	Result       NotificationClickResult `json:"result"`
}

// NewNotificationClickEvent decodes a click payload. Older builds report the
// tap under "action" rather than "result".
func NewNotificationClickEvent(raw json.RawMessage) (NotificationClickEvent, error) {
	obj, err := decodeObject(raw, "decode notification click")
	if err != nil {
		return NotificationClickEvent{}, err
	}
	inner, err := obj.child("notification")
	if err != nil {
		return NotificationClickEvent{}, malformed("decode notification click", raw, err)
	}
	if inner == nil {
		return NotificationClickEvent{}, malformed("decode notification click", raw, fmt.Errorf("notification missing"))
	}
	n, err := notificationFrom(inner)
	if err != nil {
		return NotificationClickEvent{}, malformed("decode notification click", raw, err)
	}
	out := NotificationClickEvent{Notification: n}

	key := "result"
	if !obj.defined(key) {
		key = "action"
	}
	result, err := obj.child(key)
	if err != nil {
		return NotificationClickEvent{}, malformed("decode notification click", raw, err)
	}
	if result == nil {
		return out, nil
	}
	if out.Result.ActionID, err = result.str("actionId"); err != nil {
		return NotificationClickEvent{}, malformed("decode notification click", raw, err)
	}
	if out.Result.URL, err = result.str("url"); err != nil {
		return NotificationClickEvent{}, malformed("decode notification click", raw, err)
	}
	return out, nil
}
