package normalize

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Notification is the canonical push notification object. Platform-specific
// fields are carried as delivered and are nil unless the native payload held a
// truthy value for them.
type Notification struct {
	NotificationID string         `json:"notificationId"`
	Body           *string        `json:"body,omitempty"`
	Title          *string        `json:"title,omitempty"`
	AdditionalData *map[string]any `json:"additionalData,omitempty"`
	RawPayload     any            `json:"rawPayload,omitempty"`
	LaunchURL      *string        `json:"launchURL,omitempty"`
	Sound          *string        `json:"sound,omitempty"`
	ActionButtons  any            `json:"actionButtons,omitempty"`

	// Android.
	GroupKey              any          `json:"groupKey,omitempty"`
	GroupMessage          any          `json:"groupMessage,omitempty"`
	GroupedNotifications  []any        `json:"groupedNotifications,omitempty"`
	LEDColor              any          `json:"ledColor,omitempty"`
	Priority              *json.Number `json:"priority,omitempty"`
	SmallIcon             any          `json:"smallIcon,omitempty"`
	LargeIcon             any          `json:"largeIcon,omitempty"`
	BigPicture            any          `json:"bigPicture,omitempty"`
	CollapseID            any          `json:"collapseId,omitempty"`
	FromProjectNumber     any          `json:"fromProjectNumber,omitempty"`
	SmallIconAccentColor  any          `json:"smallIconAccentColor,omitempty"`
	LockScreenVisibility  any          `json:"lockScreenVisibility,omitempty"`
	AndroidNotificationID any          `json:"androidNotificationId,omitempty"`

	// iOS.
	Badge             any `json:"badge,omitempty"`
	BadgeIncrement    any `json:"badgeIncrement,omitempty"`
	Category          any `json:"category,omitempty"`
	ThreadID          any `json:"threadId,omitempty"`
	Subtitle          any `json:"subtitle,omitempty"`
	TemplateID        any `json:"templateId,omitempty"`
	TemplateName      any `json:"templateName,omitempty"`
	Attachments       any `json:"attachments,omitempty"`
	MutableContent    any `json:"mutableContent,omitempty"`
	ContentAvailable  any `json:"contentAvailable,omitempty"`
	RelevanceScore    any `json:"relevanceScore,omitempty"`
	InterruptionLevel any `json:"interruptionLevel,omitempty"`
}

// NewNotification decodes a native notification payload.
func NewNotification(raw json.RawMessage) (Notification, error) {
	obj, err := decodeObject(raw, "decode notification")
	if err != nil {
		return Notification{}, err
	}
	n, err := notificationFrom(obj)
	if err != nil {
		return Notification{}, malformed("decode notification", raw, err)
	}
	return n, nil
}

func notificationFrom(obj object) (Notification, error) {
	var n Notification

	id, err := obj.str("notificationId")
	if err != nil {
		return n, err
	}
	if id == nil || *id == "" {
		return n, fmt.Errorf("notificationId missing")
	}
	n.NotificationID = *id

	for key, dst := range map[string]**string{
		"body":      &n.Body,
		"title":     &n.Title,
		"launchURL": &n.LaunchURL,
		"sound":     &n.Sound,
	} {
		if *dst, err = obj.str(key); err != nil {
			return n, err
		}
	}

	if data, err := obj.child("additionalData"); err != nil {
		return n, err
	} else if data != nil {
		m := map[string]any(data)
		n.AdditionalData = &m
	}

	switch payload := obj["rawPayload"].(type) {
	case nil:
	case string:
		parsed, err := decodeAny([]byte(payload))
		if err != nil {
			return n, fmt.Errorf("field rawPayload: %w", err)
		}
		n.RawPayload = parsed
	default:
		n.RawPayload = payload
	}

	if obj.defined("priority") {
		if n.Priority, err = obj.number("priority"); err != nil {
			return n, err
		}
	}
	if grouped, ok := obj["groupedNotifications"].([]any); ok && len(grouped) > 0 {
		n.GroupedNotifications = grouped
	}

	n.ActionButtons = obj.gated("actionButtons")
	n.GroupKey = obj.gated("groupKey")
	n.GroupMessage = obj.gated("groupMessage")
	n.LEDColor = obj.gated("ledColor")
	n.SmallIcon = obj.gated("smallIcon")
	n.LargeIcon = obj.gated("largeIcon")
	n.BigPicture = obj.gated("bigPicture")
	n.CollapseID = obj.gated("collapseId")
	n.FromProjectNumber = obj.gated("fromProjectNumber")
	n.SmallIconAccentColor = obj.gated("smallIconAccentColor")
	n.LockScreenVisibility = obj.gated("lockScreenVisibility")
	n.AndroidNotificationID = obj.gated("androidNotificationId")

	n.Badge = obj.gated("badge")
	n.BadgeIncrement = obj.gated("badgeIncrement")
	n.Category = obj.gated("category")
	n.ThreadID = obj.gated("threadId")
	n.Subtitle = obj.gated("subtitle")
	n.TemplateID = obj.gated("templateId")
	n.TemplateName = obj.gated("templateName")
	n.Attachments = obj.gated("attachments")
	n.MutableContent = obj.gated("mutableContent")
	n.ContentAvailable = obj.gated("contentAvailable")
	n.RelevanceScore = obj.gated("relevanceScore")
	n.InterruptionLevel = obj.gated("interruptionLevel")

	return n, nil
}
