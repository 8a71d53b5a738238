package normalize

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// InAppMessage identifies an in-app message.
type InAppMessage struct {
	MessageID string `json:"messageId"`
}

// InAppMessageEvent is delivered for the will/did display and dismiss kinds.
type InAppMessageEvent struct {
	Message InAppMessage `json:"message"`
}

// InAppMessageClickResult describes the element the user clicked.
type InAppMessageClickResult struct {
	ClosingMessage bool    `json:"closingMessage"`
	ActionID       *string `json:"actionId,omitempty"`
	URL            *string `json:"url,omitempty"`
	URLTarget      *string `json:"urlTarget,omitempty"`
}

// InAppMessageClickEvent is delivered for in-app message clicks.
type InAppMessageClickEvent struct {
	Message InAppMessage            `json:"message"`
	Result  InAppMessageClickResult `json:"result"`
}

// NewInAppMessageEvent decodes a lifecycle event. Builds that deliver the
// bare message object are accepted as well.
func NewInAppMessageEvent(raw json.RawMessage) (InAppMessageEvent, error) {
	obj, err := decodeObject(raw, "decode in-app message event")
	if err != nil {
		return InAppMessageEvent{}, err
	}
	msg, err := messageFrom(obj)
	if err != nil {
		return InAppMessageEvent{}, malformed("decode in-app message event", raw, err)
	}
	return InAppMessageEvent{Message: msg}, nil
}

// NewInAppMessageClickEvent decodes an in-app message click.
func NewInAppMessageClickEvent(raw json.RawMessage) (InAppMessageClickEvent, error) {
	obj, err := decodeObject(raw, "decode in-app message click")
	if err != nil {
		return InAppMessageClickEvent{}, err
	}
	msg, err := messageFrom(obj)
	if err != nil {
		return InAppMessageClickEvent{}, malformed("decode in-app message click", raw, err)
	}
	result, err := obj.child("result")
	if err != nil {
		return InAppMessageClickEvent{}, malformed("decode in-app message click", raw, err)
	}
	out := InAppMessageClickEvent{Message: msg}
	if result == nil {
		return out, nil
	}
	if closing, err := result.boolean("closingMessage"); err != nil {
		return InAppMessageClickEvent{}, malformed("decode in-app message click", raw, err)
	} else if closing != nil {
		out.Result.ClosingMessage = *closing
	}
	for key, dst := range map[string]**string{
		"actionId":  &out.Result.ActionID,
		"url":       &out.Result.URL,
		"urlTarget": &out.Result.URLTarget,
	} {
		if *dst, err = result.str(key); err != nil {
			return InAppMessageClickEvent{}, malformed("decode in-app message click", raw, err)
		}
	}
	return out, nil
}

func messageFrom(obj object) (InAppMessage, error) {
	source := obj
	if nested, err := obj.child("message"); err != nil {
		return InAppMessage{}, err
	} else if nested != nil {
		source = nested
	}
	id, err := source.str("messageId")
	if err != nil {
		return InAppMessage{}, err
	}
	if id == nil {
		return InAppMessage{}, fmt.Errorf("messageId missing")
	}
	return InAppMessage{MessageID: *id}, nil
}
