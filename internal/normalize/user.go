package normalize

import (
	json "github.com/goccy/go-json"
)

// UserState identifies the current user.
type UserState struct {
	OnesignalID *string `json:"onesignalId,omitempty"`
	ExternalID  *string `json:"externalId,omitempty"`
}

// UserChangedState is delivered by the user state observer.
type UserChangedState struct {
	Current UserState `json:"current"`
}

// NewUserChangedState decodes a user state change.
func NewUserChangedState(raw json.RawMessage) (UserChangedState, error) {
	obj, err := decodeObject(raw, "decode user change")
	if err != nil {
		return UserChangedState{}, err
	}
	current, err := obj.child("current")
	if err != nil {
		return UserChangedState{}, malformed("decode user change", raw, err)
	}
	if current == nil {
		return UserChangedState{}, nil
	}
	var out UserChangedState
	if out.Current.OnesignalID, err = current.str("onesignalId"); err != nil {
		return UserChangedState{}, malformed("decode user change", raw, err)
	}
	if out.Current.ExternalID, err = current.str("externalId"); err != nil {
		return UserChangedState{}, malformed("decode user change", raw, err)
	}
	return out, nil
}
