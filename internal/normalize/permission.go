package normalize

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// PermissionStatus is the platform notification authorization status.
type PermissionStatus int

const (
	PermissionNotDetermined PermissionStatus = iota
	PermissionDenied
	PermissionAuthorized
	PermissionProvisional
	PermissionEphemeral
)

func (s PermissionStatus) String() string {
	switch s {
	case PermissionNotDetermined:
		return "not_determined"
	case PermissionDenied:
		return "denied"
	case PermissionAuthorized:
		return "authorized"
	case PermissionProvisional:
		return "provisional"
	case PermissionEphemeral:
		return "ephemeral"
	default:
		return fmt.Sprintf("permission_status(%d)", int(s))
	}
}

// Granted reports whether notifications may be shown.
func (s PermissionStatus) Granted() bool {
	return s == PermissionAuthorized || s == PermissionProvisional || s == PermissionEphemeral
}

// PermissionState is the legacy permission snapshot.
type PermissionState struct {
	Status      PermissionStatus `json:"status"`
	Provisional bool             `json:"provisional"`
	HasPrompted bool             `json:"hasPrompted"`
}

// PermissionChange is a legacy {from, to} permission transition.
type PermissionChange struct {
	From *PermissionState `json:"from,omitempty"`
	To   *PermissionState `json:"to,omitempty"`
}

// NewPermissionState decodes a legacy permission snapshot.
func NewPermissionState(raw json.RawMessage) (PermissionState, error) {
	obj, err := decodeObject(raw, "decode permission state")
	if err != nil {
		return PermissionState{}, err
	}
	st, err := permissionStateFrom(obj)
	if err != nil {
		return PermissionState{}, malformed("decode permission state", raw, err)
	}
	return st, nil
}

func permissionStateFrom(obj object) (PermissionState, error) {
	var st PermissionState
	status, err := obj.number("status")
	if err != nil {
		return st, err
	}
	if status != nil {
		v, err := status.Int64()
		if err != nil {
			return st, fmt.Errorf("field status: %w", err)
		}
		st.Status = PermissionStatus(v)
	} else if Truthy(obj["areNotificationsEnabled"]) {
		st.Status = PermissionAuthorized
	} else {
		st.Status = PermissionDenied
	}

	if p, err := obj.boolean("provisional"); err != nil {
		return st, err
	} else if p != nil {
		st.Provisional = *p
	}
	if p, err := obj.boolean("hasPrompted"); err != nil {
		return st, err
	} else if p != nil {
		st.HasPrompted = *p
	}
	return st, nil
}

// NewPermissionChange decodes a legacy permission transition. Each side is
// present only when the payload carries it.
func NewPermissionChange(raw json.RawMessage) (PermissionChange, error) {
	obj, err := decodeObject(raw, "decode permission change")
	if err != nil {
		return PermissionChange{}, err
	}
	var change PermissionChange
	for key, dst := range map[string]**PermissionState{"from": &change.From, "to": &change.To} {
		side, err := sideOf(obj, key)
		if err != nil {
			return PermissionChange{}, malformed("decode permission change", raw, err)
		}
		if side == nil {
			continue
		}
		st, err := permissionStateFrom(side)
		if err != nil {
			return PermissionChange{}, malformed("decode permission change", raw, err)
		}
		*dst = &st
	}
	return change, nil
}

// Permission decodes a permission result or event into a granted flag. It
// accepts a bare boolean, {"value": b}, {"permission": b} and the legacy
// {from, to} transition, where the destination status decides.
func Permission(raw json.RawMessage) (bool, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return false, malformed("decode permission", raw, err)
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case map[string]any:
		obj := object(t)
		for _, key := range []string{"value", "permission"} {
			if b, ok := obj[key].(bool); ok {
				return b, nil
			}
		}
		if obj.defined("to") {
			change, err := NewPermissionChange(raw)
			if err != nil {
				return false, err
			}
			if change.To != nil {
				return change.To.Status.Granted(), nil
			}
		}
	}
	return false, malformed("decode permission", raw, fmt.Errorf("unrecognised permission payload %s", kindOf(v)))
}

// sideOf returns the truthy object held at key.
func sideOf(obj object, key string) (object, error) {
	if !Truthy(obj[key]) {
		return nil, nil
	}
	return obj.child(key)
}
