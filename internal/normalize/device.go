package normalize

import (
	json "github.com/goccy/go-json"
)

// DeviceState is the legacy device snapshot returned by getDeviceState.
type DeviceState struct {
	HasNotificationPermission    *bool             `json:"hasNotificationPermission,omitempty"`
	NotificationPermissionStatus *PermissionStatus `json:"notificationPermissionStatus,omitempty"`
	PushDisabled                 *bool             `json:"pushDisabled,omitempty"`
	Subscribed                   *bool             `json:"subscribed,omitempty"`
	EmailSubscribed              *bool             `json:"emailSubscribed,omitempty"`
	SMSSubscribed                *bool             `json:"smsSubscribed,omitempty"`
	UserID                       *string           `json:"userId,omitempty"`
	PushToken                    *string           `json:"pushToken,omitempty"`
	EmailUserID                  *string           `json:"emailUserId,omitempty"`
	EmailAddress                 *string           `json:"emailAddress,omitempty"`
	SMSUserID                    *string           `json:"smsUserId,omitempty"`
	SMSNumber                    *string           `json:"smsNumber,omitempty"`
}

// NewDeviceState decodes a legacy device snapshot.
func NewDeviceState(raw json.RawMessage) (DeviceState, error) {
	obj, err := decodeObject(raw, "decode device state")
	if err != nil {
		return DeviceState{}, err
	}
	st, err := deviceStateFrom(obj)
	if err != nil {
		return DeviceState{}, malformed("decode device state", raw, err)
	}
	return st, nil
}

func deviceStateFrom(obj object) (DeviceState, error) {
	var st DeviceState
	var err error

	// The explicit field wins only when true; otherwise older builds report
	// the same fact as areNotificationsEnabled.
	permKey := "areNotificationsEnabled"
	if Truthy(obj["hasNotificationPermission"]) {
		permKey = "hasNotificationPermission"
	}
	if st.HasNotificationPermission, err = obj.boolean(permKey); err != nil {
		return st, err
	}

	status, err := obj.number("notificationPermissionStatus")
	if err != nil {
		return st, err
	}
	if status != nil {
		v, err := status.Int64()
		if err != nil {
			return st, err
		}
		ps := PermissionStatus(v)
		st.NotificationPermissionStatus = &ps
	}

	for key, dst := range map[string]**bool{
		"isPushDisabled":    &st.PushDisabled,
		"isSubscribed":      &st.Subscribed,
		"isEmailSubscribed": &st.EmailSubscribed,
		"isSMSSubscribed":   &st.SMSSubscribed,
	} {
		if *dst, err = obj.boolean(key); err != nil {
			return st, err
		}
	}
	for key, dst := range map[string]**string{
		"userId":       &st.UserID,
		"pushToken":    &st.PushToken,
		"emailUserId":  &st.EmailUserID,
		"emailAddress": &st.EmailAddress,
		"smsUserId":    &st.SMSUserID,
		"smsNumber":    &st.SMSNumber,
	} {
		if *dst, err = obj.str(key); err != nil {
			return st, err
		}
	}
	return st, nil
}
