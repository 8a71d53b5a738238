package normalize

import (
	json "github.com/goccy/go-json"
)

// PushSubscriptionState is the user-model push subscription snapshot.
type PushSubscriptionState struct {
	ID      *string `json:"id,omitempty"`
	Token   *string `json:"token,omitempty"`
	OptedIn bool    `json:"optedIn"`
}

// PushSubscriptionChangedState is delivered by the push subscription observer.
type PushSubscriptionChangedState struct {
	Current  PushSubscriptionState `json:"current"`
	Previous PushSubscriptionState `json:"previous"`
}

// NewPushSubscriptionChangedState decodes a {current, previous} push
// subscription transition.
func NewPushSubscriptionChangedState(raw json.RawMessage) (PushSubscriptionChangedState, error) {
	obj, err := decodeObject(raw, "decode push subscription change")
	if err != nil {
		return PushSubscriptionChangedState{}, err
	}
	var out PushSubscriptionChangedState
	for key, dst := range map[string]*PushSubscriptionState{"current": &out.Current, "previous": &out.Previous} {
		side, err := obj.child(key)
		if err != nil {
			return PushSubscriptionChangedState{}, malformed("decode push subscription change", raw, err)
		}
		if side == nil {
			continue
		}
		if *dst, err = pushSubscriptionFrom(side); err != nil {
			return PushSubscriptionChangedState{}, malformed("decode push subscription change", raw, err)
		}
	}
	return out, nil
}

func pushSubscriptionFrom(obj object) (PushSubscriptionState, error) {
	var st PushSubscriptionState
	var err error
	if st.ID, err = obj.str("id"); err != nil {
		return st, err
	}
	if st.Token, err = obj.str("token"); err != nil {
		return st, err
	}
	opted, err := obj.boolean("optedIn")
	if err != nil {
		return st, err
	}
	if opted != nil {
		st.OptedIn = *opted
	}
	return st, nil
}

// SubscriptionState is the legacy push subscription snapshot.
type SubscriptionState struct {
	IsSubscribed *bool   `json:"isSubscribed,omitempty"`
	UserID       *string `json:"userId,omitempty"`
	PushToken    *string `json:"pushToken,omitempty"`
}

// SubscriptionChange is a legacy {from, to} push subscription transition.
type SubscriptionChange struct {
	From *SubscriptionState `json:"from,omitempty"`
	To   *SubscriptionState `json:"to,omitempty"`
}

// EmailSubscriptionState is the legacy email subscription snapshot.
type EmailSubscriptionState struct {
	IsEmailSubscribed *bool   `json:"isEmailSubscribed,omitempty"`
	EmailAddress      *string `json:"emailAddress,omitempty"`
	EmailUserID       *string `json:"emailUserId,omitempty"`
}

// EmailSubscriptionChange is a legacy {from, to} email subscription transition.
type EmailSubscriptionChange struct {
	From *EmailSubscriptionState `json:"from,omitempty"`
	To   *EmailSubscriptionState `json:"to,omitempty"`
}

// SMSSubscriptionState is the legacy SMS subscription snapshot.
type SMSSubscriptionState struct {
	IsSMSSubscribed *bool   `json:"isSMSSubscribed,omitempty"`
	SMSNumber       *string `json:"smsNumber,omitempty"`
	SMSUserID       *string `json:"smsUserId,omitempty"`
}

// SMSSubscriptionChange is a legacy {from, to} SMS subscription transition.
type SMSSubscriptionChange struct {
	From *SMSSubscriptionState `json:"from,omitempty"`
	To   *SMSSubscriptionState `json:"to,omitempty"`
}

// NewSubscriptionChange decodes a legacy push subscription transition.
func NewSubscriptionChange(raw json.RawMessage) (SubscriptionChange, error) {
	from, to, err := decodeSides(raw, "decode subscription change", func(obj object) (SubscriptionState, error) {
		var st SubscriptionState
		var err error
		if st.IsSubscribed, err = obj.boolean("isSubscribed"); err != nil {
			return st, err
		}
		if st.UserID, err = obj.str("userId"); err != nil {
			return st, err
		}
		st.PushToken, err = obj.str("pushToken")
		return st, err
	})
	return SubscriptionChange{From: from, To: to}, err
}

// NewEmailSubscriptionChange decodes a legacy email subscription transition.
// The native isSubscribed flag becomes isEmailSubscribed.
func NewEmailSubscriptionChange(raw json.RawMessage) (EmailSubscriptionChange, error) {
	from, to, err := decodeSides(raw, "decode email subscription change", func(obj object) (EmailSubscriptionState, error) {
		var st EmailSubscriptionState
		var err error
		if st.IsEmailSubscribed, err = obj.boolean("isSubscribed"); err != nil {
			return st, err
		}
		if st.EmailAddress, err = obj.str("emailAddress"); err != nil {
			return st, err
		}
		st.EmailUserID, err = obj.str("emailUserId")
		return st, err
	})
	return EmailSubscriptionChange{From: from, To: to}, err
}

// NewSMSSubscriptionChange decodes a legacy SMS subscription transition.
// The native isSubscribed flag becomes isSMSSubscribed.
func NewSMSSubscriptionChange(raw json.RawMessage) (SMSSubscriptionChange, error) {
	from, to, err := decodeSides(raw, "decode sms subscription change", func(obj object) (SMSSubscriptionState, error) {
		var st SMSSubscriptionState
		var err error
		if st.IsSMSSubscribed, err = obj.boolean("isSubscribed"); err != nil {
			return st, err
		}
		if st.SMSNumber, err = obj.str("smsNumber"); err != nil {
			return st, err
		}
		st.SMSUserID, err = obj.str("smsUserId")
		return st, err
	})
	return SMSSubscriptionChange{From: from, To: to}, err
}

func decodeSides[T any](raw []byte, what string, build func(object) (T, error)) (*T, *T, error) {
	obj, err := decodeObject(raw, what)
	if err != nil {
		return nil, nil, err
	}
	var sides [2]*T
	for i, key := range []string{"from", "to"} {
		side, err := sideOf(obj, key)
		if err != nil {
			return nil, nil, malformed(what, raw, err)
		}
		if side == nil {
			continue
		}
		v, err := build(side)
		if err != nil {
			return nil, nil, malformed(what, raw, err)
		}
		sides[i] = &v
	}
	return sides[0], sides[1], nil
}
