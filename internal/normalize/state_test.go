package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeviceStateFallsBackToAreNotificationsEnabled(t *testing.T) {
	st, err := NewDeviceState([]byte(`{"isSubscribed":true}`))
	require.NoError(t, err)
	require.NotNil(t, st.Subscribed)
	require.True(t, *st.Subscribed)
	require.Nil(t, st.HasNotificationPermission, "absent when neither source is present")

	st, err = NewDeviceState([]byte(`{"hasNotificationPermission":false,"areNotificationsEnabled":true}`))
	require.NoError(t, err)
	require.True(t, *st.HasNotificationPermission)

	st, err = NewDeviceState([]byte(`{"hasNotificationPermission":true,"areNotificationsEnabled":false}`))
	require.NoError(t, err)
	require.True(t, *st.HasNotificationPermission)
}

func TestDeviceStateRenamesLegacyFlags(t *testing.T) {
	st, err := NewDeviceState([]byte(`{
		"isPushDisabled": false,
		"isEmailSubscribed": true,
		"isSMSSubscribed": false,
		"notificationPermissionStatus": 2,
		"userId": "u1",
		"pushToken": "tok",
		"emailAddress": "a@b.c",
		"smsNumber": "+100"
	}`))
	require.NoError(t, err)
	require.False(t, *st.PushDisabled)
	require.True(t, *st.EmailSubscribed)
	require.False(t, *st.SMSSubscribed)
	require.Equal(t, PermissionAuthorized, *st.NotificationPermissionStatus)
	require.Equal(t, "u1", *st.UserID)
	require.Equal(t, "tok", *st.PushToken)
	require.Equal(t, "a@b.c", *st.EmailAddress)
	require.Equal(t, "+100", *st.SMSNumber)
	require.Nil(t, st.EmailUserID)
}

func TestDeviceStateNullPermissionStatusOmitted(t *testing.T) {
	st, err := NewDeviceState([]byte(`{"notificationPermissionStatus":null}`))
	require.NoError(t, err)
	require.Nil(t, st.NotificationPermissionStatus)
}

func TestPermissionStateDerivation(t *testing.T) {
	st, err := NewPermissionState([]byte(`{"status":3,"provisional":true}`))
	require.NoError(t, err)
	require.Equal(t, PermissionProvisional, st.Status)
	require.True(t, st.Provisional)
	require.False(t, st.HasPrompted)

	st, err = NewPermissionState([]byte(`{"areNotificationsEnabled":true}`))
	require.NoError(t, err)
	require.Equal(t, PermissionAuthorized, st.Status)

	st, err = NewPermissionState([]byte(`{"areNotificationsEnabled":false,"hasPrompted":null}`))
	require.NoError(t, err)
	require.Equal(t, PermissionDenied, st.Status)
	require.False(t, st.HasPrompted)
}

func TestPermissionChangeSides(t *testing.T) {
	change, err := NewPermissionChange([]byte(`{"to":{"status":2}}`))
	require.NoError(t, err)
	require.Nil(t, change.From)
	require.Equal(t, PermissionAuthorized, change.To.Status)
}

func TestPermissionAcceptsEveryShape(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`{"value":true}`, true},
		{`{"permission":false}`, false},
		{`{"from":{"status":0},"to":{"status":2}}`, true},
		{`{"to":{"status":1}}`, false},
	}
	for _, tc := range cases {
		got, err := Permission([]byte(tc.raw))
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.want, got, tc.raw)
	}
	_, err := Permission([]byte(`"yes"`))
	require.Error(t, err)
}

func TestLegacySubscriptionChangesRenameFlag(t *testing.T) {
	email, err := NewEmailSubscriptionChange([]byte(`{"from":{"isSubscribed":false},"to":{"isSubscribed":true,"emailAddress":"a@b.c"}}`))
	require.NoError(t, err)
	require.False(t, *email.From.IsEmailSubscribed)
	require.True(t, *email.To.IsEmailSubscribed)
	require.Equal(t, "a@b.c", *email.To.EmailAddress)

	sms, err := NewSMSSubscriptionChange([]byte(`{"to":{"isSubscribed":true,"smsNumber":"+1"}}`))
	require.NoError(t, err)
	require.Nil(t, sms.From)
	require.True(t, *sms.To.IsSMSSubscribed)

	push, err := NewSubscriptionChange([]byte(`{"from":{"isSubscribed":false,"userId":"u"},"to":{"isSubscribed":true,"pushToken":"t"}}`))
	require.NoError(t, err)
	require.Equal(t, "u", *push.From.UserID)
	require.Equal(t, "t", *push.To.PushToken)
}

func TestPushSubscriptionChangedState(t *testing.T) {
	st, err := NewPushSubscriptionChangedState([]byte(`{"current":{"id":"s1","token":"t1","optedIn":true},"previous":{"optedIn":false}}`))
	require.NoError(t, err)
	require.Equal(t, "s1", *st.Current.ID)
	require.True(t, st.Current.OptedIn)
	require.Nil(t, st.Previous.ID)
	require.False(t, st.Previous.OptedIn)

	_, err = NewPushSubscriptionChangedState([]byte(`{"current":{"optedIn":"yes"}}`))
	require.Error(t, err)
}

func TestUserChangedState(t *testing.T) {
	st, err := NewUserChangedState([]byte(`{"current":{"onesignalId":"os1","externalId":null}}`))
	require.NoError(t, err)
	require.Equal(t, "os1", *st.Current.OnesignalID)
	require.Nil(t, st.Current.ExternalID)
}

func TestInAppMessageEvents(t *testing.T) {
	ev, err := NewInAppMessageEvent([]byte(`{"message":{"messageId":"m1"}}`))
	require.NoError(t, err)
	require.Equal(t, "m1", ev.Message.MessageID)

	flat, err := NewInAppMessageEvent([]byte(`{"messageId":"m2"}`))
	require.NoError(t, err)
	require.Equal(t, "m2", flat.Message.MessageID)

	click, err := NewInAppMessageClickEvent([]byte(`{"message":{"messageId":"m3"},"result":{"closingMessage":true,"actionId":"a","urlTarget":"browser"}}`))
	require.NoError(t, err)
	require.True(t, click.Result.ClosingMessage)
	require.Equal(t, "a", *click.Result.ActionID)
	require.Nil(t, click.Result.URL)
	require.Equal(t, "browser", *click.Result.URLTarget)

	_, err = NewInAppMessageEvent([]byte(`{}`))
	require.Error(t, err)
}
