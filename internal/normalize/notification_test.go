package normalize

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/pushbridge/errs"
)

func encode(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestNotificationRawPayloadStringAndObjectAreEquivalent(t *testing.T) {
	fromString, err := NewNotification([]byte(`{"notificationId":"n1","body":"hi","rawPayload":"{\"a\":1,\"nested\":{\"b\":[true]}}"}`))
	require.NoError(t, err)
	fromObject, err := NewNotification([]byte(`{"notificationId":"n1","body":"hi","rawPayload":{"a":1,"nested":{"b":[true]}}}`))
	require.NoError(t, err)

	require.Equal(t, encode(t, fromObject), encode(t, fromString))
	require.Equal(t, map[string]any{"a": float64(1), "nested": map[string]any{"b": []any{true}}}, encode(t, fromString)["rawPayload"])
}

func TestNotificationRawPayloadParseFailureIsReturned(t *testing.T) {
	_, err := NewNotification([]byte(`{"notificationId":"n1","rawPayload":"{not json"}`))
	require.Error(t, err)
	require.ErrorIs(t, err, &errs.E{Code: errs.CodeMalformed})
}

func TestNotificationPresenceGating(t *testing.T) {
	n, err := NewNotification([]byte(`{
		"notificationId": "n1",
		"title": "",
		"groupKey": "",
		"badge": 0,
		"mutableContent": false,
		"smallIcon": null,
		"category": "promo",
		"priority": 0,
		"groupedNotifications": [],
		"relevanceScore": 0.5
	}`))
	require.NoError(t, err)

	out := encode(t, n)
	for _, absent := range []string{"groupKey", "badge", "mutableContent", "smallIcon", "groupedNotifications", "ledColor", "body"} {
		require.NotContains(t, out, absent)
	}
	require.Equal(t, "promo", out["category"])
	require.Equal(t, float64(0), out["priority"], "priority survives when zero")
	require.Equal(t, 0.5, out["relevanceScore"])
	require.Contains(t, out, "title", "core fields copy when present even if empty")
	require.Equal(t, "", out["title"])
}

func TestNotificationGroupedNotificationsKeptWhenNonEmpty(t *testing.T) {
	n, err := NewNotification([]byte(`{"notificationId":"n1","groupedNotifications":[{"notificationId":"n0"}]}`))
	require.NoError(t, err)
	require.Len(t, n.GroupedNotifications, 1)
}

func TestNotificationRequiresID(t *testing.T) {
	_, err := NewNotification([]byte(`{"body":"no id"}`))
	require.ErrorIs(t, err, &errs.E{Code: errs.CodeMalformed})

	_, err = NewNotification([]byte(`"just a string"`))
	require.ErrorIs(t, err, &errs.E{Code: errs.CodeMalformed})
}

func TestNotificationRejectsWrongCoreType(t *testing.T) {
	_, err := NewNotification([]byte(`{"notificationId":"n1","body":42}`))
	require.Error(t, err)
}

func TestNotificationCopiesCoreFields(t *testing.T) {
	n, err := NewNotification([]byte(`{
		"notificationId": "n1",
		"body": "b",
		"title": "t",
		"launchURL": "https://example.com",
		"sound": "ping.aiff",
		"additionalData": {"k": "v"},
		"actionButtons": [{"id": "yes"}],
		"androidNotificationId": 12
	}`))
	require.NoError(t, err)
	require.Equal(t, "n1", n.NotificationID)
	require.Equal(t, "b", *n.Body)
	require.Equal(t, "t", *n.Title)
	require.Equal(t, "https://example.com", *n.LaunchURL)
	require.Equal(t, "ping.aiff", *n.Sound)
	require.Equal(t, map[string]any{"k": "v"}, *n.AdditionalData)
	require.NotNil(t, n.ActionButtons)
	require.Equal(t, json.Number("12"), n.AndroidNotificationID)
}

func TestNotificationKeepsEmptyAdditionalData(t *testing.T) {
	n, err := NewNotification([]byte(`{"notificationId":"n1","additionalData":{}}`))
	require.NoError(t, err)
	require.NotNil(t, n.AdditionalData)
	require.Empty(t, *n.AdditionalData)

	data, err := json.Marshal(n)
	require.NoError(t, err)
	require.JSONEq(t, `{"notificationId":"n1","additionalData":{}}`, string(data))

	n, err = NewNotification([]byte(`{"notificationId":"n2"}`))
	require.NoError(t, err)
	require.Nil(t, n.AdditionalData)
	data, err = json.Marshal(n)
	require.NoError(t, err)
	require.NotContains(t, string(data), "additionalData")
}

func TestNotificationClickEvent(t *testing.T) {
	ev, err := NewNotificationClickEvent([]byte(`{"notification":{"notificationId":"n1"},"result":{"actionId":"btn","url":"https://x"}}`))
	require.NoError(t, err)
	require.Equal(t, "n1", ev.Notification.NotificationID)
	require.Equal(t, "btn", *ev.Result.ActionID)
	require.Equal(t, "https://x", *ev.Result.URL)

	legacy, err := NewNotificationClickEvent([]byte(`{"notification":{"notificationId":"n2"},"action":{"actionId":"b2","type":1}}`))
	require.NoError(t, err)
	require.Equal(t, "b2", *legacy.Result.ActionID)
	require.Nil(t, legacy.Result.URL)

	_, err = NewNotificationClickEvent([]byte(`{"result":{}}`))
	require.Error(t, err)
}
