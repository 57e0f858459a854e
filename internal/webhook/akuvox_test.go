package webhook_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/event"
	"github.com/gatewarden/gatewarden/internal/webhook"
)

func akuvoxRequest(query string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/api/webhooks/akuvox?"+query, nil)
}

func TestAkuvoxNormalizer_Categories(t *testing.T) {
	common := "&mac=0C:11:05:AA:BB:CC&user=Ann&userid=1001&card=C0FFEE&qrcode=QR-7&relay=1&input=2&number=301&time=1714555800"

	tests := []struct {
		event    string
		category string
		decision event.Decision
		value    string
		userID   string
		userName string
	}{
		{"face_valid", event.CategoryFace, event.DecisionGranted, "1001", "1001", "Ann"},
		{"face_invalid", event.CategoryFace, event.DecisionDenied, "", "", ""},
		{"card_valid", event.CategoryCard, event.DecisionGranted, "C0FFEE", "1001", "Ann"},
		{"card_invalid", event.CategoryCard, event.DecisionDenied, "C0FFEE", "", ""},
		{"pin_valid", event.CategoryPIN, event.DecisionGranted, "", "1001", "Ann"},
		{"qr_valid", event.CategoryQR, event.DecisionGranted, "QR-7", "", ""},
		{"relay_trigger", event.CategoryRelay, event.DecisionNone, "1", "", ""},
		{"relay_close", event.CategoryRelay, event.DecisionNone, "1", "", ""},
		{"input_trigger", event.CategoryInput, event.DecisionNone, "2", "", ""},
		{"input_close", event.CategoryInput, event.DecisionNone, "2", "", ""},
		{"call_start", event.CategoryCall, event.DecisionNone, "301", "", ""},
		{"call_end", event.CategoryCall, event.DecisionNone, "301", "", ""},
		{"call_missed", event.CategoryCall, event.DecisionNone, "301", "", ""},
		{"boot", event.CategorySystem, event.DecisionNone, "", "", ""},
		{"unlock_http", event.CategoryUnlock, event.DecisionGranted, "http", "", ""},
		{"tamper", event.CategoryOther, event.DecisionNone, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			res, err := webhook.AkuvoxNormalizer{}.Normalize(akuvoxRequest("event=" + tt.event + common))
			require.NoError(t, err)

			e := res.Event
			assert.Equal(t, event.SourceAkuvox, e.Source)
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.decision, e.Decision)
			assert.Equal(t, tt.value, e.Value)
			assert.Equal(t, tt.userID, e.UserID)
			assert.Equal(t, tt.userName, e.UserName)
			assert.Equal(t, "0c1105aabbcc", e.DeviceMAC)
			assert.Empty(t, e.DeviceName)
			assert.True(t, e.Timestamp.Equal(time.Unix(1714555800, 0)))
		})
	}
}

func TestAkuvoxNormalizer_StableID(t *testing.T) {
	res, err := webhook.AkuvoxNormalizer{}.Normalize(akuvoxRequest("event=card_valid&card=1&id=door-77"))
	require.NoError(t, err)
	assert.Equal(t, "door-77", res.Event.ID)

	a, err := webhook.AkuvoxNormalizer{}.Normalize(akuvoxRequest("event=card_valid&card=1"))
	require.NoError(t, err)
	b, err := webhook.AkuvoxNormalizer{}.Normalize(akuvoxRequest("event=card_valid&card=1"))
	require.NoError(t, err)
	assert.NotEmpty(t, a.Event.ID)
	assert.NotEqual(t, a.Event.ID, b.Event.ID)
}

func TestAkuvoxNormalizer_FormBodyAndRaw(t *testing.T) {
	form := url.Values{"event": {"face_valid"}, "userid": {"7"}, "user": {"Bo"}, "time": {"2024-05-01 09:30:00"}, "FaceUrl": {"/pic/7.jpg"}}
	r := httptest.NewRequest(http.MethodPost, "/api/webhooks/akuvox", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := webhook.AkuvoxNormalizer{}.Normalize(r)
	require.NoError(t, err)

	assert.Equal(t, "Bo", res.Event.UserName)
	assert.Equal(t, "/pic/7.jpg", res.Event.EvidenceURL)
	assert.True(t, res.Event.Timestamp.Equal(time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)))
	assert.JSONEq(t, `{"event":"face_valid","userid":"7","user":"Bo","time":"2024-05-01 09:30:00","FaceUrl":"/pic/7.jpg"}`, string(res.Event.Raw))
}

func TestAkuvoxNormalizer_MissingEvent(t *testing.T) {
	_, err := webhook.AkuvoxNormalizer{}.Normalize(akuvoxRequest("mac=0c1105aabbcc"))
	require.ErrorIs(t, err, webhook.ErrMalformedPayload)
}
