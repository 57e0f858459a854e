package webhook_test

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/event"
	"github.com/gatewarden/gatewarden/internal/webhook"
)

func jsonRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/webhooks/hikvision", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestPlateDecision(t *testing.T) {
	tests := []struct {
		plate string
		list  string
		want  event.Decision
	}{
		{"AB12CD", "allowList", event.DecisionGranted},
		{"AB12CD", "blockList", event.DecisionDenied},
		{"AB12CD", "otherList", event.DecisionDenied},
		{"AB12CD", "", event.DecisionDenied},
		{"unknown", "allowList", event.DecisionNoRead},
		{"UNKNOWN", "", event.DecisionNoRead},
		{"  ", "otherList", event.DecisionNoRead},
	}

	for _, tt := range tests {
		t.Run(tt.plate+"/"+tt.list, func(t *testing.T) {
			assert.Equal(t, tt.want, webhook.PlateDecision(tt.plate, tt.list))
		})
	}
}

func TestHikvisionNormalizer_ANPR(t *testing.T) {
	body := `{
		"ipAddress": "10.0.0.21",
		"macAddress": "A4:14:37:00:11:22",
		"channelName": "North gate",
		"dateTime": "2024-05-01T09:30:00+02:00",
		"eventType": "ANPR",
		"UUID": "evt-anpr-1",
		"ANPR": {"licensePlate": "AB12CD", "vehicleListName": "allowList"}
	}`

	res, err := webhook.HikvisionNormalizer{}.Normalize(jsonRequest(body))
	require.NoError(t, err)

	e := res.Event
	assert.Equal(t, "evt-anpr-1", e.ID)
	assert.Equal(t, event.SourceHikvision, e.Source)
	assert.Equal(t, event.CategoryANPR, e.Category)
	assert.Equal(t, event.DecisionGranted, e.Decision)
	assert.Equal(t, "AB12CD", e.Value)
	assert.Equal(t, "North gate", e.DeviceName)
	assert.Equal(t, "a41437001122", e.DeviceMAC)
	assert.True(t, e.Timestamp.Equal(time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)))
	assert.JSONEq(t, body, string(e.Raw))
}

func TestHikvisionNormalizer_NoReadKeepsValueEmpty(t *testing.T) {
	res, err := webhook.HikvisionNormalizer{}.Normalize(jsonRequest(
		`{"eventType":"ANPR","ANPR":{"licensePlate":"unknown","vehicleListName":"otherList"}}`))
	require.NoError(t, err)

	assert.Equal(t, event.DecisionNoRead, res.Event.Decision)
	assert.Empty(t, res.Event.Value)
	assert.NotEmpty(t, res.Event.ID)
	assert.False(t, res.Event.Timestamp.IsZero())
}

func TestHikvisionNormalizer_AccessControllerEvent(t *testing.T) {
	tests := []struct {
		name  string
		major int
		minor int
		want  event.Decision
	}{
		{"face pass", 5, 75, event.DecisionGranted},
		{"face fail", 5, 76, event.DecisionDenied},
		{"card pass", 5, 1, event.DecisionGranted},
		{"card does not exist", 5, 9, event.DecisionDenied},
		{"door open", 5, 21, event.DecisionNone},
		{"alarm", 1, 1, event.DecisionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"macAddress":"a4-14-37-00-11-22","eventType":"AccessControllerEvent",
				"AccessControllerEvent":{"deviceName":"Lobby","majorEventType":` + strconv.Itoa(tt.major) +
				`,"subEventType":` + strconv.Itoa(tt.minor) + `,"name":"Ann","employeeNoString":"1001","cardNo":"","serialNo":42}}`

			res, err := webhook.HikvisionNormalizer{}.Normalize(jsonRequest(body))
			require.NoError(t, err)

			e := res.Event
			assert.Equal(t, tt.want, e.Decision)
			assert.Equal(t, event.CategoryAccess, e.Category)
			assert.Equal(t, "a41437001122-42", e.ID)
			assert.Equal(t, "Lobby", e.DeviceName)
			assert.Equal(t, "1001", e.UserID)
			assert.Equal(t, "1001", e.Value)
			assert.Equal(t, "Ann", e.UserName)
		})
	}
}

func TestHikvisionNormalizer_XML(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<EventNotificationAlert version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
	<macAddress>a4:14:37:00:11:22</macAddress>
	<channelName>South gate</channelName>
	<dateTime>2024-05-01T09:30:00Z</dateTime>
	<eventType>ANPR</eventType>
	<ANPR><licensePlate>XY99ZZ</licensePlate><vehicleListName>blockList</vehicleListName></ANPR>
</EventNotificationAlert>`
	r := httptest.NewRequest(http.MethodPost, "/api/webhooks/hikvision", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/xml")

	res, err := webhook.HikvisionNormalizer{}.Normalize(r)
	require.NoError(t, err)

	assert.Equal(t, event.DecisionDenied, res.Event.Decision)
	assert.Equal(t, "XY99ZZ", res.Event.Value)
	assert.Equal(t, "South gate", res.Event.DeviceName)
	assert.Contains(t, string(res.Event.Raw), "EventNotificationAlert")
}

func multipartAlert(t *testing.T, alert string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	require.NoError(t, w.WriteField("event_log", alert))

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="licensePlatePicture.jpg"; filename="licensePlatePicture.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(image)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/webhooks/hikvision", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	return r
}

func TestHikvisionNormalizer_Multipart(t *testing.T) {
	r := multipartAlert(t, `{"eventType":"ANPR","UUID":"mp-1","ANPR":{"licensePlate":"AB12CD","vehicleListName":"allowList"}}`, []byte("jpegdata"))

	res, err := webhook.HikvisionNormalizer{}.Normalize(r)
	require.NoError(t, err)

	assert.Equal(t, "mp-1", res.Event.ID)
	assert.Equal(t, event.DecisionGranted, res.Event.Decision)
	require.Len(t, res.Attachments, 1)
	assert.Equal(t, "image/jpeg", res.Attachments[0].ContentType)
	assert.Equal(t, []byte("jpegdata"), res.Attachments[0].Data)
}

func TestHikvisionNormalizer_Malformed(t *testing.T) {
	for _, body := range []string{"", "{not json", "   "} {
		_, err := webhook.HikvisionNormalizer{}.Normalize(jsonRequest(body))
		assert.True(t, errors.Is(err, webhook.ErrMalformedPayload), "body %q", body)
	}
}
