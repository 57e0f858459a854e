package akuvox_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/terminal"
	"github.com/gatewarden/gatewarden/internal/terminal/akuvox"
	"github.com/gatewarden/gatewarden/internal/terminal/resilience"
)

func newAdapter(url string) terminal.Adapter {
	dev := &device.Device{
		ID:       "ak-1",
		Name:     "Lobby",
		Brand:    device.BrandAkuvox,
		Class:    device.ClassFaceTerminal,
		Address:  url,
		Username: "admin",
		Password: "secret",
	}
	cfg := resilience.DefaultClientConfig(dev.ID)
	cfg.MaxRetries = 0
	return akuvox.Factory(dev, cfg, zerolog.Nop())
}

func basicAuthOK(t *testing.T, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "admin", user)
	assert.Equal(t, "secret", pass)
}

func TestAdapter_ListIdentitiesPage(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		basicAuthOK(t, r)
		assert.Equal(t, "/api/user/get", r.URL.Path)
		_, _ = io.WriteString(w, `{"retcode":0,"action":"get","message":"OK","data":{"num":2,"item":[
			{"ID":"1","UserID":"1001","Name":"Ana","PrivatePIN":"1234","CardCode":"00AB12","FaceUrl":"/face/1001.jpg"},
			{"ID":"2","UserID":"1002","Name":"Bo"}]}}`)
	}))
	defer server.Close()

	adapter := newAdapter(server.URL)
	ctx := context.Background()

	page, err := adapter.ListIdentitiesPage(ctx, "ignored", 0)
	require.NoError(t, err)
	assert.True(t, page.IsLastPage)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, terminal.IdentityRecord{
		Index: 1, UserRef: "1001", Name: "Ana", PIN: "1234", CardCode: "00AB12", FaceURL: "/face/1001.jpg",
	}, page.Records[0])

	next, err := adapter.ListIdentitiesPage(ctx, "ignored", 2)
	require.NoError(t, err)
	assert.True(t, next.IsLastPage)
	assert.Empty(t, next.Records)
	assert.Equal(t, 1, calls, "later offsets never hit the device")
}

func TestAdapter_RetCodeIsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"retcode":-100,"action":"add","message":"UserID exists"}`)
	}))
	defer server.Close()

	err := newAdapter(server.URL).AddIdentity(context.Background(), terminal.IdentityRecord{UserRef: "1001"})
	var pe *terminal.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "UserID exists")
}

func TestAdapter_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newAdapter(server.URL).ListIdentitiesPage(context.Background(), "", 0)
	var ae *terminal.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, device.BrandAkuvox, ae.Device.Brand)
}

func TestAdapter_DeleteIdentity(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user/del", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"retcode":0,"action":"del","message":"OK"}`)
	}))
	defer server.Close()

	require.NoError(t, newAdapter(server.URL).DeleteIdentity(context.Background(), 7, "1007"))
	assert.Equal(t, "del", body["action"])
	items := body["data"].(map[string]any)["item"].([]any)
	assert.Equal(t, "7", items[0].(map[string]any)["ID"])
}

func TestAdapter_ReplaceAll(t *testing.T) {
	var actions []string
	added := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd struct {
			Action string `json:"action"`
			Data   struct {
				Item []map[string]string `json:"item"`
			} `json:"data"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		actions = append(actions, cmd.Action)
		added += len(cmd.Data.Item)
		_, _ = io.WriteString(w, `{"retcode":0,"message":"OK"}`)
	}))
	defer server.Close()

	records := make([]terminal.IdentityRecord, 150)
	for i := range records {
		records[i] = terminal.IdentityRecord{UserRef: "u", CardCode: "C"}
	}

	replacer, ok := newAdapter(server.URL).(terminal.Replacer)
	require.True(t, ok)
	require.NoError(t, replacer.ReplaceAll(context.Background(), records))

	assert.Equal(t, []string{"clear", "add", "add"}, actions)
	assert.Equal(t, 150, added)
}

func TestAdapter_ListAccessLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/doorlog/get", r.URL.Path)
		_, _ = io.WriteString(w, `{"retcode":0,"data":{"num":2,"item":[
			{"ID":"11","Date":"2024-03-01","Time":"08:00:00","Name":"Ana","UserID":"1001","Code":"00AB12","Type":"Card","Status":"Succ"},
			{"ID":"12","Date":"2024-03-01","Time":"08:05:00","Code":"FFFF","Type":"Card","Status":"Failed"}]}}`)
	}))
	defer server.Close()

	source := newAdapter(server.URL).(terminal.LogSource)
	logs, err := source.ListAccessLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "11", logs[0].ExternalID)
	assert.True(t, logs[0].Granted)
	assert.Equal(t, 8, logs[0].Time.Hour())
	assert.False(t, logs[1].Granted)
}

func TestAdapter_FetchFaceRelative(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		basicAuthOK(t, r)
		assert.Equal(t, "/face/1001.jpg", r.URL.Path)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8})
	}))
	defer server.Close()

	data, contentType, err := newAdapter(server.URL).(terminal.FaceFetcher).FetchFace(context.Background(), "/face/1001.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.Equal(t, []byte{0xff, 0xd8}, data)
}
