// Package akuvox implements the vendor adapter for Akuvox intercoms. The HTTP API returns the
// whole directory in one call and authenticates with HTTP basic auth.
package akuvox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/terminal"
	"github.com/gatewarden/gatewarden/internal/terminal/resilience"
)

const (
	pathUserGet    = "/api/user/get"
	pathUserAdd    = "/api/user/add"
	pathUserDel    = "/api/user/del"
	pathUserClear  = "/api/user/clear"
	pathDoorLogGet = "/api/doorlog/get"

	// addBatchSize bounds the items sent in one add call during a full replace.
	addBatchSize = 100

	// defaultRelaySchedule opens relay A on the always-on schedule.
	defaultRelaySchedule = "1001-1;"

	maxResponseBytes = 16 << 20
)

// Factory builds Akuvox adapters.
func Factory(d *device.Device, cfg resilience.ClientConfig, logger zerolog.Logger) terminal.Adapter {
	return New(d, resilience.NewClient(cfg), logger)
}

// Adapter talks to one Akuvox terminal.
type Adapter struct {
	dev        *device.Device
	ref        terminal.DeviceRef
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// New creates an adapter using an already configured client.
func New(d *device.Device, httpClient *resilience.Client, logger zerolog.Logger) *Adapter {
	return &Adapter{
		dev:        d,
		ref:        terminal.RefOf(d),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Brand returns the vendor implemented by the adapter.
func (a *Adapter) Brand() device.Brand { return device.BrandAkuvox }

// Device returns the terminal the adapter talks to.
func (a *Adapter) Device() *device.Device { return a.dev }

// ListIdentitiesPage returns the whole directory on the first page. Later offsets return an
// empty last page: the API has no server-side paging.
func (a *Adapter) ListIdentitiesPage(ctx context.Context, _ string, offset int) (*terminal.Page, error) {
	if offset > 0 {
		return &terminal.Page{IsLastPage: true}, nil
	}

	var resp envelope[itemList[userItem]]
	if err := a.call(ctx, "list users", http.MethodGet, pathUserGet, nil, &resp); err != nil {
		return nil, err
	}

	records := make([]terminal.IdentityRecord, 0, len(resp.Data.Item))
	for _, u := range resp.Data.Item {
		index, _ := strconv.Atoi(u.ID)
		records = append(records, terminal.IdentityRecord{
			Index:    index,
			UserRef:  u.UserID,
			Name:     u.Name,
			PIN:      u.PrivatePIN,
			CardCode: u.CardCode,
			FaceURL:  u.FaceURL,
		})
	}

	total := resp.Data.Num
	if total < len(records) {
		total = len(records)
	}
	return &terminal.Page{Records: records, Total: total, IsLastPage: true}, nil
}

// AddIdentity enrolls a subject.
func (a *Adapter) AddIdentity(ctx context.Context, record terminal.IdentityRecord) error {
	return a.addItems(ctx, []userItem{toUserItem(record)})
}

// DeleteIdentity removes the entry at the device index.
func (a *Adapter) DeleteIdentity(ctx context.Context, index int, _ string) error {
	if index <= 0 {
		return &terminal.ProtocolError{Device: a.ref, Op: "delete user", Detail: "missing device index"}
	}
	cmd := command[itemList[userRef]]{
		Target: "user",
		Action: "del",
		Data:   &itemList[userRef]{Item: []userRef{{ID: strconv.Itoa(index)}}},
	}
	return a.call(ctx, "delete user", http.MethodPost, pathUserDel, cmd, nil)
}

// ReplaceAll clears the directory and enrolls records in batches.
func (a *Adapter) ReplaceAll(ctx context.Context, records []terminal.IdentityRecord) error {
	wipe := command[struct{}]{Target: "user", Action: "clear"}
	if err := a.call(ctx, "clear users", http.MethodPost, pathUserClear, wipe, nil); err != nil {
		return err
	}

	for start := 0; start < len(records); start += addBatchSize {
		end := min(start+addBatchSize, len(records))
		items := make([]userItem, 0, end-start)
		for _, r := range records[start:end] {
			items = append(items, toUserItem(r))
		}
		if err := a.addItems(ctx, items); err != nil {
			return err
		}
	}

	a.logger.Info().Int("records", len(records)).Msg("directory replaced")
	return nil
}

func (a *Adapter) addItems(ctx context.Context, items []userItem) error {
	cmd := command[itemList[userItem]]{
		Target: "user",
		Action: "add",
		Data:   &itemList[userItem]{Num: len(items), Item: items},
	}
	return a.call(ctx, "add user", http.MethodPost, pathUserAdd, cmd, nil)
}

func toUserItem(r terminal.IdentityRecord) userItem {
	return userItem{
		UserID:        r.UserRef,
		Name:          r.Name,
		PrivatePIN:    r.PIN,
		CardCode:      r.CardCode,
		ScheduleRelay: defaultRelaySchedule,
		Type:          "0",
	}
}

// ListAccessLogs returns the door log kept by the terminal.
func (a *Adapter) ListAccessLogs(ctx context.Context) ([]terminal.AccessLog, error) {
	var resp envelope[itemList[doorLogItem]]
	if err := a.call(ctx, "list door logs", http.MethodGet, pathDoorLogGet, nil, &resp); err != nil {
		return nil, err
	}

	logs := make([]terminal.AccessLog, 0, len(resp.Data.Item))
	for _, item := range resp.Data.Item {
		ts, err := time.ParseInLocation("2006-01-02 15:04:05", item.Date+" "+item.Time, time.Local)
		if err != nil {
			ts = time.Time{}
		}
		logs = append(logs, terminal.AccessLog{
			ExternalID: item.ID,
			Time:       ts,
			UserRef:    item.UserID,
			Name:       item.Name,
			CardCode:   item.Code,
			Method:     item.Type,
			Granted:    strings.EqualFold(item.Status, "succ") || strings.EqualFold(item.Status, "success"),
		})
	}
	return logs, nil
}

// FetchFace downloads a face image. Relative URLs are resolved against the device address.
func (a *Adapter) FetchFace(ctx context.Context, url string) ([]byte, string, error) {
	const op = "fetch face"

	if strings.HasPrefix(url, "/") {
		url = a.dev.Address + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(a.dev.Username, a.dev.Password)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", terminal.TransportFailure(a.ref, op, err)
	}
	defer resp.Body.Close()

	if err := terminal.CheckStatus(a.ref, op, resp); err != nil {
		return nil, "", err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", &terminal.ConnectivityError{Device: a.ref, Op: op, Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// call performs one API call. out, when non-nil, must be an *envelope; the retcode of
// every answer is checked.
func (a *Adapter) call(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.dev.Address+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(a.dev.Username, a.dev.Password)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return terminal.TransportFailure(a.ref, op, err)
	}
	defer resp.Body.Close()

	if err := terminal.CheckStatus(a.ref, op, resp); err != nil {
		return err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &terminal.ConnectivityError{Device: a.ref, Op: op, Err: err}
	}

	var status envelope[json.RawMessage]
	if err := json.Unmarshal(data, &status); err != nil {
		return &terminal.ProtocolError{Device: a.ref, Op: op, Detail: "decoding response", Err: err}
	}
	if status.RetCode != 0 {
		a.logger.Debug().Str("op", op).Int("retcode", status.RetCode).Str("message", status.Message).Msg("device rejected request")
		return &terminal.ProtocolError{
			Device: a.ref,
			Op:     op,
			Detail: fmt.Sprintf("retcode %d: %s", status.RetCode, status.Message),
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &terminal.ProtocolError{Device: a.ref, Op: op, Detail: "decoding response", Err: err}
		}
	}
	return nil
}

var (
	_ terminal.Adapter     = (*Adapter)(nil)
	_ terminal.Replacer    = (*Adapter)(nil)
	_ terminal.LogSource   = (*Adapter)(nil)
	_ terminal.FaceFetcher = (*Adapter)(nil)
)
