// Package hikvision implements the vendor adapter for Hikvision ISAPI terminals: face
// terminals (AccessControl, JSON) and LPR cameras (Traffic, XML). Every call is
// authenticated with HTTP digest auth.
package hikvision

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	"github.com/icholy/digest"
	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/terminal"
	"github.com/gatewarden/gatewarden/internal/terminal/resilience"
)

// Page size defaults. Face terminals refuse more than 30 results per search call.
const (
	DefaultFacePageSize = 30
	DefaultLPRPageSize  = 100

	// DefaultMaxLogEntries caps one access-log replication pass.
	DefaultMaxLogEntries = 5000
)

// maxResponseBytes bounds a decoded ISAPI answer.
const maxResponseBytes = 8 << 20

// Options tunes the adapter.
type Options struct {
	// PageSize overrides the per-class page size when positive.
	PageSize int

	// MaxLogEntries caps access-log replication. Default: DefaultMaxLogEntries.
	MaxLogEntries int
}

// Factory returns a terminal.Factory building Hikvision adapters with opts.
func Factory(opts Options) terminal.Factory {
	return func(d *device.Device, cfg resilience.ClientConfig, logger zerolog.Logger) terminal.Adapter {
		cfg.Transport = &digest.Transport{
			Username: d.Username,
			Password: d.Password,
		}
		return New(d, resilience.NewClient(cfg), opts, logger)
	}
}

// Adapter talks to one Hikvision terminal.
type Adapter struct {
	dev        *device.Device
	ref        terminal.DeviceRef
	httpClient *resilience.Client
	pageSize   int
	maxLogs    int
	logger     zerolog.Logger
}

// New creates an adapter using an already configured client.
func New(d *device.Device, httpClient *resilience.Client, opts Options, logger zerolog.Logger) *Adapter {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultLPRPageSize
		if d.Class == device.ClassFaceTerminal {
			pageSize = DefaultFacePageSize
		}
	}
	maxLogs := opts.MaxLogEntries
	if maxLogs <= 0 {
		maxLogs = DefaultMaxLogEntries
	}

	return &Adapter{
		dev:        d,
		ref:        terminal.RefOf(d),
		httpClient: httpClient,
		pageSize:   pageSize,
		maxLogs:    maxLogs,
		logger:     logger,
	}
}

// Brand returns the vendor implemented by the adapter.
func (a *Adapter) Brand() device.Brand { return device.BrandHikvision }

// Device returns the terminal the adapter talks to.
func (a *Adapter) Device() *device.Device { return a.dev }

// ListIdentitiesPage returns one page of the onboard directory.
func (a *Adapter) ListIdentitiesPage(ctx context.Context, cursor string, offset int) (*terminal.Page, error) {
	if a.dev.Class == device.ClassLPRCamera {
		return a.listPlatesPage(ctx, cursor, offset)
	}
	return a.listUsersPage(ctx, cursor, offset)
}

// AddIdentity enrolls a subject.
func (a *Adapter) AddIdentity(ctx context.Context, record terminal.IdentityRecord) error {
	if a.dev.Class == device.ClassLPRCamera {
		return a.addPlate(ctx, record)
	}
	return a.addUser(ctx, record)
}

// DeleteIdentity removes a subject. LPR cameras address plates by index, face terminals by
// employee number.
func (a *Adapter) DeleteIdentity(ctx context.Context, index int, userRef string) error {
	if a.dev.Class == device.ClassLPRCamera {
		return a.deletePlate(ctx, index)
	}
	return a.deleteUser(ctx, userRef)
}

// doJSON sends a JSON request and decodes the JSON answer into out when out is non-nil.
func (a *Adapter) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	data, err := a.do(ctx, op, method, path, "application/json", body)
	if err != nil {
		return err
	}

	if out == nil {
		return a.checkResponseStatus(op, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &terminal.ProtocolError{Device: a.ref, Op: op, Detail: "decoding response", Err: err}
	}
	return nil
}

// doXML sends an XML request and decodes the XML answer into out.
func (a *Adapter) doXML(ctx context.Context, op, method, path string, in, out any) error {
	body, err := xml.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	data, err := a.do(ctx, op, method, path, "application/xml", body)
	if err != nil {
		return err
	}

	if err := xml.Unmarshal(data, out); err != nil {
		return &terminal.ProtocolError{Device: a.ref, Op: op, Detail: "decoding response", Err: err}
	}
	return nil
}

func (a *Adapter) do(ctx context.Context, op, method, path, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.dev.Address+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, terminal.TransportFailure(a.ref, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &terminal.ConnectivityError{Device: a.ref, Op: op, Err: err}
	}

	if err := terminal.CheckStatus(a.ref, op, resp); err != nil {
		a.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Bytes("body", truncate(data, 512)).Msg("device rejected request")
		return nil, err
	}

	return data, nil
}

// checkResponseStatus validates a bare ISAPI ResponseStatus answer.
func (a *Adapter) checkResponseStatus(op string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var status responseStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return &terminal.ProtocolError{Device: a.ref, Op: op, Detail: "decoding response status", Err: err}
	}
	if status.StatusCode != 0 && status.StatusCode != 1 {
		detail := status.SubStatusCode
		if status.ErrorMsg != "" {
			detail += ": " + status.ErrorMsg
		}
		return &terminal.ProtocolError{Device: a.ref, Op: op, Detail: "device error " + detail}
	}
	return nil
}

// FetchFace downloads an enrolled face image from the device.
func (a *Adapter) FetchFace(ctx context.Context, url string) ([]byte, string, error) {
	const op = "fetch face"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

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

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

var (
	_ terminal.Adapter     = (*Adapter)(nil)
	_ terminal.LogSource   = (*Adapter)(nil)
	_ terminal.FaceFetcher = (*Adapter)(nil)
)
