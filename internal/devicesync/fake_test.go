package devicesync_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/terminal"
)

type pageResult struct {
	page *terminal.Page
	err  error
}

// fakeAdapter serves either scripted pages or a mutable directory paged by pageSize.
type fakeAdapter struct {
	mu       sync.Mutex
	dev      *device.Device
	script   []pageResult
	dir      []terminal.IdentityRecord
	pageSize int
	offsets  []int
	adds     int
	deletes  int
	addErr   func(terminal.IdentityRecord) error
	block    chan struct{}
}

func newFakeAdapter(class device.Class, records ...terminal.IdentityRecord) *fakeAdapter {
	return &fakeAdapter{
		dev:      &device.Device{ID: "dev_test", Name: "Test terminal", Brand: device.BrandHikvision, Class: class, Address: "http://10.0.0.9"},
		dir:      records,
		pageSize: 2,
	}
}

func (f *fakeAdapter) Brand() device.Brand    { return f.dev.Brand }
func (f *fakeAdapter) Device() *device.Device { return f.dev }

func (f *fakeAdapter) ListIdentitiesPage(_ context.Context, _ string, offset int) (*terminal.Page, error) {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	call := len(f.offsets)
	f.offsets = append(f.offsets, offset)

	if f.script != nil {
		if call >= len(f.script) {
			return nil, fmt.Errorf("unexpected page request %d", call+1)
		}
		return f.script[call].page, f.script[call].err
	}

	end := offset + f.pageSize
	if end > len(f.dir) {
		end = len(f.dir)
	}
	var records []terminal.IdentityRecord
	if offset < len(f.dir) {
		records = append(records, f.dir[offset:end]...)
	}
	return &terminal.Page{Records: records, Total: len(f.dir), IsLastPage: end >= len(f.dir)}, nil
}

func (f *fakeAdapter) AddIdentity(_ context.Context, rec terminal.IdentityRecord) error {
	if f.addErr != nil {
		if err := f.addErr(rec); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds++
	f.dir = append(f.dir, rec)
	return nil
}

func (f *fakeAdapter) DeleteIdentity(_ context.Context, _ int, userRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rec := range f.dir {
		if rec.UserRef == userRef {
			f.dir = append(f.dir[:i], f.dir[i+1:]...)
			f.deletes++
			return nil
		}
	}
	return errors.New("no such user")
}

func (f *fakeAdapter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.offsets)
}

func (f *fakeAdapter) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.dir))
	for _, rec := range f.dir {
		keys = append(keys, rec.Key())
	}
	return keys
}

// replacingAdapter adds full-replace export.
type replacingAdapter struct {
	*fakeAdapter
	replaces int
}

func (r *replacingAdapter) ReplaceAll(_ context.Context, records []terminal.IdentityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaces++
	r.dir = append([]terminal.IdentityRecord(nil), records...)
	return nil
}

// richAdapter adds access logs and face images.
type richAdapter struct {
	*fakeAdapter
	logs      []terminal.AccessLog
	faceCalls int
}

func (r *richAdapter) ListAccessLogs(context.Context) ([]terminal.AccessLog, error) {
	return r.logs, nil
}

func (r *richAdapter) FetchFace(_ context.Context, url string) ([]byte, string, error) {
	r.mu.Lock()
	r.faceCalls++
	r.mu.Unlock()
	return []byte("jpeg:" + url), "image/jpeg", nil
}

// failingIdentities fails the upsert of one external reference.
type failingIdentities struct {
	identity.Repository
	failRef string
}

func (f *failingIdentities) UpsertIdentity(ctx context.Context, e identity.Enrollment) (*identity.UpsertResult, error) {
	if e.ExternalRef == f.failRef {
		return nil, errors.New("constraint violation")
	}
	return f.Repository.UpsertIdentity(ctx, e)
}

type staticAdapters struct{ adapter terminal.Adapter }

func (s staticAdapters) ForDevice(*device.Device) (terminal.Adapter, error) { return s.adapter, nil }
