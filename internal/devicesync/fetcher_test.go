package devicesync_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/devicesync"
	"github.com/gatewarden/gatewarden/internal/terminal"
)

func plates(from, n int) []terminal.IdentityRecord {
	records := make([]terminal.IdentityRecord, 0, n)
	for i := from; i < from+n; i++ {
		records = append(records, terminal.IdentityRecord{Index: i + 1, CardCode: fmt.Sprintf("PL%04d", i)})
	}
	return records
}

func newFetcher(safetyCap int) *devicesync.Fetcher {
	return devicesync.NewFetcher(safetyCap, nil, zerolog.Nop())
}

func TestFetcher_StopsOnLastPage(t *testing.T) {
	adapter := newFakeAdapter(device.ClassLPRCamera)
	adapter.script = []pageResult{
		{page: &terminal.Page{Records: plates(0, 10), Total: 25}},
		{page: &terminal.Page{Records: plates(10, 10), Total: 25}},
		{page: &terminal.Page{Records: plates(20, 5), Total: 25, IsLastPage: true}},
	}

	var percents []int
	records, err := newFetcher(0).FetchAll(context.Background(), adapter, func(_, _, percent int) {
		percents = append(percents, percent)
	})
	require.NoError(t, err)

	assert.Len(t, records, 25)
	assert.Equal(t, 3, adapter.calls(), "no fourth page may be requested")
	assert.Equal(t, []int{0, 10, 20}, adapter.offsets)
	assert.Equal(t, []int{40, 80, 100}, percents)
}

func TestFetcher_TerminationConditions(t *testing.T) {
	tests := []struct {
		name      string
		script    []pageResult
		safetyCap int
		wantLen   int
		wantCalls int
	}{
		{
			name: "processed reaches total",
			script: []pageResult{
				{page: &terminal.Page{Records: plates(0, 3), Total: 6}},
				{page: &terminal.Page{Records: plates(3, 3), Total: 6}},
			},
			wantLen:   6,
			wantCalls: 2,
		},
		{
			name: "device returns more than it claims",
			script: []pageResult{
				{page: &terminal.Page{Records: plates(0, 8), Total: 5}},
			},
			wantLen:   8,
			wantCalls: 1,
		},
		{
			name: "empty page without total",
			script: []pageResult{
				{page: &terminal.Page{}},
			},
			wantLen:   0,
			wantCalls: 1,
		},
		{
			name: "empty page before claimed total",
			script: []pageResult{
				{page: &terminal.Page{Records: plates(0, 4), Total: 100}},
				{page: &terminal.Page{Total: 100}},
			},
			wantLen:   4,
			wantCalls: 2,
		},
		{
			name: "safety cap",
			script: []pageResult{
				{page: &terminal.Page{Records: plates(0, 10), Total: 1000000}},
				{page: &terminal.Page{Records: plates(10, 10), Total: 1000000}},
				{page: &terminal.Page{Records: plates(20, 10), Total: 1000000}},
			},
			safetyCap: 30,
			wantLen:   30,
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newFakeAdapter(device.ClassLPRCamera)
			adapter.script = tt.script

			records, err := newFetcher(tt.safetyCap).FetchAll(context.Background(), adapter, nil)
			require.NoError(t, err)
			assert.Len(t, records, tt.wantLen)
			assert.Equal(t, tt.wantCalls, adapter.calls())
		})
	}
}

func TestFetcher_DeduplicatesByKey(t *testing.T) {
	adapter := newFakeAdapter(device.ClassFaceTerminal)
	adapter.script = []pageResult{
		{page: &terminal.Page{Total: 5, Records: []terminal.IdentityRecord{
			{UserRef: "1", CardCode: "ab-12"},
			{UserRef: "2", CardCode: "AB12"},
			{UserRef: "3"},
		}}},
		{page: &terminal.Page{Total: 5, IsLastPage: true, Records: []terminal.IdentityRecord{
			{UserRef: "", CardCode: " "},
			{UserRef: "3"},
		}}},
	}

	records, err := newFetcher(0).FetchAll(context.Background(), adapter, nil)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].UserRef)
	assert.Equal(t, "3", records[1].UserRef)
}

func TestFetcher_PageErrorDiscardsRecords(t *testing.T) {
	adapter := newFakeAdapter(device.ClassLPRCamera)
	pageErr := &terminal.ConnectivityError{Device: terminal.RefOf(adapter.dev), Op: "list", Err: errors.New("no route to host")}
	adapter.script = []pageResult{
		{page: &terminal.Page{Records: plates(0, 10), Total: 30}},
		{err: pageErr},
	}

	records, err := newFetcher(0).FetchAll(context.Background(), adapter, nil)
	assert.Nil(t, records)

	var connErr *terminal.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "Test terminal", connErr.Device.Name)
	assert.Equal(t, 2, adapter.calls())
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, devicesync.Percent(5, 0))
	assert.Equal(t, 33, devicesync.Percent(1, 3))
	assert.Equal(t, 67, devicesync.Percent(2, 3))
	assert.Equal(t, 100, devicesync.Percent(12, 10))
}
