package hikvision

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gatewarden/gatewarden/internal/terminal"
)

const (
	pathPlateSearch = "/ISAPI/Traffic/channels/1/searchLPListAudit"
	pathPlateRecord = "/ISAPI/Traffic/channels/1/LicensePlateAuditData/Record?format=json"
	pathPlateDelete = "/ISAPI/Traffic/channels/1/LicensePlateAuditData/Delete?format=json"

	listTypeAllow = "whiteList"
	listTypeDeny  = "blackList"
)

func (a *Adapter) listPlatesPage(ctx context.Context, cursor string, offset int) (*terminal.Page, error) {
	const op = "list plates"

	req := lpSearchCond{SearchID: cursor, MaxResult: a.pageSize, SearchResultPosition: offset}

	var resp lpListAuditSearchResult
	if err := a.doXML(ctx, op, http.MethodPost, pathPlateSearch, req, &resp); err != nil {
		return nil, err
	}

	switch resp.ResponseStatusStrg {
	case statusOK, statusMore, statusNoMatch:
	default:
		return nil, &terminal.ProtocolError{Device: a.ref, Op: op, Detail: "unexpected search status " + resp.ResponseStatusStrg}
	}

	records := make([]terminal.IdentityRecord, 0, len(resp.Plates))
	for _, p := range resp.Plates {
		records = append(records, terminal.IdentityRecord{
			Index:    p.ID,
			CardCode: p.LicensePlate,
			Denied:   p.ListType != listTypeAllow,
		})
	}

	return &terminal.Page{
		Records:    records,
		Total:      resp.TotalMatches,
		IsLastPage: resp.ResponseStatusStrg != statusMore,
	}, nil
}

func (a *Adapter) addPlate(ctx context.Context, record terminal.IdentityRecord) error {
	if record.CardCode == "" {
		return &terminal.ProtocolError{Device: a.ref, Op: "add plate", Detail: "record has no plate"}
	}

	listType := listTypeAllow
	if record.Denied {
		listType = listTypeDeny
	}

	req := licensePlateRecordRequest{
		LicensePlateInfoList: []licensePlateInfo{{
			LicensePlate: record.CardCode,
			ListType:     listType,
			StartDate:    time.Now().Format("2006-01-02"),
			EndDate:      "2037-12-31",
		}},
	}
	return a.doJSON(ctx, "add plate", http.MethodPut, pathPlateRecord, req, nil)
}

func (a *Adapter) deletePlate(ctx context.Context, index int) error {
	if index <= 0 {
		return &terminal.ProtocolError{Device: a.ref, Op: "delete plate", Detail: "missing plate index"}
	}
	req := licensePlateDeleteRequest{ID: []string{strconv.Itoa(index)}}
	return a.doJSON(ctx, "delete plate", http.MethodPut, pathPlateDelete, req, nil)
}
