package hikvision

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/terminal"
)

const (
	pathUserSearch = "/ISAPI/AccessControl/UserInfo/Search?format=json"
	pathUserRecord = "/ISAPI/AccessControl/UserInfo/Record?format=json"
	pathUserDelete = "/ISAPI/AccessControl/UserInfo/Delete?format=json"
	pathCardSearch = "/ISAPI/AccessControl/CardInfo/Search?format=json"
	pathCardRecord = "/ISAPI/AccessControl/CardInfo/Record?format=json"
	pathFaceSearch = "/ISAPI/Intelligent/FDLib/FDSearch?format=json"
)

func (a *Adapter) listUsersPage(ctx context.Context, cursor string, offset int) (*terminal.Page, error) {
	const op = "list users"

	var req userInfoSearchRequest
	req.UserInfoSearchCond = searchCond{SearchID: cursor, SearchResultPosition: offset, MaxResults: a.pageSize}

	var resp userInfoSearchResponse
	if err := a.doJSON(ctx, op, http.MethodPost, pathUserSearch, req, &resp); err != nil {
		return nil, err
	}

	search := resp.UserInfoSearch
	switch search.ResponseStatusStrg {
	case statusOK, statusMore, statusNoMatch:
	default:
		return nil, &terminal.ProtocolError{Device: a.ref, Op: op, Detail: "unexpected search status " + search.ResponseStatusStrg}
	}

	cards, err := a.cardsFor(ctx, search.UserInfo)
	if err != nil {
		return nil, err
	}

	records := make([]terminal.IdentityRecord, 0, len(search.UserInfo))
	for i, u := range search.UserInfo {
		rec := terminal.IdentityRecord{
			Index:    offset + i + 1,
			UserRef:  u.EmployeeNo,
			Name:     u.Name,
			PIN:      u.Password,
			CardCode: cards[u.EmployeeNo],
		}
		if u.NumOfFace > 0 {
			faceURL, err := a.faceURL(ctx, u.EmployeeNo)
			if err != nil {
				a.logger.Warn().Err(err).Str("employee_no", u.EmployeeNo).Msg("face lookup failed")
			}
			rec.FaceURL = faceURL
		}
		records = append(records, rec)
	}

	return &terminal.Page{
		Records:    records,
		Total:      search.TotalMatches,
		IsLastPage: search.ResponseStatusStrg != statusMore,
	}, nil
}

// cardsFor resolves the first card of every user in the page that holds one.
func (a *Adapter) cardsFor(ctx context.Context, users []userInfo) (map[string]string, error) {
	cards := make(map[string]string)

	var refs []employeeRef
	for _, u := range users {
		if u.NumOfCard > 0 {
			refs = append(refs, employeeRef{EmployeeNo: u.EmployeeNo})
		}
	}
	if len(refs) == 0 {
		return cards, nil
	}

	var req cardInfoSearchRequest
	req.CardInfoSearchCond.SearchID = uuid.New().String()
	req.CardInfoSearchCond.MaxResults = len(refs) * 5
	req.CardInfoSearchCond.EmployeeNoList = refs

	var resp cardInfoSearchResponse
	if err := a.doJSON(ctx, "list cards", http.MethodPost, pathCardSearch, req, &resp); err != nil {
		return nil, err
	}

	for _, c := range resp.CardInfoSearch.CardInfo {
		if _, seen := cards[c.EmployeeNo]; !seen {
			cards[c.EmployeeNo] = c.CardNo
		}
	}
	return cards, nil
}

func (a *Adapter) faceURL(ctx context.Context, employeeNo string) (string, error) {
	req := faceSearchRequest{
		MaxResults:  1,
		FaceLibType: "blackFD",
		FDID:        "1",
		FPID:        employeeNo,
	}

	var resp faceSearchResponse
	if err := a.doJSON(ctx, "search face", http.MethodPost, pathFaceSearch, req, &resp); err != nil {
		return "", err
	}
	for _, m := range resp.MatchList {
		if m.FPID == employeeNo {
			return m.FaceURL, nil
		}
	}
	return "", nil
}

func (a *Adapter) addUser(ctx context.Context, record terminal.IdentityRecord) error {
	const op = "add user"

	employeeNo := strings.TrimSpace(record.UserRef)
	if employeeNo == "" {
		return &terminal.ProtocolError{Device: a.ref, Op: op, Detail: "record has no user reference"}
	}

	req := userInfoRecordRequest{
		UserInfo: userInfo{
			EmployeeNo: employeeNo,
			Name:       record.Name,
			UserType:   "normal",
			Password:   record.PIN,
			Valid: &validity{
				Enable:    true,
				BeginTime: "2000-01-01T00:00:00",
				EndTime:   "2037-12-31T23:59:59",
				TimeType:  "local",
			},
			DoorRight: "1",
			RightPlan: []doorPlan{{DoorNo: 1, PlanTemplateNo: "1"}},
		},
	}
	if err := a.doJSON(ctx, op, http.MethodPost, pathUserRecord, req, nil); err != nil {
		return err
	}

	if record.CardCode == "" {
		return nil
	}
	card := cardInfoRecordRequest{
		CardInfo: cardInfo{EmployeeNo: employeeNo, CardNo: record.CardCode, CardType: "normalCard"},
	}
	return a.doJSON(ctx, "add card", http.MethodPost, pathCardRecord, card, nil)
}

func (a *Adapter) deleteUser(ctx context.Context, employeeNo string) error {
	if employeeNo == "" {
		return &terminal.ProtocolError{Device: a.ref, Op: "delete user", Detail: "missing user reference"}
	}

	var req userInfoDeleteRequest
	req.UserInfoDelCond.EmployeeNoList = []employeeRef{{EmployeeNo: employeeNo}}

	return a.doJSON(ctx, "delete user", http.MethodPut, pathUserDelete, req, nil)
}
