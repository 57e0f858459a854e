package hikvision

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/terminal"
)

const pathAcsEvent = "/ISAPI/AccessControl/AcsEvent?format=json"

// MajorAccessEvent is the ISAPI major type of access decisions.
const MajorAccessEvent = 5

// Outcome is the access decision encoded by an event's minor type.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeGranted
	OutcomeDenied
)

// minorOutcomes maps access-event minor types to decisions. Unlisted minors are telemetry
// (door state, tamper, remote commands).
var minorOutcomes = map[int]Outcome{
	1:  OutcomeGranted, // valid card
	2:  OutcomeGranted, // card and password
	3:  OutcomeDenied,  // card and password failed
	6:  OutcomeDenied,  // card has no permission
	7:  OutcomeDenied,  // card expired
	8:  OutcomeDenied,  // invalid card
	9:  OutcomeDenied,  // card does not exist
	38: OutcomeGranted, // fingerprint matched
	39: OutcomeDenied,  // fingerprint mismatch
	75: OutcomeGranted, // face authenticated
	76: OutcomeDenied,  // face authentication failed
}

// MinorOutcome returns the decision encoded by an access event.
func MinorOutcome(major, minor int) Outcome {
	if major != MajorAccessEvent {
		return OutcomeUnknown
	}
	return minorOutcomes[minor]
}

// ListAccessLogs replicates the terminal's access history, newest window first, capped at
// the configured maximum. LPR cameras keep no access history and return nothing.
func (a *Adapter) ListAccessLogs(ctx context.Context) ([]terminal.AccessLog, error) {
	const op = "list access logs"

	if a.dev.Class == device.ClassLPRCamera {
		return nil, nil
	}

	searchID := uuid.New().String()
	var logs []terminal.AccessLog

	for offset := 0; offset < a.maxLogs; {
		var req acsEventRequest
		req.AcsEventCond.SearchID = searchID
		req.AcsEventCond.SearchResultPosition = offset
		req.AcsEventCond.MaxResults = DefaultFacePageSize
		req.AcsEventCond.Major = MajorAccessEvent

		var resp acsEventResponse
		if err := a.doJSON(ctx, op, http.MethodPost, pathAcsEvent, req, &resp); err != nil {
			return nil, err
		}

		for _, info := range resp.AcsEvent.InfoList {
			logs = append(logs, toAccessLog(info))
		}

		n := len(resp.AcsEvent.InfoList)
		if resp.AcsEvent.ResponseStatusStrg != statusMore || n == 0 {
			break
		}
		offset += n
	}

	if len(logs) > a.maxLogs {
		logs = logs[:a.maxLogs]
	}
	return logs, nil
}

func toAccessLog(info acsEventInfo) terminal.AccessLog {
	ts, err := time.Parse(time.RFC3339, info.Time)
	if err != nil {
		ts = time.Time{}
	}

	id := strconv.FormatInt(info.SerialNo, 10)
	if info.SerialNo == 0 {
		id = info.Time + "/" + strconv.Itoa(info.Minor) + "/" + info.EmployeeNoString
	}

	return terminal.AccessLog{
		ExternalID: id,
		Time:       ts,
		UserRef:    info.EmployeeNoString,
		Name:       info.Name,
		CardCode:   info.CardNo,
		Method:     info.CurrentVerifyMode,
		Granted:    MinorOutcome(info.Major, info.Minor) == OutcomeGranted,
	}
}
