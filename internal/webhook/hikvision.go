package webhook

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/event"
	"github.com/gatewarden/gatewarden/internal/terminal/hikvision"
)

// eventLogPart is the multipart field carrying the alert document.
const eventLogPart = "event_log"

// noReadPlate is reported by cameras that detected a vehicle but could not read its plate.
const noReadPlate = "unknown"

// listAllow is the plate list of admitted vehicles. Reads matched on blockList or
// otherList, or on no list at all, are denials.
const listAllow = "allowList"

type alert struct {
	XMLName     xml.Name `json:"-" xml:"EventNotificationAlert"`
	IPAddress   string   `json:"ipAddress" xml:"ipAddress"`
	MACAddress  string   `json:"macAddress" xml:"macAddress"`
	ChannelName string   `json:"channelName" xml:"channelName"`
	DateTime    string   `json:"dateTime" xml:"dateTime"`
	EventType   string   `json:"eventType" xml:"eventType"`
	UUID        string   `json:"UUID" xml:"UUID"`
	EventID     string   `json:"eventId" xml:"eventId"`

	ANPR   *anprInfo   `json:"ANPR" xml:"ANPR"`
	Access *accessInfo `json:"AccessControllerEvent" xml:"AccessControllerEvent"`
}

type anprInfo struct {
	LicensePlate    string `json:"licensePlate" xml:"licensePlate"`
	VehicleListName string `json:"vehicleListName" xml:"vehicleListName"`
}

type accessInfo struct {
	DeviceName       string `json:"deviceName" xml:"deviceName"`
	MajorEventType   int    `json:"majorEventType" xml:"majorEventType"`
	SubEventType     int    `json:"subEventType" xml:"subEventType"`
	Name             string `json:"name" xml:"name"`
	EmployeeNoString string `json:"employeeNoString" xml:"employeeNoString"`
	CardNo           string `json:"cardNo" xml:"cardNo"`
	SerialNo         int64  `json:"serialNo" xml:"serialNo"`
}

// HikvisionNormalizer maps ISAPI EventNotificationAlert pushes, sent as a JSON or XML body
// or as a multipart form with the alert in its event_log part and snapshots alongside.
type HikvisionNormalizer struct{}

// Source implements Normalizer.
func (HikvisionNormalizer) Source() event.Source { return event.SourceHikvision }

// Normalize implements Normalizer.
func (HikvisionNormalizer) Normalize(r *http.Request) (*Normalized, error) {
	doc, attachments, err := readAlert(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, fmt.Errorf("%w: empty alert", ErrMalformedPayload)
	}

	var a alert
	if isXML(doc) {
		err = xml.Unmarshal(doc, &a)
	} else {
		err = json.Unmarshal(doc, &a)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return &Normalized{Event: mapAlert(&a, doc), Attachments: attachments}, nil
}

func mapAlert(a *alert, doc []byte) event.CanonicalEvent {
	mac := device.NormalizeMAC(a.MACAddress)
	e := event.CanonicalEvent{
		ID:         alertID(a, mac),
		Timestamp:  orNow(parseAlertTime(a.DateTime)),
		Source:     event.SourceHikvision,
		DeviceName: a.ChannelName,
		DeviceMAC:  mac,
		Raw:        rawPayload(doc),
	}

	switch {
	case a.ANPR != nil || strings.EqualFold(a.EventType, "ANPR"):
		var info anprInfo
		if a.ANPR != nil {
			info = *a.ANPR
		}
		e.Category = event.CategoryANPR
		e.Decision = PlateDecision(info.LicensePlate, info.VehicleListName)
		if e.Decision != event.DecisionNoRead {
			e.Value = strings.TrimSpace(info.LicensePlate)
		}

	case a.Access != nil:
		ace := a.Access
		e.Category = event.CategoryAccess
		if ace.DeviceName != "" {
			e.DeviceName = ace.DeviceName
		}
		switch hikvision.MinorOutcome(ace.MajorEventType, ace.SubEventType) {
		case hikvision.OutcomeGranted:
			e.Decision = event.DecisionGranted
		case hikvision.OutcomeDenied:
			e.Decision = event.DecisionDenied
		default:
			e.Decision = event.DecisionNone
		}
		e.Value = ace.CardNo
		if e.Value == "" {
			e.Value = ace.EmployeeNoString
		}
		e.UserID = ace.EmployeeNoString
		e.UserName = ace.Name

	default:
		e.Category = event.CategoryOther
		e.Decision = event.DecisionNone
	}
	return e
}

// PlateDecision is the three-way outcome of a plate read: NO_READ when the camera could
// not read a plate, GRANTED for the allow list, DENIED otherwise.
func PlateDecision(plate, list string) event.Decision {
	plate = strings.TrimSpace(plate)
	if plate == "" || strings.EqualFold(plate, noReadPlate) {
		return event.DecisionNoRead
	}
	if list == listAllow {
		return event.DecisionGranted
	}
	return event.DecisionDenied
}

func alertID(a *alert, mac string) string {
	switch {
	case a.UUID != "":
		return a.UUID
	case a.EventID != "":
		return a.EventID
	case a.Access != nil && a.Access.SerialNo > 0:
		// Serial numbers are only unique per terminal.
		return fmt.Sprintf("%s-%d", mac, a.Access.SerialNo)
	default:
		return newEventID()
	}
}

func parseAlertTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func isXML(doc []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(doc), []byte("<"))
}

// readAlert returns the alert document and any files sent with it.
func readAlert(r *http.Request) ([]byte, []Attachment, error) {
	if r.Body == nil {
		return nil, nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	if mediaType(r.Header.Get("Content-Type")) != "multipart/form-data" {
		doc, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
		if err != nil {
			return nil, nil, bodyError("reading body", err)
		}
		if len(doc) > MaxBodyBytes {
			return nil, nil, ErrPayloadTooLarge
		}
		return doc, nil, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var doc []byte
	var attachments []Attachment
	budget := int64(MaxBodyBytes)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, bodyError("next part", err)
		}

		data, err := io.ReadAll(io.LimitReader(part, budget+1))
		_ = part.Close()
		if err != nil {
			return nil, nil, bodyError("reading part "+strconv.Quote(part.FormName()), err)
		}
		budget -= int64(len(data))
		if budget < 0 {
			return nil, nil, ErrPayloadTooLarge
		}

		ct := mediaType(part.Header.Get("Content-Type"))
		switch {
		case part.FormName() == eventLogPart:
			doc = data
		case strings.HasPrefix(ct, "image/"):
			attachments = append(attachments, Attachment{Name: part.FileName(), ContentType: ct, Data: data})
		case doc == nil && (ct == "application/json" || ct == "application/xml" || ct == "text/xml"):
			doc = data
		}
	}
	return doc, attachments, nil
}
