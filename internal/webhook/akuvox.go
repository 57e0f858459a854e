package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/event"
)

// akuvoxMapping describes how one Akuvox event category maps to the canonical shape.
type akuvoxMapping struct {
	category string
	decision event.Decision

	// value names the parameter carrying the canonical value, if any.
	value string

	// withUser copies the userid and user parameters.
	withUser bool
}

var akuvoxEvents = map[string]akuvoxMapping{
	"face_valid":    {category: event.CategoryFace, decision: event.DecisionGranted, value: "userid", withUser: true},
	"face_invalid":  {category: event.CategoryFace, decision: event.DecisionDenied},
	"card_valid":    {category: event.CategoryCard, decision: event.DecisionGranted, value: "card", withUser: true},
	"card_invalid":  {category: event.CategoryCard, decision: event.DecisionDenied, value: "card"},
	"pin_valid":     {category: event.CategoryPIN, decision: event.DecisionGranted, withUser: true},
	"qr_valid":      {category: event.CategoryQR, decision: event.DecisionGranted, value: "qrcode"},
	"relay_trigger": {category: event.CategoryRelay, decision: event.DecisionNone, value: "relay"},
	"relay_close":   {category: event.CategoryRelay, decision: event.DecisionNone, value: "relay"},
	"input_trigger": {category: event.CategoryInput, decision: event.DecisionNone, value: "input"},
	"input_close":   {category: event.CategoryInput, decision: event.DecisionNone, value: "input"},
	"call_start":    {category: event.CategoryCall, decision: event.DecisionNone, value: "number"},
	"call_end":      {category: event.CategoryCall, decision: event.DecisionNone, value: "number"},
	"call_missed":   {category: event.CategoryCall, decision: event.DecisionNone, value: "number"},
	"boot":          {category: event.CategorySystem, decision: event.DecisionNone},
}

// unlockPrefix starts the categories of doors opened by other means (unlock_http,
// unlock_button, ...). The suffix becomes the value.
const unlockPrefix = "unlock_"

// AkuvoxNormalizer maps Akuvox action URL calls, which carry everything in the query
// string (or a form body) keyed by the event parameter.
type AkuvoxNormalizer struct{}

// Source implements Normalizer.
func (AkuvoxNormalizer) Source() event.Source { return event.SourceAkuvox }

// Normalize implements Normalizer.
func (AkuvoxNormalizer) Normalize(r *http.Request) (*Normalized, error) {
	if err := r.ParseForm(); err != nil {
		return nil, bodyError("parsing form", err)
	}
	params := r.Form

	name := strings.ToLower(strings.TrimSpace(params.Get("event")))
	if name == "" {
		return nil, fmt.Errorf("%w: missing event parameter", ErrMalformedPayload)
	}

	e := event.CanonicalEvent{
		ID:        params.Get("id"),
		Timestamp: orNow(parseAkuvoxTime(params.Get("time"))),
		Source:    event.SourceAkuvox,
		DeviceMAC: device.NormalizeMAC(params.Get("mac")),
		Raw:       rawParams(params),
	}
	if e.ID == "" {
		e.ID = newEventID()
	}

	m, known := akuvoxEvents[name]
	switch {
	case known:
		e.Category = m.category
		e.Decision = m.decision
		if m.value != "" {
			e.Value = params.Get(m.value)
		}
		if m.withUser {
			e.UserID = params.Get("userid")
			e.UserName = params.Get("user")
		}
	case strings.HasPrefix(name, unlockPrefix):
		e.Category = event.CategoryUnlock
		e.Decision = event.DecisionGranted
		e.Value = strings.TrimPrefix(name, unlockPrefix)
	default:
		e.Category = event.CategoryOther
		e.Decision = event.DecisionNone
	}

	// Face events carry a capture link instead of the image itself.
	if e.Category == event.CategoryFace {
		e.EvidenceURL = strings.TrimSpace(params.Get("PicUrl"))
		if e.EvidenceURL == "" {
			e.EvidenceURL = strings.TrimSpace(params.Get("FaceUrl"))
		}
	}

	return &Normalized{Event: e}, nil
}

// parseAkuvoxTime accepts unix seconds or a local wall-clock timestamp.
func parseAkuvoxTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func rawParams(params url.Values) json.RawMessage {
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	data, _ := json.Marshal(flat)
	return data
}
