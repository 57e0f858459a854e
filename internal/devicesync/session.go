package devicesync

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode is the direction of a sync run.
type Mode string

const (
	// ModeImport copies the device directory into the central store.
	ModeImport Mode = "import"
	// ModeExport makes the device directory equal to the central store.
	ModeExport Mode = "export"
)

// Valid reports whether the mode is known.
func (m Mode) Valid() bool {
	return m == ModeImport || m == ModeExport
}

// State is the lifecycle state of a session.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Phase is the step a running session is in.
type Phase string

const (
	PhaseFetching    Phase = "fetching"
	PhaseReconciling Phase = "reconciling"
	PhaseApplying    Phase = "applying"
	PhaseLogs        Phase = "logs"
)

// Session errors.
var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrAbandoned         = errors.New("session abandoned")
)

// Tally counts per-item outcomes of a run.
type Tally struct {
	Success int `json:"success"`
	Faces   int `json:"faces"`
	Tags    int `json:"tags"`
	Failed  int `json:"failed"`

	// Created counts central records written by an import.
	Created int `json:"created"`
	// Added and Deleted count device records written by an export.
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
}

// Snapshot is a consistent copy of a session.
type Snapshot struct {
	ID         string     `json:"id"`
	DeviceID   string     `json:"deviceId"`
	Mode       Mode       `json:"mode"`
	State      State      `json:"state"`
	Phase      Phase      `json:"phase,omitempty"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Percent    int        `json:"percent"`
	Tally      Tally      `json:"tally"`
	Current    string     `json:"current,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Session tracks one import or export run. It is the single source of truth for progress;
// all methods are safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	id         string
	deviceID   string
	mode       Mode
	state      State
	phase      Phase
	total      int
	processed  int
	tally      Tally
	current    string
	err        error
	abandoned  bool
	startedAt  time.Time
	finishedAt time.Time
}

// NewSession creates an idle session.
func NewSession(deviceID string, mode Mode) *Session {
	return &Session{
		id:       "syn_" + uuid.New().String()[:22],
		deviceID: deviceID,
		mode:     mode,
		state:    StateIdle,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Mode returns the direction of the run.
func (s *Session) Mode() Mode { return s.mode }

// Start moves the session from idle to running.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, StateRunning)
	}
	s.state = StateRunning
	s.startedAt = time.Now()
	return nil
}

// Complete moves the session from running to completed.
func (s *Session) Complete() error {
	return s.finish(StateCompleted, nil)
}

// Abort moves the session from running to aborted, recording err.
func (s *Session) Abort(err error) error {
	return s.finish(StateAborted, err)
}

func (s *Session) finish(to State, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	s.err = err
	s.current = ""
	s.finishedAt = time.Now()
	return nil
}

// Abandon flags the session as discarded. The run stops before its next item; the item
// in flight is not interrupted.
func (s *Session) Abandon() {
	s.mu.Lock()
	s.abandoned = true
	s.mu.Unlock()
}

// Abandoned reports whether Abandon was called.
func (s *Session) Abandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abandoned
}

// Err returns the abort cause, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.processed = 0
	s.total = 0
	s.mu.Unlock()
}

func (s *Session) setProgress(processed, total int) {
	s.mu.Lock()
	s.processed = processed
	s.total = total
	s.mu.Unlock()
}

func (s *Session) setCurrent(item string) {
	s.mu.Lock()
	s.current = item
	s.mu.Unlock()
}

// update applies fn to the tally and advances the processed count by one.
func (s *Session) update(fn func(t *Tally)) {
	s.mu.Lock()
	fn(&s.tally)
	s.processed++
	s.mu.Unlock()
}

// adjust applies fn to the tally without advancing progress.
func (s *Session) adjust(fn func(t *Tally)) {
	s.mu.Lock()
	fn(&s.tally)
	s.mu.Unlock()
}

// Tally returns the current counters.
func (s *Session) Tally() Tally {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tally
}

// Snapshot returns a consistent copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.id,
		DeviceID:  s.deviceID,
		Mode:      s.mode,
		State:     s.state,
		Phase:     s.phase,
		Total:     s.total,
		Processed: s.processed,
		Percent:   Percent(s.processed, s.total),
		Tally:     s.tally,
		Current:   s.current,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}
