package devicesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/accesslog"
	"github.com/gatewarden/gatewarden/internal/blob"
	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/terminal"
)

// DefaultItemDelay paces import items so operators can follow progress.
const DefaultItemDelay = 150 * time.Millisecond

// ItemError is the failure of a single identity. It is tallied, never fatal to a run.
type ItemError struct {
	Key string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s: %v", e.Key, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// ExecutorConfig holds the dependencies of an Executor.
type ExecutorConfig struct {
	Identities identity.Repository
	AccessLogs accesslog.Repository
	Blobs      blob.Store
	Fetcher    *Fetcher

	// ItemDelay is slept between import items. Zero disables it.
	ItemDelay time.Duration

	Metrics *Metrics
	Logger  zerolog.Logger
}

// Executor runs import and export sessions against one adapter at a time.
type Executor struct {
	identities identity.Repository
	accessLogs accesslog.Repository
	blobs      blob.Store
	fetcher    *Fetcher
	itemDelay  time.Duration
	metrics    *Metrics
	logger     zerolog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(DefaultSafetyCap, cfg.Metrics, cfg.Logger)
	}
	return &Executor{
		identities: cfg.Identities,
		accessLogs: cfg.AccessLogs,
		blobs:      cfg.Blobs,
		fetcher:    fetcher,
		itemDelay:  cfg.ItemDelay,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Run starts s and drives it to completion. Vendor errors abort the session and are
// returned; item failures only show up in the tally.
func (e *Executor) Run(ctx context.Context, adapter terminal.Adapter, s *Session) error {
	if err := s.Start(); err != nil {
		return err
	}

	dev := adapter.Device()
	log := e.logger.With().
		Str("session_id", s.ID()).
		Str("device_id", dev.ID).
		Str("mode", string(s.Mode())).
		Logger()
	log.Info().Msg("Sync started")

	var err error
	switch s.Mode() {
	case ModeImport:
		err = e.runImport(ctx, adapter, s, log)
	case ModeExport:
		err = e.runExport(ctx, adapter, s, log)
	default:
		err = fmt.Errorf("unknown sync mode %q", s.Mode())
	}

	tally := s.Tally()
	if err != nil {
		_ = s.Abort(err)
		e.metrics.recordRun(ctx, s.Mode(), StateAborted)
		log.Error().Err(err).Interface("tally", tally).Msg("Sync aborted")
		return err
	}

	_ = s.Complete()
	e.metrics.recordRun(ctx, s.Mode(), StateCompleted)
	log.Info().Interface("tally", tally).Msg("Sync completed")
	return nil
}

// Preview lists the device and reconciles it against the central store without writing.
func (e *Executor) Preview(ctx context.Context, adapter terminal.Adapter) (*Reconciliation, error) {
	records, err := e.fetcher.FetchAll(ctx, adapter, nil)
	if err != nil {
		return nil, err
	}
	rec, err := e.reconcile(ctx, adapter.Device(), records)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// fetch lists the device directory. Deny-list entries are left out: they are device-local
// policy that neither imports into nor is removed by an export.
func (e *Executor) fetch(ctx context.Context, adapter terminal.Adapter, s *Session) ([]terminal.IdentityRecord, error) {
	s.setPhase(PhaseFetching)
	records, err := e.fetcher.FetchAll(ctx, adapter, func(processed, total, _ int) {
		s.setProgress(processed, total)
	})
	if err != nil {
		return nil, err
	}
	return grants(records), nil
}

// reconcile compares device records with the credentials of the device's scope.
func (e *Executor) reconcile(ctx context.Context, d *device.Device, records []terminal.IdentityRecord) (Reconciliation, error) {
	creds, err := e.identities.ListCredentials(ctx, identity.CredentialFilter{Types: scopeTypes(d.Class)})
	if err != nil {
		return Reconciliation{}, fmt.Errorf("listing credentials: %w", err)
	}

	credKeys := make([]string, 0, len(creds))
	for _, c := range creds {
		credKeys = append(credKeys, c.Key)
	}

	// Face terminals carry no enrichment profile beyond the credential itself.
	enriched := credKeys
	if d.Class == device.ClassLPRCamera {
		vehicles, err := e.identities.ListVehicles(ctx)
		if err != nil {
			return Reconciliation{}, fmt.Errorf("listing vehicles: %w", err)
		}
		enriched = JoinEnrichment(creds, vehicles)
	}

	return Reconcile(recordKeys(records), credKeys, enriched), nil
}

func (e *Executor) runImport(ctx context.Context, adapter terminal.Adapter, s *Session, log zerolog.Logger) error {
	dev := adapter.Device()

	records, err := e.fetch(ctx, adapter, s)
	if err != nil {
		return err
	}

	s.setPhase(PhaseReconciling)
	plan, err := e.reconcile(ctx, dev, records)
	if err != nil {
		return err
	}

	items := make([]terminal.IdentityRecord, 0, len(plan.ToSync))
	for _, rec := range records {
		if plan.Contains(rec.Key()) {
			items = append(items, rec)
		}
	}

	log.Info().
		Int("listed", len(records)).
		Int("new_in_central", len(plan.NewInCentral)).
		Int("missing_enrichment", len(plan.MissingEnrichment)).
		Int("to_sync", len(items)).
		Msg("Import planned")

	s.setPhase(PhaseApplying)
	s.setProgress(0, len(items))

	faces, _ := adapter.(terminal.FaceFetcher)

	for i, rec := range items {
		if s.Abandoned() {
			return ErrAbandoned
		}
		if i > 0 && e.itemDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.itemDelay):
			}
		}

		s.setCurrent(rec.Key())
		res, err := e.importItem(ctx, dev, rec)
		if err != nil {
			var itemErr *ItemError
			if !errors.As(err, &itemErr) {
				return err
			}
			log.Warn().Err(err).Str("key", rec.Key()).Msg("Import item failed")
			e.metrics.recordItem(ctx, ModeImport, false)
			s.update(func(t *Tally) { t.Failed++ })
			continue
		}

		gotFace := faces != nil && e.transferFace(ctx, faces, dev, rec, log)

		e.metrics.recordItem(ctx, ModeImport, true)
		s.update(func(t *Tally) {
			t.Success++
			t.Created += res.CredentialsCreated + res.VehiclesCreated
			if rec.CardCode != "" && dev.Class == device.ClassFaceTerminal {
				t.Tags++
			}
			if gotFace {
				t.Faces++
			}
		})
	}
	s.setCurrent("")

	if src, ok := adapter.(terminal.LogSource); ok && e.accessLogs != nil {
		s.setPhase(PhaseLogs)
		e.replicateLogs(ctx, src, dev, log)
	}
	return nil
}

func (e *Executor) importItem(ctx context.Context, dev *device.Device, rec terminal.IdentityRecord) (*identity.UpsertResult, error) {
	res, err := e.identities.UpsertIdentity(ctx, enrollmentFor(dev, rec))
	if err != nil {
		return nil, &ItemError{Key: rec.Key(), Err: err}
	}
	return res, nil
}

// transferFace copies the record's face image into the faces bucket once. Failures are
// logged; the identity itself was already imported.
func (e *Executor) transferFace(ctx context.Context, faces terminal.FaceFetcher, dev *device.Device, rec terminal.IdentityRecord, log zerolog.Logger) bool {
	if rec.FaceURL == "" || e.blobs == nil {
		return false
	}

	key := blob.Key{Bucket: blob.BucketFaces, Path: dev.ID + "/" + rec.Key()}
	exists, err := e.blobs.Exists(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("blob", key.String()).Msg("Checking face image failed")
		return false
	}
	if exists {
		return false
	}

	data, contentType, err := faces.FetchFace(ctx, rec.FaceURL)
	if err != nil {
		log.Warn().Err(err).Str("key", rec.Key()).Msg("Fetching face image failed")
		return false
	}
	if err := e.blobs.Put(ctx, key, data, contentType); err != nil {
		log.Warn().Err(err).Str("blob", key.String()).Msg("Storing face image failed")
		return false
	}
	return true
}

func (e *Executor) replicateLogs(ctx context.Context, src terminal.LogSource, dev *device.Device, log zerolog.Logger) {
	logs, err := src.ListAccessLogs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Reading device access logs failed")
		return
	}

	entries := make([]accesslog.Entry, 0, len(logs))
	for _, l := range logs {
		decision := "DENIED"
		if l.Granted {
			decision = "GRANTED"
		}
		entries = append(entries, accesslog.Entry{
			DeviceID:   dev.ID,
			Source:     accesslog.SourceDevice,
			ExternalID: l.ExternalID,
			OccurredAt: l.Time,
			UserRef:    l.UserRef,
			UserName:   l.Name,
			Credential: l.CardCode,
			Method:     l.Method,
			Decision:   decision,
		})
	}

	inserted, err := e.accessLogs.InsertBatch(ctx, entries)
	if err != nil {
		log.Warn().Err(err).Msg("Replicating device access logs failed")
		return
	}
	log.Info().Int("read", len(entries)).Int("inserted", inserted).Msg("Device access logs replicated")
}

func (e *Executor) runExport(ctx context.Context, adapter terminal.Adapter, s *Session, log zerolog.Logger) error {
	dev := adapter.Device()

	onDevice, err := e.fetch(ctx, adapter, s)
	if err != nil {
		return err
	}

	s.setPhase(PhaseReconciling)
	types := append(scopeTypes(dev.Class), identity.CredentialPIN)
	identities, err := e.identities.ListIdentities(ctx, identity.CredentialFilter{Types: types})
	if err != nil {
		return fmt.Errorf("listing identities: %w", err)
	}
	central := recordsFor(dev.Class, identities)

	deviceKeys := make(map[string]terminal.IdentityRecord, len(onDevice))
	for _, rec := range onDevice {
		deviceKeys[rec.Key()] = rec
	}
	centralKeys := make(map[string]struct{}, len(central))
	var toAdd []terminal.IdentityRecord
	for _, rec := range central {
		centralKeys[rec.Key()] = struct{}{}
		if _, ok := deviceKeys[rec.Key()]; !ok {
			toAdd = append(toAdd, rec)
		}
	}
	var toDelete []terminal.IdentityRecord
	for _, rec := range onDevice {
		if _, ok := centralKeys[rec.Key()]; !ok {
			toDelete = append(toDelete, rec)
		}
	}

	log.Info().
		Int("on_device", len(onDevice)).
		Int("central", len(central)).
		Int("to_add", len(toAdd)).
		Int("to_delete", len(toDelete)).
		Msg("Export planned")

	s.setPhase(PhaseApplying)
	if len(toAdd) == 0 && len(toDelete) == 0 {
		return nil
	}

	if replacer, ok := adapter.(terminal.Replacer); ok {
		s.setProgress(0, len(central))
		if err := replacer.ReplaceAll(ctx, central); err != nil {
			return err
		}
		s.adjust(func(t *Tally) {
			t.Success += len(central)
			t.Added += len(central)
			t.Deleted += len(onDevice)
		})
		s.setProgress(len(central), len(central))
		return nil
	}

	s.setProgress(0, len(toAdd)+len(toDelete))
	for _, rec := range toDelete {
		if s.Abandoned() {
			return ErrAbandoned
		}
		s.setCurrent(rec.Key())
		err := adapter.DeleteIdentity(ctx, rec.Index, rec.UserRef)
		if err := e.exportOutcome(ctx, s, rec, err, func(t *Tally) { t.Deleted++ }, log); err != nil {
			return err
		}
	}
	for _, rec := range toAdd {
		if s.Abandoned() {
			return ErrAbandoned
		}
		s.setCurrent(rec.Key())
		err := adapter.AddIdentity(ctx, rec)
		if err := e.exportOutcome(ctx, s, rec, err, func(t *Tally) { t.Added++ }, log); err != nil {
			return err
		}
	}
	s.setCurrent("")
	return nil
}

// exportOutcome tallies one device write. A device that is unreachable or rejects the
// credentials aborts the run; any other failure only fails the item.
func (e *Executor) exportOutcome(ctx context.Context, s *Session, rec terminal.IdentityRecord, err error, onSuccess func(*Tally), log zerolog.Logger) error {
	if err == nil {
		e.metrics.recordItem(ctx, ModeExport, true)
		s.update(func(t *Tally) {
			t.Success++
			onSuccess(t)
		})
		return nil
	}

	var connErr *terminal.ConnectivityError
	var authErr *terminal.AuthError
	if errors.As(err, &connErr) || errors.As(err, &authErr) {
		return err
	}

	itemErr := &ItemError{Key: rec.Key(), Err: err}
	log.Warn().Err(itemErr).Msg("Export item failed")
	e.metrics.recordItem(ctx, ModeExport, false)
	s.update(func(t *Tally) { t.Failed++ })
	return nil
}
