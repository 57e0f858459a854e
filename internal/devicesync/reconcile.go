package devicesync

import (
	"sort"

	"github.com/gatewarden/gatewarden/internal/identity"
)

// Reconciliation is the outcome of comparing a device directory with the central store.
type Reconciliation struct {
	// NewInCentral holds device keys without a central credential.
	NewInCentral []string `json:"newInCentral"`

	// MissingEnrichment holds device keys without a central enrichment profile.
	MissingEnrichment []string `json:"missingEnrichment"`

	// ToSync is the union of both sets.
	ToSync []string `json:"toSync"`
}

// Contains reports whether key is part of ToSync.
func (r *Reconciliation) Contains(key string) bool {
	i := sort.SearchStrings(r.ToSync, key)
	return i < len(r.ToSync) && r.ToSync[i] == key
}

// Reconcile compares the device keys with the central credential and enriched keys. Every
// input is normalized; the outputs are sorted and free of duplicates.
func Reconcile(deviceKeys, credentialKeys, enrichedKeys []string) Reconciliation {
	dev := keySet(deviceKeys)
	creds := keySet(credentialKeys)
	enriched := keySet(enrichedKeys)

	newInCentral := difference(dev, creds)
	missing := difference(dev, enriched)

	union := make(map[string]struct{}, len(newInCentral)+len(missing))
	for _, k := range newInCentral {
		union[k] = struct{}{}
	}
	for _, k := range missing {
		union[k] = struct{}{}
	}

	return Reconciliation{
		NewInCentral:      newInCentral,
		MissingEnrichment: missing,
		ToSync:            sortedKeys(union),
	}
}

// JoinEnrichment returns the keys of plate credentials that have a vehicle profile for the
// same key.
func JoinEnrichment(credentials []*identity.Credential, vehicles []*identity.Vehicle) []string {
	profiles := make(map[string]struct{}, len(vehicles))
	for _, v := range vehicles {
		profiles[identity.NormalizeKey(v.PlateKey)] = struct{}{}
	}

	joined := make(map[string]struct{})
	for _, c := range credentials {
		if c.Type != identity.CredentialPlate {
			continue
		}
		k := identity.NormalizeKey(c.Key)
		if _, ok := profiles[k]; ok {
			joined[k] = struct{}{}
		}
	}
	return sortedKeys(joined)
}

func keySet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if k := identity.NormalizeKey(v); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func difference(a, b map[string]struct{}) []string {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return sortedKeys(out)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
