package devicesync

import (
	"github.com/gatewarden/gatewarden/internal/device"
	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/terminal"
)

// scopeTypes returns the credential types a device class stores onboard.
func scopeTypes(class device.Class) []identity.CredentialType {
	if class == device.ClassLPRCamera {
		return []identity.CredentialType{identity.CredentialPlate}
	}
	return []identity.CredentialType{identity.CredentialTag, identity.CredentialFace}
}

// grants filters out deny-list records in place.
func grants(records []terminal.IdentityRecord) []terminal.IdentityRecord {
	out := records[:0]
	for _, rec := range records {
		if !rec.Denied {
			out = append(out, rec)
		}
	}
	return out
}

// enrollmentFor maps a device record to the central enrollment it imports as.
func enrollmentFor(d *device.Device, rec terminal.IdentityRecord) identity.Enrollment {
	e := identity.Enrollment{
		ExternalRef:    rec.UserRef,
		Name:           rec.Name,
		SourceDeviceID: d.ID,
	}

	if d.Class == device.ClassLPRCamera {
		e.Credentials = []identity.CredentialInput{{Type: identity.CredentialPlate, Value: rec.CardCode}}
		e.VehicleDescription = rec.Name
		return e
	}

	if rec.CardCode != "" {
		e.Credentials = append(e.Credentials, identity.CredentialInput{Type: identity.CredentialTag, Value: rec.CardCode})
	} else {
		// Subjects enrolled by face only are keyed by their device reference.
		e.Credentials = append(e.Credentials, identity.CredentialInput{Type: identity.CredentialFace, Value: rec.UserRef})
	}
	if rec.PIN != "" {
		e.Credentials = append(e.Credentials, identity.CredentialInput{Type: identity.CredentialPIN, Value: rec.PIN})
	}
	return e
}

// recordsFor maps central identities to the device records an export writes, deduplicated
// by key in identity order.
func recordsFor(class device.Class, identities []*identity.Identity) []terminal.IdentityRecord {
	seen := make(map[string]struct{})
	var records []terminal.IdentityRecord
	add := func(rec terminal.IdentityRecord) {
		k := rec.Key()
		if k == "" {
			return
		}
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		records = append(records, rec)
	}

	for _, ident := range identities {
		if class == device.ClassLPRCamera {
			for _, c := range ident.Credentials {
				if c.Type == identity.CredentialPlate {
					add(terminal.IdentityRecord{UserRef: ident.User.ExternalRef, Name: ident.User.Name, CardCode: c.Value})
				}
			}
			continue
		}

		tag := ident.First(identity.CredentialTag)
		face := ident.First(identity.CredentialFace)
		if tag == nil && face == nil {
			continue
		}

		rec := terminal.IdentityRecord{UserRef: ident.User.ExternalRef, Name: ident.User.Name}
		if rec.UserRef == "" && face != nil {
			rec.UserRef = face.Value
		}
		if rec.UserRef == "" {
			rec.UserRef = ident.User.ID
		}
		if tag != nil {
			rec.CardCode = tag.Value
		}
		if pin := ident.First(identity.CredentialPIN); pin != nil {
			rec.PIN = pin.Value
		}
		add(rec)
	}
	return records
}

func recordKeys(records []terminal.IdentityRecord) []string {
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.Key())
	}
	return keys
}
