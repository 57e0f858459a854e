package devicesync_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatewarden/gatewarden/internal/devicesync"
	"github.com/gatewarden/gatewarden/internal/identity"
)

func TestReconcile(t *testing.T) {
	got := devicesync.Reconcile([]string{"ABC123", "XYZ999"}, []string{"ABC123"}, nil)

	assert.Equal(t, []string{"XYZ999"}, got.NewInCentral)
	assert.Equal(t, []string{"ABC123", "XYZ999"}, got.MissingEnrichment)
	assert.Equal(t, []string{"ABC123", "XYZ999"}, got.ToSync)
}

func TestReconcile_NormalizesInputs(t *testing.T) {
	got := devicesync.Reconcile(
		[]string{" abc-123 ", "xyz 999", "XYZ999", ""},
		[]string{"ABC123"},
		[]string{"abc.123", "xyz999"},
	)

	assert.Equal(t, []string{"XYZ999"}, got.NewInCentral)
	assert.Empty(t, got.MissingEnrichment)
	assert.Equal(t, []string{"XYZ999"}, got.ToSync)
	assert.True(t, got.Contains("XYZ999"))
	assert.False(t, got.Contains("ABC123"))
}

func TestReconcile_InSync(t *testing.T) {
	got := devicesync.Reconcile([]string{"A1"}, []string{"A1", "B2"}, []string{"A1"})

	assert.Empty(t, got.NewInCentral)
	assert.Empty(t, got.MissingEnrichment)
	assert.Empty(t, got.ToSync)
}

func TestJoinEnrichment(t *testing.T) {
	creds := []*identity.Credential{
		{Type: identity.CredentialPlate, Key: "ABC123"},
		{Type: identity.CredentialPlate, Key: "XYZ999"},
		{Type: identity.CredentialTag, Key: "DEF456"},
	}
	vehicles := []*identity.Vehicle{
		{PlateKey: "ABC123"},
		{PlateKey: "DEF456"},
		{PlateKey: "ORPHAN1"},
	}

	assert.Equal(t, []string{"ABC123"}, devicesync.JoinEnrichment(creds, vehicles))
	assert.Empty(t, devicesync.JoinEnrichment(creds, nil))
}
