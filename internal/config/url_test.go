package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackendURL_ResolvesPlaceholder(t *testing.T) {
	props := map[string]string{"ojp.server.sslrootcert": "/certs/ca.pem"}

	got, err := ParseBackendURL("jdbc:ojp[localhost:1059]_jdbc:postgresql://h:5432/db?sslrootcert=${ojp.server.sslrootcert}", props)
	require.NoError(t, err)
	assert.Equal(t, "jdbc:postgresql://h:5432/db?sslrootcert=/certs/ca.pem", got)
}

func TestParseBackendURL_MissingPlaceholderFailsLoudly(t *testing.T) {
	_, err := ParseBackendURL("jdbc:ojp[localhost:1059]_jdbc:postgresql://h:5432/db?sslrootcert=${ojp.server.sslrootcert}", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ojp.server.sslrootcert")
}

func TestParseBackendURL_NoPlaceholdersPassesThrough(t *testing.T) {
	got, err := ParseBackendURL("jdbc:ojp[localhost:1059]_h2:mem:test", nil)
	require.NoError(t, err)
	assert.Equal(t, "h2:mem:test", got)
}

func TestParseBackendURL_Malformed(t *testing.T) {
	_, err := ParseBackendURL("jdbc:postgresql://h:5432/db", nil)
	require.Error(t, err)
}

func TestResolveEnvironment_TrimsAndDefaults(t *testing.T) {
	assert.Equal(t, "test", resolveEnvironment(map[string]string{"ojp.environment": "  test  "}))
	assert.Equal(t, defaultEnvironment, resolveEnvironment(map[string]string{"ojp.environment": "   "}))
	assert.Equal(t, defaultEnvironment, resolveEnvironment(map[string]string{}))
}
