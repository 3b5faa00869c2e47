package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version)
	}

	var all strings.Builder
	for _, m := range migrations {
		assert.True(t, strings.HasSuffix(m.Version, ".sql"), m.Version)
		all.WriteString(m.SQL)
	}
	schema := all.String()

	for _, table := range []string{
		"api_keys", "audit_logs", "contacts", "conversations", "messages",
		"deals", "tasks", "webhooks", "webhook_deliveries",
	} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	// Direct sends rely on one conversation per phone within a tenant.
	assert.Contains(t, schema, "UNIQUE (tenant_id, phone)")
	// Concurrent direct sends to a new number must converge on one contact.
	assert.Contains(t, schema, "CREATE UNIQUE INDEX IF NOT EXISTS contacts_tenant_phone_key ON contacts (tenant_id, phone)")
}
