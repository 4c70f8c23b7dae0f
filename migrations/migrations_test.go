package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllLoadsSchema(t *testing.T) {
	all, err := All()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "0001_init.sql", all[0].Name)
	for _, table := range []string{"number_series", "sales_orders", "invoices", "invoice_lines", "order_invoice_links", "idempotency_keys"} {
		assert.Contains(t, all[0].Up, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, all[0].Up, "WHERE status <> 'CANCELLED'")
	assert.True(t, strings.HasPrefix(all[0].Down, "DROP TABLE"))
}

func TestSchemaKeepsInputPrecision(t *testing.T) {
	all, err := All()
	require.NoError(t, err)
	up := all[0].Up

	assert.NotContains(t, up, "NUMERIC(5,2)")
	assert.NotContains(t, up, "NUMERIC(18,3)")
	assert.Contains(t, up, "cgst_rate         NUMERIC(7,4)")
	assert.Contains(t, up, "quantity        NUMERIC(18,6)")
	assert.Contains(t, up, "rate              NUMERIC(18,4)")
}

func TestParseRequiresUpSection(t *testing.T) {
	_, err := parse("bad.sql", "CREATE TABLE x();")
	require.Error(t, err)

	m, err := parse("up_only.sql", "-- +migrate Up\nCREATE TABLE x();\n")
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE x();", m.Up)
	assert.Empty(t, m.Down)
}
