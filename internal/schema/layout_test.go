package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablesAreWellFormed(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for _, spec := range Tables() {
		require.NoError(t, spec.Validate(), spec.Name)
		assert.False(t, seen[spec.SubPath], "duplicate subpath %s", spec.SubPath)
		seen[spec.SubPath] = true
		// Keeping at least one data column per file.
		assert.Greater(t, len(spec.Schema), len(spec.PartitionBy), spec.Name)
	}
}

func TestTableSpecValidate_UnknownPartition(t *testing.T) {
	t.Parallel()
	spec := UserTable
	spec.PartitionBy = []string{"year"}
	require.Error(t, spec.Validate())
}

func TestLogRecordKeys(t *testing.T) {
	t.Parallel()
	keys := map[string]string{}
	for _, f := range LogRecord.Fields {
		keys[f.Name] = f.Key
	}
	assert.Len(t, LogRecord.Fields, 18)
	assert.Equal(t, "userId", keys["user_id"])
	assert.Equal(t, "sessionId", keys["session_id"])
	assert.Equal(t, "userAgent", keys["user_agent"])
	assert.Equal(t, "ts", keys["ts"])
	assert.Equal(t, LogRecord.Table().Names()[0], "artist")
}
