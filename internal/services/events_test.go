package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDBError(t *testing.T) {
	cases := []struct {
		err         string
		name        string
		recoverable bool
	}{
		{"database is locked", "StorageBusy", true},
		{"database table is locked: busy", "StorageBusy", true},
		{"no such table: messages", "StorageSchema", true},
		{"file is not a database", "StorageCorrupt", false},
		{"database disk image is malformed", "StorageCorrupt", false},
		{"disk I/O error", "StorageUnavailable", false},
		{"attempt to write a readonly database", "StorageUnavailable", false},
		{"something else entirely", "StorageError", false},
	}

	for _, tc := range cases {
		evt := classifyDBError(errors.New(tc.err))
		assert.Equal(t, tc.name, evt.ErrorName, tc.err)
		assert.Equal(t, tc.recoverable, evt.Recoverable, tc.err)
		assert.Equal(t, tc.err, evt.Error)
	}
}
