package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candidate.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidate(t *testing.T) {
	v := New(1024)

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "valid pdf",
			content: "%PDF-1.4\n" + strings.Repeat("a", 2048),
			wantErr: nil,
		},
		{
			name:    "html masquerading as pdf",
			content: "<!DOCTYPE html><html>" + strings.Repeat("b", 2048),
			wantErr: ErrBadHeader,
		},
		{
			name:    "under size floor",
			content: "%PDF-1.4 tiny",
			wantErr: ErrTooSmall,
		},
		{
			name:    "empty file",
			content: "",
			wantErr: ErrTooSmall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(writeFile(t, tt.content))
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_SizeFloorCheckedFirst(t *testing.T) {
	// A tiny HTML page fails on size, not on the header.
	v := New(1024)
	err := v.Validate(writeFile(t, "<html>nope</html>"))
	assert.ErrorIs(t, err, ErrTooSmall)
}

func TestValidate_MissingFile(t *testing.T) {
	v := New(1024)
	err := v.Validate(filepath.Join(t.TempDir(), "absent.pdf"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadHeader)
	assert.NotErrorIs(t, err, ErrTooSmall)
}
