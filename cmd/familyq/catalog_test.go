package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalogYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			name:  "plain list",
			input: "- First?\n- Second?\n",
			want:  []string{"First?", "Second?"},
		},
		{
			name:  "questions mapping",
			input: "questions:\n  - \"Favourite meal?\"\n  - >-\n    Folded\n    text\n",
			want:  []string{"Favourite meal?", "Folded text"},
		},
		{name: "empty file", input: "", wantErr: true},
		{name: "mapping without questions", input: "title: nope\n", wantErr: true},
		{name: "scalar", input: "just text\n", wantErr: true},
		{name: "broken", input: "- [unclosed\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCatalogYAML([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalogImportAndList(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "catalog.db")
	file := filepath.Join(dir, "questions.yaml")
	require.NoError(t, os.WriteFile(file, []byte("questions:\n  - Alpha\n  - \"  \"\n  - Beta\n"), 0o644))

	out, err := run(t, db, "catalog", "import", file)
	require.NoError(t, err)
	assert.Equal(t, "imported 2 questions\n", out)

	_, err = run(t, db, "catalog", "add", "Zero", "--position", "1")
	require.NoError(t, err)

	out, err = run(t, db, "catalog", "list")
	require.NoError(t, err)
	assert.Equal(t, "  1  Zero  (id 3)\n  2  Alpha  (id 1)\n  3  Beta  (id 2)\n", out)

	_, err = run(t, db, "catalog", "add", "Nowhere", "--position", "9")
	assert.Error(t, err)

	out, err = run(t, db, "catalog", "delete", "3")
	require.NoError(t, err)
	assert.Equal(t, "deleted question 3\n", out)
}
