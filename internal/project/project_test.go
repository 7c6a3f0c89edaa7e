package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditCodeReplacesWithinRange(t *testing.T) {
	p := New(map[string]string{"a.go": "line1\nline2\nline3\n"})
	result, err := p.EditCode("a.go", 2, 2, "line2", "replaced")
	require.NoError(t, err)
	assert.Equal(t, "line2", result.OldText)
	assert.Equal(t, "replaced", result.NewText)
	assert.Equal(t, "line1\nreplaced\nline3\n", result.FullContent)
}

func TestEditCodeFileNotFound(t *testing.T) {
	p := New(map[string]string{})
	_, err := p.EditCode("missing.go", 1, 1, "x", "y")
	require.Error(t, err)
	ee, ok := err.(*EditError)
	require.True(t, ok)
	assert.Equal(t, ErrFileNotFound, ee.Code)
}

func TestEditCodeRangeInvalidReportsTotalLines(t *testing.T) {
	p := New(map[string]string{"a.go": "one\ntwo\n"})
	_, err := p.EditCode("a.go", 5, 6, "x", "y")
	require.Error(t, err)
	ee, ok := err.(*EditError)
	require.True(t, ok)
	assert.Equal(t, ErrRangeInvalid, ee.Code)
	assert.Equal(t, 2, ee.TotalLines)
}

func TestEditCodeFindNotInRange(t *testing.T) {
	p := New(map[string]string{"a.go": "alpha\nbeta\ngamma\n"})
	_, err := p.EditCode("a.go", 1, 1, "gamma", "x")
	require.Error(t, err)
	ee, ok := err.(*EditError)
	require.True(t, ok)
	assert.Equal(t, ErrFindNotInRange, ee.Code)
}

func TestDeleteFolderRemovesNestedPaths(t *testing.T) {
	p := New(map[string]string{
		"src/a.go":      "a",
		"src/sub/b.go":  "b",
		"srcother/c.go": "c",
	})
	removed := p.DeleteFolder("src")
	assert.Equal(t, 2, removed)
	_, ok := p.Get("srcother/c.go")
	assert.True(t, ok)
}

func TestRenameFolderRewritesPrefix(t *testing.T) {
	p := New(map[string]string{
		"old/a.go":     "a",
		"old/sub/b.go": "b",
	})
	result := p.RenameFolder("old", "new")
	assert.Equal(t, 2, result.RenamedCount)
	_, oldExists := p.Get("old/a.go")
	assert.False(t, oldExists)
	content, newExists := p.Get("new/sub/b.go")
	assert.True(t, newExists)
	assert.Equal(t, "b", content)
}

func TestRenameFileReportsOverwrite(t *testing.T) {
	p := New(map[string]string{"a.go": "a", "b.go": "b"})
	result, err := p.RenameFile("a.go", "b.go")
	require.NoError(t, err)
	assert.True(t, result.Overwritten)
	content, _ := p.Get("b.go")
	assert.Equal(t, "a", content)
}

func TestCreateFolderFailsOnExistingFile(t *testing.T) {
	p := New(map[string]string{"pkg": "not really a folder"})
	err := p.CreateFolder("pkg")
	require.Error(t, err)
	ee, ok := err.(*EditError)
	require.True(t, ok)
	assert.Equal(t, ErrFileExists, ee.Code)
}
