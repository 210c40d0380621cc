package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalFileStorage_Save(t *testing.T) {
	tempDir := t.TempDir()
	logger, _ := zap.NewDevelopment()
	fs := NewLocalFileStorage(filepath.Join(tempDir, "uploads"), logger)
	ctx := context.Background()

	t.Run("saves file and creates base dir", func(t *testing.T) {
		path, err := fs.Save(ctx, "invoice_1001.json", []byte(`{}`))

		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tempDir, "uploads", "invoice_1001.json"), path)
		assert.FileExists(t, path)
	})

	t.Run("sanitizes directory components", func(t *testing.T) {
		path, err := fs.Save(ctx, "../../etc/passwd.txt", []byte("x"))

		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tempDir, "uploads", "passwd.txt"), path)
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		_, err := fs.Save(ctx, "same.txt", []byte("original"))
		require.NoError(t, err)
		path, err := fs.Save(ctx, "same.txt", []byte("updated"))
		require.NoError(t, err)

		content, _ := os.ReadFile(path)
		assert.Equal(t, []byte("updated"), content)
	})

	t.Run("rejects names that sanitize to nothing", func(t *testing.T) {
		_, err := fs.Save(ctx, "..", []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidName)
	})
}

func TestLocalFileStorage_Resolve(t *testing.T) {
	tempDir := t.TempDir()
	fs := NewLocalFileStorage(tempDir, zap.NewNop())

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain name", "invoice_1001.txt", false},
		{"parent traversal", "../secret.txt", true},
		{"embedded traversal", "a..b", true},
		{"forward slash", "sub/file.txt", true},
		{"backslash", `sub\file.txt`, true},
		{"empty", "", true},
		{"dot", ".", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := fs.Resolve(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(tempDir, tt.input), path)
		})
	}
}

func TestLocalFileStorage_ReadExistsList(t *testing.T) {
	tempDir := t.TempDir()
	fs := NewLocalFileStorage(tempDir, zap.NewNop())
	ctx := context.Background()

	for _, name := range []string{"b.json", "a.TXT", "c.pdf", ".hidden.json", "notes.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, name), []byte(name), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(tempDir, "processed.json"), 0755))

	t.Run("lists filtered files sorted", func(t *testing.T) {
		names, err := fs.List(".json", ".txt", ".pdf")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.TXT", "b.json", "c.pdf"}, names)
	})

	t.Run("lists everything without filter", func(t *testing.T) {
		names, err := fs.List()
		require.NoError(t, err)
		assert.Len(t, names, 4)
	})

	t.Run("missing base dir lists nothing", func(t *testing.T) {
		names, err := NewLocalFileStorage(filepath.Join(tempDir, "nope"), nil).List()
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("exists only for regular files", func(t *testing.T) {
		assert.True(t, fs.Exists("b.json"))
		assert.False(t, fs.Exists("processed.json"))
		assert.False(t, fs.Exists("missing.json"))
		assert.False(t, fs.Exists("../b.json"))
	})

	t.Run("reads content", func(t *testing.T) {
		content, err := fs.Read(ctx, "c.pdf")
		require.NoError(t, err)
		assert.Equal(t, []byte("c.pdf"), content)

		_, err = fs.Read(ctx, "missing.pdf")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLocalFileStorage_Move(t *testing.T) {
	tempDir := t.TempDir()
	fs := NewLocalFileStorage(tempDir, zap.NewNop())
	ctx := context.Background()

	write := func(name string) {
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, name), []byte(name), 0644))
	}

	write("inv.json")
	dst, err := fs.Move(ctx, "inv.json", "processed")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, "processed", "inv.json"), dst)
	assert.NoFileExists(t, filepath.Join(tempDir, "inv.json"))

	write("inv.json")
	dst, err = fs.Move(ctx, "inv.json", "processed")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, "processed", "inv_1.json"), dst)

	_, err = fs.Move(ctx, "missing.json", "processed")
	assert.ErrorIs(t, err, ErrNotFound)

	write("x.json")
	_, err = fs.Move(ctx, "x.json", "../outside")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"invoice 1001.pdf":    "invoice_1001.pdf",
		"../../x.json":        "x.json",
		`C:\tmp\scan (1).txt`: "scan__1_.txt",
		"..":                  "",
		".env":                "env",
		"façade.html":         "fa_ade.html",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, SanitizeName(in))
		})
	}
}
