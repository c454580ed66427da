package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-ledger/library"
)

func TestImportCatalog(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(catalog, []byte(`[
		{"title": "Dune", "author": "Frank Herbert", "category": "Science Fiction"},
		{"title": "It", "author": "Stephen King", "category": "Horror"}
	]`), 0o600))

	entries, err := readCatalog(catalog)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	ctx := context.Background()
	mgr, err := library.OpenManager(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	_, err = mgr.Seed(ctx)
	require.NoError(t, err)
	sess, err := mgr.Login(ctx, "superadmin", "superadmin")
	require.NoError(t, err)

	var out bytes.Buffer
	added, failed := importCatalog(ctx, mgr, sess, entries, &out)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, failed, "a two-letter title is rejected")
	assert.Contains(t, out.String(), "SUCCESS")

	page, err := mgr.Browse(ctx, sess, library.BookQuery{Search: "dune"})
	require.NoError(t, err)
	require.Len(t, page.Books, 1)
	assert.Equal(t, "Science Fiction", page.Books[0].Category)
}

func TestReadCatalogRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":`), 0o600))
	_, err := readCatalog(path)
	assert.Error(t, err)
}
