// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	URL, err := Normalize("mem://localhost/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "mem://localhost/a.csv", URL)

	dir := t.TempDir()
	URL, err = Normalize(filepath.Join(dir, "a.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(URL, "file://"))
	assert.True(t, strings.HasSuffix(URL, "/a.csv"))
}

func TestStore_WriteAtomicAndRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "azure_monitoring.csv")
	store := NewStore(nil)

	exists, err := store.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.WriteAtomic(ctx, path, []byte("first")))
	require.NoError(t, store.WriteAtomic(ctx, path, []byte("second")))

	data, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary objects must not be left behind")
	assert.Equal(t, "azure_monitoring.csv", entries[0].Name())
}

func TestStore_WriteAtomicCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "azure_monitoring.csv")
	require.NoError(t, os.WriteFile(path, []byte("prior"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStore(nil).WriteAtomic(ctx, path, []byte("new"))
	require.ErrorIs(t, err, context.Canceled)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "prior", string(data))
}

func TestStore_TextRoundTripWindows1252(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.csv")
	store := NewStore(nil)

	enc, err := LookupEncoding("cp1252")
	require.NoError(t, err)

	require.NoError(t, store.WriteText(ctx, path, []byte("Temp °C – naïve"), enc))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{'T', 'e', 'm', 'p', ' ', 0xB0, 'C', ' ', 0x96, ' ', 'n', 'a', 0xEF, 'v', 'e'}, raw)

	text, err := store.ReadText(ctx, path, enc)
	require.NoError(t, err)
	assert.Equal(t, "Temp °C – naïve", string(text))
}

func TestEncode_Unsupported(t *testing.T) {
	enc, err := LookupEncoding("windows-1252")
	require.NoError(t, err)

	out, err := Encode([]byte("ok ✓"), enc)
	require.NoError(t, err)
	assert.Equal(t, "ok ?", string(out))
}

func TestEncode_ReplacesWithQuestionMark(t *testing.T) {
	tests := []struct {
		name    string
		charset string
		in      string
		want    string
	}{
		{"cp1252 mapped and unmapped", "windows-1252", "caf\u00e9 \u2713 \u2013 \u20ac", "caf\xe9 ? \x96 \x80"},
		{"cp1252 invalid utf-8", "windows-1252", "bad \xff byte", "bad ? byte"},
		{"latin1 no euro", "ISO-8859-1", "5 \u20ac", "5 ?"},
		{"multi-byte charset", "Shift_JIS", "ok \U0001F600", "ok ?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := LookupEncoding(tt.charset)
			require.NoError(t, err)

			out, err := Encode([]byte(tt.in), enc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
			assert.NotContains(t, string(out), "\x1a")
		})
	}
}

func TestLookupEncoding(t *testing.T) {
	for _, name := range []string{"", "UTF-8", "utf8", "ISO-8859-1", "Windows-1252", "cp1250"} {
		_, err := LookupEncoding(name)
		assert.NoError(t, err, name)
	}

	_, err := LookupEncoding("klingon-1")
	assert.True(t, errors.Is(err, ErrUnknownEncoding))
}

func TestBackupManager_BackupAndRotate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "azure_monitoring.csv")
	store := NewStore(nil)

	mgr := NewBackupManager(store, BackupConfig{MaxBackups: 2})
	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local)
	mgr.now = func() time.Time { return clock }

	backupURL, err := mgr.BackupBeforeOverwrite(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, backupURL, "nothing to back up on first run")

	for i, content := range []string{"v1", "v2", "v3"} {
		require.NoError(t, store.WriteAtomic(ctx, path, []byte(content)))
		clock = clock.Add(time.Duration(i+1) * time.Minute)
		backupURL, err = mgr.BackupBeforeOverwrite(ctx, path)
		require.NoError(t, err)
		require.NotEmpty(t, backupURL)
	}
	assert.True(t, strings.HasSuffix(backupURL, "azure_monitoring.csv.backup.2025-03-01_100600"))

	backups, err := mgr.ListBackups(ctx, path)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.True(t, backups[0].CreatedAt.After(backups[1].CreatedAt))
	assert.Equal(t, int64(2), backups[0].Size)

	data, err := store.Read(ctx, backups[1].URL)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestBackupManager_Restore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "azure_monitoring.csv")
	store := NewStore(nil)
	mgr := NewBackupManager(store, DefaultBackupConfig())

	require.NoError(t, store.WriteAtomic(ctx, path, []byte("good")))
	backupURL, err := mgr.BackupBeforeOverwrite(ctx, path)
	require.NoError(t, err)

	require.NoError(t, store.WriteAtomic(ctx, path, []byte("bad")))
	current, err := mgr.RestoreBackup(ctx, backupURL, path, false)
	require.NoError(t, err)
	assert.Empty(t, current)

	data, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "good", string(data))

	exists, err := store.Exists(ctx, backupURL)
	require.NoError(t, err)
	assert.True(t, exists)
}

// TestBackupManager_RestoreOldestAtCapacity verifies restoring the oldest
// backup works even though backing up the current file rotates it away.
func TestBackupManager_RestoreOldestAtCapacity(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "azure_monitoring.csv")
	store := NewStore(nil)
	mgr := NewBackupManager(store, BackupConfig{MaxBackups: 2})
	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local)
	mgr.now = func() time.Time { return clock }

	for _, content := range []string{"v1", "v2", "v3"} {
		require.NoError(t, store.WriteAtomic(ctx, path, []byte(content)))
		clock = clock.Add(time.Minute)
		_, err := mgr.BackupBeforeOverwrite(ctx, path)
		require.NoError(t, err)
	}
	backups, err := mgr.ListBackups(ctx, path)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	oldest := backups[1].URL

	clock = clock.Add(time.Minute)
	current, err := mgr.RestoreBackup(ctx, oldest, path, true)
	require.NoError(t, err)
	require.NotEmpty(t, current)

	data, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	saved, err := store.Read(ctx, current)
	require.NoError(t, err)
	assert.Equal(t, "v3", string(saved))
}

func TestBackupManager_SeparateDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	path := filepath.Join(dir, "azure_monitoring.csv")
	store := NewStore(nil)
	require.NoError(t, store.WriteAtomic(ctx, path, []byte("v1")))

	mgr := NewBackupManager(store, BackupConfig{BackupDir: backupDir})
	backupURL, err := mgr.BackupBeforeOverwrite(ctx, path)
	require.NoError(t, err)
	assert.Contains(t, backupURL, "/backups/azure_monitoring.csv.backup.")

	backups, err := mgr.ListBackups(ctx, path)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
