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
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// BackupInfo describes one backup of the monitoring CSV.
type BackupInfo struct {
	// URL is the location of the backup.
	URL string `json:"url"`

	// CreatedAt is parsed from the backup name.
	CreatedAt time.Time `json:"created_at"`

	// Size is the backup size in bytes.
	Size int64 `json:"size"`
}

// BackupConfig configures backup naming, location and retention.
//
// # Example
//
//	config := BackupConfig{
//	    MaxBackups:   5,
//	    BackupSuffix: ".backup",
//	    TimeFormat:   "2006-01-02_150405",
//	}
type BackupConfig struct {
	// MaxBackups is the maximum number of backups kept per file.
	// Default: 5
	MaxBackups int

	// BackupSuffix is appended to the file name before the timestamp.
	// Default: ".backup"
	BackupSuffix string

	// TimeFormat is the timestamp layout.
	// Default: "2006-01-02_150405"
	TimeFormat string

	// BackupDir overrides the backup location. Empty keeps backups next to
	// the original file.
	BackupDir string
}

// DefaultBackupConfig returns the standard retention of five backups.
func DefaultBackupConfig() BackupConfig {
	return BackupConfig{
		MaxBackups:   5,
		BackupSuffix: ".backup",
		TimeFormat:   "2006-01-02_150405",
	}
}

// BackupManager keeps timestamped copies of the CSV before it is replaced.
//
// # Description
//
// Every refresh overwrites azure_monitoring.csv in place. The manager copies
// the prior file to "<name><suffix>.<timestamp>" first so an operator can
// roll back a refresh that merged badly, and prunes copies beyond
// MaxBackups, oldest first.
//
// # Example
//
//	mgr := NewBackupManager(store, DefaultBackupConfig())
//	backupURL, err := mgr.BackupBeforeOverwrite(ctx, "./azure_monitoring.csv")
//	if err != nil {
//	    return err
//	}
//	// ... write the refreshed file
//	// If the refresh must be undone:
//	mgr.RestoreBackup(ctx, backupURL, "./azure_monitoring.csv", false)
type BackupManager struct {
	store  *Store
	config BackupConfig
	now    func() time.Time
}

// NewBackupManager creates a backup manager, applying defaults to zero
// config values.
func NewBackupManager(store *Store, config BackupConfig) *BackupManager {
	if config.MaxBackups <= 0 {
		config.MaxBackups = 5
	}
	if config.BackupSuffix == "" {
		config.BackupSuffix = ".backup"
	}
	if config.TimeFormat == "" {
		config.TimeFormat = "2006-01-02_150405"
	}
	return &BackupManager{store: store, config: config, now: time.Now}
}

// BackupBeforeOverwrite copies location to a timestamped backup.
//
// # Description
//
// Returns "" and nil when location does not exist (first run). After the
// copy, older backups beyond MaxBackups are removed; a failed rotation does
// not fail the backup.
//
// # Inputs
//
//   - ctx: Context for cancellation
//   - location: File to back up
//
// # Outputs
//
//   - string: URL of the created backup, or "" if there was nothing to copy
//   - error: Non-nil if the copy failed
func (m *BackupManager) BackupBeforeOverwrite(ctx context.Context, location string) (string, error) {
	URL, err := Normalize(location)
	if err != nil {
		return "", err
	}
	exists, err := m.store.fs.Exists(ctx, URL)
	if err != nil {
		return "", fmt.Errorf("check %s: %w", location, err)
	}
	if !exists {
		return "", nil
	}

	data, err := m.store.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return "", fmt.Errorf("backup %s: %w", location, err)
	}
	backupURL := m.backupURL(URL)
	if err := m.store.fs.Upload(ctx, backupURL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("backup %s: %w", location, err)
	}

	_ = m.rotate(ctx, URL)
	return backupURL, nil
}

// ListBackups returns the backups of location, newest first.
func (m *BackupManager) ListBackups(ctx context.Context, location string) ([]BackupInfo, error) {
	URL, err := Normalize(location)
	if err != nil {
		return nil, err
	}
	dir, prefix := m.backupDirAndPrefix(URL)

	exists, err := m.store.fs.Exists(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", dir, err)
	}
	if !exists {
		return nil, nil
	}

	objects, err := m.store.fs.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var backups []BackupInfo
	for _, object := range objects {
		if object.IsDir() || !strings.HasPrefix(object.Name(), prefix) {
			continue
		}
		createdAt, err := time.ParseInLocation(m.config.TimeFormat, strings.TrimPrefix(object.Name(), prefix), time.Local)
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			URL:       object.URL(),
			CreatedAt: createdAt,
			Size:      object.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// RestoreBackup atomically replaces location with the content of a backup.
//
// # Description
//
// The backup is read before anything else happens, so it survives the
// rotation triggered when keepCurrent backs up the file being replaced.
// The restored backup itself is kept.
//
// # Inputs
//
//   - ctx: Context for cancellation
//   - backupLocation: Backup to restore, as listed by ListBackups
//   - location: File to replace
//   - keepCurrent: Back up the current file first
//
// # Outputs
//
//   - string: URL of the backup of the replaced file, "" if none was taken
//   - error: Non-nil if the backup could not be read or location written
func (m *BackupManager) RestoreBackup(ctx context.Context, backupLocation, location string, keepCurrent bool) (string, error) {
	data, err := m.store.Read(ctx, backupLocation)
	if err != nil {
		return "", fmt.Errorf("restore: %w", err)
	}
	var current string
	if keepCurrent {
		if current, err = m.BackupBeforeOverwrite(ctx, location); err != nil {
			return "", fmt.Errorf("restore: %w", err)
		}
	}
	if err := m.store.WriteAtomic(ctx, location, data); err != nil {
		return current, fmt.Errorf("restore: %w", err)
	}
	return current, nil
}

// rotate removes backups beyond MaxBackups, oldest first.
func (m *BackupManager) rotate(ctx context.Context, URL string) error {
	backups, err := m.ListBackups(ctx, URL)
	if err != nil {
		return err
	}
	for i := m.config.MaxBackups; i < len(backups); i++ {
		if err := m.store.fs.Delete(ctx, backups[i].URL); err != nil {
			return err
		}
	}
	return nil
}

func (m *BackupManager) backupURL(URL string) string {
	dir, prefix := m.backupDirAndPrefix(URL)
	return url.Join(dir, prefix+m.now().Format(m.config.TimeFormat))
}

// backupDirAndPrefix returns the directory holding backups of URL and the
// name prefix every backup shares.
func (m *BackupManager) backupDirAndPrefix(URL string) (string, string) {
	dir, name := url.Split(URL, file.Scheme)
	if m.config.BackupDir != "" {
		if normalized, err := Normalize(m.config.BackupDir); err == nil {
			dir = normalized
		}
	}
	return dir, name + m.config.BackupSuffix + "."
}
