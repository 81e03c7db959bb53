// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage reads and writes the monitoring CSV through viant/afs.
//
// Locations may be plain file paths (relative or absolute) or any URL afs
// understands. Writes are all-or-nothing: the payload is uploaded to a
// temporary sibling object and moved over the destination only once it is
// complete.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"golang.org/x/text/encoding"
)

// Store is an afs-backed object store for CSV files.
//
// # Thread Safety
//
// Store holds no mutable state and is safe for concurrent use. Concurrent
// writers to the same location are not coordinated.
type Store struct {
	fs afs.Service
}

// NewStore creates a Store. A nil service uses afs.New().
func NewStore(fs afs.Service) *Store {
	if fs == nil {
		fs = afs.New()
	}
	return &Store{fs: fs}
}

// Normalize turns a plain path into an absolute file URL. URLs with a
// scheme are returned unchanged.
func Normalize(location string) (string, error) {
	if strings.Contains(location, "://") {
		return location, nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", location, err)
	}
	return file.Scheme + "://" + filepath.ToSlash(abs), nil
}

// Exists reports whether an object exists at location.
func (s *Store) Exists(ctx context.Context, location string) (bool, error) {
	URL, err := Normalize(location)
	if err != nil {
		return false, err
	}
	return s.fs.Exists(ctx, URL)
}

// Read downloads the object at location.
func (s *Store) Read(ctx context.Context, location string) ([]byte, error) {
	URL, err := Normalize(location)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	return data, nil
}

// ReadText downloads the object at location and decodes it to UTF-8.
func (s *Store) ReadText(ctx context.Context, location string, enc encoding.Encoding) ([]byte, error) {
	data, err := s.Read(ctx, location)
	if err != nil {
		return nil, err
	}
	return Decode(data, enc)
}

// WriteAtomic replaces the object at location with data.
//
// # Description
//
// Uploads data to a uniquely named temporary object next to location, then
// moves it over location. If the context is already cancelled or the upload
// fails, location is left untouched and the temporary object is removed.
//
// # Inputs
//
//   - ctx: Context for cancellation
//   - location: Destination path or URL
//   - data: Complete file content
//
// # Outputs
//
//   - error: Non-nil if the object could not be replaced
func (s *Store) WriteAtomic(ctx context.Context, location string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	URL, err := Normalize(location)
	if err != nil {
		return err
	}

	parent, name := url.Split(URL, file.Scheme)
	tmpURL := url.Join(parent, "."+name+".tmp-"+uuid.NewString())

	if err := s.fs.Upload(ctx, tmpURL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		_ = s.fs.Delete(ctx, tmpURL)
		return fmt.Errorf("write temporary %s: %w", tmpURL, err)
	}
	if err := ctx.Err(); err != nil {
		_ = s.fs.Delete(ctx, tmpURL)
		return err
	}
	if err := s.fs.Move(ctx, tmpURL, URL); err != nil {
		_ = s.fs.Delete(ctx, tmpURL)
		return fmt.Errorf("replace %s: %w", location, err)
	}
	return nil
}

// WriteText encodes UTF-8 text with enc and writes it atomically.
func (s *Store) WriteText(ctx context.Context, location string, text []byte, enc encoding.Encoding) error {
	data, err := Encode(text, enc)
	if err != nil {
		return err
	}
	return s.WriteAtomic(ctx, location, data)
}
