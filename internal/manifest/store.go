package manifest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rowjay/search-backup-utility/internal/catalog"
	"github.com/rowjay/search-backup-utility/internal/compress"
	"github.com/rowjay/search-backup-utility/internal/config"
	"github.com/rowjay/search-backup-utility/internal/cryptoutil"
	"github.com/rowjay/search-backup-utility/internal/storage"
)

// Store reads and writes manifest folders on a storage backend.
type Store struct {
	storage     storage.Storage
	compression string
	key         []byte
	log         zerolog.Logger
}

func NewStore(store storage.Storage, cfg config.ManifestConfig, log zerolog.Logger) (*Store, error) {
	s := &Store{
		storage:     store,
		compression: cfg.Compression,
		log:         log.With().Str("component", "manifest").Logger(),
	}
	if cfg.Encryption {
		if cfg.EncryptionKey == "" {
			return nil, errors.NotValidf("manifest encryption is enabled but encryption_key is empty")
		}
		key, err := cryptoutil.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("manifest encryption key: %w", err)
		}
		s.key = key
	}
	return s, nil
}

// Save writes every non-empty part of m into folder and removes the files a
// previous backup left there, so the folder holds m alone. Files are written
// independently; a failure leaves the files written so far in place.
func (s *Store) Save(ctx context.Context, folder string, m *Manifest) error {
	for _, file := range Files {
		if m.Has(file) {
			continue
		}
		err := s.storage.Delete(ctx, storage.Key(folder, file))
		if errors.Is(err, errors.NotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("remove stale %s: %w", file, err)
		}
		s.log.Debug().Str("folder", folder).Str("file", file).Msg("stale manifest file removed")
	}

	for _, file := range Files {
		if !m.Has(file) {
			continue
		}
		var encode func(io.Writer) error
		switch file {
		case DatabasesFile:
			encode = writeLines(m.Databases)
		case IndicesFile:
			encode = writeLines(m.Indices)
		case AliasesFile:
			encode = writeJSON(m.Aliases)
		case TemplatesFile:
			encode = writeJSON(m.IndexTemplates)
		case ComponentTemplatesFile:
			encode = writeJSON(m.ComponentTemplates)
		case LegacyTemplatesFile:
			encode = writeJSON(catalog.LegacyTemplatesByName(m.LegacyTemplates))
		}
		if err := s.write(ctx, folder, file, encode); err != nil {
			return fmt.Errorf("write %s: %w", file, err)
		}
		s.log.Debug().Str("folder", folder).Str("file", file).Msg("manifest file written")
	}
	return nil
}

// Load reads the manifest of folder. Absent files leave their part empty and
// are reported by Has; unreadable or corrupt files are errors.
func (s *Store) Load(ctx context.Context, folder string) (*Manifest, error) {
	m := &Manifest{present: map[string]bool{}}
	for _, file := range Files {
		var decode func(io.Reader) error
		switch file {
		case DatabasesFile:
			decode = readLines(&m.Databases)
		case IndicesFile:
			decode = readLines(&m.Indices)
		case AliasesFile:
			decode = readJSON(&m.Aliases)
		case TemplatesFile:
			decode = readJSON(&m.IndexTemplates)
		case ComponentTemplatesFile:
			decode = readJSON(&m.ComponentTemplates)
		case LegacyTemplatesFile:
			decode = func(r io.Reader) error {
				byName := map[string]catalog.Object{}
				if err := json.NewDecoder(r).Decode(&byName); err != nil {
					return err
				}
				m.LegacyTemplates = catalog.LegacyTemplates(byName)
				return nil
			}
		}
		err := s.read(ctx, folder, file, decode)
		if errors.Is(err, errors.NotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		m.markPresent(file)
	}
	return m, nil
}

// Remove deletes the manifest folder.
func (s *Store) Remove(ctx context.Context, folder string) (int, error) {
	return s.storage.DeletePrefix(ctx, folder)
}

// write streams the encoded file through the configured compression and
// encryption into the storage backend.
func (s *Store) write(ctx context.Context, folder, file string, encode func(io.Writer) error) error {
	pipeReader, pipeWriter := io.Pipe()
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer pipeReader.Close()
		return s.storage.Put(egCtx, storage.Key(folder, file), pipeReader, -1, map[string]string{"sbu-manifest": file})
	})

	eg.Go(func() error {
		writer := io.Writer(pipeWriter)
		var closers []io.Closer
		if s.key != nil {
			encWriter, err := cryptoutil.EncryptWriter(writer, s.key)
			if err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
			writer = encWriter
			closers = append(closers, encWriter)
		}
		if s.compression != "" && s.compression != compress.TypeNone {
			compWriter, err := compress.WrapWriter(s.compression, writer)
			if err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
			writer = compWriter
			closers = append(closers, compWriter)
		}
		if err := encode(writer); err != nil {
			_ = pipeWriter.CloseWithError(err)
			return err
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
		}
		return pipeWriter.Close()
	})

	return eg.Wait()
}

func (s *Store) read(ctx context.Context, folder, file string, decode func(io.Reader) error) error {
	reader, err := s.storage.Get(ctx, storage.Key(folder, file))
	if err != nil {
		return err
	}
	defer reader.Close()

	payload := io.Reader(reader)
	if s.key != nil {
		payload, err = cryptoutil.DecryptReader(payload, s.key)
		if err != nil {
			return err
		}
	}
	plain, err := compress.AutoReader(payload)
	if err != nil {
		return err
	}
	defer plain.Close()
	return decode(plain)
}

func writeLines(lines []string) func(io.Writer) error {
	return func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, line := range lines {
			if _, err := fmt.Fprintln(bw, line); err != nil {
				return err
			}
		}
		return bw.Flush()
	}
}

func readLines(out *[]string) func(io.Reader) error {
	return func(r io.Reader) error {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				*out = append(*out, line)
			}
		}
		return scanner.Err()
	}
}

func writeJSON(v any) func(io.Writer) error {
	return func(w io.Writer) error {
		return json.NewEncoder(w).Encode(v)
	}
}

func readJSON(v any) func(io.Reader) error {
	return func(r io.Reader) error {
		return json.NewDecoder(r).Decode(v)
	}
}
