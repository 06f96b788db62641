// Package eventlog reads records from a file-backed append-only event
// log.
//
// The log is laid out as one directory per container, with records
// appended to date-partitioned JSONL segments:
//
//	<root>/history/entities/<kind>/<container>/events/<date>.jsonl
//	<root>/history/entities/<kind>/<container>/context.json
//
// Each line is one record. The per-record fingerprint is the SHA-256
// of the raw line, so any content change surfaces as a new
// fingerprint for the same identity.
package eventlog

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/helicon-labs/vectra/internal/core/domain"
	"github.com/helicon-labs/vectra/internal/core/ports/driven"
	"github.com/helicon-labs/vectra/internal/logger"
)

// Ensure Source implements the interface.
var _ driven.RecordSource = (*Source)(nil)

// Maximum JSONL line size. Calendar events with large descriptions
// stay well under this.
const maxLineBytes = 1 << 20

// Config holds configuration for the event log source.
type Config struct {
	// Root is the event log root directory.
	Root string

	// Kind is the record kind to enumerate (default "calendar").
	Kind string
}

// Source enumerates records from the event log.
type Source struct {
	root string
	kind string
}

// NewSource creates an event log source.
func NewSource(cfg Config) (*Source, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: event log root not set", domain.ErrConfiguration)
	}
	kind := cfg.Kind
	if kind == "" {
		kind = "calendar"
	}
	return &Source{root: cfg.Root, kind: kind}, nil
}

// entitiesDir returns the directory holding container directories.
func (s *Source) entitiesDir() string {
	return filepath.Join(s.root, "history", "entities", s.kind)
}

// Enumerate streams all current records with their fingerprints.
func (s *Source) Enumerate(ctx context.Context) (<-chan domain.Record, <-chan error) {
	records := make(chan domain.Record)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		containers, err := s.containerIDs()
		if err != nil {
			errs <- err
			return
		}

		for _, containerID := range containers {
			if err := s.enumerateContainer(ctx, containerID, records); err != nil {
				errs <- err
				return
			}
		}
	}()

	return records, errs
}

// enumerateContainer yields all records from one container's segments
// in date order.
func (s *Source) enumerateContainer(ctx context.Context, containerID string, out chan<- domain.Record) error {
	eventsDir := filepath.Join(s.entitiesDir(), containerID, "events")
	entries, err := os.ReadDir(eventsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Container without segments
		}
		return fmt.Errorf("reading events dir %s: %w", eventsDir, err)
	}

	var segments []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jsonl") {
			segments = append(segments, entry.Name())
		}
	}
	sort.Strings(segments)

	for _, segment := range segments {
		path := filepath.Join(eventsDir, segment)
		if err := s.enumerateSegment(ctx, containerID, path, out); err != nil {
			return err
		}
	}
	return nil
}

// enumerateSegment yields the records of one JSONL segment. Malformed
// lines and lines without a usable record ID are logged and skipped.
func (s *Source) enumerateSegment(ctx context.Context, containerID, path string, out chan<- domain.Record) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening segment %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, ok := s.parseLine(containerID, line)
		if !ok {
			logger.Warn("Skipping unparseable record at %s:%d", path, lineNum)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- rec:
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading segment %s: %w", path, err)
	}
	return nil
}

// parseLine builds a record from one raw JSONL line.
func (s *Source) parseLine(containerID, line string) (domain.Record, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return domain.Record{}, false
	}

	recordID := recordIDFromPayload(payload)
	if recordID == "" {
		return domain.Record{}, false
	}

	sum := sha256.Sum256([]byte(line))
	return domain.Record{
		Ref: domain.RecordRef{
			ContainerID: containerID,
			RecordID:    recordID,
		},
		Fingerprint: hex.EncodeToString(sum[:]),
		Kind:        s.kind,
		Payload:     payload,
	}, true
}

// recordIDFromPayload extracts the record identifier from the
// envelope. message_id is preferred; remote_id is the fallback.
func recordIDFromPayload(payload map[string]any) string {
	envelope, _ := payload["envelope"].(map[string]any)
	if envelope == nil {
		return ""
	}
	if id, _ := envelope["message_id"].(string); id != "" {
		return id
	}
	if id, _ := envelope["remote_id"].(string); id != "" {
		return id
	}
	return ""
}

// Containers lists the containers present in the event log.
func (s *Source) Containers(ctx context.Context) ([]domain.Container, error) {
	ids, err := s.containerIDs()
	if err != nil {
		return nil, err
	}

	containers := make([]domain.Container, 0, len(ids))
	for _, id := range ids {
		container, err := s.Container(ctx, id)
		if err != nil {
			// A container without a context file is still a container.
			container = &domain.Container{ID: id, Kind: s.kind}
		}
		containers = append(containers, *container)
	}
	return containers, nil
}

// Container returns metadata for one container from its context file.
func (s *Source) Container(_ context.Context, id string) (*domain.Container, error) {
	path := filepath.Join(s.entitiesDir(), id, "context.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading context file %s: %w", path, err)
	}

	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("parsing context file %s: %w", path, err)
	}

	container := &domain.Container{
		ID:       id,
		Kind:     s.kind,
		Metadata: metadata,
	}
	if label, _ := metadata["label"].(string); label != "" {
		container.Label = label
	} else if name, _ := metadata["name"].(string); name != "" {
		container.Label = name
	}
	return container, nil
}

// containerIDs lists container directory names.
func (s *Source) containerIDs() ([]string, error) {
	entries, err := os.ReadDir(s.entitiesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Empty log
		}
		return nil, fmt.Errorf("reading entities dir: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
