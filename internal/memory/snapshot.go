package memory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

// Snapshotter exports collections before destructive migrations. Exports are
// best-effort: a failure is surfaced to the caller as an error but must
// never block the migration itself; the registry logs it as a data-loss
// risk and proceeds.
type Snapshotter struct {
	backend Backend
	logger  *logging.Logger
	http    *http.Client
}

// NewSnapshotter creates a snapshot manager. httpClient may be nil, in which
// case http.DefaultClient downloads the artifacts.
func NewSnapshotter(backend Backend, httpClient *http.Client, logger *logging.Logger) *Snapshotter {
	if logger == nil {
		logger = logging.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Snapshotter{
		backend: backend,
		logger:  logger.Named("snapshot"),
		http:    httpClient,
	}
}

// SaveDump exports the collection to folder. No-op for backends without
// remote snapshot capability. The dump file is named after the collection's
// currently bound alias so an operator can tell which embedder wrote it.
// Backend-side snapshot artifacts are deleted after download. No retries.
func (s *Snapshotter) SaveDump(ctx context.Context, collection, folder string) error {
	ctx, span := tracer.Start(ctx, "Snapshotter.SaveDump")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.String("folder", folder),
	)

	if !s.backend.Remote() {
		span.SetStatus(codes.Ok, "skipped: backend has no snapshot capability")
		return nil
	}

	if err := os.MkdirAll(folder, 0o750); err != nil {
		return fmt.Errorf("creating snapshot folder %s: %w", folder, err)
	}

	desc, err := s.backend.CreateSnapshot(ctx, collection)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating snapshot of %s: %w", collection, err)
	}

	// Name the dump after the bound alias for an easier restore later.
	name := collection
	if aliases, err := s.backend.ListAliases(ctx, collection); err == nil && len(aliases) > 0 {
		name = aliases[0]
	}
	path := filepath.Join(folder, strings.ReplaceAll(name, "/", "-")+".snapshot")

	if err := s.download(ctx, s.backend.SnapshotURL(collection, desc.GetName()), path); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("downloading snapshot of %s: %w", collection, err)
	}

	// Drop the backend-side artifacts; the local dump is the export.
	snapshots, err := s.backend.ListSnapshots(ctx, collection)
	if err == nil {
		for _, snapshot := range snapshots {
			if err := s.backend.DeleteSnapshot(ctx, collection, snapshot.GetName()); err != nil {
				s.logger.Warn(ctx, "deleting backend-side snapshot failed",
					zap.String("collection", collection),
					zap.String("snapshot", snapshot.GetName()),
					zap.Error(err),
				)
			}
		}
	}

	s.logger.Warn(ctx, "collection dump completed",
		zap.String("collection", collection),
		zap.String("path", path),
	)
	span.SetStatus(codes.Ok, "success")
	return nil
}

func (s *Snapshotter) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	return f.Close()
}
