package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/formula"
	"github.com/nexuscrm/kernel/pkg/models"
)

// schemaSnapshot is an immutable view of every live object. Writers build a
// new snapshot and swap the pointer; readers never lock.
type schemaSnapshot struct {
	version uint64
	objects map[string]*models.ObjectMetadata
}

func newSchemaSnapshot(version uint64, objects []*models.ObjectMetadata) *schemaSnapshot {
	snap := &schemaSnapshot{version: version, objects: make(map[string]*models.ObjectMetadata, len(objects))}
	for _, obj := range objects {
		snap.objects[strings.ToLower(obj.APIName)] = obj
	}
	return snap
}

func (s *schemaSnapshot) get(apiName string) *models.ObjectMetadata {
	return s.objects[strings.ToLower(apiName)]
}

// sorted returns the objects ordered by api_name.
func (s *schemaSnapshot) sorted() []*models.ObjectMetadata {
	out := make([]*models.ObjectMetadata, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].APIName < out[j].APIName })
	return out
}

// MetadataService is the schema registry: it owns object and field metadata
// and keeps it reconciled with the physical schema.
type MetadataService struct {
	store     ports.MetadataStore
	schemaMgr *SchemaManager
	formula   *formula.Engine
	logger    *zap.Logger
	now       func() time.Time

	snapshot atomic.Pointer[schemaSnapshot]
	// writeMu orders snapshot publication; reads never take it.
	writeMu sync.Mutex
	// createMu serializes object creation within this process. Across
	// processes the registry's unique api_name decides the winner.
	createMu sync.Mutex
}

// NewMetadataService creates a new MetadataService
func NewMetadataService(store ports.MetadataStore, schemaMgr *SchemaManager, engine *formula.Engine, logger *zap.Logger) *MetadataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = formula.NewEngine(formula.WithLogger(logger))
	}
	return &MetadataService{
		store:     store,
		schemaMgr: schemaMgr,
		formula:   engine,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RefreshSnapshot reloads every live object from the metadata store and
// publishes a new snapshot.
func (ms *MetadataService) RefreshSnapshot(ctx context.Context) error {
	ms.writeMu.Lock()
	defer ms.writeMu.Unlock()

	ms.logger.Debug("🔄 Refreshing schema snapshot")
	objects, err := ms.store.LoadSchemas(ctx)
	if err != nil {
		return errors.NewInternalError("failed to load schemas", err)
	}
	snap := newSchemaSnapshot(ms.nextVersion(), objects)
	ms.snapshot.Store(snap)

	ms.logger.Info("✅ Schema snapshot refreshed", zap.Int("objects", len(objects)), zap.Uint64("version", snap.version))
	return nil
}

func (ms *MetadataService) nextVersion() uint64 {
	if cur := ms.snapshot.Load(); cur != nil {
		return cur.version + 1
	}
	return 1
}

// publish applies mutate to a copy of the current object set and swaps it in.
// Before the first load there is nothing to patch; the next read loads the
// store, which already holds the change.
func (ms *MetadataService) publish(mutate func(objects map[string]*models.ObjectMetadata)) {
	ms.writeMu.Lock()
	defer ms.writeMu.Unlock()

	cur := ms.snapshot.Load()
	if cur == nil {
		return
	}
	objects := make(map[string]*models.ObjectMetadata, len(cur.objects)+1)
	for k, v := range cur.objects {
		objects[k] = v
	}
	mutate(objects)

	snap := &schemaSnapshot{version: ms.nextVersion(), objects: objects}
	ms.snapshot.Store(snap)
}

// current returns the snapshot, loading it on first use.
func (ms *MetadataService) current(ctx context.Context) (*schemaSnapshot, error) {
	if snap := ms.snapshot.Load(); snap != nil {
		return snap, nil
	}
	if err := ms.RefreshSnapshot(ctx); err != nil {
		return nil, err
	}
	return ms.snapshot.Load(), nil
}

// Version returns the version of the published snapshot, 0 before the first load.
func (ms *MetadataService) Version() uint64 {
	if snap := ms.snapshot.Load(); snap != nil {
		return snap.version
	}
	return 0
}

// GetSchema returns a copy of a live object with its fields.
func (ms *MetadataService) GetSchema(ctx context.Context, apiName string) (*models.ObjectMetadata, error) {
	snap, err := ms.current(ctx)
	if err != nil {
		return nil, err
	}
	obj := snap.get(apiName)
	if obj == nil {
		return nil, errors.NewNotFoundError("object", apiName)
	}
	return obj.Clone(), nil
}

// GetSchemas returns copies of every live object ordered by api_name.
func (ms *MetadataService) GetSchemas(ctx context.Context) ([]*models.ObjectMetadata, error) {
	snap, err := ms.current(ctx)
	if err != nil {
		return nil, err
	}
	objects := snap.sorted()
	out := make([]*models.ObjectMetadata, len(objects))
	for i, obj := range objects {
		out[i] = obj.Clone()
	}
	return out, nil
}

// lookup returns the shared snapshot entry without copying. Callers must not
// mutate it.
func (ms *MetadataService) lookup(ctx context.Context, apiName string) (*models.ObjectMetadata, error) {
	snap, err := ms.current(ctx)
	if err != nil {
		return nil, err
	}
	obj := snap.get(apiName)
	if obj == nil {
		return nil, errors.NewNotFoundError("object", apiName)
	}
	return obj, nil
}
