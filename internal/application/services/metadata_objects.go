package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/internal/domain/schema"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

// ObjectResult is the outcome of one object in a batch creation.
type ObjectResult struct {
	APIName string                 `json:"api_name"`
	Object  *models.ObjectMetadata `json:"object,omitempty"`
	Err     error                  `json:"-"`
}

// existsIn returns a resolver over the snapshot plus extra names.
func existsIn(snap *schemaSnapshot, extra map[string]bool) targetResolver {
	return func(name string) bool {
		return extra[name] || snap.get(name) != nil
	}
}

// CreateObject validates def, creates its table and registers it. A table
// that already existed is reconciled with def first. Among concurrent
// creators of one name exactly one succeeds; the others get a conflict.
func (ms *MetadataService) CreateObject(ctx context.Context, def *models.ObjectMetadata) (*models.ObjectMetadata, error) {
	ms.createMu.Lock()
	defer ms.createMu.Unlock()

	snap, err := ms.current(ctx)
	if err != nil {
		return nil, err
	}
	obj, err := ms.prepareObject(def, existsIn(snap, nil))
	if err != nil {
		return nil, err
	}

	exists, err := ms.store.ObjectExists(ctx, obj.APIName)
	if err != nil {
		return nil, errors.NewInternalError("failed to check object existence", err)
	}
	if exists {
		return nil, errors.NewConflictError("object", constants.FieldAPIName, obj.APIName)
	}

	table, err := ms.schemaMgr.BuildTableDefinition(obj)
	if err != nil {
		return nil, err
	}
	created, err := ms.schemaMgr.CreateTable(ctx, table)
	if err != nil {
		return nil, err
	}
	var added []string
	if !created {
		if added, err = ms.schemaMgr.ReconcileTable(ctx, table); err != nil {
			return nil, err
		}
	}

	now := ms.now()
	obj.CreatedDate, obj.LastModified = now, now
	if err := ms.store.RegisterObject(ctx, ports.ObjectRegistration{Table: table, Object: obj}); err != nil {
		switch {
		case !created:
			ms.schemaMgr.DropColumns(ctx, table.TableName, added)
		case !errors.IsConflict(err):
			// On a conflict another node registered the table first and owns it.
			if dropErr := ms.schemaMgr.DropTable(context.WithoutCancel(ctx), obj.APIName); dropErr != nil {
				ms.logger.Error("❌ Failed to drop table after registration failure",
					zap.String("object", obj.APIName), zap.Error(dropErr))
			}
		}
		return nil, err
	}

	ms.publish(func(objects map[string]*models.ObjectMetadata) {
		objects[strings.ToLower(obj.APIName)] = obj
	})
	ms.logger.Info("✅ Object created", zap.String("object", obj.APIName), zap.Int("fields", len(obj.Fields)))
	return obj.Clone(), nil
}

// BatchCreateObjects creates many objects with one DDL phase and one
// registration transaction. Invalid or already registered objects are
// reported per object; a DDL or registration failure fails every remaining
// object of the batch.
func (ms *MetadataService) BatchCreateObjects(ctx context.Context, defs []*models.ObjectMetadata) []ObjectResult {
	ms.createMu.Lock()
	defer ms.createMu.Unlock()

	results := make([]ObjectResult, len(defs))
	for i, def := range defs {
		if def != nil {
			results[i].APIName = strings.TrimSpace(def.APIName)
		}
	}

	snap, err := ms.current(ctx)
	if err != nil {
		for i := range results {
			results[i].Err = err
		}
		return results
	}

	// Lookups may reference any object of the same batch.
	batchNames := make(map[string]bool, len(defs))
	for _, r := range results {
		if r.APIName != "" {
			batchNames[r.APIName] = true
		}
	}
	resolve := existsIn(snap, batchNames)

	pending := make([]int, 0, len(defs))
	objects := make([]*models.ObjectMetadata, len(defs))
	tables := make([]schema.TableDefinition, len(defs))
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		obj, err := ms.prepareObject(def, resolve)
		if err != nil {
			results[i].Err = err
			continue
		}
		if seen[obj.APIName] {
			results[i].Err = errors.NewConflictError("object", constants.FieldAPIName, obj.APIName)
			continue
		}
		seen[obj.APIName] = true

		exists, err := ms.store.ObjectExists(ctx, obj.APIName)
		if err != nil {
			results[i].Err = errors.NewInternalError("failed to check object existence", err)
			continue
		}
		if exists {
			results[i].Err = errors.NewConflictError("object", constants.FieldAPIName, obj.APIName)
			continue
		}
		table, err := ms.schemaMgr.BuildTableDefinition(obj)
		if err != nil {
			results[i].Err = err
			continue
		}
		objects[i], tables[i] = obj, table
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results
	}

	fail := func(err error) []ObjectResult {
		for _, i := range pending {
			results[i].Err = err
		}
		return results
	}

	defsToCreate := make([]schema.TableDefinition, 0, len(pending))
	for _, i := range pending {
		defsToCreate = append(defsToCreate, tables[i])
	}
	created, err := ms.schemaMgr.BatchCreateTables(ctx, defsToCreate)
	if err != nil {
		ms.logger.Error("❌ Batch DDL failed", zap.Error(err))
		return fail(err)
	}

	// Tables that already existed are reconciled like in CreateObject.
	isNew := make(map[string]bool, len(created))
	for _, table := range created {
		isNew[table] = true
	}
	added := make(map[string][]string)
	undo := func() {
		for table, cols := range added {
			ms.schemaMgr.DropColumns(ctx, table, cols)
		}
		for _, table := range created {
			if dropErr := ms.schemaMgr.DropTable(context.WithoutCancel(ctx), table); dropErr != nil {
				ms.logger.Error("❌ Failed to drop table after batch failure",
					zap.String("table", table), zap.Error(dropErr))
			}
		}
	}
	for _, table := range defsToCreate {
		if isNew[table.TableName] {
			continue
		}
		cols, err := ms.schemaMgr.ReconcileTable(ctx, table)
		if err != nil {
			ms.logger.Error("❌ Batch reconciliation failed", zap.String("table", table.TableName), zap.Error(err))
			undo()
			return fail(err)
		}
		if len(cols) > 0 {
			added[table.TableName] = cols
		}
	}

	now := ms.now()
	regs := make([]ports.ObjectRegistration, 0, len(pending))
	for _, i := range pending {
		objects[i].CreatedDate, objects[i].LastModified = now, now
		regs = append(regs, ports.ObjectRegistration{Table: tables[i], Object: objects[i]})
	}
	if err := ms.store.RegisterObjects(ctx, regs); err != nil {
		ms.logger.Error("❌ Batch registration failed", zap.Error(err))
		undo()
		return fail(err)
	}

	ms.publish(func(m map[string]*models.ObjectMetadata) {
		for _, i := range pending {
			m[strings.ToLower(objects[i].APIName)] = objects[i]
		}
	})
	for _, i := range pending {
		results[i].Object = objects[i].Clone()
	}
	ms.logger.Info("✅ Batch created objects", zap.Int("created", len(pending)), zap.Int("requested", len(defs)))
	return results
}

// DeleteObject soft-deletes a business object. The physical table is kept.
func (ms *MetadataService) DeleteObject(ctx context.Context, apiName string) error {
	if constants.IsSystemTable(apiName) {
		return errors.NewValidationError(constants.FieldAPIName, "system objects cannot be deleted")
	}
	obj, err := ms.lookup(ctx, apiName)
	if err != nil {
		return err
	}
	if err := ms.store.SoftDeleteObject(ctx, obj.APIName); err != nil {
		return err
	}

	ms.publish(func(objects map[string]*models.ObjectMetadata) {
		delete(objects, strings.ToLower(obj.APIName))
	})
	ms.logger.Warn("🗑️ Object deleted", zap.String("object", obj.APIName))
	return nil
}
