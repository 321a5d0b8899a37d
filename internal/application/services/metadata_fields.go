package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
	"github.com/nexuscrm/kernel/pkg/utils"
)

// CreateField adds a field to a live object: columns first, then the
// metadata row. Columns added by this call are dropped again when the
// registration fails for any reason other than a concurrent duplicate.
func (ms *MetadataService) CreateField(ctx context.Context, objectAPIName string, def *models.FieldMetadata) (*models.FieldMetadata, error) {
	if def == nil {
		return nil, errors.NewValidationError("", "field definition is required")
	}
	snap, err := ms.current(ctx)
	if err != nil {
		return nil, err
	}
	obj := snap.get(objectAPIName)
	if obj == nil {
		return nil, errors.NewNotFoundError("object", objectAPIName)
	}
	if obj.TableType == constants.TableTypeSystemMetadata {
		return nil, errors.NewValidationError(constants.FieldAPIName, "fields cannot be added to metadata tables")
	}

	field := *def
	field.Options = append([]string(nil), def.Options...)
	field.ReferenceTo = append([]string(nil), def.ReferenceTo...)
	if err := ms.prepareField(obj, &field, existsIn(snap, nil)); err != nil {
		return nil, err
	}
	if field.IsNameField {
		return nil, errors.NewValidationError(field.APIName, "an object has exactly one name field")
	}
	field.ID = constants.PrefixField + utils.GenerateID()
	field.ObjectID = obj.ID
	now := ms.now()
	field.CreatedDate, field.LastModified = now, now

	added, err := ms.schemaMgr.AddFieldColumns(ctx, obj.APIName, &field)
	if err != nil {
		return nil, err
	}
	if err := ms.store.RegisterField(ctx, &field); err != nil {
		if !errors.IsConflict(err) {
			ms.schemaMgr.DropColumns(ctx, obj.APIName, added)
		}
		return nil, err
	}

	ms.publish(func(objects map[string]*models.ObjectMetadata) {
		key := strings.ToLower(obj.APIName)
		cur, ok := objects[key]
		if !ok {
			return
		}
		next := cur.Clone()
		next.Fields = append(next.Fields, field)
		objects[key] = next
	})
	ms.logger.Info("✅ Field created",
		zap.String("object", obj.APIName),
		zap.String("field", field.APIName),
		zap.String("type", string(field.Type)))

	out := field
	return &out, nil
}

// DeleteField soft-deletes a field. The physical column is kept.
func (ms *MetadataService) DeleteField(ctx context.Context, objectAPIName, fieldAPIName string) error {
	obj, err := ms.lookup(ctx, objectAPIName)
	if err != nil {
		return err
	}
	field := obj.GetField(fieldAPIName)
	if field == nil {
		return errors.NewNotFoundError("field", objectAPIName+"."+fieldAPIName)
	}
	if field.IsSystem || constants.IsSystemField(field.APIName) {
		return errors.NewValidationError(fieldAPIName, "system fields cannot be deleted")
	}
	if field.IsNameField {
		return errors.NewValidationError(fieldAPIName, "the name field cannot be deleted")
	}

	if err := ms.store.SoftDeleteField(ctx, obj.ID, field.APIName); err != nil {
		return err
	}

	ms.publish(func(objects map[string]*models.ObjectMetadata) {
		key := strings.ToLower(obj.APIName)
		cur, ok := objects[key]
		if !ok {
			return
		}
		next := cur.Clone()
		kept := next.Fields[:0]
		for _, f := range next.Fields {
			if f.APIName != fieldAPIName {
				kept = append(kept, f)
			}
		}
		next.Fields = kept
		objects[key] = next
	})
	ms.logger.Warn("🗑️ Field deleted", zap.String("object", obj.APIName), zap.String("field", fieldAPIName))
	return nil
}
