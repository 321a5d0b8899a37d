package services

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/fieldtypes"
	"github.com/nexuscrm/kernel/pkg/models"
)

// checkPolymorphic requires a discriminator naming one of the allowed
// targets whenever a polymorphic lookup is set.
func checkPolymorphic(obj *models.ObjectMetadata, record models.SObject) error {
	for i := range obj.Fields {
		f := &obj.Fields[i]
		if !f.IsPolymorphic() {
			continue
		}
		typeKey := f.APIName + constants.PolymorphicTypeSuffix
		if v, ok := record[f.APIName]; !ok || v == nil || v == "" {
			if _, ok := record[typeKey]; ok {
				record[typeKey] = nil
			}
			continue
		}
		target := record.GetString(typeKey)
		matched := ""
		for _, ref := range f.ReferenceTo {
			if strings.EqualFold(ref, target) {
				matched = ref
				break
			}
		}
		if matched == "" {
			return errors.NewValidationError(typeKey, fmt.Sprintf("must be one of %s", strings.Join(f.ReferenceTo, ", ")))
		}
		record[typeKey] = matched
	}
	return nil
}

// prepareValues checks types, converts values to their storage form and
// enforces required fields.
func (ps *PersistenceService) prepareValues(obj *models.ObjectMetadata, record models.SObject, isNew bool) error {
	if err := ps.validator.ValidateValues(obj, record); err != nil {
		return err
	}
	if err := ps.validator.Normalize(obj, record, isNew); err != nil {
		return err
	}
	return checkPolymorphic(obj, record)
}

// storageValues keeps the keys of record that map to physical columns.
func storageValues(obj *models.ObjectMetadata, record models.SObject) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	for i := range obj.Fields {
		f := &obj.Fields[i]
		if fieldtypes.IsVirtual(f.Type) {
			continue
		}
		if v, ok := record[f.APIName]; ok {
			out[f.APIName] = v
		}
		if f.IsPolymorphic() {
			key := f.APIName + constants.PolymorphicTypeSuffix
			if v, ok := record[key]; ok {
				out[key] = v
			}
		}
	}
	return out
}

// stampInsert sets the system fields of a new record.
func stampInsert(record models.SObject, id string, caller *models.UserSession, now time.Time) {
	record[constants.FieldID] = id
	record[constants.FieldOwnerID] = caller.ID
	record[constants.FieldCreatedByID] = caller.ID
	record[constants.FieldCreatedDate] = now
	record[constants.FieldLastModifiedByID] = caller.ID
	record[constants.FieldLastModifiedDate] = now
	record[constants.FieldIsDeleted] = false
}

// stampUpdate sets the audit fields of a modified record.
func stampUpdate(record models.SObject, caller *models.UserSession, now time.Time) {
	record[constants.FieldLastModifiedByID] = caller.ID
	record[constants.FieldLastModifiedDate] = now
}

// changedKeys lists the keys whose value differs between before and after.
func changedKeys(before, after models.SObject) []string {
	var keys []string
	for k, v := range after {
		prev, ok := before[k]
		if !ok || !reflect.DeepEqual(prev, v) {
			keys = append(keys, k)
		}
	}
	return keys
}
