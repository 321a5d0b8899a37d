package bootstrap

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nexuscrm/kernel/internal/application/services"
	domainmodels "github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/internal/domain/schema"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

type fakeMetadataStore struct {
	mu      sync.Mutex
	objects map[string]*models.ObjectMetadata
	rules   map[string][]*models.ValidationRule
	batches int
}

func (s *fakeMetadataStore) LoadSchemas(ctx context.Context) ([]*models.ObjectMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ObjectMetadata, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].APIName < out[j].APIName })
	return out, nil
}

func (s *fakeMetadataStore) ObjectExists(ctx context.Context, apiName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[strings.ToLower(apiName)]
	return ok, nil
}

func (s *fakeMetadataStore) RegisterObject(ctx context.Context, reg ports.ObjectRegistration) error {
	return s.RegisterObjects(ctx, []ports.ObjectRegistration{reg})
}

func (s *fakeMetadataStore) RegisterObjects(ctx context.Context, regs []ports.ObjectRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	for _, reg := range regs {
		s.objects[strings.ToLower(reg.Object.APIName)] = reg.Object.Clone()
	}
	return nil
}

func (s *fakeMetadataStore) RegisterField(ctx context.Context, field *models.FieldMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.objects {
		if o.ID == field.ObjectID {
			o.Fields = append(o.Fields, *field)
			return nil
		}
	}
	return errors.NewNotFoundError("Object", field.ObjectID)
}

func (s *fakeMetadataStore) SoftDeleteObject(ctx context.Context, apiName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, strings.ToLower(apiName))
	return nil
}

func (s *fakeMetadataStore) SoftDeleteField(ctx context.Context, objectID, fieldAPIName string) error {
	return nil
}

func (s *fakeMetadataStore) ListValidationRules(ctx context.Context, objectAPIName string) ([]*models.ValidationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules[strings.ToLower(objectAPIName)], nil
}

func (s *fakeMetadataStore) SaveValidationRule(ctx context.Context, rule *models.ValidationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(rule.ObjectAPIName)
	s.rules[key] = append(s.rules[key], rule)
	return nil
}

// fakeSchemaStore keeps table -> column -> DATA_TYPE.
type fakeSchemaStore struct {
	mu      sync.Mutex
	tables  map[string]map[string]string
	created []string
}

func (s *fakeSchemaStore) TableExists(ctx context.Context, table string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tables[table]
	return ok, nil
}

func (s *fakeSchemaStore) CreateTable(ctx context.Context, def schema.TableDefinition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[def.TableName]; ok {
		return false, nil
	}
	cols := make(map[string]string, len(def.Columns))
	for _, c := range def.Columns {
		t := strings.ToLower(c.Type)
		if i := strings.IndexAny(t, "( "); i >= 0 {
			t = t[:i]
		}
		cols[c.Name] = t
	}
	s.tables[def.TableName] = cols
	s.created = append(s.created, def.TableName)
	return true, nil
}

func (s *fakeSchemaStore) BatchCreateTables(ctx context.Context, defs []schema.TableDefinition) ([]string, error) {
	var created []string
	for _, def := range defs {
		ok, err := s.CreateTable(ctx, def)
		if err != nil {
			return nil, err
		}
		if ok {
			created = append(created, def.TableName)
		}
	}
	return created, nil
}

func (s *fakeSchemaStore) DropTable(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, table)
	return nil
}

func (s *fakeSchemaStore) AddColumn(ctx context.Context, table string, col schema.ColumnDefinition) (bool, error) {
	return false, nil
}

func (s *fakeSchemaStore) DropColumn(ctx context.Context, table, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[table], column)
	return nil
}

func (s *fakeSchemaStore) CreateIndex(ctx context.Context, table string, idx schema.IndexDefinition) error {
	return nil
}

func (s *fakeSchemaStore) ListTables(ctx context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.tables))
	for t := range s.tables {
		out[t] = true
	}
	return out, nil
}

func (s *fakeSchemaStore) ListColumns(ctx context.Context) (map[string]map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]string, len(s.tables))
	for t, cols := range s.tables {
		m := make(map[string]string, len(cols))
		for c, dt := range cols {
			m[c] = dt
		}
		out[t] = m
	}
	return out, nil
}

type fakePermissionStore struct {
	mu    sync.Mutex
	data  models.SecurityData
	saves int
}

func (s *fakePermissionStore) LoadSecurityData(ctx context.Context) (*models.SecurityData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data
	return &d, nil
}

func (s *fakePermissionStore) SaveProfile(ctx context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Profiles {
		if s.data.Profiles[i].ID == profile.ID {
			s.data.Profiles[i] = *profile
			return nil
		}
	}
	s.data.Profiles = append(s.data.Profiles, *profile)
	return nil
}

func (s *fakePermissionStore) SaveRole(ctx context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Roles = append(s.data.Roles, *role)
	return nil
}

func (s *fakePermissionStore) SaveSharingRule(ctx context.Context, rule *models.SharingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.SharingRules = append(s.data.SharingRules, *rule)
	return nil
}

func (s *fakePermissionStore) SaveObjectPermission(ctx context.Context, perm *models.ObjectPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	for i := range s.data.ObjectPerms {
		p := &s.data.ObjectPerms[i]
		if p.ProfileID == perm.ProfileID && strings.EqualFold(p.ObjectAPIName, perm.ObjectAPIName) {
			*p = *perm
			return nil
		}
	}
	s.data.ObjectPerms = append(s.data.ObjectPerms, *perm)
	return nil
}

func (s *fakePermissionStore) SaveFieldPermission(ctx context.Context, perm *models.FieldPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.FieldPerms = append(s.data.FieldPerms, *perm)
	return nil
}

type fakeFlowStore struct {
	mu    sync.Mutex
	flows []*domainmodels.Flow
}

func (s *fakeFlowStore) ListFlows(ctx context.Context) ([]*domainmodels.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domainmodels.Flow(nil), s.flows...), nil
}

func (s *fakeFlowStore) GetFlow(ctx context.Context, id string) (*domainmodels.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.flows {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, errors.NewNotFoundError("Flow", id)
}

func (s *fakeFlowStore) SaveFlow(ctx context.Context, flow *domainmodels.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows = append(s.flows, flow)
	return nil
}

func (s *fakeFlowStore) SaveFlowInstance(ctx context.Context, instance *domainmodels.FlowInstance) error {
	return nil
}

func (s *fakeFlowStore) GetFlowInstance(ctx context.Context, id string) (*domainmodels.FlowInstance, error) {
	return nil, errors.NewNotFoundError("FlowInstance", id)
}

type fixture struct {
	*services.ServiceManager
	meta   *fakeMetadataStore
	schema *fakeSchemaStore
	perms  *fakePermissionStore
	flows  *fakeFlowStore
}

// newFixture wires the services on fakes. Record and approval stores are
// left out since bootstrap never touches rows.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		meta:   &fakeMetadataStore{objects: map[string]*models.ObjectMetadata{}, rules: map[string][]*models.ValidationRule{}},
		schema: &fakeSchemaStore{tables: map[string]map[string]string{}},
		perms:  &fakePermissionStore{},
		flows:  &fakeFlowStore{},
	}
	f.ServiceManager = services.NewServiceManager(services.Stores{
		Metadata:    f.meta,
		Schema:      f.schema,
		Permissions: f.perms,
		Flows:       f.flows,
	}, services.Notifiers{}, zaptest.NewLogger(t))
	return f
}

// bootstrapped runs the full startup sequence and requires it to pass.
func bootstrapped(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	res, err := Run(context.Background(), f.ServiceManager, true, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.True(t, res.Passed, "%+v", res.Violations)
	return f
}

func strPtr(s string) *string { return &s }
