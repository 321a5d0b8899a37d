package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	domainmodels "github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/internal/domain/schema"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

// ==================== In-memory stores ====================

type memMetadataStore struct {
	mu          sync.Mutex
	objects     map[string]*models.ObjectMetadata
	deleted     map[string]bool
	rules       map[string][]*models.ValidationRule
	registerErr error
}

func newMemMetadataStore() *memMetadataStore {
	return &memMetadataStore{
		objects: make(map[string]*models.ObjectMetadata),
		deleted: make(map[string]bool),
		rules:   make(map[string][]*models.ValidationRule),
	}
}

func (s *memMetadataStore) LoadSchemas(ctx context.Context) ([]*models.ObjectMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ObjectMetadata, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].APIName < out[j].APIName })
	return out, nil
}

func (s *memMetadataStore) ObjectExists(ctx context.Context, apiName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(apiName)
	_, ok := s.objects[key]
	return ok || s.deleted[key], nil
}

func (s *memMetadataStore) RegisterObject(ctx context.Context, reg ports.ObjectRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registerErr != nil {
		return s.registerErr
	}
	key := strings.ToLower(reg.Object.APIName)
	if _, ok := s.objects[key]; ok || s.deleted[key] {
		return errors.NewConflictError("Object", constants.FieldAPIName, reg.Object.APIName)
	}
	s.objects[key] = reg.Object.Clone()
	return nil
}

func (s *memMetadataStore) RegisterObjects(ctx context.Context, regs []ports.ObjectRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registerErr != nil {
		return s.registerErr
	}
	for _, reg := range regs {
		s.objects[strings.ToLower(reg.Object.APIName)] = reg.Object.Clone()
	}
	return nil
}

func (s *memMetadataStore) RegisterField(ctx context.Context, field *models.FieldMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registerErr != nil {
		return s.registerErr
	}
	for _, o := range s.objects {
		if o.ID != field.ObjectID {
			continue
		}
		if o.HasField(field.APIName) {
			return errors.NewConflictError("Field", constants.FieldAPIName, field.APIName)
		}
		o.Fields = append(o.Fields, *field)
		return nil
	}
	return errors.NewNotFoundError("Object", field.ObjectID)
}

func (s *memMetadataStore) SoftDeleteObject(ctx context.Context, apiName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(apiName)
	if _, ok := s.objects[key]; !ok {
		return errors.NewNotFoundError("Object", apiName)
	}
	delete(s.objects, key)
	s.deleted[key] = true
	return nil
}

func (s *memMetadataStore) SoftDeleteField(ctx context.Context, objectID, fieldAPIName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.objects {
		if o.ID != objectID {
			continue
		}
		for i := range o.Fields {
			if o.Fields[i].APIName == fieldAPIName {
				o.Fields = append(o.Fields[:i], o.Fields[i+1:]...)
				return nil
			}
		}
	}
	return errors.NewNotFoundError("Field", fieldAPIName)
}

func (s *memMetadataStore) ListValidationRules(ctx context.Context, objectAPIName string) ([]*models.ValidationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.ValidationRule(nil), s.rules[strings.ToLower(objectAPIName)]...), nil
}

func (s *memMetadataStore) SaveValidationRule(ctx context.Context, rule *models.ValidationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(rule.ObjectAPIName)
	s.rules[key] = append(s.rules[key], rule)
	return nil
}

// memSchemaStore keeps table -> column -> DATA_TYPE.
type memSchemaStore struct {
	mu        sync.Mutex
	tables    map[string]map[string]string
	dropped   []string
	createErr map[string]error
}

func newMemSchemaStore() *memSchemaStore {
	return &memSchemaStore{tables: make(map[string]map[string]string), createErr: make(map[string]error)}
}

// dataType reduces a column type to its INFORMATION_SCHEMA DATA_TYPE.
func dataType(sqlType string) string {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if i := strings.IndexAny(t, "( "); i >= 0 {
		t = t[:i]
	}
	return t
}

func (s *memSchemaStore) TableExists(ctx context.Context, table string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tables[table]
	return ok, nil
}

func (s *memSchemaStore) CreateTable(ctx context.Context, def schema.TableDefinition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[def.TableName]; err != nil {
		return false, err
	}
	if _, ok := s.tables[def.TableName]; ok {
		return false, nil
	}
	cols := make(map[string]string, len(def.Columns))
	for _, c := range def.Columns {
		cols[c.Name] = dataType(c.Type)
	}
	s.tables[def.TableName] = cols
	return true, nil
}

func (s *memSchemaStore) BatchCreateTables(ctx context.Context, defs []schema.TableDefinition) ([]string, error) {
	var created []string
	for _, def := range defs {
		ok, err := s.CreateTable(ctx, def)
		if err != nil {
			for _, t := range created {
				_ = s.DropTable(ctx, t)
			}
			return nil, err
		}
		if ok {
			created = append(created, def.TableName)
		}
	}
	return created, nil
}

func (s *memSchemaStore) DropTable(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, table)
	s.dropped = append(s.dropped, table)
	return nil
}

func (s *memSchemaStore) AddColumn(ctx context.Context, table string, col schema.ColumnDefinition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols, ok := s.tables[table]
	if !ok {
		return false, fmt.Errorf("table %s does not exist", table)
	}
	if _, ok := cols[col.Name]; ok {
		return false, nil
	}
	cols[col.Name] = dataType(col.Type)
	return true, nil
}

func (s *memSchemaStore) DropColumn(ctx context.Context, table, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[table], column)
	return nil
}

func (s *memSchemaStore) CreateIndex(ctx context.Context, table string, idx schema.IndexDefinition) error {
	return nil
}

func (s *memSchemaStore) ListTables(ctx context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.tables))
	for t := range s.tables {
		out[t] = true
	}
	return out, nil
}

func (s *memSchemaStore) ListColumns(ctx context.Context) (map[string]map[string]string, error) {
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

type memPermissionStore struct {
	mu   sync.Mutex
	data models.SecurityData
}

func (s *memPermissionStore) LoadSecurityData(ctx context.Context) (*models.SecurityData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data
	return &d, nil
}

func (s *memPermissionStore) SaveProfile(ctx context.Context, profile *models.Profile) error {
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

func (s *memPermissionStore) SaveRole(ctx context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Roles {
		if s.data.Roles[i].ID == role.ID {
			s.data.Roles[i] = *role
			return nil
		}
	}
	s.data.Roles = append(s.data.Roles, *role)
	return nil
}

func (s *memPermissionStore) SaveSharingRule(ctx context.Context, rule *models.SharingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.SharingRules = append(s.data.SharingRules, *rule)
	return nil
}

func (s *memPermissionStore) SaveObjectPermission(ctx context.Context, perm *models.ObjectPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *memPermissionStore) SaveFieldPermission(ctx context.Context, perm *models.FieldPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.FieldPerms {
		p := &s.data.FieldPerms[i]
		if p.ProfileID == perm.ProfileID && strings.EqualFold(p.ObjectAPIName, perm.ObjectAPIName) && p.FieldAPIName == perm.FieldAPIName {
			*p = *perm
			return nil
		}
	}
	s.data.FieldPerms = append(s.data.FieldPerms, *perm)
	return nil
}

type memFlowStore struct {
	mu        sync.Mutex
	flows     map[string]*domainmodels.Flow
	instances map[string]*domainmodels.FlowInstance
}

func newMemFlowStore() *memFlowStore {
	return &memFlowStore{
		flows:     make(map[string]*domainmodels.Flow),
		instances: make(map[string]*domainmodels.FlowInstance),
	}
}

func (s *memFlowStore) ListFlows(ctx context.Context) ([]*domainmodels.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domainmodels.Flow, 0, len(s.flows))
	for _, f := range s.flows {
		out = append(out, f)
	}
	return out, nil
}

func (s *memFlowStore) GetFlow(ctx context.Context, id string) (*domainmodels.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[id]
	if !ok {
		return nil, errors.NewNotFoundError("Flow", id)
	}
	return f, nil
}

func (s *memFlowStore) SaveFlow(ctx context.Context, flow *domainmodels.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *flow
	cp.Steps = append([]domainmodels.FlowStep(nil), flow.Steps...)
	s.flows[flow.ID] = &cp
	return nil
}

func (s *memFlowStore) SaveFlowInstance(ctx context.Context, instance *domainmodels.FlowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *instance
	s.instances[instance.ID] = &cp
	return nil
}

func (s *memFlowStore) GetFlowInstance(ctx context.Context, id string) (*domainmodels.FlowInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, errors.NewNotFoundError("FlowInstance", id)
	}
	cp := *inst
	return &cp, nil
}

type memApprovalStore struct {
	mu        sync.Mutex
	processes map[string]*models.ApprovalProcess
	items     map[string]*models.ApprovalWorkItem
}

func newMemApprovalStore() *memApprovalStore {
	return &memApprovalStore{
		processes: make(map[string]*models.ApprovalProcess),
		items:     make(map[string]*models.ApprovalWorkItem),
	}
}

func (s *memApprovalStore) SaveProcess(ctx context.Context, process *models.ApprovalProcess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *process
	s.processes[process.ID] = &cp
	return nil
}

func (s *memApprovalStore) GetProcess(ctx context.Context, id string) (*models.ApprovalProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[id]
	if !ok {
		return nil, errors.NewNotFoundError("ApprovalProcess", id)
	}
	cp := *p
	return &cp, nil
}

func (s *memApprovalStore) ListProcesses(ctx context.Context, objectAPIName string) ([]*models.ApprovalProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ApprovalProcess
	for _, p := range s.processes {
		if strings.EqualFold(p.ObjectAPIName, objectAPIName) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memApprovalStore) CreateWorkItem(ctx context.Context, item *models.ApprovalWorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.IsPending() && existing.ProcessID == item.ProcessID && existing.RecordID == item.RecordID {
			return errors.NewConflictError("ApprovalWorkItem", "open_key", item.ProcessID+":"+item.RecordID)
		}
	}
	cp := *item
	s.items[item.ID] = &cp
	return nil
}

func (s *memApprovalStore) GetWorkItem(ctx context.Context, id string) (*models.ApprovalWorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("ApprovalWorkItem", id)
	}
	cp := *item
	return &cp, nil
}

func (s *memApprovalStore) ResolveWorkItem(ctx context.Context, id string, res ports.WorkItemResolution) (*models.ApprovalWorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("ApprovalWorkItem", id)
	}
	if !item.IsPending() {
		return nil, errors.NewConflictError("ApprovalWorkItem", constants.FieldStatus, item.Status)
	}
	item.Status = res.Status
	item.ApprovedByID = &res.ApprovedByID
	at := res.ResolvedAt
	item.ApprovedDate = &at
	item.ApproverComments = res.Comments
	cp := *item
	return &cp, nil
}

func (s *memApprovalStore) ListPendingForApprover(ctx context.Context, approverID string) ([]*models.ApprovalWorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ApprovalWorkItem
	for _, item := range s.items {
		if item.IsPending() && item.ApproverID != nil && *item.ApproverID == approverID {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memRecordStore honours only the open and closed predicates; any other
// predicate is recorded and treated as open.
type memRecordStore struct {
	mu     sync.Mutex
	tables map[string]map[string]models.SObject
	preds  []models.Predicate
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{tables: make(map[string]map[string]models.SObject)}
}

func (s *memRecordStore) table(name string) map[string]models.SObject {
	t, ok := s.tables[strings.ToLower(name)]
	if !ok {
		t = make(map[string]models.SObject)
		s.tables[strings.ToLower(name)] = t
	}
	return t
}

func (s *memRecordStore) match(table, id string, pred models.Predicate) models.SObject {
	s.preds = append(s.preds, pred)
	if pred.IsClosed() {
		return nil
	}
	row, ok := s.table(table)[id]
	if !ok || row.GetBool(constants.FieldIsDeleted) {
		return nil
	}
	return row
}

func (s *memRecordStore) Insert(ctx context.Context, table string, values map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := values[constants.FieldID].(string)
	t := s.table(table)
	if _, ok := t[id]; ok {
		return errors.NewConflictError(table, constants.FieldID, id)
	}
	t[id] = models.SObject(values).Copy()
	return nil
}

func (s *memRecordStore) Update(ctx context.Context, table, id string, values map[string]interface{}, pred models.Predicate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.match(table, id, pred)
	if row == nil {
		return 0, nil
	}
	for k, v := range values {
		row[k] = v
	}
	return 1, nil
}

func (s *memRecordStore) SoftDelete(ctx context.Context, table, id string, values map[string]interface{}, pred models.Predicate) (int64, error) {
	set := make(map[string]interface{}, len(values)+1)
	for k, v := range values {
		set[k] = v
	}
	set[constants.FieldIsDeleted] = true
	return s.Update(ctx, table, id, set, pred)
}

func (s *memRecordStore) FindByID(ctx context.Context, table string, columns []string, id string, pred models.Predicate) (models.SObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.match(table, id, pred)
	if row == nil {
		return nil, errors.NewNotFoundError(table, id)
	}
	out := make(models.SObject, len(columns))
	for _, c := range columns {
		out[c] = row[c]
	}
	return out, nil
}

// rows returns the live rows of a table.
func (s *memRecordStore) rows(table string) []models.SObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SObject
	for _, r := range s.table(table) {
		if !r.GetBool(constants.FieldIsDeleted) {
			out = append(out, r.Copy())
		}
	}
	return out
}

type fakeTx struct {
	mu    sync.Mutex
	calls int
}

func (t *fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	return fn(ctx)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []ports.EmailMessage
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg ports.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type recordingWebhooks struct {
	mu    sync.Mutex
	calls []ports.WebhookRequest
	err   error
}

func (w *recordingWebhooks) Call(ctx context.Context, req ports.WebhookRequest) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, req)
	if w.err != nil {
		return 0, w.err
	}
	return 200, nil
}

// ==================== Test kernel ====================

var testClock = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

type testKernel struct {
	*ServiceManager
	meta      *memMetadataStore
	schema    *memSchemaStore
	perms     *memPermissionStore
	flows     *memFlowStore
	approvals *memApprovalStore
	records   *memRecordStore
	tx        *fakeTx
	mailer    *recordingMailer
	webhooks  *recordingWebhooks
}

// newTestKernel wires every service on in-memory stores with a fixed clock.
func newTestKernel(t *testing.T) *testKernel {
	t.Helper()
	k := &testKernel{
		meta:      newMemMetadataStore(),
		schema:    newMemSchemaStore(),
		perms:     &memPermissionStore{},
		flows:     newMemFlowStore(),
		approvals: newMemApprovalStore(),
		records:   newMemRecordStore(),
		tx:        &fakeTx{},
		mailer:    &recordingMailer{},
		webhooks:  &recordingWebhooks{},
	}
	k.ServiceManager = NewServiceManager(Stores{
		Metadata:    k.meta,
		Schema:      k.schema,
		Permissions: k.perms,
		Flows:       k.flows,
		Approvals:   k.approvals,
		Records:     k.records,
		Tx:          k.tx,
	}, Notifiers{Mailer: k.mailer, Webhooks: k.webhooks}, zaptest.NewLogger(t))

	now := func() time.Time { return testClock }
	k.Metadata.now = now
	k.Persistence.now = now
	k.Flows.now = now
	k.Approval.now = now

	require := func(err error) {
		if err != nil {
			t.Fatalf("test kernel setup: %v", err)
		}
	}
	k.seedUserObject()
	require(k.RefreshMetadataCache(context.Background()))
	return k
}

// seedUserObject registers a minimal user object so that the owner and audit
// lookups of business objects resolve.
func (k *testKernel) seedUserObject() {
	k.meta.objects[strings.ToLower(constants.TableUser)] = &models.ObjectMetadata{
		ID:        "obj_user",
		APIName:   constants.TableUser,
		Label:     "User",
		TableType: constants.TableTypeSystemMetadata,
		Fields: []models.FieldMetadata{
			{APIName: constants.FieldID, Type: constants.FieldTypeText, IsSystem: true},
			{APIName: constants.FieldName, Type: constants.FieldTypeText, IsNameField: true},
		},
	}
	k.schema.tables[constants.TableUser] = map[string]string{
		constants.FieldID:   "varchar",
		constants.FieldName: "varchar",
	}
}

// refreshSecurity reloads the permission snapshot after direct store edits.
func (k *testKernel) refreshSecurity(t *testing.T) {
	t.Helper()
	if err := k.Permissions.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh permissions: %v", err)
	}
}

// GetTestUser returns a UserSession suitable for testing permissions.
func GetTestUser(id string, profileID string) *models.UserSession {
	if profileID == "" {
		profileID = constants.ProfileSystemAdmin
	}
	return &models.UserSession{
		ID:        id,
		Name:      "Test User " + id,
		ProfileID: profileID,
	}
}

func strPtr(s string) *string { return &s }

// withRole sets the role of a test user.
func withRole(u *models.UserSession, roleID string) *models.UserSession {
	u.RoleID = &roleID
	return u
}

// fullAccess grants every CRUD operation on an object to a profile.
func fullAccess(profileID, objectAPIName string) models.ObjectPermission {
	return models.ObjectPermission{
		ProfileID:     profileID,
		ObjectAPIName: objectAPIName,
		AllowRead:     true,
		AllowCreate:   true,
		AllowEdit:     true,
		AllowDelete:   true,
	}
}

// createTestObject creates an object through the registry and fails the test
// on error.
func createTestObject(t *testing.T, k *testKernel, def *models.ObjectMetadata) *models.ObjectMetadata {
	t.Helper()
	obj, err := k.Metadata.CreateObject(context.Background(), def)
	if err != nil {
		t.Fatalf("create %s: %v", def.APIName, err)
	}
	return obj
}

// dealDefinition is a small business object used across tests.
func dealDefinition() *models.ObjectMetadata {
	return &models.ObjectMetadata{
		APIName:      "deal",
		SharingModel: constants.SharingModelPrivate,
		Fields: []models.FieldMetadata{
			{APIName: "name", Type: constants.FieldTypeText, Required: true, IsNameField: true},
			{APIName: "amount", Type: constants.FieldTypeCurrency},
			{APIName: "status", Type: constants.FieldTypePicklist, Options: []string{"New", "Won", "Lost"}},
			{APIName: "region", Type: constants.FieldTypeText},
			{APIName: "amount_with_tax", Type: constants.FieldTypeFormula, Formula: strPtr("amount * 1.1")},
		},
	}
}
