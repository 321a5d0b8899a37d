package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/internal/domain/ports"
	"github.com/nexuscrm/kernel/pkg/constants"
	"github.com/nexuscrm/kernel/pkg/formula"
	pkgmodels "github.com/nexuscrm/kernel/pkg/models"
)

// RecordWriter is the slice of the record pipeline that actions call back into.
type RecordWriter interface {
	Insert(ctx context.Context, caller *pkgmodels.UserSession, objectAPIName string, data pkgmodels.SObject) (pkgmodels.SObject, error)
	Update(ctx context.Context, caller *pkgmodels.UserSession, objectAPIName, id string, data pkgmodels.SObject) (pkgmodels.SObject, error)
}

// evaluateMappings evaluates each field mapping formula in sorted key order.
func evaluateMappings(engine *formula.Engine, mappings map[string]string, fctx *formula.Context) (pkgmodels.SObject, error) {
	keys := make([]string, 0, len(mappings))
	for k := range mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(pkgmodels.SObject, len(mappings))
	for _, field := range keys {
		v, err := engine.Evaluate(mappings[field], fctx)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate mapping for %s: %w", field, err)
		}
		out[field] = v
	}
	return out, nil
}

func validateMappings(engine *formula.Engine, mappings map[string]string) error {
	for field, source := range mappings {
		if err := engine.Validate(source, nil); err != nil {
			return fmt.Errorf("mapping for %s: %w", field, err)
		}
	}
	return nil
}

// ==================== createRecord ====================

type createRecordHandler struct {
	writer   RecordWriter
	metadata *MetadataService
	formula  *formula.Engine
}

// NewCreateRecordHandler returns the createRecord handler.
func NewCreateRecordHandler(writer RecordWriter, metadata *MetadataService, engine *formula.Engine) ActionHandler {
	return &createRecordHandler{writer: writer, metadata: metadata, formula: engine}
}

func (h *createRecordHandler) Type() string { return constants.ActionTypeCreateRecord }

func (h *createRecordHandler) Validate(ctx context.Context, action models.Action, _ string) error {
	a, ok := action.(models.CreateRecordAction)
	if !ok {
		return fmt.Errorf("expected %s action", h.Type())
	}
	if a.TargetObject == "" {
		return fmt.Errorf("createRecord needs a target object")
	}
	if _, err := h.metadata.lookup(ctx, a.TargetObject); err != nil {
		return fmt.Errorf("createRecord target: %w", err)
	}
	return validateMappings(h.formula, a.FieldMappings)
}

func (h *createRecordHandler) Execute(ctx context.Context, actx *ActionContext, action models.Action) error {
	a := action.(models.CreateRecordAction)
	data, err := evaluateMappings(h.formula, a.FieldMappings, actx.FormulaContext())
	if err != nil {
		return err
	}
	_, err = h.writer.Insert(ctx, actx.Caller, a.TargetObject, data)
	return err
}

// ==================== updateRecord ====================

type updateRecordHandler struct {
	writer  RecordWriter
	formula *formula.Engine
}

// NewUpdateRecordHandler returns the updateRecord handler.
func NewUpdateRecordHandler(writer RecordWriter, engine *formula.Engine) ActionHandler {
	return &updateRecordHandler{writer: writer, formula: engine}
}

func (h *updateRecordHandler) Type() string { return constants.ActionTypeUpdateRecord }

func (h *updateRecordHandler) Validate(_ context.Context, action models.Action, triggerType string) error {
	a, ok := action.(models.UpdateRecordAction)
	if !ok {
		return fmt.Errorf("expected %s action", h.Type())
	}
	if len(a.FieldMappings) == 0 {
		return fmt.Errorf("updateRecord needs at least one field mapping")
	}
	if constants.IsBeforeTrigger(triggerType) && (a.TargetObject != "" || a.RecordID != "") {
		return fmt.Errorf("before-trigger updateRecord can only change the triggering record")
	}
	if a.RecordID != "" {
		if err := h.formula.Validate(a.RecordID, nil); err != nil {
			return err
		}
	}
	return validateMappings(h.formula, a.FieldMappings)
}

func (h *updateRecordHandler) Execute(ctx context.Context, actx *ActionContext, action models.Action) error {
	a := action.(models.UpdateRecordAction)
	fctx := actx.FormulaContext()
	data, err := evaluateMappings(h.formula, a.FieldMappings, fctx)
	if err != nil {
		return err
	}

	if constants.IsBeforeTrigger(actx.TriggerType) {
		for k, v := range data {
			actx.Record[k] = v
		}
		return nil
	}

	target := a.TargetObject
	if target == "" {
		target = actx.ObjectAPIName
	}
	id := actx.Record.GetString(constants.FieldID)
	if a.RecordID != "" {
		v, err := h.formula.Evaluate(a.RecordID, fctx)
		if err != nil {
			return err
		}
		id = fmt.Sprint(v)
	}
	if id == "" || id == "<nil>" {
		return fmt.Errorf("updateRecord resolved no record id")
	}
	_, err = h.writer.Update(ctx, actx.Caller, target, id, data)
	return err
}

// ==================== sendEmail ====================

var mergeTagPattern = regexp.MustCompile(`\{!\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}`)

// renderMergeTags replaces {!field} tags with record values; missing or null
// fields render as "".
func renderMergeTags(template string, record pkgmodels.SObject) string {
	return mergeTagPattern.ReplaceAllStringFunc(template, func(tag string) string {
		name := mergeTagPattern.FindStringSubmatch(tag)[1]
		name = strings.TrimPrefix(name, "record.")
		v, ok := record[name]
		if !ok || v == nil {
			return ""
		}
		if t, ok := v.(time.Time); ok {
			return t.Format(time.RFC3339)
		}
		return fmt.Sprint(v)
	})
}

type sendEmailHandler struct {
	mailer ports.Mailer
}

// NewSendEmailHandler returns the sendEmail handler.
func NewSendEmailHandler(mailer ports.Mailer) ActionHandler {
	return &sendEmailHandler{mailer: mailer}
}

func (h *sendEmailHandler) Type() string { return constants.ActionTypeSendEmail }

func (h *sendEmailHandler) Validate(_ context.Context, action models.Action, triggerType string) error {
	a, ok := action.(models.SendEmailAction)
	if !ok {
		return fmt.Errorf("expected %s action", h.Type())
	}
	if constants.IsBeforeTrigger(triggerType) {
		return fmt.Errorf("sendEmail is only allowed on after-triggers")
	}
	if len(a.To) == 0 {
		return fmt.Errorf("sendEmail needs at least one recipient")
	}
	if strings.TrimSpace(a.Subject) == "" {
		return fmt.Errorf("sendEmail needs a subject")
	}
	return nil
}

func (h *sendEmailHandler) Execute(ctx context.Context, actx *ActionContext, action models.Action) error {
	a := action.(models.SendEmailAction)
	msg := ports.EmailMessage{
		Subject: renderMergeTags(a.Subject, actx.Record),
		Body:    renderMergeTags(a.Body, actx.Record),
	}
	for _, to := range a.To {
		if r := strings.TrimSpace(renderMergeTags(to, actx.Record)); r != "" {
			msg.To = append(msg.To, r)
		}
	}
	for _, cc := range a.Cc {
		if r := strings.TrimSpace(renderMergeTags(cc, actx.Record)); r != "" {
			msg.Cc = append(msg.Cc, r)
		}
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("sendEmail resolved no recipients")
	}
	return h.mailer.Send(ctx, msg)
}

// ==================== callWebhook ====================

type callWebhookHandler struct {
	caller  ports.WebhookCaller
	formula *formula.Engine
	logger  *zap.Logger
}

// NewCallWebhookHandler returns the callWebhook handler. Calls are made once
// and their outcome is logged; a failed call never fails the flow.
func NewCallWebhookHandler(caller ports.WebhookCaller, engine *formula.Engine, logger *zap.Logger) ActionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &callWebhookHandler{caller: caller, formula: engine, logger: logger}
}

func (h *callWebhookHandler) Type() string { return constants.ActionTypeCallWebhook }

func (h *callWebhookHandler) Validate(_ context.Context, action models.Action, triggerType string) error {
	a, ok := action.(models.CallWebhookAction)
	if !ok {
		return fmt.Errorf("expected %s action", h.Type())
	}
	if constants.IsBeforeTrigger(triggerType) {
		return fmt.Errorf("callWebhook is only allowed on after-triggers")
	}
	if !strings.HasPrefix(a.URL, "http://") && !strings.HasPrefix(a.URL, "https://") {
		return fmt.Errorf("callWebhook needs an http(s) url")
	}
	return validateMappings(h.formula, a.Payload)
}

func (h *callWebhookHandler) Execute(ctx context.Context, actx *ActionContext, action models.Action) error {
	a := action.(models.CallWebhookAction)
	payload, err := evaluateMappings(h.formula, a.Payload, actx.FormulaContext())
	if err != nil {
		h.logger.Warn("⚠️ Webhook payload could not be built",
			zap.String("flow_id", actx.FlowID), zap.String("step_id", actx.StepID), zap.Error(err))
		return nil
	}

	status, err := h.caller.Call(ctx, ports.WebhookRequest{
		URL:     a.URL,
		Method:  a.Method,
		Headers: a.Headers,
		Payload: payload,
	})
	fields := []zap.Field{
		zap.String("flow_id", actx.FlowID),
		zap.String("step_id", actx.StepID),
		zap.String("record_id", actx.Record.GetString(constants.FieldID)),
		zap.String("url", a.URL),
		zap.Int("status", status),
	}
	if err != nil {
		h.logger.Warn("⚠️ Webhook call failed", append(fields, zap.Error(err))...)
		return nil
	}
	h.logger.Info("🌐 Webhook called", fields...)
	return nil
}
