package formula

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/expression"
	"github.com/nexuscrm/kernel/pkg/models"
)

// DefaultCacheSize is the number of compiled programs kept per engine
const DefaultCacheSize = 1024

// Context holds the evaluation context for formulas
type Context struct {
	Record map[string]interface{} `json:"record"`
	Prior  map[string]interface{} `json:"prior"`
	User   map[string]interface{} `json:"user"`
	IsNew  bool                   `json:"is_new"`
	// Known reports whether a field exists on the object. When nil, only
	// fields present in Record are known.
	Known func(field string) bool `json:"-"`
}

func (c *Context) knows(field string) bool {
	if c.Known != nil {
		return c.Known(field)
	}
	_, ok := c.Record[field]
	return ok
}

// env flattens record fields to the top level next to the scope roots.
func (c *Context) env() map[string]interface{} {
	env := make(map[string]interface{}, len(c.Record)+5)
	for k, v := range c.Record {
		env[k] = v
	}
	env[scopeRecord] = orEmpty(c.Record)
	env[scopePrior] = orEmpty(c.Prior)
	env[scopeUser] = orEmpty(c.User)
	env[varPrior] = c.Prior
	env[varIsNew] = c.IsNew
	return env
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

type compiled struct {
	program *vm.Program
	refs    []expression.Reference
}

// Engine compiles and evaluates formulas. Programs are compiled without an
// environment so one cached program serves every record shape.
type Engine struct {
	cache     *lru.Cache[string, *compiled]
	cacheSize int
	functions map[string]Function
	options   []expr.Option
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the clock used by NOW and TODAY
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger used for calculated field failures
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCacheSize sets the compiled program cache capacity
func WithCacheSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.cacheSize = size
		}
	}
}

// NewEngine creates a new formula engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		cacheSize: DefaultCacheSize,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.functions = library(func() time.Time { return e.now() })
	for name, fn := range e.functions {
		e.options = append(e.options, expr.Function(name, fn))
	}

	cache, err := lru.New[string, *compiled](e.cacheSize)
	if err != nil {
		panic(fmt.Sprintf("formula cache: %v", err))
	}
	e.cache = cache
	return e
}

func (e *Engine) compile(source string) (*compiled, error) {
	normalized := expression.Normalize(strings.TrimSpace(source))
	if normalized == "" {
		return nil, fmt.Errorf("expression is empty")
	}
	if c, ok := e.cache.Get(normalized); ok {
		return c, nil
	}

	refs, err := expression.References(normalized)
	if err != nil {
		return nil, err
	}

	p := &patcher{functions: e.functions}
	opts := make([]expr.Option, 0, len(e.options)+1)
	opts = append(opts, e.options...)
	opts = append(opts, expr.Patch(p))

	program, err := expr.Compile(normalized, opts...)
	if p.err != nil {
		return nil, p.err
	}
	if err != nil {
		return nil, err
	}

	c := &compiled{program: program, refs: refs}
	e.cache.Add(normalized, c)
	return c, nil
}

func checkReferences(refs []expression.Reference, ctx *Context) error {
	for _, ref := range refs {
		switch ref.Scope {
		case "", scopeRecord:
			if !ctx.knows(ref.Field) {
				return fmt.Errorf("unknown field '%s'", ref.Field)
			}
		case scopePrior:
			if ctx.Known != nil && !ctx.Known(ref.Field) {
				return fmt.Errorf("unknown field 'prior.%s'", ref.Field)
			}
		}
	}
	return nil
}

// Validate compiles an expression. When sample is non-nil the expression is
// also dry-run against it; sample keys define the known fields and nil
// values are allowed.
func (e *Engine) Validate(source string, sample map[string]interface{}) error {
	c, err := e.compile(source)
	if err != nil {
		return errors.NewFormulaError(source, err)
	}
	if sample == nil {
		return nil
	}

	ctx := &Context{Record: sample}
	if err := checkReferences(c.refs, ctx); err != nil {
		return errors.NewFormulaError(source, err)
	}
	if _, err := expr.Run(c.program, ctx.env()); err != nil {
		return errors.NewFormulaError(source, err)
	}
	return nil
}

// Evaluate evaluates a formula expression with the given context. The
// context is never modified.
func (e *Engine) Evaluate(source string, ctx *Context) (interface{}, error) {
	if ctx == nil {
		ctx = &Context{}
	}

	c, err := e.compile(source)
	if err != nil {
		return nil, errors.NewFormulaError(source, err)
	}
	if err := checkReferences(c.refs, ctx); err != nil {
		return nil, errors.NewFormulaError(source, err)
	}

	out, err := expr.Run(c.program, ctx.env())
	if err != nil {
		return nil, errors.NewFormulaError(source, err)
	}
	if isNumber(out) {
		return normalizeNumber(out), nil
	}
	return out, nil
}

// EvaluateBool evaluates a condition. A null result is false.
func (e *Engine) EvaluateBool(source string, ctx *Context) (bool, error) {
	out, err := e.Evaluate(source, ctx)
	if err != nil {
		return false, err
	}
	b, err := truthy(out)
	if err != nil {
		return false, errors.NewFormulaError(source, err)
	}
	return b, nil
}

// EvaluateCalculatedField computes a Formula field for display. Failures are
// logged and yield nil.
func (e *Engine) EvaluateCalculatedField(field *models.FieldMetadata, ctx *Context) interface{} {
	if field == nil || field.Formula == nil || strings.TrimSpace(*field.Formula) == "" {
		return nil
	}
	out, err := e.Evaluate(*field.Formula, ctx)
	if err != nil {
		e.logger.Warn("⚠️ Calculated field evaluation failed",
			zap.String("field", field.APIName),
			zap.Error(err))
		return nil
	}
	return out
}

// GetFunctionDefinitions returns the function library for auto-complete
func (e *Engine) GetFunctionDefinitions() []FunctionDefinition {
	out := make([]FunctionDefinition, len(definitions))
	copy(out, definitions)
	return out
}

// ClearCache drops every compiled program
func (e *Engine) ClearCache() {
	e.cache.Purge()
}
