package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldOperation     = "operation"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldDuration      = "duration_ms"
	FieldSuccess       = "success"
	FieldTransactionID = "transaction_id"
	FieldCategoryID    = "category_id"
	FieldCategoryName  = "category_name"
	FieldAmountCents   = "amount_cents"
	FieldDirection     = "direction"
	FieldVersion       = "version"
	FieldCount         = "count"
	FieldDrift         = "drift"
	FieldLockKey       = "lock_key"
	FieldBackend       = "backend"
	FieldSource        = "source"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentLedger    = "ledger"
	ComponentAggregate = "aggregate"
	ComponentStats     = "stats"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentImporter  = "importer"
	ComponentReconcile = "reconcile"
	ComponentBackend   = "backend"
	ComponentCache     = "cache"
)

// Operations defines standard operation names
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpList       = "list"
	OpLoad       = "load"
	OpRecategory = "recategorize"
	OpReconcile  = "reconcile"
	OpImport     = "import"
	OpPublish    = "publish"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// ErrorTypes mirror core.ErrorType labels plus startup-only categories.
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds the error message and its type label.
func (f LogFields) WithError(err error, errType string) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = errType
	}
	return f
}

func (f LogFields) WithTransaction(id string, amountCents int64, direction string) LogFields {
	f[FieldTransactionID] = id
	f[FieldAmountCents] = amountCents
	f[FieldDirection] = direction
	return f
}

func (f LogFields) WithCategory(id, name string) LogFields {
	f[FieldCategoryID] = id
	if name != "" {
		f[FieldCategoryName] = name
	}
	return f
}

func (f LogFields) WithVersion(v uint64) LogFields {
	f[FieldVersion] = v
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
