package persistence

// MySQL/TiDB server error numbers the repositories react to.
const (
	ErrTableExists     uint16 = 1050 // ER_TABLE_EXISTS_ERROR
	ErrDuplicateColumn uint16 = 1060 // ER_DUP_FIELDNAME
	ErrDuplicateKey    uint16 = 1061 // ER_DUP_KEYNAME
	ErrDuplicateEntry  uint16 = 1062 // ER_DUP_ENTRY
	ErrLockWaitTimeout uint16 = 1205 // ER_LOCK_WAIT_TIMEOUT
	ErrDeadlock        uint16 = 1213 // ER_LOCK_DEADLOCK
	ErrCantDropField   uint16 = 1091 // ER_CANT_DROP_FIELD_OR_KEY
)

// maxConcurrentDDL bounds parallel CREATE TABLE statements during batch creation.
const maxConcurrentDDL = 10

// KeywordOnDuplicate starts the update clause of every upsert.
const KeywordOnDuplicate = "ON DUPLICATE KEY UPDATE"
