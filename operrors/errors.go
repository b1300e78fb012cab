package operrors

import (
	"errors"
	"strconv"
	"strings"
)

// Every error surfaced by cloudop wraps exactly one of these. All of them are fatal to
// the running invocation: proceeding at an inconsistent height risks silent corruption.
var (
	ErrConfig             = errors.New("E1|ConfigError: storage backend or node config is missing or ambiguous.")
	ErrHeightOutOfRange   = errors.New("E2|HeightOutOfRange: target height is not below the current height or violates the delete watermark.")
	ErrCorruptTrie        = errors.New("E3|CorruptTrie: a referenced trie node is missing from the state db.")
	ErrMissingBlob        = errors.New("E4|MissingBlob: an account references code or abi that is not stored.")
	ErrNotUtxoTransaction = errors.New("E5|NotUtxoTransaction: a lock chain references a transaction that is not a utxo transaction.")
	ErrBackendMismatch    = errors.New("E6|BackendMismatch: the operation is not supported by the configured storage backend.")
	ErrIO                 = errors.New("E7|IOError: the underlying store is unreachable or holds a malformed record.")
)

var all = []error{
	ErrConfig,
	ErrHeightOutOfRange,
	ErrCorruptTrie,
	ErrMissingBlob,
	ErrNotUtxoTransaction,
	ErrBackendMismatch,
	ErrIO,
}

// Kind returns the taxonomy sentinel err wraps, or nil when it wraps none.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range all {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	if k := Kind(err); k != nil {
		err = k
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code ("E3") from the error message.
func GetErrorCode(err error) string {
	k := Kind(err)
	if k == nil {
		return ""
	}
	parts := strings.SplitN(k.Error(), "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}

// ExitCode maps an error to the process exit status: 0 for nil, 10 plus the numeric part of the
// code for taxonomy errors and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	code := GetErrorCode(err)
	if n, convErr := strconv.Atoi(strings.TrimPrefix(code, "E")); convErr == nil && n > 0 {
		return 10 + n
	}
	return 1
}
