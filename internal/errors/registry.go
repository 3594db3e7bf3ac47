package errors

import (
	"net/http"
	"sort"
)

// Registered error codes.
const (
	CodeStoreOpen  = "E001"
	CodeStoreRead  = "E002"
	CodeStoreWrite = "E003"

	CodeInvalidHost    = "E010"
	CodeNoStatus       = "E011"
	CodeInvalidBody    = "E012"
	CodeNotConfigured  = "E013"
	CodeInvalidRequest = "E014"

	CodeConfigLoad    = "E020"
	CodeConfigInvalid = "E021"
	CodeRouteTable    = "E022"

	CodeBackupFailed  = "E030"
	CodeRestoreFailed = "E031"

	CodeUpgradeFailed = "E040"
	CodeProxyFailed   = "E041"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	Status   int
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Storage (E001-E009)
	CodeStoreOpen: {
		Category: CategoryStorage,
		Message:  "Could not open data store",
		Detail:   "The buntdb file could not be opened or created.",
		Status:   http.StatusInternalServerError,
	},
	CodeStoreRead: {
		Category: CategoryStorage,
		Message:  "Could not read from data store",
		Status:   http.StatusInternalServerError,
	},
	CodeStoreWrite: {
		Category: CategoryStorage,
		Message:  "Could not write to data store",
		Status:   http.StatusInternalServerError,
	},

	// Validation and API (E010-E019)
	CodeInvalidHost: {
		Category: CategoryValidation,
		Message:  "Invalid URL or host",
		Detail:   "Expected a hostname such as example.com or a URL such as http://example.com/page.",
		Status:   http.StatusBadRequest,
	},
	CodeNoStatus: {
		Category: CategoryAPI,
		Message:  "No status",
		Detail:   "The host is neither blacklisted nor cooling down.",
		Status:   http.StatusNotFound,
	},
	CodeInvalidBody: {
		Category: CategoryValidation,
		Message:  "Invalid request body",
		Status:   http.StatusBadRequest,
	},
	CodeNotConfigured: {
		Category: CategoryAPI,
		Message:  "Host has no configuration",
		Status:   http.StatusNotFound,
	},
	CodeInvalidRequest: {
		Category: CategoryValidation,
		Message:  "Invalid request",
		Status:   http.StatusBadRequest,
	},

	// Configuration (E020-E029)
	CodeConfigLoad: {
		Category: CategoryConfig,
		Message:  "Could not load configuration",
	},
	CodeConfigInvalid: {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
	CodeRouteTable: {
		Category: CategoryConfig,
		Message:  "Invalid route table",
	},

	// Backup (E030-E039)
	CodeBackupFailed: {
		Category: CategoryBackup,
		Message:  "Backup failed",
		Status:   http.StatusBadGateway,
	},
	CodeRestoreFailed: {
		Category: CategoryBackup,
		Message:  "Restore failed",
		Status:   http.StatusBadGateway,
	},

	// Transport (E040-E049)
	CodeUpgradeFailed: {
		Category: CategoryAPI,
		Message:  "WebSocket upgrade failed",
		Status:   http.StatusBadRequest,
	},
	CodeProxyFailed: {
		Category: CategoryProxy,
		Message:  "Proxy failure",
		Status:   http.StatusBadGateway,
	},
}

// Codes returns all registered error codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
