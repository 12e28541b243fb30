package directory

import "fmt"

// Status is the uniform result shape of all mutating operations, shared
// by UI and automation callers. A false Status is an ordinary business
// rejection (locked directory, duplicate username); hard failures are
// returned as errors instead.
type Status struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	ID      uint64 `json:"id,omitempty"`
}

// OK returns a successful status carrying the affected entity id.
func OK(id uint64) Status {
	return Status{Status: true, ID: id}
}

// OKMessage returns a successful status with an explanatory message.
func OKMessage(id uint64, format string, args ...any) Status {
	return Status{Status: true, ID: id, Message: fmt.Sprintf(format, args...)}
}

// Fail returns a failed status with an explanatory message.
func Fail(format string, args ...any) Status {
	return Status{Status: false, Message: fmt.Sprintf(format, args...)}
}
