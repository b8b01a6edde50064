package audit

import (
	"fmt"
	"strings"
	"time"
)

// Operation is the kind of mutating call an event records.
type Operation string

const (
	OperationPost   Operation = "Post"
	OperationPut    Operation = "Put"
	OperationDelete Operation = "Delete"
)

// LevelInformation is the level of every event written by the recorder.
const LevelInformation = "Information"

// AnonymousActor is recorded when the request carried no valid token.
const AnonymousActor = "anonymous"

// Operations lists the operation kinds in declaration order.
func Operations() []Operation {
	return []Operation{OperationPost, OperationPut, OperationDelete}
}

// ParseOperation resolves an operation name case-insensitively, so that
// "POST" and "Post" denote the same kind.
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations() {
		if strings.EqualFold(string(op), strings.TrimSpace(s)) {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q (expected Post, Put or Delete)", ErrInvalidOperation, s)
}

// OperationForMethod maps an HTTP method onto the operation it audits.
// Read-only methods map to nothing.
func OperationForMethod(method string) (Operation, bool) {
	switch strings.ToUpper(method) {
	case "POST":
		return OperationPost, true
	case "PUT", "PATCH":
		return OperationPut, true
	case "DELETE":
		return OperationDelete, true
	default:
		return "", false
	}
}

// Event is the canonical audit record returned by searches.
type Event struct {
	ID        string         `json:"id"`
	Level     string         `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Operation Operation      `json:"operation"`
	Actor     string         `json:"actor"`
	Path      string         `json:"path,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}
