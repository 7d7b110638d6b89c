// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error for dispatch by callers that need to react
// differently to different failure categories (e.g. an HTTP handler mapping
// errors to status codes, or a poller deciding whether to retry).
type Kind int

const (
	// Other is the zero value: an error that does not carry a Kind.
	Other Kind = iota
	// Invalid marks malformed input: a bad run ID, a profile with a dangling
	// prerequisite, an invalid configuration value.
	Invalid
	// Conflict marks a rejected state transition or an already-held lock.
	Conflict
	// Timeout marks an operation that exceeded its deadline.
	Timeout
	// NotFound marks a reference to a run, step, or application that does
	// not exist.
	NotFound
	// Storage marks a failure in the run store, lock service, or log store.
	Storage
	// External marks a failure returned by the config server, tester cloud,
	// or artifact store.
	External
)

// String returns the lowercase name of the kind, matching ErrorType() on
// the corresponding typed error.
func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case Conflict:
		return "conflict"
	case Timeout:
		return "timeout"
	case NotFound:
		return "not_found"
	case Storage:
		return "storage"
	case External:
		return "external"
	default:
		return "other"
	}
}

// KindOf walks err's tree and returns the Kind of the typed error it finds,
// checking in a fixed order: Invalid (ValidationError, ConfigError),
// Conflict, Timeout, NotFound, Storage, External. A TimeoutError wrapped
// in a StorageError therefore reports Timeout. Returns Other if err is nil
// or no recognized type is found.
func KindOf(err error) Kind {
	if err == nil {
		return Other
	}

	var validationErr *ValidationError
	if stderrors.As(err, &validationErr) {
		return Invalid
	}

	var configErr *ConfigError
	if stderrors.As(err, &configErr) {
		return Invalid
	}

	var conflictErr *ConflictError
	if stderrors.As(err, &conflictErr) {
		return Conflict
	}

	var timeoutErr *TimeoutError
	if stderrors.As(err, &timeoutErr) {
		return Timeout
	}

	var notFoundErr *NotFoundError
	if stderrors.As(err, &notFoundErr) {
		return NotFound
	}

	var storageErr *StorageError
	if stderrors.As(err, &storageErr) {
		return Storage
	}

	var externalErr *ExternalError
	if stderrors.As(err, &externalErr) {
		return External
	}

	return Other
}

// IsRetryable reports whether err's tree contains a classifier that marks
// the operation as safe to retry. Returns false for an unclassified error.
func IsRetryable(err error) bool {
	var classifier ErrorClassifier
	if stderrors.As(err, &classifier) {
		return classifier.IsRetryable()
	}
	return false
}

// NewKind creates an error carrying the given Kind. It picks the typed
// error matching kind so that KindOf and errors.As both work on the result.
// Unrecognized kinds (Other) fall back to a plain message error.
func NewKind(kind Kind, msg string) error {
	return WrapKind(kind, nil, msg)
}

// WrapKind wraps err with a typed error carrying the given Kind. If err is
// nil, the returned error still carries the Kind but has no cause to unwrap.
func WrapKind(kind Kind, err error, msg string) error {
	switch kind {
	case Invalid:
		return &ValidationError{Message: msg, Cause: err}
	case Conflict:
		return &ConflictError{Reason: msg, Cause: err}
	case Timeout:
		return &TimeoutError{Operation: msg, Cause: err}
	case NotFound:
		return &NotFoundError{ID: msg, Cause: err}
	case Storage:
		return &StorageError{Op: msg, Cause: err}
	case External:
		return &ExternalError{Message: msg, Cause: err}
	default:
		if err != nil {
			return fmt.Errorf("%s: %w", msg, err)
		}
		return stderrors.New(msg)
	}
}

// IsKind reports whether err's tree carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
