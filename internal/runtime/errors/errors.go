package errors

import (
	sterrors "errors"
	"fmt"

	"github.com/aws/smithy-go"
)

var (
	ErrAdapterRequired   = sterrors.New("statusrelay: channel adapter is required")
	ErrInstanceIdentity  = sterrors.New("statusrelay: instance identity is unavailable")
	ErrMalformedEnvelope = sterrors.New("statusrelay: malformed notification envelope")
	ErrMissingField      = sterrors.New("statusrelay: envelope field is missing")
	ErrNotBootstrapped   = sterrors.New("statusrelay: queue infrastructure is not bootstrapped")
)

// Kind names the category of infrastructure operation that failed.
type Kind string

const (
	KindCreateQueue   Kind = "create queue"
	KindGetAttributes Kind = "get queue attributes"
	KindSetPolicy     Kind = "set queue policy"
	KindPutAlarm      Kind = "put metric alarm"
	KindDeleteAlarm   Kind = "delete alarm"
	KindDeleteQueue   Kind = "delete queue"
	KindReceive       Kind = "receive messages"
	KindDeleteMessage Kind = "delete message"
	KindSubscribe     Kind = "subscribe"
	KindUnsubscribe   Kind = "unsubscribe"
	KindPutRule       Kind = "put rule"
	KindPutTargets    Kind = "put targets"
	KindRemoveTargets Kind = "remove targets"
	KindDeleteRule    Kind = "delete rule"
	KindPublish       Kind = "publish"
)

// InfraError reports a rejected or failed call against a managed AWS service.
type InfraError struct {
	Kind     Kind
	Resource string
	Message  string
	Err      error
}

// NewInfraError wraps err for the given operation. The message is taken from
// the smithy API error when the service returned one.
func NewInfraError(kind Kind, resource string, err error) *InfraError {
	e := &InfraError{Kind: kind, Resource: resource, Err: err}
	var apiErr smithy.APIError
	switch {
	case err == nil:
	case sterrors.As(err, &apiErr):
		e.Message = fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	default:
		e.Message = err.Error()
	}
	return e
}

// Infraf builds an InfraError without an underlying cause, for responses the
// service accepted but reported as failed.
func Infraf(kind Kind, resource, format string, args ...any) *InfraError {
	return &InfraError{Kind: kind, Resource: resource, Message: fmt.Sprintf(format, args...)}
}

func (e *InfraError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("statusrelay: %s failed: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("statusrelay: %s failed for %s: %s", e.Kind, e.Resource, e.Message)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}

// Is matches another InfraError of the same kind.
func (e *InfraError) Is(target error) bool {
	t, ok := target.(*InfraError)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// IsKind reports whether err carries an InfraError of the given kind.
func IsKind(err error, kind Kind) bool {
	return sterrors.Is(err, &InfraError{Kind: kind})
}

// DecodeError reports an envelope that could not be turned into a record.
type DecodeError struct {
	Reason string
	Err    error
}

func Decodef(err error, format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...), Err: err}
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("statusrelay: decode notification (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("statusrelay: decode notification (%s)", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for DecodeError.
func (e *DecodeError) Is(target error) bool {
	if target == ErrMalformedEnvelope {
		return true
	}
	_, ok := target.(*DecodeError)
	return ok
}

// ConfigValidationError wraps the joined problems found while validating config.
type ConfigValidationError struct {
	Err error
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

func (e ConfigValidationError) Error() string {
	return "statusrelay: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}
