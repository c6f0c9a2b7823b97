// Package apperr defines the domain error taxonomy shared by the services and
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindNotReady
	KindInvalid
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindNotReady:
		return "not_ready"
	case KindInvalid:
		return "invalid"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Codes identify the specific failure within a kind.
const (
	CodeFamilyNotFound         = "family_not_found"
	CodeMemberNotFound         = "member_not_found"
	CodeMemberNotInFamily      = "member_not_in_family"
	CodeCatalogEmpty           = "catalog_empty"
	CodeQuestionNotFound       = "question_not_found"
	CodeQuestionInUse          = "question_in_use"
	CodeFamilyQuestionNotFound = "family_question_not_found"
	CodeAlreadyCompleted       = "family_question_already_completed"
	CodeNotCompleted           = "family_question_not_completed"
	CodeAnswerNotFound         = "answer_not_found"
	CodeDuplicateSequence      = "duplicate_sequence_number"
	CodeFamilyNotReady         = "family_not_ready"
	CodeCrossFamily            = "cross_family_access"
	CodeInvalidOrderIndex      = "invalid_order_index"
	CodeInvalidContent         = "invalid_content"
	CodeInsightFailed          = "insight_failed"
	CodeSubscriptionNotFound   = "push_subscription_not_found"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and code, so sentinel-style
// comparisons work through errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error  { return New(KindNotFound, code, msg) }
func Conflict(code, msg string) *Error  { return New(KindConflict, code, msg) }
func Forbidden(code, msg string) *Error { return New(KindForbidden, code, msg) }
func NotReady(code, msg string) *Error  { return New(KindNotReady, code, msg) }
func Invalid(code, msg string) *Error   { return New(KindInvalid, code, msg) }

// External wraps a failure of an outside collaborator.
func External(code, msg string, err error) *Error {
	return &Error{Kind: KindExternal, Code: code, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
