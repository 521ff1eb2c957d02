package extract

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failures the extraction service can report
// about the user's text.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNonFoodInput
	KindUnclearDescription
	KindUnrecognizedFood
)

// ParseErrorKind maps the service's errorType string. Any other non-empty
// value, or an error message without a type, is treated as an unrecognized
// food so the user still gets a recoverable prompt.
func ParseErrorKind(errorType string) ErrorKind {
	switch errorType {
	case "NON_FOOD_INPUT":
		return KindNonFoodInput
	case "UNCLEAR_FOOD_DESCRIPTION":
		return KindUnclearDescription
	case "UNRECOGNIZED_FOOD":
		return KindUnrecognizedFood
	default:
		return KindUnrecognizedFood
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindNonFoodInput:
		return "NON_FOOD_INPUT"
	case KindUnclearDescription:
		return "UNCLEAR_FOOD_DESCRIPTION"
	case KindUnrecognizedFood:
		return "UNRECOGNIZED_FOOD"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// NonFoodInputError means the text was not about food at all.
type NonFoodInputError struct {
	Message string
}

func (e *NonFoodInputError) Error() string {
	if e.Message == "" {
		return "input is not a food description"
	}
	return "input is not a food description: " + e.Message
}

// UserMessage is what the user should be told.
func (e *NonFoodInputError) UserMessage() string {
	return "That didn't sound like a meal. Try describing what you ate."
}

// FoodRecognitionError means the text was about food but its items could not
// be identified with confidence.
type FoodRecognitionError struct {
	Kind    ErrorKind
	Message string
}

func (e *FoodRecognitionError) Error() string {
	if e.Message == "" {
		return "could not recognize food (" + e.Kind.String() + ")"
	}
	return "could not recognize food (" + e.Kind.String() + "): " + e.Message
}

// UserMessage is what the user should be told.
func (e *FoodRecognitionError) UserMessage() string {
	return "We couldn't identify the food. Try being more specific about what and how much you ate."
}

// ErrInvalidResponse is wrapped by every ValidationError.
var ErrInvalidResponse = errors.New("invalid extraction response")

// ValidationError reports a response that breaks the extraction schema. It
// indicates a contract breach with the service, not a problem with the
// user's input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrInvalidResponse, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidResponse }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// classify turns an explicit error signal into a typed domain error.
func classify(message, errorType string) error {
	kind := ParseErrorKind(errorType)
	if kind == KindNonFoodInput {
		return &NonFoodInputError{Message: message}
	}
	return &FoodRecognitionError{Kind: kind, Message: message}
}

// IsDomainError reports whether err is one of the user-facing extraction
// failures.
func IsDomainError(err error) bool {
	var nonFood *NonFoodInputError
	var recognition *FoodRecognitionError
	return errors.As(err, &nonFood) || errors.As(err, &recognition)
}
