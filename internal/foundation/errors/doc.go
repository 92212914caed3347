// Package errors provides the classified error type used across hotupdate.
//
// Every failure that reaches a host carries a wire Code from a closed set
// (see codes.go). Category, severity and retry strategy drive logging, HTTP
// status selection in the bridge and CLI exit codes.
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryHTTP, "HTTP error: 404").
//		WithCode(errors.CodeHTTPError).
//		WithContext("url", url).
//		WithCause(originalErr).
//		Build()
package errors
