package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	out     io.Writer
	exit    func(int)
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
		out:     os.Stderr,
		exit:    os.Exit,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if classified, ok := AsClassified(err); ok {
		return a.exitCodeFromClassified(classified)
	}
	return 1
}

func (a *CLIErrorAdapter) exitCodeFromClassified(err *ClassifiedError) int {
	switch err.Category() {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryState, CategoryConflict:
		return 3 // Nothing to do / busy
	case CategoryConfig:
		return 7
	case CategoryNetwork, CategoryHTTP:
		return 8 // External system error
	case CategoryArchive:
		return 9
	case CategoryInternal:
		return 10
	case CategoryFileSystem, CategoryEventStore:
		return 11
	default:
		return 1
	}
}

// FormatError formats an error for display. Verbose mode prints the full
// classified form; otherwise the wire code and message.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	classified, ok := AsClassified(err)
	if !ok {
		return fmt.Sprintf("Error: %v", err)
	}
	if a.verbose {
		return classified.Error()
	}
	if classified.Code() != "" {
		return fmt.Sprintf("Error: %s: %s", classified.Code(), classified.Detail())
	}
	return fmt.Sprintf("Error: %s", classified.Detail())
}

// HandleError prints err and exits with its exit code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	if a.shouldLog(err) {
		a.logError(err)
	}
	_, _ = fmt.Fprintln(a.out, a.FormatError(err))
	a.exit(a.ExitCodeFor(err))
}

func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}
	classified, ok := AsClassified(err)
	if !ok {
		return true
	}
	return classified.Category() == CategoryInternal || classified.IsFatal()
}

func (a *CLIErrorAdapter) logError(err error) {
	ctx := context.Background()
	classified, ok := AsClassified(err)
	if !ok {
		a.logger.ErrorContext(ctx, "Unclassified error", slog.String("error", err.Error()))
		return
	}
	attrs := []any{
		slog.String("category", string(classified.Category())),
		slog.String("severity", string(classified.Severity())),
	}
	if classified.Code() != "" {
		attrs = append(attrs, slog.String("code", string(classified.Code())))
	}
	for k, v := range classified.Context() {
		attrs = append(attrs, slog.Any(k, v))
	}
	a.logger.Log(ctx, slogLevel(classified.Severity()), classified.Message(), attrs...)
}

func slogLevel(s ErrorSeverity) slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError, SeverityFatal:
		return slog.LevelError
	default:
		return slog.LevelError
	}
}
