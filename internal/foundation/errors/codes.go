package errors

// Code is the wire-level error code reported to the host application.
// The set is closed: hosts match on these exact strings.
type Code string

const (
	// stage
	CodeUpdateDataRequired Code = "UPDATE_DATA_REQUIRED"
	CodeURLRequired        Code = "URL_REQUIRED"
	CodeDownloadInProgress Code = "DOWNLOAD_IN_PROGRESS"
	CodeDownloadFailed     Code = "DOWNLOAD_FAILED"
	CodeHTTPError          Code = "HTTP_ERROR"
	CodeTempDirError       Code = "TEMP_DIR_ERROR"
	CodeExtractionFailed   Code = "EXTRACTION_FAILED"
	CodeWWWNotFound        Code = "WWW_NOT_FOUND"

	// activate
	CodeNoUpdateReady       Code = "NO_UPDATE_READY"
	CodeUpdateFilesNotFound Code = "UPDATE_FILES_NOT_FOUND"
	CodeInstallFailed       Code = "INSTALL_FAILED"

	// confirm
	CodeVersionRequired Code = "VERSION_REQUIRED"
)

var knownCodes = map[Code]struct{}{
	CodeUpdateDataRequired:  {},
	CodeURLRequired:         {},
	CodeDownloadInProgress:  {},
	CodeDownloadFailed:      {},
	CodeHTTPError:           {},
	CodeTempDirError:        {},
	CodeExtractionFailed:    {},
	CodeWWWNotFound:         {},
	CodeNoUpdateReady:       {},
	CodeUpdateFilesNotFound: {},
	CodeInstallFailed:       {},
	CodeVersionRequired:     {},
}

// Known reports whether c belongs to the closed wire code set.
func (c Code) Known() bool {
	_, ok := knownCodes[c]
	return ok
}

// CodeOf returns the wire code carried by err, or "" when err carries none.
func CodeOf(err error) Code {
	if classified, ok := AsClassified(err); ok {
		return classified.Code()
	}
	return ""
}
