// Package workspace manages scratch directories used while staging and
// activating content.
//
// A persistent workspace is a fixed directory (the extraction scratch area)
// that is reset before each use and emptied afterwards. Ephemeral
// directories are uniquely named siblings of a target path; callers fill
// them and then rename them into place, so a target is either absent, fully
// old or fully new.
package workspace
