// Package layout names the directories the updater works with. Every path
// lives under one data directory so renames between them stay on one
// filesystem.
package layout

import "path/filepath"

const (
	nextLaunchParent = "pending_update"
	immediateParent  = "temp_downloaded_update"
	scratchDir       = "temp_new_download"
	containerFile    = "update_temp.zip"
)

// Layout resolves the directory roles for a data directory and content root name.
type Layout struct {
	dataDir string
	rootDir string
}

// New returns the layout for dataDir; rootDir is the content root name ("www").
func New(dataDir, rootDir string) Layout {
	return Layout{dataDir: dataDir, rootDir: rootDir}
}

func (l Layout) DataDir() string { return l.dataDir }

// RootDir is the content root name looked up inside artifacts.
func (l Layout) RootDir() string { return l.rootDir }

// Active is the content the host serves.
func (l Layout) Active() string { return filepath.Join(l.dataDir, l.rootDir) }

// Previous holds the content that was active before the last activation.
func (l Layout) Previous() string { return filepath.Join(l.dataDir, l.rootDir+"_previous") }

// Backup receives the outgoing active content during a swap.
func (l Layout) Backup() string { return filepath.Join(l.dataDir, l.rootDir+"_backup") }

// Incoming is filled completely before being swapped with Active.
func (l Layout) Incoming() string { return filepath.Join(l.dataDir, l.rootDir+"_incoming") }

// NextLaunch holds content the reconciler installs on the next start.
func (l Layout) NextLaunch() string {
	return filepath.Join(l.dataDir, nextLaunchParent, l.rootDir)
}

func (l Layout) NextLaunchParent() string { return filepath.Join(l.dataDir, nextLaunchParent) }

// Immediate holds content for an explicit activate call.
func (l Layout) Immediate() string {
	return filepath.Join(l.dataDir, immediateParent, l.rootDir)
}

func (l Layout) ImmediateParent() string { return filepath.Join(l.dataDir, immediateParent) }

// Scratch is the extraction area.
func (l Layout) Scratch() string { return filepath.Join(l.dataDir, scratchDir) }

// Container is where the downloader writes the fetched artifact.
func (l Layout) Container() string { return filepath.Join(l.dataDir, containerFile) }
