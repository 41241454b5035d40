package database

import "time"

// Fingerprint modes.
const (
	ModeFast     = "fast"
	ModeBalanced = "balanced"
	ModeQuality  = "quality"
)

// Duplicate group kinds.
const (
	KindExact   = "exact"
	KindSimilar = "similar"
)

// MediaFile is a file found by the scanner.
type MediaFile struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	Root      string    `json:"root"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Extension string    `json:"extension"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"modTime"`
}

// Fingerprint is the result of hashing one file in one mode.
type Fingerprint struct {
	FileID         int64
	Mode           string
	ContentHash    string
	PerceptualHash uint64
	HasPerceptual  bool
	FileSize       int64
	FileModTime    time.Time
	ProcessedAt    time.Time
	Error          string
}

// FingerprintedFile joins a file with its fingerprint for duplicate
// detection.
type FingerprintedFile struct {
	File        MediaFile
	Fingerprint Fingerprint
}

// DuplicateGroup is a set of files considered the same.
type DuplicateGroup struct {
	ID          int64       `json:"id"`
	Mode        string      `json:"mode"`
	Kind        string      `json:"kind"`
	Hash        string      `json:"hash"`
	TotalSize   int64       `json:"totalSize"`
	Reclaimable int64       `json:"reclaimable"`
	CreatedAt   time.Time   `json:"createdAt"`
	Files       []MediaFile `json:"files"`
}

// ScanRun records one pass of the scanner.
type ScanRun struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	FilesSeen    int64     `json:"filesSeen"`
	FilesRemoved int64     `json:"filesRemoved"`
	Error        string    `json:"error,omitempty"`
}

// Stats summarizes the library for one mode.
type Stats struct {
	Mode             string         `json:"mode"`
	TotalFiles       int            `json:"totalFiles"`
	TotalSize        int64          `json:"totalSize"`
	FilesByCategory  map[string]int `json:"filesByCategory"`
	ProcessedFiles   int            `json:"processedFiles"`
	FailedFiles      int            `json:"failedFiles"`
	ExactGroups      int            `json:"exactGroups"`
	SimilarGroups    int            `json:"similarGroups"`
	DuplicateFiles   int            `json:"duplicateFiles"`
	ReclaimableBytes int64          `json:"reclaimableBytes"`
	LastScan         *ScanRun       `json:"lastScan,omitempty"`
}
