package models

// ArchiveEntry is one named file placed in a ZIP archive.
type ArchiveEntry struct {
	Name string
	Data []byte
}

// SkippedFile records a source file left out of an archive because it could not be fetched.
type SkippedFile struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// ArchiveResult describes an uploaded archive.
type ArchiveResult struct {
	ArchiveName  string        `json:"archiveName"`
	ArchivePath  string        `json:"archivePath"`
	ArchiveURL   string        `json:"archiveUrl"`
	FilesCount   int           `json:"filesCount"`
	SizeBytes    int64         `json:"sizeBytes"`
	SkippedFiles []SkippedFile `json:"skippedFiles,omitempty"`
}
