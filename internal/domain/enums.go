package domain

// FileType represents the file types accepted for upload.
type FileType string

const (
	FileTypePDF FileType = "pdf"
	FileTypeJPG FileType = "jpg"
	FileTypePNG FileType = "png"
)

// AllowedFileTypes maps FileType to its MIME content type.
var AllowedFileTypes = map[FileType]string{
	FileTypePDF: "application/pdf",
	FileTypeJPG: "image/jpeg",
	FileTypePNG: "image/png",
}

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"pdf":  FileTypePDF,
	"jpg":  FileTypeJPG,
	"jpeg": FileTypeJPG,
	"png":  FileTypePNG,
}

// ProcessingStatus represents the lifecycle of a document through the mapping pipeline.
type ProcessingStatus string

const (
	StatusReady      ProcessingStatus = "ready"
	StatusQueued     ProcessingStatus = "queued"
	StatusProcessing ProcessingStatus = "processing"
	StatusDone       ProcessingStatus = "done"
	StatusError      ProcessingStatus = "error"
	StatusSkipped    ProcessingStatus = "skipped"
)

// IsTerminal reports whether no further pipeline transition follows this status.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError || s == StatusSkipped
}

// InProgress reports whether a pipeline run is pending or running.
func (s ProcessingStatus) InProgress() bool {
	return s == StatusQueued || s == StatusProcessing
}

// AuditMethod tags how the mapping in an audit entry was produced.
type AuditMethod string

const (
	AuditMethodHeuristic  AuditMethod = "heuristic"
	AuditMethodUserAccept AuditMethod = "user_accept"
)

// Trigger names what started a pipeline run.
type Trigger string

const (
	TriggerUpload  Trigger = "upload"
	TriggerQueue   Trigger = "queue"
	TriggerRemap   Trigger = "remap"
	TriggerWatcher Trigger = "watcher"
)

// SkipReasonMappingAccepted is the reason attached to skipped runs.
const SkipReasonMappingAccepted = "mappingAccepted"
