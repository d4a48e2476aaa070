package model

// TargetKind identifies what a scrape target points at.
type TargetKind string

const (
	KindPage      TargetKind = "page"
	KindPhoto     TargetKind = "photo"
	KindGroupFeed TargetKind = "group_feed"
)

// PromptKind selects the extraction schema contract for a model call.
type PromptKind string

const (
	PromptShowImage     PromptKind = "show_image"
	PromptShowText      PromptKind = "show_text"
	PromptGeoCompletion PromptKind = "geo_completion"
	PromptPopupClassify PromptKind = "popup_classify"
	PromptGroupName     PromptKind = "group_name"
)

// ExtractionTarget is one unit of content to run through the model:
// either an image URL discovered in a feed, downloaded image bytes, or a
// text/HTML snapshot of a page.
type ExtractionTarget struct {
	SourceURL  string
	Kind       TargetKind
	ImageData  []byte // set when the driver downloaded the image
	MediaType  string // e.g. "image/jpeg", required when ImageData is set
	Text       string // page text snapshot for KindPage targets
	SessionRef string // id of the browser session that produced this target
}

// ExtractionJob pairs a target with its prompt kind and original position.
// Jobs are transient: created by the dispatcher, destroyed once collected.
type ExtractionJob struct {
	ID     string
	Index  int
	Target ExtractionTarget
	Prompt PromptKind
}

// ErrorKind classifies a job or driver failure. The taxonomy is closed:
// dispatch and reconciliation switch on these values.
type ErrorKind string

const (
	ErrNone           ErrorKind = ""
	ErrAuthRequired   ErrorKind = "authentication_required"
	ErrTransient      ErrorKind = "transient_network"
	ErrQuotaExceeded  ErrorKind = "quota_exceeded"
	ErrMalformedModel ErrorKind = "malformed_model_output"
	ErrTimeout        ErrorKind = "timeout"
	ErrValidation     ErrorKind = "validation_failure"
	ErrNavigation     ErrorKind = "navigation_error"
	ErrBlocked        ErrorKind = "blocked"
)

// RawExtractionResult is the per-job outcome. Exactly one is produced for
// every ExtractionJob, success or not; results are never dropped silently.
type RawExtractionResult struct {
	JobIndex   int
	Success    bool
	Show       *ShowFields
	DJ         *DJRecord
	Vendor     *VendorRecord
	SourceURL  string
	ErrorKind  ErrorKind
	ErrorMsg   string
	Confidence float64
}
