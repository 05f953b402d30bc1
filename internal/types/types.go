// Package types holds the domain records shared across the ingestion and
// retrieval pipelines: Post, MultimodalArtifact, EmbeddingItem, CrawlState,
// Candidate, and the typed Outcome result that replaces exception-driven
// control flow throughout the original crawler/processor code.
package types

import "time"

// BoardType enumerates the crawlable board categories.
type BoardType string

const (
	BoardNotice       BoardType = "notice"
	BoardJob          BoardType = "job"
	BoardSeminar      BoardType = "seminar"
	BoardFaculty      BoardType = "faculty"
	BoardGuestFaculty BoardType = "guest-faculty"
	BoardStaff        BoardType = "staff"
)

// Post is a single crawled artifact. Once ingested it is never mutated;
// it is only re-ingested when ContentHash no longer matches the stored one.
type Post struct {
	BoardType      BoardType
	BoardID        int
	Title          string
	BodyText       string
	BodyHTML       string
	Date           time.Time
	CanonicalURL   string
	Author         string
	Department     string
	ImageURLs      []string
	AttachmentURLs []string
	ContentHash    string
}

// ArtifactKind enumerates the kind of a MultimodalArtifact.
type ArtifactKind string

const (
	ArtifactImage     ArtifactKind = "image"
	ArtifactDocument  ArtifactKind = "document"
	ArtifactZipMember ArtifactKind = "zip-member"
)

// MultimodalArtifact is an image or attachment file associated with a post.
type MultimodalArtifact struct {
	SourceURL         string
	FileBytesHash     string
	Kind              ArtifactKind
	ExtractedText     string
	ExtractedMarkdown string
	ExtractedHTML     string
	ParentPostURL     string // non-owning back-reference
}

// ContentType enumerates the origin of an EmbeddingItem's text.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentImage      ContentType = "image"
	ContentAttachment ContentType = "attachment"
)

// SourceKind enumerates where an EmbeddingItem's text came from.
type SourceKind string

const (
	SourceOriginalPost   SourceKind = "original_post"
	SourceImageOCR       SourceKind = "image_ocr"
	SourceDocumentParse  SourceKind = "document_parse"
	SourceProfessorInfo  SourceKind = "professor_info"
)

// EmbeddingItem is a single vectorizable chunk plus its retrieval metadata.
// JSON tags fix the field names persisted to the "embedding_items"
// metadata-snapshot collection and must stay in sync with the vector
// index's flat string metadata keys built in the Embedding Uploader.
type EmbeddingItem struct {
	Text           string      `json:"text"`
	Title          string      `json:"title"`
	URL            string      `json:"url"`
	Date           time.Time   `json:"date"`
	ContentType    ContentType `json:"content_type"`
	Source         SourceKind  `json:"source"`
	ChunkIndex     int         `json:"chunk_index"`
	TotalChunks    int         `json:"total_chunks"`
	HTMLAvailable  bool        `json:"html_available"`
	HTML           string      `json:"html"`
	Markdown       string      `json:"markdown"`
	ImageURL       string      `json:"image_url"`
	AttachmentURL  string      `json:"attachment_url"`
	AttachmentType string      `json:"attachment_type"`
}

// CrawlState tracks incremental progress for one board type.
type CrawlState struct {
	BoardType       BoardType
	LastProcessedID int
	LastUpdated     time.Time
	ProcessedCount  int
}

// TemporalIntent is the structured description of time-related query
// constraints produced by the Temporal Intent Parser.
type TemporalIntent struct {
	Year      int  // 0 means unset
	Semester  int  // 0 means unset, else 1 or 2
	IsOngoing bool
	IsPolicy  bool
	Reasoning string
}

// HasFilter reports whether this intent carries any usable constraint.
func (t TemporalIntent) HasFilter() bool {
	return t.Year != 0 || t.Semester != 0 || t.IsOngoing
}

// Candidate is the single record flowing through dense retrieval,
// combination (which also converts BM25 results into Candidates), reranking,
// and composition. It replaces the duck-typed tuples the original pipeline
// passed between stages.
type Candidate struct {
	Score          float64
	Title          string
	Date           time.Time
	Text           string
	URL            string
	HTML           string
	Markdown       string
	ContentType    ContentType
	Source         SourceKind
	AttachmentType string
	ImageURL       string
	AttachmentURL  string
}

// OutcomeKind is the ternary status of an ingestion-path operation.
type OutcomeKind int

const (
	OK OutcomeKind = iota
	Skipped
	Failed
)

// FailureKind categorises a Failed outcome into a small set of abstract
// error kinds, independent of any particular backend's error types.
type FailureKind string

const (
	FailureNetwork        FailureKind = "network"
	FailureUnsupported    FailureKind = "unsupported"
	FailurePartial        FailureKind = "partial_multimodal"
	FailureCritical       FailureKind = "critical_multimodal"
	FailureContractBroken FailureKind = "external_api_contract_violation"
	FailureConfig         FailureKind = "configuration_error"
	FailureStateStale     FailureKind = "state_inconsistency"
)

// Outcome replaces exception-driven control flow on the ingestion path: post
// ingestion reports one of OK, Skipped(reason), or Failed(kind, detail)
// instead of raising. Crawler operations return Go errors, and the
// multimodal processor reports failures through its ProcessResult.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Detail string
	FKind  FailureKind
}

func OKOutcome() Outcome { return Outcome{Kind: OK} }

func SkippedOutcome(reason string) Outcome {
	return Outcome{Kind: Skipped, Reason: reason}
}

func FailedOutcome(kind FailureKind, detail string) Outcome {
	return Outcome{Kind: Failed, FKind: kind, Detail: detail}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OK:
		return "ok"
	case Skipped:
		return "skipped(" + o.Reason + ")"
	case Failed:
		return "failed(" + string(o.FKind) + ": " + o.Detail + ")"
	default:
		return "unknown"
	}
}
