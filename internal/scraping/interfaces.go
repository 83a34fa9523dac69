package scraping

import (
	"context"
	"io"
	"time"
)

// ProjectStore keeps the ordered project registry (most recent first).
// Update methods report false without error when the id is unknown.
type ProjectStore interface {
	Add(ctx context.Context, project Project) error
	List(ctx context.Context) ([]Project, error)
	Get(ctx context.Context, id string) (Project, error)
	UpdateStatus(ctx context.Context, id string, status Status) (bool, error)
	UpdateCode(ctx context.Context, id string, code string) (bool, error)
	UpdateDriveSetting(ctx context.Context, id string, enabled bool) (bool, error)
	Close() error
}

// AIBridge is the contract against the hosted generative model.
type AIBridge interface {
	AnalyzeIntent(ctx context.Context, intent, targetURL string) (IntentSuggestion, error)
	GenerateSpider(ctx context.Context, req SpiderRequest) (string, error)
	GenerateMockResults(ctx context.Context, code, intent string) (PreviewTable, error)
	RefactorSpider(ctx context.Context, req RefactorRequest) (string, error)
	AnalyzeLog(ctx context.Context, logs string) (Answer, error)
	Chat(ctx context.Context, history []ChatMessage, message string) (Answer, error)
}

// BlobStore archives exported artifacts and lists them for the drive explorer.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	List(ctx context.Context, prefix string) ([]BlobObject, error)
}

// Publisher pushes change events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// DriveDetector decides whether a project's code plausibly supports its drive flag.
type DriveDetector interface {
	Mismatch(project Project) bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces project IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher fingerprints exported spider code.
type Hasher interface {
	Hash(data []byte) (string, error)
}
