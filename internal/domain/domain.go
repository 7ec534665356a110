package domain

// Bounty lifecycle statuses. Cancelled is reachable from any non-terminal
// status; revision only from submitted/vetting and returns to in_progress.
const (
	StatusOpen       = "open"
	StatusClaimed    = "claimed"
	StatusInProgress = "in_progress"
	StatusSubmitted  = "submitted"
	StatusVetting    = "vetting"
	StatusCompleted  = "completed"
	StatusPaid       = "paid"
	StatusCancelled  = "cancelled"
	StatusRevision   = "revision"
)

// VettingStages is the fixed stage order of the external vetting pipeline.
var VettingStages = []string{"clone", "build", "lint", "test", "security", "ai_review"}

type Bounty struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Currency    string   `json:"currency"`
	Status      string   `json:"status"`
	Source      string   `json:"source,omitempty"`
	SourceURL   string   `json:"source_url,omitempty"`
	Repo        string   `json:"repo,omitempty"`
	Org         string   `json:"org,omitempty"`
	IssueNumber *int     `json:"issue_number,omitempty"`
	PRURL       string   `json:"pr_url,omitempty"`
	LabelsJSON  *string  `json:"labels_json,omitempty"`
	TechJSON    *string  `json:"technologies_json,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
}

type DiffStats struct {
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	FilesChanged int `json:"files_changed"`
}

type VettingStage struct {
	Stage      string `json:"stage"`
	Status     string `json:"status" enum:"pass,fail"`
	DurationMS int64  `json:"duration_ms"`
}

type Proof struct {
	ID              string  `json:"id"`
	BountyID        string  `json:"bounty_id"`
	RecordingsJSON  *string `json:"recordings_json,omitempty"`
	ScreenshotsJSON *string `json:"screenshots_json,omitempty"`
	DiffJSON        *string `json:"diff_json,omitempty"`
	VettingJSON     *string `json:"vetting_json,omitempty"`
	Summary         string  `json:"summary,omitempty"`
	CreatedBy       string  `json:"created_by"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

// Tenant is a hosting-domain record: branding plus denormalized stats.
type Tenant struct {
	ID           string  `json:"id"`
	Host         string  `json:"host"`
	Name         string  `json:"name"`
	PrimaryColor string  `json:"primary_color,omitempty"`
	LogoURL      string  `json:"logo_url,omitempty"`
	Tagline      string  `json:"tagline,omitempty"`
	BountyCount  int     `json:"bounty_count"`
	OpenCount    int     `json:"open_count"`
	TotalPaid    float64 `json:"total_paid"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type LedgerEntry struct {
	ID            string  `json:"id"`
	BountyID      string  `json:"bounty_id"`
	TenantID      string  `json:"tenant_id,omitempty"`
	Type          string  `json:"type" enum:"payout,fee,refund,adjustment"`
	Status        string  `json:"status" enum:"pending,settled,failed"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"payment_method" enum:"stripe,wise,crypto,manual"`
	Reference     string  `json:"reference,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	SettledAt     *string `json:"settled_at,omitempty" format:"date-time"`
}

type Notification struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Kind      string  `json:"kind"`
	Title     string  `json:"title"`
	Body      string  `json:"body,omitempty"`
	BountyID  *string `json:"bounty_id,omitempty"`
	Read      bool    `json:"read"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type NotificationPrefs struct {
	UserID          string `json:"user_id"`
	BountyUpdates   bool   `json:"bounty_updates"`
	PayoutAlerts    bool   `json:"payout_alerts"`
	DiscoveryDigest bool   `json:"discovery_digest"`
	SlackDMs        bool   `json:"slack_dms"`
	UpdatedAt       string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	UserID     string `json:"user_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ValidTransition reports whether a bounty may move from -> to.
func ValidTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch to {
	case StatusCancelled:
		return from != StatusPaid && from != StatusCancelled
	case StatusRevision:
		return from == StatusSubmitted || from == StatusVetting
	}
	switch from {
	case StatusOpen:
		return to == StatusClaimed
	case StatusClaimed:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusSubmitted
	case StatusSubmitted:
		return to == StatusVetting
	case StatusVetting:
		return to == StatusCompleted
	case StatusCompleted:
		return to == StatusPaid
	case StatusRevision:
		return to == StatusInProgress
	}
	return false
}

// KnownStatus reports whether s is a lifecycle status.
func KnownStatus(s string) bool {
	switch s {
	case StatusOpen, StatusClaimed, StatusInProgress, StatusSubmitted,
		StatusVetting, StatusCompleted, StatusPaid, StatusCancelled, StatusRevision:
		return true
	}
	return false
}

// KnownVettingStage reports whether stage is one of the pipeline stages.
func KnownVettingStage(stage string) bool {
	for _, s := range VettingStages {
		if s == stage {
			return true
		}
	}
	return false
}
