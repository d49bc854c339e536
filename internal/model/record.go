package model

import (
	"time"

	"github.com/google/uuid"
)

// ScrapeStatus represents the lifecycle state of a company record.
type ScrapeStatus string

const (
	ScrapeStatusPending ScrapeStatus = "pending"
	ScrapeStatusRunning ScrapeStatus = "running"
	ScrapeStatusSuccess ScrapeStatus = "success"
	ScrapeStatusPartial ScrapeStatus = "partial"
	ScrapeStatusFailed  ScrapeStatus = "failed"
)

// SelectionMethod records how Phase 2 chose its pages.
type SelectionMethod string

const (
	SelectionLLM       SelectionMethod = "llm"
	SelectionHeuristic SelectionMethod = "heuristic"
)

// Company is the pipeline input: a name and an optional website.
type Company struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
}

// Classification is an enumerated field value with model confidence.
type Classification struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// LLMCall records token usage and cost for a single model invocation.
type LLMCall struct {
	ProviderID   string  `json:"provider_id"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ScrapeError is the user-visible failure summary attached to a record.
type ScrapeError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Record is the structured business-intelligence output for one company.
// It is owned by exactly one pipeline until it reaches a terminal status.
type Record struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website"`

	// Descriptive free-text fields.
	Description        string `json:"description,omitempty"`
	ValueProposition   string `json:"value_proposition,omitempty"`
	Industry           string `json:"industry,omitempty"`
	BusinessModel      string `json:"business_model,omitempty"`
	TargetMarket       string `json:"target_market,omitempty"`
	CompanySize        string `json:"company_size,omitempty"`
	FoundingYear       string `json:"founding_year,omitempty"`
	Location           string `json:"location,omitempty"`
	EmployeeCountRange string `json:"employee_count_range,omitempty"`
	CompanyCulture     string `json:"company_culture,omitempty"`
	FundingStatus      string `json:"funding_status,omitempty"`

	// Enumerated classifications.
	CompanyStage       *Classification `json:"company_stage,omitempty"`
	TechSophistication *Classification `json:"tech_sophistication,omitempty"`
	GeographicScope    *Classification `json:"geographic_scope,omitempty"`
	BusinessModelType  *Classification `json:"business_model_type,omitempty"`
	DecisionMakerType  *Classification `json:"decision_maker_type,omitempty"`
	SalesComplexity    *Classification `json:"sales_complexity,omitempty"`
	SaaSClassification *Classification `json:"saas_classification,omitempty"`
	IsSaaS             *Classification `json:"is_saas,omitempty"`

	// List fields.
	TechStack               []string `json:"tech_stack,omitempty"`
	PainPoints              []string `json:"pain_points,omitempty"`
	KeyServices             []string `json:"key_services,omitempty"`
	CompetitiveAdvantages   []string `json:"competitive_advantages,omitempty"`
	ProductsServicesOffered []string `json:"products_services_offered,omitempty"`
	Partnerships            []string `json:"partnerships,omitempty"`
	Certifications          []string `json:"certifications,omitempty"`
	Awards                  []string `json:"awards,omitempty"`
	RecentNews              []string `json:"recent_news,omitempty"`
	LeadershipTeam          []string `json:"leadership_team,omitempty"`

	// Maps; empty means "not found".
	SocialMedia map[Platform]string `json:"social_media,omitempty"`
	ContactInfo map[string]string   `json:"contact_info,omitempty"`

	// Provenance.
	PagesCrawled          []string        `json:"pages_crawled,omitempty"`
	CrawlDepth            int             `json:"crawl_depth"`
	CrawlDurationSeconds  float64         `json:"crawl_duration_seconds"`
	ScrapedContentDetails map[string]int  `json:"scraped_content_details,omitempty"`
	LLMCalls              []LLMCall       `json:"llm_calls,omitempty"`
	TotalInputTokens      int             `json:"total_input_tokens"`
	TotalOutputTokens     int             `json:"total_output_tokens"`
	TotalCostUSD          float64         `json:"total_cost_usd"`
	SelectionMethod       SelectionMethod `json:"selection_method,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	LastUpdated           time.Time       `json:"last_updated"`
	ScrapeStatus          ScrapeStatus    `json:"scrape_status"`
	ScrapeError           *ScrapeError    `json:"scrape_error,omitempty"`

	// Embedding is the dense vector for similarity search; nil when the
	// embedding phase degraded.
	Embedding []float64 `json:"embedding,omitempty"`
}

// NewRecord creates a pending record with identity fields only.
func NewRecord(c Company) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:           uuid.NewString(),
		Name:         c.Name,
		Website:      c.Website,
		CreatedAt:    now,
		LastUpdated:  now,
		ScrapeStatus: ScrapeStatusPending,
	}
}

// AddLLMCall appends a call and keeps the token/cost totals consistent with
// the sum over llm_calls.
func (r *Record) AddLLMCall(call LLMCall) {
	r.LLMCalls = append(r.LLMCalls, call)
	r.TotalInputTokens += call.InputTokens
	r.TotalOutputTokens += call.OutputTokens
	r.TotalCostUSD += call.CostUSD
}

// Touch updates last_updated, never moving it before created_at.
func (r *Record) Touch() {
	now := time.Now().UTC()
	if now.After(r.LastUpdated) {
		r.LastUpdated = now
	}
}

// Terminal reports whether the record has reached a final status.
func (r *Record) Terminal() bool {
	switch r.ScrapeStatus {
	case ScrapeStatusSuccess, ScrapeStatusPartial, ScrapeStatusFailed:
		return true
	}
	return false
}
