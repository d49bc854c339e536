// Package aggregate runs the large-context intelligence pass: it feeds all
// extracted page content to the model in one prompt and maps the structured
// answer onto the company record.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/extraction"
	"github.com/sells-group/bizintel/internal/llm"
	"github.com/sells-group/bizintel/internal/model"
)

// Aggregator produces the structured profile for one company.
type Aggregator struct {
	svc *llm.Service
	cfg config.AggregationConfig
}

// New builds an Aggregator.
func New(svc *llm.Service, cfg config.AggregationConfig) *Aggregator {
	return &Aggregator{svc: svc, cfg: cfg}
}

// Aggregate fills rec's intelligence fields from the extracted pages. Model
// calls are added to the record's ledger even on failure. A malformed answer
// gets exactly one reinforced retry before the error is returned.
func (a *Aggregator) Aggregate(ctx context.Context, rec *model.Record, company model.Company, pages []extraction.PageContent) error {
	usable := 0
	for _, p := range pages {
		if p.Err == nil && p.Text != "" {
			usable++
		}
	}
	if usable == 0 {
		return model.ErrNoContent
	}

	prompt := buildPrompt(company, pages, a.cfg.PerPageChars, a.cfg.MaxPromptChars)

	payload, err := a.ask(ctx, rec, prompt)
	if err != nil {
		var le *model.LLMError
		if !errors.As(err, &le) || le.Kind != model.LLMMalformedOutput {
			return err
		}
		zap.L().Warn("aggregation answer malformed, retrying once",
			zap.String("company", company.Name))
		payload, err = a.ask(ctx, rec, prompt+reinforcement)
		if err != nil {
			return err
		}
	}

	payload.apply(rec, company.Name)
	return nil
}

func (a *Aggregator) ask(ctx context.Context, rec *model.Record, prompt string) (*profilePayload, error) {
	resp, err := a.svc.Complete(ctx, llm.Request{
		Model:     a.svc.LargeModel(),
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: 8192,
	})
	if err != nil {
		return nil, err
	}
	rec.AddLLMCall(resp.Call())

	var payload profilePayload
	if err := json.Unmarshal([]byte(llm.CleanJSON(resp.Text)), &payload); err != nil {
		return nil, &model.LLMError{
			Kind: model.LLMMalformedOutput,
			Err:  eris.Wrap(err, "aggregate: parse profile"),
		}
	}
	return &payload, nil
}

// classificationPayload is the wire form of an enumerated answer.
type classificationPayload struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// profilePayload mirrors the JSON shape requested from the model.
type profilePayload struct {
	Description        string `json:"description"`
	ValueProposition   string `json:"value_proposition"`
	Industry           string `json:"industry"`
	BusinessModel      string `json:"business_model"`
	TargetMarket       string `json:"target_market"`
	CompanySize        string `json:"company_size"`
	FoundingYear       string `json:"founding_year"`
	Location           string `json:"location"`
	EmployeeCountRange string `json:"employee_count_range"`
	CompanyCulture     string `json:"company_culture"`
	FundingStatus      string `json:"funding_status"`

	CompanyStage       *classificationPayload `json:"company_stage"`
	TechSophistication *classificationPayload `json:"tech_sophistication"`
	GeographicScope    *classificationPayload `json:"geographic_scope"`
	BusinessModelType  *classificationPayload `json:"business_model_type"`
	DecisionMakerType  *classificationPayload `json:"decision_maker_type"`
	SalesComplexity    *classificationPayload `json:"sales_complexity"`
	SaaSClassification *classificationPayload `json:"saas_classification"`
	IsSaaS             *classificationPayload `json:"is_saas"`

	TechStack               []string `json:"tech_stack"`
	PainPoints              []string `json:"pain_points"`
	KeyServices             []string `json:"key_services"`
	CompetitiveAdvantages   []string `json:"competitive_advantages"`
	ProductsServicesOffered []string `json:"products_services_offered"`
	Partnerships            []string `json:"partnerships"`
	Certifications          []string `json:"certifications"`
	Awards                  []string `json:"awards"`
	RecentNews              []string `json:"recent_news"`
	LeadershipTeam          []string `json:"leadership_team"`

	ContactInfo map[string]string `json:"contact_info"`
}

// apply copies the payload onto the record, coercing out-of-enum values to
// the unknown sentinel.
func (p *profilePayload) apply(rec *model.Record, companyName string) {
	rec.Description = p.Description
	rec.ValueProposition = p.ValueProposition
	rec.Industry = p.Industry
	rec.BusinessModel = p.BusinessModel
	rec.TargetMarket = p.TargetMarket
	rec.CompanySize = p.CompanySize
	rec.FoundingYear = p.FoundingYear
	rec.Location = p.Location
	rec.EmployeeCountRange = p.EmployeeCountRange
	rec.CompanyCulture = p.CompanyCulture
	rec.FundingStatus = p.FundingStatus

	rec.CompanyStage = coerce("company_stage", p.CompanyStage, companyName)
	rec.TechSophistication = coerce("tech_sophistication", p.TechSophistication, companyName)
	rec.GeographicScope = coerce("geographic_scope", p.GeographicScope, companyName)
	rec.BusinessModelType = coerce("business_model_type", p.BusinessModelType, companyName)
	rec.DecisionMakerType = coerce("decision_maker_type", p.DecisionMakerType, companyName)
	rec.SalesComplexity = coerce("sales_complexity", p.SalesComplexity, companyName)
	rec.SaaSClassification = coerce("saas_classification", p.SaaSClassification, companyName)
	rec.IsSaaS = coerce("is_saas", p.IsSaaS, companyName)

	rec.TechStack = dropEmpty(p.TechStack)
	rec.PainPoints = dropEmpty(p.PainPoints)
	rec.KeyServices = dropEmpty(p.KeyServices)
	rec.CompetitiveAdvantages = dropEmpty(p.CompetitiveAdvantages)
	rec.ProductsServicesOffered = dropEmpty(p.ProductsServicesOffered)
	rec.Partnerships = dropEmpty(p.Partnerships)
	rec.Certifications = dropEmpty(p.Certifications)
	rec.Awards = dropEmpty(p.Awards)
	rec.RecentNews = dropEmpty(p.RecentNews)
	rec.LeadershipTeam = dropEmpty(p.LeadershipTeam)

	if len(p.ContactInfo) > 0 {
		rec.ContactInfo = map[string]string{}
		for k, v := range p.ContactInfo {
			if v != "" {
				rec.ContactInfo[k] = v
			}
		}
	}
}

// coerce validates an enumerated answer. Invalid values become unknown with
// zero confidence; the coercion is logged once per field.
func coerce(field string, c *classificationPayload, companyName string) *model.Classification {
	if c == nil || c.Value == "" {
		return nil
	}

	out := &model.Classification{Value: c.Value, Confidence: clamp01(c.Confidence)}
	if !model.ValidEnumValue(field, c.Value) {
		zap.L().Info("coercing out-of-enum value",
			zap.String("company", companyName),
			zap.String("field", field),
			zap.String("value", c.Value))
		out.Value = model.Unknown
		out.Confidence = 0
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dropEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
