// Package selection picks the K most informative pages from the discovered
// URL set, asking a small model first and falling back to path heuristics.
package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bizintel/internal/config"
	"github.com/sells-group/bizintel/internal/discovery"
	"github.com/sells-group/bizintel/internal/llm"
	"github.com/sells-group/bizintel/internal/model"
)

// Selection is the chosen page set with provenance.
type Selection struct {
	URLs   []string
	Method model.SelectionMethod
	// Call is the accounting entry for the model call, nil for heuristic.
	Call *model.LLMCall
}

// Selector chooses pages for extraction.
type Selector struct {
	svc *llm.Service
	cfg config.SelectionConfig
}

// New builds a Selector.
func New(svc *llm.Service, cfg config.SelectionConfig) *Selector {
	return &Selector{svc: svc, cfg: cfg}
}

// Select returns the root plus up to K chosen URLs, root first. The model's
// answer is filtered
// against the candidate set so it can never inject URLs. A failed or
// malformed model call degrades to the heuristic ranking.
func (s *Selector) Select(ctx context.Context, company model.Company, disc *discovery.Result) (*Selection, error) {
	if len(disc.Pages) == 0 {
		return nil, model.ErrNoContent
	}

	log := zap.L().With(zap.String("company", company.Name))

	sel, err := s.selectLLM(ctx, company, disc)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("llm page selection failed, using heuristic", zap.Error(err))
		return s.selectHeuristic(disc), nil
	}
	return sel, nil
}

type selectionAnswer struct {
	URLs []string `json:"urls"`
}

func (s *Selector) selectLLM(ctx context.Context, company model.Company, disc *discovery.Result) (*Selection, error) {
	temp := s.cfg.Temperature
	resp, err := s.svc.Complete(ctx, llm.Request{
		Model:       s.svc.SmallModel(),
		System:      selectionSystemPrompt,
		Prompt:      buildSelectionPrompt(company, disc, s.cfg.K),
		MaxTokens:   2048,
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}

	var answer selectionAnswer
	if err := json.Unmarshal([]byte(llm.CleanJSON(resp.Text)), &answer); err != nil {
		return nil, &model.LLMError{
			Kind: model.LLMMalformedOutput,
			Err:  eris.Wrap(err, "selection: parse answer"),
		}
	}

	candidates := make(map[string]bool, len(disc.Pages))
	for _, p := range disc.Pages {
		candidates[p.URL] = true
	}

	picked := make([]string, 0, s.cfg.K)
	seen := map[string]bool{}
	for _, u := range answer.URLs {
		u = strings.TrimSpace(u)
		if !candidates[u] || seen[u] {
			continue
		}
		seen[u] = true
		picked = append(picked, u)
	}
	if len(picked) == 0 {
		return nil, &model.LLMError{
			Kind: model.LLMMalformedOutput,
			Err:  eris.New("selection: no valid urls in answer"),
		}
	}

	call := resp.Call()
	return &Selection{
		URLs:   s.finalize(disc.Origin, picked),
		Method: model.SelectionLLM,
		Call:   &call,
	}, nil
}

// selectHeuristic ranks candidates by path priority, then shallower path,
// then discovery source. The stable sort keeps ties in discovery order.
func (s *Selector) selectHeuristic(disc *discovery.Result) *Selection {
	type scored struct {
		page  discovery.Page
		prio  int
		depth int
		rank  int
	}

	items := make([]scored, 0, len(disc.Pages))
	for _, p := range disc.Pages {
		items = append(items, scored{
			page:  p,
			prio:  s.pathPriority(p.URL),
			depth: pathDepth(p.URL),
			rank:  sourceOrder(p.Source),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].prio != items[j].prio {
			return items[i].prio < items[j].prio
		}
		if items[i].depth != items[j].depth {
			return items[i].depth < items[j].depth
		}
		return items[i].rank < items[j].rank
	})

	picked := make([]string, 0, s.cfg.K)
	for _, it := range items {
		picked = append(picked, it.page.URL)
	}

	return &Selection{
		URLs:   s.finalize(disc.Origin, picked),
		Method: model.SelectionHeuristic,
	}
}

// finalize enforces the root-first invariant and caps the selected pages at
// K. The root is always included and does not consume a selection slot.
func (s *Selector) finalize(origin string, urls []string) []string {
	out := make([]string, 0, s.cfg.K+1)
	out = append(out, origin)
	for _, u := range urls {
		if len(out) > s.cfg.K {
			break
		}
		if u == origin {
			continue
		}
		out = append(out, u)
	}
	return out
}

// pathPriority returns the index of the first matching priority path, or
// len(priorities) when none match.
func (s *Selector) pathPriority(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return len(s.cfg.HeuristicPriorities)
	}
	path := strings.ToLower(u.Path)
	for i, p := range s.cfg.HeuristicPriorities {
		if strings.HasPrefix(path, p) {
			return i
		}
	}
	return len(s.cfg.HeuristicPriorities)
}

// pathDepth counts non-empty path segments, so "/" is 0 and "/blog/post-1"
// is 2.
func pathDepth(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	n := 0
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			n++
		}
	}
	return n
}

func sourceOrder(src discovery.Source) int {
	switch src {
	case discovery.SourceSitemap:
		return 0
	case discovery.SourceRobots:
		return 1
	default:
		return 2
	}
}

const selectionSystemPrompt = `You select which pages of a company website are most useful for building a business intelligence profile. Prefer pages about the company, its products and services, pricing, team, and contact details. Respond with JSON only.`

func buildSelectionPrompt(company model.Company, disc *discovery.Result, k int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\nWebsite: %s\n\n", company.Name, disc.Origin)
	fmt.Fprintf(&sb, "Candidate pages (url | source | depth):\n")
	for _, p := range disc.Pages {
		fmt.Fprintf(&sb, "- %s | %s | %d\n", p.URL, p.Source, p.Depth)
	}
	fmt.Fprintf(&sb, "\nPick the %d most informative URLs from the list above. ", k)
	sb.WriteString(`Respond with exactly this JSON shape and nothing else: {"urls": ["..."]}`)
	return sb.String()
}
