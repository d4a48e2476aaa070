package browser

import (
	"context"
	_ "embed"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/showscout/scout-cli/internal/extract"
)

//go:embed popup_rules.yaml
var popupRulesYAML []byte

// VerdictNone is the kind returned when no blocking overlay was found.
const VerdictNone = "none"

// Verdict names a detected overlay and, when known, the selector to click
// to dismiss it. An empty Selector means the caller should try the rule
// set's dismiss candidates for the kind.
type Verdict struct {
	Kind       string
	Selector   string
	Confidence float64
}

// Actionable reports whether the verdict identifies something to dismiss.
func (v Verdict) Actionable() bool {
	return v.Kind != "" && v.Kind != VerdictNone
}

// PageClassifier decides whether a captured page is covered by a blocking
// overlay. Implementations are tried in priority order by a Chain.
type PageClassifier interface {
	Name() string
	Classify(ctx context.Context, html string) (Verdict, error)
}

type popupRule struct {
	Kind       string   `yaml:"kind"`
	Detect     []string `yaml:"detect"`
	DetectText []string `yaml:"detect_text"`
	Dismiss    []string `yaml:"dismiss"`
}

// RuleSet is the deterministic popup knowledge base: per overlay kind, the
// selectors that identify it and the click candidates that dismiss it.
type RuleSet struct {
	Rules []popupRule `yaml:"rules"`
}

// LoadRules parses a YAML rule file.
func LoadRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, eris.Wrap(err, "browser: parse popup rules")
	}
	return &rs, nil
}

var defaultRules = sync.OnceValue(func() *RuleSet {
	rs, err := LoadRules(popupRulesYAML)
	if err != nil {
		panic(err)
	}
	return rs
})

// DefaultRules returns the embedded rule set.
func DefaultRules() *RuleSet { return defaultRules() }

// DismissSelectors returns the click candidates for an overlay kind, in
// priority order.
func (r *RuleSet) DismissSelectors(kind string) []string {
	for _, rule := range r.Rules {
		if rule.Kind == kind {
			return rule.Dismiss
		}
	}
	return nil
}

// SelectorClassifier detects overlays by scanning the DOM for known
// selectors and text cues. It needs no network and never errors on valid
// HTML, which makes it the chain's reliable last resort.
type SelectorClassifier struct {
	rules *RuleSet
}

// NewSelectorClassifier builds a classifier over the given rules, or the
// embedded defaults when rules is nil.
func NewSelectorClassifier(rules *RuleSet) *SelectorClassifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &SelectorClassifier{rules: rules}
}

func (c *SelectorClassifier) Name() string { return "selector" }

func (c *SelectorClassifier) Classify(_ context.Context, html string) (Verdict, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Verdict{Kind: VerdictNone}, eris.Wrap(err, "browser: parse page")
	}
	lower := strings.ToLower(doc.Text())

	for _, rule := range c.rules.Rules {
		if !ruleMatches(doc, lower, rule) {
			continue
		}
		return Verdict{
			Kind:       rule.Kind,
			Selector:   firstPresent(doc, rule.Dismiss),
			Confidence: 1.0,
		}, nil
	}
	return Verdict{Kind: VerdictNone}, nil
}

func ruleMatches(doc *goquery.Document, lowerText string, rule popupRule) bool {
	for _, sel := range rule.Detect {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	for _, cue := range rule.DetectText {
		if strings.Contains(lowerText, cue) {
			return true
		}
	}
	return false
}

// firstPresent returns the first dismiss candidate that exists in the DOM,
// empty when none do.
func firstPresent(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return sel
		}
	}
	return ""
}

// popupModel is the slice of the extraction engine the model classifier
// needs.
type popupModel interface {
	ClassifyPopup(ctx context.Context, html string) (*extract.PopupVerdict, error)
}

// ModelClassifier asks the extraction engine what kind of overlay the page
// shows. It identifies the kind only; the dismiss selector comes from the
// rule set.
type ModelClassifier struct {
	engine popupModel
}

// NewModelClassifier wraps an extraction engine as a classifier.
func NewModelClassifier(engine popupModel) *ModelClassifier {
	return &ModelClassifier{engine: engine}
}

func (c *ModelClassifier) Name() string { return "model" }

func (c *ModelClassifier) Classify(ctx context.Context, html string) (Verdict, error) {
	v, err := c.engine.ClassifyPopup(ctx, html)
	if err != nil {
		return Verdict{Kind: VerdictNone}, err
	}
	if v.Kind == VerdictNone || !v.Dismissible {
		return Verdict{Kind: VerdictNone, Confidence: v.Confidence}, nil
	}
	return Verdict{Kind: v.Kind, Confidence: v.Confidence}, nil
}

// Chain tries classifiers in order and returns the first actionable
// verdict. A classifier error is logged and skipped, never fatal: a page
// we cannot classify is treated as unobstructed.
type Chain struct {
	classifiers []PageClassifier
}

// NewChain builds a chain in priority order.
func NewChain(classifiers ...PageClassifier) *Chain {
	return &Chain{classifiers: classifiers}
}

func (c *Chain) Classify(ctx context.Context, html string) Verdict {
	for _, cl := range c.classifiers {
		v, err := cl.Classify(ctx, html)
		if err != nil {
			zap.L().Debug("browser: popup classifier failed",
				zap.String("classifier", cl.Name()),
				zap.Error(err),
			)
			continue
		}
		if v.Actionable() {
			return v
		}
	}
	return Verdict{Kind: VerdictNone}
}
