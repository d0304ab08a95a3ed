// Package knowledge loads and serves the static reference data consumed by
// the prediction engine: the disorder catalogue with symptom signatures and
// risk associations, and the question bank. The document is versioned,
// loaded once at startup and treated as immutable for the process lifetime.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/apdpe/prediction-engine/internal/domain"
)

// document is the on-disk shape of the knowledge base.
type document struct {
	Version   string            `json:"version"`
	Symptoms  []domain.Symptom  `json:"symptoms"`
	Disorders []domain.Disorder `json:"disorders"`
	Questions []domain.Question `json:"questions"`
}

// CompiledSignature is a disorder signature indexed for scoring and
// question selection.
type CompiledSignature struct {
	// ExpectedPresent maps symptom code to its specificity weight.
	ExpectedPresent map[string]float64
	// ExpectedAbsent holds symptoms whose presence argues against the disorder.
	ExpectedAbsent map[string]bool
	// TotalWeight is the sum of all expected-present specificity weights.
	TotalWeight float64
}

// Provider serves the loaded knowledge base. All reads are lock-free; the
// only mutable state is the signature cache, which is itself thread safe.
type Provider struct {
	logger  *logrus.Logger
	version string

	symptoms  map[string]domain.Symptom
	disorders map[string]*domain.Disorder
	questions map[string]*domain.Question

	disorderOrder []domain.Disorder
	questionOrder []domain.Question

	signatures *lru.Cache[string, *CompiledSignature]
}

// NewProvider loads and validates the knowledge base document at path.
// Any load or validation failure means the knowledge base is unavailable
// and no sessions can be created.
func NewProvider(logger *logrus.Logger, path string, cacheMaxItems int) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrCodeKnowledgeBase,
			"failed to read knowledge base document", err.Error())
	}
	return NewProviderFromBytes(logger, data, cacheMaxItems)
}

// NewProviderFromBytes builds a provider from an in-memory document.
func NewProviderFromBytes(logger *logrus.Logger, data []byte, cacheMaxItems int) (*Provider, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.NewEngineError(domain.ErrCodeKnowledgeBase,
			"failed to parse knowledge base document", err.Error())
	}

	if cacheMaxItems <= 0 {
		cacheMaxItems = 256
	}
	cache, err := lru.New[string, *CompiledSignature](cacheMaxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create signature cache: %w", err)
	}

	p := &Provider{
		logger:     logger,
		version:    doc.Version,
		symptoms:   make(map[string]domain.Symptom, len(doc.Symptoms)),
		disorders:  make(map[string]*domain.Disorder, len(doc.Disorders)),
		questions:  make(map[string]*domain.Question, len(doc.Questions)),
		signatures: cache,
	}

	for _, s := range doc.Symptoms {
		p.symptoms[s.Code] = s
	}
	for i := range doc.Disorders {
		d := doc.Disorders[i]
		p.disorders[d.Code] = &doc.Disorders[i]
		p.disorderOrder = append(p.disorderOrder, d)
	}
	for i := range doc.Questions {
		q := doc.Questions[i]
		p.questions[q.ID] = &doc.Questions[i]
		p.questionOrder = append(p.questionOrder, q)
	}

	// Deterministic iteration order for scoring and selection.
	sort.Slice(p.disorderOrder, func(i, j int) bool {
		return p.disorderOrder[i].Code < p.disorderOrder[j].Code
	})
	sort.Slice(p.questionOrder, func(i, j int) bool {
		return p.questionOrder[i].ID < p.questionOrder[j].ID
	})

	if err := p.validate(); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"version":   p.version,
		"symptoms":  len(p.symptoms),
		"disorders": len(p.disorders),
		"questions": len(p.questions),
	}).Info("Loaded knowledge base")

	return p, nil
}

// validate checks referential integrity of the loaded document.
func (p *Provider) validate() error {
	fail := func(detail string) error {
		return domain.NewEngineError(domain.ErrCodeKnowledgeBase,
			"knowledge base document failed validation", detail)
	}

	if len(p.disorders) == 0 {
		return fail("no disorders defined")
	}
	if len(p.questions) == 0 {
		return fail("no questions defined")
	}

	for code, d := range p.disorders {
		if len(d.Signature) == 0 {
			return fail(fmt.Sprintf("disorder %s has an empty symptom signature", code))
		}
		if !d.Urgency.IsValid() {
			return fail(fmt.Sprintf("disorder %s has invalid urgency class %q", code, d.Urgency))
		}
		for _, sig := range d.Signature {
			if _, ok := p.symptoms[sig.Code]; !ok {
				return fail(fmt.Sprintf("disorder %s references unknown symptom %s", code, sig.Code))
			}
			if sig.Specificity < 0 {
				return fail(fmt.Sprintf("disorder %s has negative specificity for %s", code, sig.Code))
			}
		}
		for _, pair := range d.AtypicalPairs {
			for _, sc := range pair {
				if _, ok := p.symptoms[sc]; !ok {
					return fail(fmt.Sprintf("disorder %s atypical pair references unknown symptom %s", code, sc))
				}
			}
		}
		for _, ra := range d.RiskAssociations {
			if !ra.Kind.IsValid() {
				return fail(fmt.Sprintf("disorder %s has invalid risk association kind %q", code, ra.Kind))
			}
		}
	}

	for id, q := range p.questions {
		if len(q.TargetSymptoms) == 0 {
			return fail(fmt.Sprintf("question %s targets no symptoms", id))
		}
		if len(q.Phases) == 0 {
			return fail(fmt.Sprintf("question %s is eligible in no phase", id))
		}
		for _, ph := range q.Phases {
			if !ph.IsValid() {
				return fail(fmt.Sprintf("question %s names invalid phase %q", id, ph))
			}
		}
		for _, sc := range q.TargetSymptoms {
			if _, ok := p.symptoms[sc]; !ok {
				return fail(fmt.Sprintf("question %s targets unknown symptom %s", id, sc))
			}
		}
	}

	return nil
}

// Version returns the knowledge base document version.
func (p *Provider) Version() string {
	return p.version
}

// Disorders returns the disorder catalogue in lexical code order.
func (p *Provider) Disorders() []domain.Disorder {
	return p.disorderOrder
}

// Disorder looks up a disorder by code.
func (p *Provider) Disorder(code string) (*domain.Disorder, bool) {
	d, ok := p.disorders[code]
	return d, ok
}

// HasSymptom reports whether the symptom code exists in the catalogue.
func (p *Provider) HasSymptom(code string) bool {
	_, ok := p.symptoms[code]
	return ok
}

// Questions returns the question bank in lexical id order.
func (p *Provider) Questions() []domain.Question {
	return p.questionOrder
}

// Question looks up a question by id.
func (p *Provider) Question(id string) (*domain.Question, bool) {
	q, ok := p.questions[id]
	return q, ok
}

// Signature returns the compiled signature index for a disorder, building
// and caching it on first use.
func (p *Provider) Signature(code string) (*CompiledSignature, bool) {
	if sig, ok := p.signatures.Get(code); ok {
		return sig, true
	}

	d, ok := p.disorders[code]
	if !ok {
		return nil, false
	}

	sig := &CompiledSignature{
		ExpectedPresent: make(map[string]float64),
		ExpectedAbsent:  make(map[string]bool),
	}
	for _, s := range d.Signature {
		if s.ExpectedAbsent {
			sig.ExpectedAbsent[s.Code] = true
			continue
		}
		weight := s.Specificity
		if weight == 0 {
			weight = 1
		}
		sig.ExpectedPresent[s.Code] = weight
		sig.TotalWeight += weight
	}

	p.signatures.Add(code, sig)
	return sig, true
}
