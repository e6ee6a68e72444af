// Package framework loads the CAF questionnaire definitions: objectives,
// principles, outcomes and the indicator statements users check.
package framework

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"webcaf.gov.uk/webcaf/internal/domain"
)

//go:embed frameworks/*.yaml
var files embed.FS

// Framework is one version of the CAF.
type Framework struct {
	ID         string      `yaml:"id"`
	Name       string      `yaml:"name"`
	Objectives []Objective `yaml:"objectives"`
}

// Objective groups principles.
type Objective struct {
	Code       string      `yaml:"code"`
	Title      string      `yaml:"title"`
	Principles []Principle `yaml:"principles"`
}

// Principle groups outcomes.
type Principle struct {
	Code     string    `yaml:"code"`
	Title    string    `yaml:"title"`
	Outcomes []Outcome `yaml:"outcomes"`
}

// Outcome is the unit a user fills and confirms.
type Outcome struct {
	Code       string            `yaml:"code"`
	Title      string            `yaml:"title"`
	MinProfile domain.CAFProfile `yaml:"min_profile"`
	Indicators []Indicator       `yaml:"indicators"`
}

// Indicator is a checkable statement. Its id prefix names its bucket.
type Indicator struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// OutcomeRef addresses an outcome within a framework.
type OutcomeRef struct {
	Objective string
	Principle string
	Outcome   *Outcome
}

// AppliesTo reports whether the outcome is in scope for profile.
// Enhanced covers every outcome; baseline only baseline outcomes.
func (o Outcome) AppliesTo(profile domain.CAFProfile) bool {
	if profile == domain.ProfileEnhanced {
		return true
	}
	return o.MinProfile == "" || o.MinProfile == domain.ProfileBaseline
}

var (
	loadOnce sync.Once
	registry map[string]*Framework
	loadErr  error
)

func loadAll() {
	registry = map[string]*Framework{}
	entries, err := files.ReadDir("frameworks")
	if err != nil {
		loadErr = fmt.Errorf("read embedded frameworks: %w", err)
		return
	}
	for _, e := range entries {
		raw, err := files.ReadFile(path.Join("frameworks", e.Name()))
		if err != nil {
			loadErr = fmt.Errorf("read %s: %w", e.Name(), err)
			return
		}
		fw, err := Parse(raw)
		if err != nil {
			loadErr = fmt.Errorf("%s: %w", e.Name(), err)
			return
		}
		registry[fw.ID] = fw
	}
}

// Parse decodes and checks a framework definition.
func Parse(raw []byte) (*Framework, error) {
	var fw Framework
	if err := yaml.Unmarshal(raw, &fw); err != nil {
		return nil, fmt.Errorf("decode framework: %w", err)
	}
	if fw.ID == "" {
		return nil, fmt.Errorf("framework id is required")
	}
	seen := map[string]bool{}
	for _, ref := range fw.Outcomes() {
		if seen[ref.Outcome.Code] {
			return nil, fmt.Errorf("duplicate outcome %s", ref.Outcome.Code)
		}
		seen[ref.Outcome.Code] = true
		if !ref.Outcome.MinProfile.Valid() {
			return nil, fmt.Errorf("outcome %s: unknown min_profile %q", ref.Outcome.Code, ref.Outcome.MinProfile)
		}
		for _, ind := range ref.Outcome.Indicators {
			if !strings.Contains(ind.ID, "_") {
				return nil, fmt.Errorf("outcome %s: indicator %q has no bucket prefix", ref.Outcome.Code, ind.ID)
			}
		}
	}
	return &fw, nil
}

// Get returns the named framework from the embedded set.
func Get(id string) (*Framework, error) {
	loadOnce.Do(loadAll)
	if loadErr != nil {
		return nil, loadErr
	}
	fw, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("framework %q not found", id)
	}
	return fw, nil
}

// IDs lists the embedded framework ids.
func IDs() []string {
	loadOnce.Do(loadAll)
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Outcomes walks every outcome in document order.
func (f *Framework) Outcomes() []OutcomeRef {
	var refs []OutcomeRef
	for oi := range f.Objectives {
		obj := &f.Objectives[oi]
		for pi := range obj.Principles {
			pr := &obj.Principles[pi]
			for ui := range pr.Outcomes {
				refs = append(refs, OutcomeRef{Objective: obj.Code, Principle: pr.Code, Outcome: &pr.Outcomes[ui]})
			}
		}
	}
	return refs
}

// OutcomesFor returns the outcomes in scope for profile.
func (f *Framework) OutcomesFor(profile domain.CAFProfile) []OutcomeRef {
	var refs []OutcomeRef
	for _, ref := range f.Outcomes() {
		if ref.Outcome.AppliesTo(profile) {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Find locates an outcome by objective and outcome code.
func (f *Framework) Find(objective, outcome string) (OutcomeRef, bool) {
	for _, ref := range f.Outcomes() {
		if ref.Objective == objective && ref.Outcome.Code == outcome {
			return ref, true
		}
	}
	return OutcomeRef{}, false
}

// Progress counts confirmed outcomes against those in scope for profile.
func (f *Framework) Progress(profile domain.CAFProfile, data domain.AssessmentData) (done, total int) {
	for _, ref := range f.OutcomesFor(profile) {
		total++
		if rec, ok := data.Outcome(ref.Objective, ref.Outcome.Code); ok && rec.Confirmed() {
			done++
		}
	}
	return done, total
}

// IsComplete reports whether every in-scope outcome is confirmed.
func (f *Framework) IsComplete(profile domain.CAFProfile, data domain.AssessmentData) bool {
	done, total := f.Progress(profile, data)
	return total > 0 && done == total
}
