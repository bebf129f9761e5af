// Package config loads and validates margo model documents: the YAML
// surface declaring variables, factor tables, query targets and the queries
// to answer. Loading follows a fixed pipeline: JSON-schema validation of
// the raw document, strict YAML decoding, schema version compatibility,
// logical validation, and finally compilation into solver/query values.
package config

// Model is the root of a parsed model document.
type Model struct {
	// SchemaVersion declares the document format version (SemVer, major v1).
	SchemaVersion string `yaml:"schemaVersion" json:"schemaVersion"`
	// Name identifies the model in logs, events and reports.
	Name string `yaml:"name" json:"name"`
	// Variables declares the discrete random variables of the model.
	Variables []VariableSpec `yaml:"variables" json:"variables"`
	// Factors declares the weight tables over those variables.
	Factors []FactorSpec `yaml:"factors" json:"factors"`
	// Targets is the ordered list of variables the query layer tracks.
	// Empty means every declared variable.
	Targets []string `yaml:"targets,omitempty" json:"targets,omitempty"`
	// Queries lists the queries the engine answers after solving.
	Queries []QuerySpec `yaml:"queries,omitempty" json:"queries,omitempty"`
	// Solve configures the solve scheduling policy.
	Solve *SolvePolicy `yaml:"solve,omitempty" json:"solve,omitempty"`

	// FilePath records where the document was loaded from, for messages.
	FilePath string `yaml:"-" json:"-"`
}

// VariableSpec declares one discrete variable and its ordered domain.
type VariableSpec struct {
	Name   string        `yaml:"name" json:"name"`
	Domain []interface{} `yaml:"domain" json:"domain"`
	// Unresolved appends the unresolved sentinel to the domain, marking
	// values collapsed by upstream pruning.
	Unresolved bool `yaml:"unresolved,omitempty" json:"unresolved,omitempty"`
}

// FactorSpec declares one weight table. Weights are row-major over the
// listed variable order: the first variable varies slowest.
type FactorSpec struct {
	Variables []string  `yaml:"variables" json:"variables"`
	Weights   []float64 `yaml:"weights" json:"weights"`
}

// QueryType enumerates the supported query kinds.
type QueryType string

const (
	QueryDistribution QueryType = "distribution"
	QueryExpectation  QueryType = "expectation"
	QueryJoint        QueryType = "joint"
)

// QuerySpec declares one query to run after solving.
type QuerySpec struct {
	Name string    `yaml:"name" json:"name"`
	Type QueryType `yaml:"type" json:"type"`
	// Target names the queried variable for distribution and expectation
	// queries.
	Target string `yaml:"target,omitempty" json:"target,omitempty"`
	// Targets names the queried variables, in request order, for joint
	// queries.
	Targets []string `yaml:"targets,omitempty" json:"targets,omitempty"`
	// Payoff maps domain values to scores for expectation queries. When
	// omitted the domain values themselves must be numeric.
	Payoff []PayoffEntry `yaml:"payoff,omitempty" json:"payoff,omitempty"`
}

// PayoffEntry assigns a score to one domain value.
type PayoffEntry struct {
	Value interface{} `yaml:"value" json:"value"`
	Score float64     `yaml:"score" json:"score"`
}
