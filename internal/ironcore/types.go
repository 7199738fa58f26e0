package ironcore

import "time"

// Field is a single (key, value) pair in a LogEntry's insertion-ordered
// field list. Kept as a slice of pairs, not a map, so repeated keys and
// parser-determined order survive intact.
type Field struct {
	Key   string
	Value string
}

// LogEntry is a parsed log record, the unit the rule engine evaluates.
type LogEntry struct {
	Source    string
	Timestamp time.Time
	Hostname  string
	Process   string
	Message   string
	Severity  Severity
	Fields    []Field
}

// FieldValue resolves a field by name using the fixed projection the rule
// engine and threshold grouping both rely on: the four named LogEntry
// attributes take priority over the generic Fields list, which is then
// scanned linearly for the first match. Returns ("", false) if absent.
func (e LogEntry) FieldValue(name string) (string, bool) {
	switch name {
	case "hostname":
		return e.Hostname, true
	case "process":
		return e.Process, true
	case "message":
		return e.Message, true
	case "source":
		return e.Source, true
	default:
		for _, f := range e.Fields {
			if f.Key == name {
				return f.Value, true
			}
		}
		return "", false
	}
}

// Alert is raised by the rule engine or the SBOM scanner and consumed by
// the container guard.
type Alert struct {
	ID          string
	Title       string
	Description string
	Severity    Severity
	RuleName    string
	SourceIP    string // empty means absent
	TargetIP    string // empty means absent
	CreatedAt   time.Time
}

// ConditionModifier is how a FieldCondition's value is compared against
// the extracted field value.
type ConditionModifier string

const (
	ModifierExact      ConditionModifier = "exact"
	ModifierContains   ConditionModifier = "contains"
	ModifierStartsWith ConditionModifier = "starts_with"
	ModifierEndsWith   ConditionModifier = "ends_with"
	ModifierRegex      ConditionModifier = "regex"
)

// FieldCondition is one AND-combined clause of a DetectionRule.
type FieldCondition struct {
	FieldName string            `yaml:"field_name"`
	Modifier  ConditionModifier `yaml:"modifier"`
	Value     string            `yaml:"value"`
}

// ThresholdConfig turns a rule into a windowed counter instead of a
// fire-on-every-match rule.
type ThresholdConfig struct {
	GroupField   string `yaml:"group_field"`
	Count        uint64 `yaml:"count"`
	TimeframeSec uint64 `yaml:"timeframe_secs"`
}

// RuleStatus gates whether a rule participates in evaluation.
type RuleStatus string

const (
	RuleEnabled  RuleStatus = "enabled"
	RuleDisabled RuleStatus = "disabled"
	RuleTest     RuleStatus = "test"
)

// DetectionRule is one loaded, optionally compiled, rule-engine entry.
type DetectionRule struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Severity    Severity   `yaml:"-"`
	SeverityStr string     `yaml:"severity"`
	Status      RuleStatus `yaml:"status"`
	Detection   struct {
		Conditions []FieldCondition `yaml:"conditions"`
		Threshold  *ThresholdConfig `yaml:"threshold"`
	} `yaml:"detection"`
	Tags []string `yaml:"tags"`
}

// Ecosystem names a package manager universe for SBOM/CVE matching.
type Ecosystem string

const (
	EcosystemCargo Ecosystem = "cargo"
	EcosystemNpm   Ecosystem = "npm"
	EcosystemGo    Ecosystem = "go"
	EcosystemPip   Ecosystem = "pip"
)

// Vulnerability is one CVE-DB entry.
type Vulnerability struct {
	CVEID           string
	Package         string
	Ecosystem       Ecosystem
	AffectedRanges  []string
	FixedVersion    string // empty means unknown
	Severity        Severity
	Description     string
}

// ScanFinding binds a Vulnerability to the package version it was found
// in. SourceFile holds the scanned directory, not the path of the
// individual lockfile.
type ScanFinding struct {
	Vulnerability  Vulnerability
	PackageVersion string
	SourceFile     string
}
