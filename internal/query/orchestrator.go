package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"medquery/internal/access"
	"medquery/internal/ai"
	"medquery/internal/bridge"
	"medquery/internal/domain"
)

// GenerativeBackend 生成式后端（可选）
type GenerativeBackend interface {
	Process(ctx context.Context, user domain.User, query string, records []domain.SanitizedRecord) (string, error)
}

// knownName 固定的姓名 -> 患者ID 映射，按表顺序匹配
type knownName struct {
	pattern *regexp.Regexp
	id      string
}

var (
	knownNames = []knownName{
		{regexp.MustCompile(`(?i)jane.*smith`), "P001"},
		{regexp.MustCompile(`(?i)david.*chen`), "P002"},
		{regexp.MustCompile(`(?i)maria.*lopez`), "P003"},
	}

	patientIDRe    = regexp.MustCompile(`(?i)patient.*id.*?(\w+)`)
	shortIDRe      = regexp.MustCompile(`(?i)\b(p\d{3,5})\b`)
	patientNamedRe = regexp.MustCompile(`(?i)patient named ([a-z ]+)`)
	agedRe         = regexp.MustCompile(`(?i)aged?\s*(\d+)`)

	// conditionVocabulary is the fixed set of condition names the
	// aggregate path recognizes in free text.
	conditionVocabulary = []string{"Type 2 Diabetes", "Asthma", "Hypertension", "High Cholesterol"}
)

// Orchestrator 查询编排器
// Stateless: one ProcessQuery invocation handles one query end-to-end
// over a read-only snapshot; the only mutable state is request-local.
// Bridge and AI are optional strategies tried in a fixed fallback
// order (bridge -> local, generative -> rule-based).
type Orchestrator struct {
	policy *access.Policy
	bridge bridge.ToolBridge
	ai     GenerativeBackend
	logger *zap.Logger
}

func NewOrchestrator(policy *access.Policy, toolBridge bridge.ToolBridge, backend GenerativeBackend, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{policy: policy, bridge: toolBridge, ai: backend, logger: logger}
}

// BridgeEnabled reports whether a remote tool bridge is configured.
func (o *Orchestrator) BridgeEnabled() bool { return o.bridge != nil }

// GenerativeEnabled reports whether a generative backend is configured.
func (o *Orchestrator) GenerativeEnabled() bool { return o.ai != nil }

// ProcessQuery classifies, authorizes and dispatches one query.
// It always returns a QueryResult: expected outcomes (denial,
// not-found) are successful informative results, and anything
// unexpected is converted at this boundary, never propagated.
func (o *Orchestrator) ProcessQuery(ctx context.Context, user domain.User, snapshot []domain.PatientRecord, text string) (out domain.QueryResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("query dispatch panicked", zap.Any("panic", r))
			out = domain.QueryResult{
				Success:        false,
				Message:        fmt.Sprintf("Error processing query: %v", r),
				AccessLevel:    user.Role,
				RedactedFields: []string{},
			}
		}
	}()

	category := Classify(text)

	// Deterministic categories stay rule-based (this is what enables
	// the bridge path); only free-form general queries may go to the
	// generative backend.
	if category == domain.CategoryGeneral && o.ai != nil {
		result, err := o.processGenerative(ctx, user, snapshot, text)
		if err == nil {
			return result
		}
		var rejection *ai.PolicyRejectionError
		if errors.As(err, &rejection) {
			return domain.QueryResult{
				Success:        false,
				Message:        fmt.Sprintf("Access denied by security policy: %s", rejection.Reason),
				AccessLevel:    user.Role,
				RedactedFields: []string{},
			}
		}
		o.logger.Warn("generative backend unavailable, falling back to rule-based", zap.Error(err))
	}

	result, err := o.processRuleBased(ctx, user, snapshot, text)
	if err != nil {
		return domain.QueryResult{
			Success:        false,
			Message:        fmt.Sprintf("Error processing query: %v", err),
			AccessLevel:    user.Role,
			RedactedFields: []string{},
		}
	}
	return result
}

func (o *Orchestrator) processRuleBased(ctx context.Context, user domain.User, snapshot []domain.PatientRecord, text string) (domain.QueryResult, error) {
	category := Classify(text)

	// General queries are informational only and skip authorization;
	// everything touching data goes through the permission check.
	if category != domain.CategoryGeneral && !o.policy.CheckQueryPermission(category, user.Role) {
		message := "Access denied. You don't have permission for this type of query."
		if user.Role == domain.RoleTrainee {
			message = "Access to patient data requires supervision. Please contact your supervisor for assistance."
		}
		// Denial is a valid outcome, not an error.
		return domain.QueryResult{
			Success:        true,
			Message:        message,
			AccessLevel:    user.Role,
			RedactedFields: o.policy.RedactedFields(user.Role),
		}, nil
	}

	switch category {
	case domain.CategoryHelp:
		return o.handleHelp(user, snapshot), nil
	case domain.CategoryIndividualPatient:
		return o.handleIndividualPatient(ctx, user, snapshot, text)
	case domain.CategoryAggregateStats:
		return o.handleAggregate(ctx, user, snapshot, text)
	}
	return o.handleGeneral(user, text), nil
}

// handleHelp returns static usage tips plus up to 5 sample record ids.
// No data access beyond the ids.
func (o *Orchestrator) handleHelp(user domain.User, snapshot []domain.PatientRecord) domain.QueryResult {
	tips := []string{"Use patient IDs like P0001, P0062, P0123"}

	var sampleIDs []string
	for _, p := range snapshot {
		sampleIDs = append(sampleIDs, p.ID)
		if len(sampleIDs) == 5 {
			break
		}
	}
	if len(sampleIDs) > 0 {
		tips = append(tips, fmt.Sprintf("Here are a few IDs you can use: %s", strings.Join(sampleIDs, ", ")))
	}
	tips = append(tips,
		"Examples:",
		"- Summarize patient ID P0001",
		"- What is the medication history of patient ID P0062?",
		"- Find patients aged 60 with Type 2 Diabetes",
	)

	return domain.QueryResult{
		Success:        true,
		Message:        strings.Join(tips, "\n"),
		AccessLevel:    user.Role,
		RedactedFields: o.policy.RedactedFields(user.Role),
	}
}

// handleIndividualPatient resolves a target record by extracted id,
// known name, or a bridge lookup, in that order; first hit wins.
func (o *Orchestrator) handleIndividualPatient(ctx context.Context, user domain.User, snapshot []domain.PatientRecord, text string) (domain.QueryResult, error) {
	var target *domain.PatientRecord

	if m := patientIDRe.FindStringSubmatch(text); m != nil {
		want := strings.ToUpper(m[1])
		for i := range snapshot {
			if strings.ToUpper(snapshot[i].ID) == want {
				target = &snapshot[i]
				break
			}
		}
	}

	if target == nil {
		for _, kn := range knownNames {
			if !kn.pattern.MatchString(text) {
				continue
			}
			for i := range snapshot {
				if snapshot[i].ID == kn.id {
					target = &snapshot[i]
					break
				}
			}
			break
		}
	}

	if target == nil && o.bridge != nil {
		var id, name string
		if m := shortIDRe.FindStringSubmatch(text); m != nil {
			id = strings.ToUpper(m[1])
		}
		if m := patientNamedRe.FindStringSubmatch(text); m != nil {
			name = titleCase(strings.TrimSpace(m[1]))
		}
		if id != "" || name != "" {
			if p, err := o.bridge.PatientGet(ctx, id, name); err == nil && p != nil {
				target = p
			} else if err != nil {
				o.logger.Debug("bridge patient_get unavailable", zap.Error(err))
			}
		}
	}

	if target == nil {
		return domain.QueryResult{
			Success:        true,
			Message:        "Patient not found. Please specify a valid patient name or ID.",
			AccessLevel:    user.Role,
			RedactedFields: o.policy.RedactedFields(user.Role),
		}, nil
	}

	profile := o.policy.Profile(user.Role)
	sanitized := access.Redact(*target, profile)
	summary := Summarize(sanitized, DefaultSummaryOptions())

	return domain.QueryResult{
		Success:        true,
		Message:        summary,
		AccessLevel:    user.Role,
		RedactedFields: o.policy.RedactedFields(user.Role),
	}, nil
}

// handleAggregate tries the bridge first when configured, then falls
// through silently to the local statistics engine.
func (o *Orchestrator) handleAggregate(ctx context.Context, user domain.User, snapshot []domain.PatientRecord, text string) (domain.QueryResult, error) {
	lower := strings.ToLower(text)

	if o.bridge != nil {
		if result, ok := o.aggregateViaBridge(ctx, user, lower); ok {
			return result, nil
		}
	}

	return o.aggregateLocally(user, snapshot, lower)
}

// aggregateViaBridge returns (result, true) only on a successful bridge
// round trip; every failure falls back to local processing.
func (o *Orchestrator) aggregateViaBridge(ctx context.Context, user domain.User, lower string) (domain.QueryResult, bool) {
	minAge := extractMinAge(lower)
	conditions := extractConditions(lower)
	redacted := o.policy.RedactedFields(user.Role)

	if strings.Contains(lower, "aggregate") || strings.Contains(lower, "count") || strings.Contains(lower, "percentage") {
		aggs, err := o.bridge.PatientAggregate(ctx, minAge, conditions)
		if err != nil {
			o.logger.Debug("bridge patient_aggregate unavailable", zap.Error(err))
			return domain.QueryResult{}, false
		}
		var lines []string
		for _, a := range aggs {
			lines = append(lines, fmt.Sprintf("%s: %d", a.Medication, a.Count))
		}
		if len(lines) == 0 {
			lines = []string{"No matches"}
		}
		text := "Medication counts"
		if minAge != nil {
			text += fmt.Sprintf(" (age>=%d)", *minAge)
		}
		if len(conditions) > 0 {
			text += fmt.Sprintf(" for %s", strings.Join(conditions, ", "))
		}
		text += ":\n" + strings.Join(lines, "\n")
		return domain.QueryResult{Success: true, Message: text, AccessLevel: user.Role, RedactedFields: redacted}, true
	}

	results, err := o.bridge.PatientSearch(ctx, minAge, conditions, 25)
	if err != nil {
		o.logger.Debug("bridge patient_search unavailable", zap.Error(err))
		return domain.QueryResult{}, false
	}
	var lines []string
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("- %s: %s %d%s | %s",
			r.ID, r.Name, r.Age, r.Gender, strings.Join(r.Conditions, ", ")))
	}
	if len(lines) == 0 {
		lines = []string{"No matches"}
	}
	text := "Cohort sample (first 25)"
	if minAge != nil {
		text += fmt.Sprintf(" age>=%d", *minAge)
	}
	if len(conditions) > 0 {
		text += fmt.Sprintf(" with %s", strings.Join(conditions, ", "))
	}
	text += ":\n" + strings.Join(lines, "\n")
	return domain.QueryResult{Success: true, Message: text, AccessLevel: user.Role, RedactedFields: redacted}, true
}

// aggregateLocally redacts the whole snapshot, then picks one of three
// deterministic computations by keyword; unknown shapes get example
// query forms.
func (o *Orchestrator) aggregateLocally(user domain.User, snapshot []domain.PatientRecord, lower string) (domain.QueryResult, error) {
	profile := o.policy.Profile(user.Role)
	redacted := o.policy.RedactedFields(user.Role)

	sanitized := access.RedactAll(snapshot, profile)
	records := make([]domain.PatientRecord, 0, len(sanitized))
	for _, s := range sanitized {
		records = append(records, s.PatientRecord)
	}

	switch {
	case strings.Contains(lower, "percentage") && strings.Contains(lower, "metformin"):
		var ageFilter *AgeRange
		if strings.Contains(lower, "under 40") || strings.Contains(lower, "< 40") {
			ageFilter = &AgeRange{MaxAge: intPtr(39)}
		} else if strings.Contains(lower, "over 40") || strings.Contains(lower, "> 40") {
			ageFilter = &AgeRange{MinAge: intPtr(41)}
		}

		share, err := PercentageWithMedication(records, "Metformin", ageFilter)
		if err != nil {
			return domain.QueryResult{
				Success:        false,
				Message:        err.Error(),
				AccessLevel:    user.Role,
				RedactedFields: redacted,
			}, nil
		}

		message := "Metformin Usage Analysis:\n"
		message += fmt.Sprintf("- Total patients in group: %d\n", share.TotalPatientsInGroup)
		message += fmt.Sprintf("- Patients taking Metformin: %d\n", share.PatientsWithMedication)
		message += fmt.Sprintf("- Percentage: %v%%", share.Percentage)
		if share.AgeFilter != "None" {
			message += fmt.Sprintf("\n- Age filter applied: %s", share.AgeFilter)
		}
		return domain.QueryResult{Success: true, Message: message, AccessLevel: user.Role, RedactedFields: redacted}, nil

	case strings.Contains(lower, "patients") && strings.Contains(lower, "diabetes"):
		criteria := Criteria{Condition: "Type 2 Diabetes"}
		if strings.Contains(lower, "aged 60+") || strings.Contains(lower, "over 60") {
			criteria.MinAge = intPtr(60)
		}

		matching := FilterByCriteria(records, criteria)
		if len(matching) == 0 {
			return domain.QueryResult{
				Success:        true,
				Message:        "No patients found matching the specified criteria.",
				AccessLevel:    user.Role,
				RedactedFields: redacted,
			}, nil
		}

		message := fmt.Sprintf("Found %d patients with Type 2 Diabetes", len(matching))
		if criteria.MinAge != nil {
			message += fmt.Sprintf(" aged %d+", *criteria.MinAge)
		}
		message += ":\n\n"
		for _, p := range matching {
			if p.Name != domain.RedactionMarker && p.Name != "" {
				message += fmt.Sprintf("- %s (ID: %s, Age: %d)\n", p.Name, p.ID, p.Age)
			} else {
				message += fmt.Sprintf("- Patient ID: %s (Age: %d)\n", p.ID, p.Age)
			}
		}
		return domain.QueryResult{Success: true, Message: message, AccessLevel: user.Role, RedactedFields: redacted}, nil

	case strings.Contains(lower, "average age"):
		stats, err := Aggregate(records, "age")
		if err != nil {
			return domain.QueryResult{
				Success:        false,
				Message:        err.Error(),
				AccessLevel:    user.Role,
				RedactedFields: redacted,
			}, nil
		}
		message := "Age Statistics:\n"
		message += fmt.Sprintf("- Average age: %v years\n", stats.Age.Average)
		message += fmt.Sprintf("- Age range: %d - %d years\n", stats.Age.Min, stats.Age.Max)
		message += fmt.Sprintf("- Total patients: %d", stats.Age.Count)
		return domain.QueryResult{Success: true, Message: message, AccessLevel: user.Role, RedactedFields: redacted}, nil
	}

	return domain.QueryResult{
		Success: true,
		Message: "I can help with specific aggregate queries like:\n" +
			"- 'What percentage of patients under 40 are on Metformin?'\n" +
			"- 'Find all patients aged 60+ with Type 2 Diabetes'\n" +
			"- 'What's the average age of patients?'",
		AccessLevel:    user.Role,
		RedactedFields: redacted,
	}, nil
}

// handleGeneral returns the role-specific example-query catalog.
// Help-like phrasing gets the catalog lines bare, anything else gets
// them quoted; both paths are informational only.
func (o *Orchestrator) handleGeneral(user domain.User, text string) domain.QueryResult {
	lower := strings.ToLower(text)
	examples := exampleQueries(user.Role)

	helpLike := false
	for _, word := range []string{"help", "what can", "how does", "example"} {
		if strings.Contains(lower, word) {
			helpLike = true
			break
		}
	}

	message := "I can help you with medical queries. Here are some examples of what you can ask:\n\n"
	var lines []string
	for _, e := range examples {
		if helpLike {
			lines = append(lines, "- "+e)
		} else {
			lines = append(lines, fmt.Sprintf("- '%s'", e))
		}
	}
	message += strings.Join(lines, "\n")

	return domain.QueryResult{
		Success:        true,
		Message:        message,
		AccessLevel:    user.Role,
		RedactedFields: o.policy.RedactedFields(user.Role),
	}
}

func (o *Orchestrator) processGenerative(ctx context.Context, user domain.User, snapshot []domain.PatientRecord, text string) (domain.QueryResult, error) {
	profile := o.policy.Profile(user.Role)
	sanitized := access.RedactAll(snapshot, profile)

	answer, err := o.ai.Process(ctx, user, text, sanitized)
	if err != nil {
		return domain.QueryResult{}, err
	}
	return domain.QueryResult{
		Success:        true,
		Message:        answer,
		AccessLevel:    user.Role,
		RedactedFields: o.policy.RedactedFields(user.Role),
	}, nil
}

// exampleQueries is the fixed per-role catalog.
func exampleQueries(role domain.Role) []string {
	switch role {
	case domain.RoleClinician:
		return []string{
			"Summarize Jane Smith's health history",
			"What is the medication history of patient ID P001?",
			"Find patients with Type 2 Diabetes",
			"Show me all patients taking Metformin",
		}
	case domain.RoleResearcher:
		return []string{
			"Find all patients aged 60+ with Type 2 Diabetes",
			"What's the average age of patients with Hypertension?",
			"Show demographics of patients taking Lisinopril",
			"How many patients have Asthma?",
		}
	case domain.RoleAnalyst:
		return []string{
			"What percentage of patients under 40 are on Metformin?",
			"What's the average age of patients with mild hypertension?",
			"Show patient age distribution",
			"How many patients are in each age group?",
		}
	case domain.RoleTrainee:
		return []string{
			"What can I do with this system?",
			"How does access control work?",
			"What are the different user roles?",
			"Access to patient data requires supervision",
		}
	}
	return []string{"General system information available"}
}

func extractMinAge(lower string) *int {
	m := agedRe.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	var age int
	if _, err := fmt.Sscanf(m[1], "%d", &age); err != nil {
		return nil
	}
	return &age
}

func extractConditions(lower string) []string {
	var out []string
	for _, c := range conditionVocabulary {
		if strings.Contains(lower, strings.ToLower(c)) {
			out = append(out, c)
		}
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

func intPtr(v int) *int { return &v }
