package query

import (
	"regexp"

	"medquery/internal/domain"
)

// patternGroup 一组同类别的匹配模式
type patternGroup struct {
	category domain.QueryCategory
	patterns []*regexp.Regexp
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		// (?i): matching is case-insensitive throughout
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

// classifierTable is the dispatch order, highest priority first.
// A single input may match several groups (a patient name plus
// "average age"); ties are broken purely by this order, so keep it as
// one named value rather than implicit code order.
var classifierTable = []patternGroup{
	{
		category: domain.CategoryHelp,
		patterns: compileAll(
			`example.*id`,
			`id.*format`,
			`valid.*id`,
			`how.*reference.*patient`,
			`how.*use.*id`,
			`what.*is.*patient.*id`,
			`how.*find.*patient.*id`,
		),
	},
	{
		category: domain.CategoryIndividualPatient,
		patterns: compileAll(
			`summarize.*patient`,
			`patient.*history`,
			`medication.*history.*patient`,
			`patient.*id.*\d+`,
			`(jane|john|david|maria|smith|chen|lopez).*health`,
			`patient.*named`,
		),
	},
	{
		category: domain.CategoryAggregateStats,
		patterns: compileAll(
			`how many.*patients`,
			`percentage.*patients`,
			`average.*age`,
			`patients.*with.*diabetes`,
			`find.*patients.*aged`,
			`statistics.*about`,
			`all patients.*taking`,
		),
	},
}

// Classify maps raw query text to one semantic category. Groups are
// evaluated in table order and the first matching group wins; no
// scoring. Text matching nothing is CategoryGeneral.
func Classify(text string) domain.QueryCategory {
	for _, group := range classifierTable {
		for _, re := range group.patterns {
			if re.MatchString(text) {
				return group.category
			}
		}
	}
	return domain.CategoryGeneral
}
