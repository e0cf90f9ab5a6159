package analysis

import (
	"regexp"
	"strings"

	"github.com/nvandessel/selfcorrect/internal/models"
)

// commandRule classifies one kind of failed command. Rules are evaluated in
// table order and the first match wins.
type commandRule struct {
	match   func(command, errText string) bool
	finding models.Finding
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var commandRules = []commandRule{
	{
		match: func(_, errText string) bool {
			return strings.Contains(errText, "&&") && strings.Contains(errText, "is not a valid statement separator")
		},
		finding: models.Finding{
			Description: "Shell chaining syntax error detected",
			Severity:    models.SeverityMedium,
			RootCause:   models.CauseChainingSyntax,
			SuggestedFixes: []string{
				"Use the shell's native separator (;) for command chaining",
				"Run complex commands as separate invocations",
				"Validate shell syntax before execution",
			},
			Confidence: 0.95,
		},
	},
	{
		match: func(_, errText string) bool {
			return containsAny(errText, "Cannot find path", "does not exist")
		},
		finding: models.Finding{
			Description: "File or directory path error",
			Severity:    models.SeverityMedium,
			RootCause:   models.CausePathNotFound,
			SuggestedFixes: []string{
				"Verify path construction logic",
				"Add path existence checks before operations",
				"Resolve paths to absolute form before use",
			},
			Confidence: 0.85,
		},
	},
	{
		match: func(_, errText string) bool {
			return containsAny(errText, "Access denied", "Permission denied")
		},
		finding: models.Finding{
			Description: "File system permission error",
			Severity:    models.SeverityMedium,
			RootCause:   models.CausePermissionDenied,
			SuggestedFixes: []string{
				"Check file permissions before operations",
				"Use appropriate user permissions",
				"Add permission validation checks",
			},
			Confidence: 0.90,
		},
	},
	{
		match: func(command, _ string) bool {
			return strings.Contains(command, "rm -rf") && !strings.Contains(command, "safety_check")
		},
		finding: models.Finding{
			Description: "Potentially dangerous rm -rf command",
			Severity:    models.SeverityMedium,
			RootCause:   models.CauseDestructiveCommand,
			SuggestedFixes: []string{
				"Add confirmation prompts for destructive operations",
				"Back up files before deletion",
				"Add safety validation checks",
			},
			Confidence: 0.95,
		},
	},
}

var genericCommandFailure = models.Finding{
	Description:    "Command failed",
	Severity:       models.SeverityMedium,
	RootCause:      models.CauseCommandFailure,
	SuggestedFixes: []string{"Inspect the command output and exit code"},
	Confidence:     0.5,
}

// errorRule classifies the joined error messages of a template or mechanism.
type errorRule struct {
	match   func(errText string) bool
	finding models.Finding
}

var reTSCode = regexp.MustCompile(`\bTS\d+`)

var templateErrorRules = []errorRule{
	{
		match: func(s string) bool { return containsAny(s, "Cannot find module", "Module not found") },
		finding: models.Finding{
			Description: "Template dependency error",
			Severity:    models.SeverityHigh,
			RootCause:   models.CauseMissingDependency,
			SuggestedFixes: []string{
				"Verify all imports exist and are correct",
				"Add dependency validation to template instantiation",
				"Update template import paths",
			},
			Confidence: 0.90,
		},
	},
	{
		match: func(s string) bool { return strings.Contains(s, "TypeScript error") || reTSCode.MatchString(s) },
		finding: models.Finding{
			Description: "Type compilation error in template",
			Severity:    models.SeverityHigh,
			RootCause:   models.CauseTypeCompilation,
			SuggestedFixes: []string{
				"Fix types in the template",
				"Add type validation before template generation",
				"Update template type definitions",
			},
			Confidence: 0.85,
		},
	},
}

var genericTemplateFailure = models.Finding{
	Description:    "Template instantiation failed",
	Severity:       models.SeverityHigh,
	RootCause:      models.CauseTemplateFailure,
	SuggestedFixes: []string{"Inspect the template errors"},
	Confidence:     0.5,
}

var slowTemplate = models.Finding{
	Description: "Template instantiation performance issue",
	Severity:    models.SeverityMedium,
	RootCause:   models.CauseSlowTemplate,
	SuggestedFixes: []string{
		"Optimize template generation logic",
		"Cache frequently used template parts",
		"Add performance monitoring to templates",
	},
	Confidence: 0.8,
}

var mechanismErrorRules = []errorRule{
	{
		match: func(s string) bool { return containsAny(s, "ENOENT", "file not found") },
		finding: models.Finding{
			Description: "Mechanism file access error",
			Severity:    models.SeverityHigh,
			RootCause:   models.CauseFileNotFound,
			SuggestedFixes: []string{
				"Verify mechanism files exist",
				"Check file permissions",
				"Update mechanism file paths",
			},
			Confidence: 0.90,
		},
	},
	{
		match: func(s string) bool { return containsAny(s, "JSON.parse", "Unexpected token", "invalid character") },
		finding: models.Finding{
			Description: "Mechanism configuration error",
			Severity:    models.SeverityHigh,
			RootCause:   models.CauseInvalidStructuredData,
			SuggestedFixes: []string{
				"Validate syntax in config files",
				"Validate configs before loading them",
				"Use schema validation for configs",
			},
			Confidence: 0.95,
		},
	},
}

var genericMechanismFailure = models.Finding{
	Description:    "Mechanism execution failed",
	Severity:       models.SeverityHigh,
	RootCause:      models.CauseMechanismFailure,
	SuggestedFixes: []string{"Inspect the mechanism errors"},
	Confidence:     0.5,
}

var slowMechanism = models.Finding{
	Description: "Mechanism performance issue",
	Severity:    models.SeverityMedium,
	RootCause:   models.CauseSlowMechanism,
	SuggestedFixes: []string{
		"Optimize mechanism algorithms",
		"Add caching to expensive operations",
		"Report progress for long operations",
	},
	Confidence: 0.8,
}

var emptyMechanismOutput = models.Finding{
	Description: "Mechanism produced no output",
	Severity:    models.SeverityLow,
	RootCause:   models.CauseEmptyOutput,
	SuggestedFixes: []string{
		"Add output validation to mechanisms",
		"Improve error handling and logging",
		"Add fallback behaviors for empty results",
	},
	Confidence: 0.7,
}

// negativeFeedback lists feedback types that report a problem.
var negativeFeedback = map[string]bool{
	"negative":   true,
	"bug":        true,
	"correction": true,
	"complaint":  true,
}

func matchErrorRules(rules []errorRule, errText string, fallback models.Finding) models.Finding {
	for _, r := range rules {
		if r.match(errText) {
			return r.finding
		}
	}
	return fallback
}
