package correction

import (
	"github.com/nvandessel/selfcorrect/internal/models"
	"github.com/nvandessel/selfcorrect/internal/sanitize"
)

// dispatchKey selects a correction kind for an (activity type, root cause) pair.
type dispatchKey struct {
	activity  models.ActivityType
	rootCause string
}

var dispatch = map[dispatchKey]models.CorrectionKind{
	{models.ActivityCommand, models.CauseChainingSyntax}:          models.KindSyntaxRewrite,
	{models.ActivityCommand, models.CausePathNotFound}:            models.KindAddValidationSnippet,
	{models.ActivityCommand, models.CausePermissionDenied}:        models.KindAddValidationSnippet,
	{models.ActivityCommand, models.CauseDestructiveCommand}:      models.KindAddValidationSnippet,
	{models.ActivityTemplate, models.CauseMissingDependency}:      models.KindFixImport,
	{models.ActivityTemplate, models.CauseTypeCompilation}:        models.KindAddTypeValidation,
	{models.ActivityMechanism, models.CauseFileNotFound}:          models.KindSyntaxRewrite,
	{models.ActivityMechanism, models.CauseInvalidStructuredData}: models.KindFixConfigValue,
}

// defaultSnippets are inserted by the validation kinds when the host gives
// no snippet of its own.
var defaultSnippets = map[string]string{
	models.CausePathNotFound:       "// selfcorrect: verify paths exist before use",
	models.CausePermissionDenied:   "// selfcorrect: check permissions before file operations",
	models.CauseDestructiveCommand: "// selfcorrect: confirm before destructive operations",
	models.CauseTypeCompilation:    "// selfcorrect: validate types before generation",
}

// KindFor returns the correction kind for an activity type and root cause.
func KindFor(t models.ActivityType, rootCause string) (models.CorrectionKind, bool) {
	k, ok := dispatch[dispatchKey{t, rootCause}]
	return k, ok
}

// Describe builds the descriptor for correcting a's issue. The host supplies
// file paths and values through the activity's correction payload; a kind
// given there overrides the dispatch table. ok is false when there is no
// kind or no file to correct.
func Describe(a models.Activity, d models.Diagnosis) (models.CorrectionDescriptor, bool) {
	if a.Data.Correction == nil {
		return models.CorrectionDescriptor{}, false
	}
	desc := *a.Data.Correction
	desc.FilesToModify = append([]string(nil), desc.FilesToModify...)

	if desc.Kind == "" {
		k, ok := KindFor(a.Type, d.RootCause)
		if !ok {
			return desc, false
		}
		desc.Kind = k
	}

	desc.FilePath = sanitize.FilePath(desc.FilePath)
	for i, p := range desc.FilesToModify {
		desc.FilesToModify[i] = sanitize.FilePath(p)
	}
	desc.FilesToModify = desc.Files()
	if len(desc.FilesToModify) == 0 {
		return desc, false
	}

	switch desc.Kind {
	case models.KindSyntaxRewrite:
		if desc.Find == "" && d.RootCause == models.CauseChainingSyntax {
			desc.Find, desc.Replace = "&&", ";"
		}
	case models.KindAddValidationSnippet, models.KindAddTypeValidation:
		if desc.Snippet == "" {
			desc.Snippet = defaultSnippets[d.RootCause]
		}
		if desc.Kind == models.KindAddTypeValidation && desc.InsertLocation == "" {
			desc.InsertLocation = models.InsertTop
		}
	}
	return desc, true
}
