package correction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/nvandessel/selfcorrect/internal/models"
)

// readFile reads path, mapping a missing file to ErrNotFound.
func readFile(path string) (string, os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("%w: file %s", ErrNotFound, path)
		}
		return "", 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), info.Mode().Perm(), nil
}

func writeFile(path, content string, mode os.FileMode) error {
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func requireFiles(desc models.CorrectionDescriptor) error {
	if len(desc.Files()) == 0 {
		return fmt.Errorf("%w: %s needs at least one file", ErrInvalid, desc.Kind)
	}
	return nil
}

// SyntaxRewrite replaces Find with Replace in every file, or only on Line
// (1-based) when Line is set.
type SyntaxRewrite struct{}

// Kind implements Corrector.
func (SyntaxRewrite) Kind() models.CorrectionKind { return models.KindSyntaxRewrite }

// Validate implements Corrector.
func (SyntaxRewrite) Validate(desc models.CorrectionDescriptor) error {
	if err := requireFiles(desc); err != nil {
		return err
	}
	if desc.Find == "" {
		return fmt.Errorf("%w: syntax-rewrite needs find text", ErrInvalid)
	}
	if desc.Line < 0 {
		return fmt.Errorf("%w: line must be positive", ErrInvalid)
	}
	return nil
}

// Apply implements Corrector.
func (s SyntaxRewrite) Apply(ctx context.Context, desc models.CorrectionDescriptor) (Result, error) {
	res := Result{Kind: s.Kind()}
	if err := s.Validate(desc); err != nil {
		return res, err
	}
	for _, path := range desc.Files() {
		content, mode, err := readFile(path)
		if err != nil {
			return res, err
		}
		var updated string
		if desc.Line > 0 {
			lines := strings.Split(content, "\n")
			if desc.Line > len(lines) {
				return res, fmt.Errorf("%w: line %d is beyond the end of %s", ErrNotFound, desc.Line, path)
			}
			if !strings.Contains(lines[desc.Line-1], desc.Find) {
				return res, fmt.Errorf("%w: %q on line %d of %s", ErrNotFound, desc.Find, desc.Line, path)
			}
			lines[desc.Line-1] = strings.ReplaceAll(lines[desc.Line-1], desc.Find, desc.Replace)
			updated = strings.Join(lines, "\n")
		} else {
			if !strings.Contains(content, desc.Find) {
				return res, fmt.Errorf("%w: %q in %s", ErrNotFound, desc.Find, path)
			}
			updated = strings.ReplaceAll(content, desc.Find, desc.Replace)
		}
		if err := writeFile(path, updated, mode); err != nil {
			return res, err
		}
		res.Files = append(res.Files, path)
		res.Changed = true
	}
	return res, nil
}

// ValidationSnippet inserts Snippet at the top of the body of FunctionName.
// A file that already contains the snippet is left unchanged.
type ValidationSnippet struct{}

// Kind implements Corrector.
func (ValidationSnippet) Kind() models.CorrectionKind { return models.KindAddValidationSnippet }

// Validate implements Corrector.
func (ValidationSnippet) Validate(desc models.CorrectionDescriptor) error {
	if err := requireFiles(desc); err != nil {
		return err
	}
	if desc.FunctionName == "" || desc.Snippet == "" {
		return fmt.Errorf("%w: add-validation-snippet needs functionName and snippet", ErrInvalid)
	}
	return nil
}

// exportLine matches a line that starts with an export statement.
var exportLine = regexp.MustCompile(`(?m)^[ \t]*export\b`)

// functionPattern matches common declaration forms of name.
func functionPattern(name string) *regexp.Regexp {
	q := regexp.QuoteMeta(name)
	return regexp.MustCompile(`(?:function\s+` + q + `\b|const\s+` + q + `\b|\b` + q + `\s*=(?:[^=]|$)|func\s+(?:\([^)]*\)\s*)?` + q + `\b|def\s+` + q + `\b)`)
}

// Apply implements Corrector.
func (v ValidationSnippet) Apply(ctx context.Context, desc models.CorrectionDescriptor) (Result, error) {
	res := Result{Kind: v.Kind()}
	if err := v.Validate(desc); err != nil {
		return res, err
	}
	path := desc.Files()[0]
	content, mode, err := readFile(path)
	if err != nil {
		return res, err
	}
	if strings.Contains(content, desc.Snippet) {
		return res, nil
	}

	loc := functionPattern(desc.FunctionName).FindStringIndex(content)
	if loc == nil {
		return res, fmt.Errorf("%w: function %s in %s", ErrNotFound, desc.FunctionName, path)
	}
	// The assignment form consumes one rune past "=", which may be the brace.
	brace := strings.Index(content[loc[0]:], "{")
	if brace < 0 {
		return res, fmt.Errorf("%w: body of %s in %s", ErrNotFound, desc.FunctionName, path)
	}
	at := loc[0] + brace + 1
	updated := content[:at] + "\n  " + desc.Snippet + content[at:]
	if err := writeFile(path, updated, mode); err != nil {
		return res, err
	}
	res.Files = []string{path}
	res.Changed = true
	return res, nil
}

// FixImport replaces the first occurrence of an incorrect import (Find)
// with the correct one (Replace).
type FixImport struct{}

// Kind implements Corrector.
func (FixImport) Kind() models.CorrectionKind { return models.KindFixImport }

// Validate implements Corrector.
func (FixImport) Validate(desc models.CorrectionDescriptor) error {
	if err := requireFiles(desc); err != nil {
		return err
	}
	if desc.Find == "" || desc.Replace == "" {
		return fmt.Errorf("%w: fix-import needs find and replace", ErrInvalid)
	}
	return nil
}

// Apply implements Corrector.
func (f FixImport) Apply(ctx context.Context, desc models.CorrectionDescriptor) (Result, error) {
	res := Result{Kind: f.Kind()}
	if err := f.Validate(desc); err != nil {
		return res, err
	}
	path := desc.Files()[0]
	content, mode, err := readFile(path)
	if err != nil {
		return res, err
	}
	if !strings.Contains(content, desc.Find) {
		return res, fmt.Errorf("%w: import %q in %s", ErrNotFound, desc.Find, path)
	}
	updated := strings.Replace(content, desc.Find, desc.Replace, 1)
	if err := writeFile(path, updated, mode); err != nil {
		return res, err
	}
	res.Files = []string{path}
	res.Changed = true
	return res, nil
}

// TypeValidation inserts Snippet at the top of the file or before its
// first export. A file that already contains the snippet is left unchanged.
type TypeValidation struct{}

// Kind implements Corrector.
func (TypeValidation) Kind() models.CorrectionKind { return models.KindAddTypeValidation }

// Validate implements Corrector.
func (TypeValidation) Validate(desc models.CorrectionDescriptor) error {
	if err := requireFiles(desc); err != nil {
		return err
	}
	if desc.Snippet == "" {
		return fmt.Errorf("%w: add-type-validation needs a snippet", ErrInvalid)
	}
	switch desc.InsertLocation {
	case "", models.InsertTop, models.InsertBeforeExport:
		return nil
	default:
		return fmt.Errorf("%w: unknown insert location %q", ErrInvalid, desc.InsertLocation)
	}
}

// Apply implements Corrector.
func (tv TypeValidation) Apply(ctx context.Context, desc models.CorrectionDescriptor) (Result, error) {
	res := Result{Kind: tv.Kind()}
	if err := tv.Validate(desc); err != nil {
		return res, err
	}
	path := desc.Files()[0]
	content, mode, err := readFile(path)
	if err != nil {
		return res, err
	}
	if strings.Contains(content, desc.Snippet) {
		return res, nil
	}

	var updated string
	if desc.InsertLocation == models.InsertBeforeExport {
		loc := exportLine.FindStringIndex(content)
		if loc == nil {
			return res, fmt.Errorf("%w: export statement in %s", ErrNotFound, path)
		}
		updated = content[:loc[0]] + desc.Snippet + "\n" + content[loc[0]:]
	} else {
		updated = desc.Snippet + "\n" + content
	}
	if err := writeFile(path, updated, mode); err != nil {
		return res, err
	}
	res.Files = []string{path}
	res.Changed = true
	return res, nil
}
