package correction

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/selfcorrect/internal/models"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readTemp(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSyntaxRewrite(t *testing.T) {
	tests := []struct {
		name    string
		content string
		desc    models.CorrectionDescriptor
		want    string
		wantErr error
	}{
		{
			name:    "whole file",
			content: "build && test\nlint && fmt\n",
			desc:    models.CorrectionDescriptor{Find: "&&", Replace: ";"},
			want:    "build ; test\nlint ; fmt\n",
		},
		{
			name:    "single line",
			content: "build && test\nlint && fmt\n",
			desc:    models.CorrectionDescriptor{Find: "&&", Replace: ";", Line: 2},
			want:    "build && test\nlint ; fmt\n",
		},
		{
			name:    "find absent",
			content: "build; test\n",
			desc:    models.CorrectionDescriptor{Find: "&&", Replace: ";"},
			wantErr: ErrNotFound,
		},
		{
			name:    "line beyond end",
			content: "one\n",
			desc:    models.CorrectionDescriptor{Find: "one", Replace: "two", Line: 9},
			wantErr: ErrNotFound,
		},
		{
			name:    "missing find",
			content: "x",
			desc:    models.CorrectionDescriptor{Replace: ";"},
			wantErr: ErrInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "script.sh", tt.content)
			tt.desc.Kind = models.KindSyntaxRewrite
			tt.desc.FilePath = path

			res, err := SyntaxRewrite{}.Apply(context.Background(), tt.desc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
				}
				if got := readTemp(t, path); got != tt.content {
					t.Errorf("file changed on failure: %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if !res.Changed {
				t.Error("Changed = false, want true")
			}
			if got := readTemp(t, path); got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSyntaxRewrite_MissingFile(t *testing.T) {
	desc := models.CorrectionDescriptor{
		Kind:     models.KindSyntaxRewrite,
		FilePath: filepath.Join(t.TempDir(), "nope.sh"),
		Find:     "&&",
		Replace:  ";",
	}
	_, err := SyntaxRewrite{}.Apply(context.Background(), desc)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Apply() error = %v, want ErrNotFound", err)
	}
}

func TestValidationSnippet(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		function string
		want     string
		wantErr  error
	}{
		{
			name:     "js function",
			content:  "function deploy(target) {\n  run(target);\n}\n",
			function: "deploy",
			want:     "function deploy(target) {\n  check();\n  run(target);\n}\n",
		},
		{
			name:     "arrow const",
			content:  "const deploy = (target) => {\n  run(target);\n};\n",
			function: "deploy",
			want:     "const deploy = (target) => {\n  check();\n  run(target);\n};\n",
		},
		{
			name:     "go method",
			content:  "func (s *Svc) deploy(target string) {\n\trun(target)\n}\n",
			function: "deploy",
			want:     "func (s *Svc) deploy(target string) {\n  check();\n\trun(target)\n}\n",
		},
		{
			name:     "comparison is not a declaration",
			content:  "if (deploy == null) { init() }\nfunction deploy(target) {\n  run(target);\n}\n",
			function: "deploy",
			want:     "if (deploy == null) { init() }\nfunction deploy(target) {\n  check();\n  run(target);\n}\n",
		},
		{
			name:     "assignment followed by brace",
			content:  "let deploy ={\n  run: true };\n",
			function: "deploy",
			want:     "let deploy ={\n  check();\n  run: true };\n",
		},
		{
			name:     "function absent",
			content:  "function build() {}\n",
			function: "deploy",
			wantErr:  ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "deploy.js", tt.content)
			desc := models.CorrectionDescriptor{
				Kind:         models.KindAddValidationSnippet,
				FilePath:     path,
				FunctionName: tt.function,
				Snippet:      "check();",
			}
			_, err := ValidationSnippet{}.Apply(context.Background(), desc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got := readTemp(t, path); got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationSnippet_Idempotent(t *testing.T) {
	path := writeTemp(t, "deploy.js", "function deploy() {\n  run();\n}\n")
	desc := models.CorrectionDescriptor{FilePath: path, FunctionName: "deploy", Snippet: "check();"}

	if _, err := (ValidationSnippet{}).Apply(context.Background(), desc); err != nil {
		t.Fatal(err)
	}
	once := readTemp(t, path)
	res, err := ValidationSnippet{}.Apply(context.Background(), desc)
	if err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if res.Changed {
		t.Error("second Apply() reported a change")
	}
	if got := readTemp(t, path); got != once {
		t.Errorf("content = %q, want %q", got, once)
	}
}

func TestFixImport(t *testing.T) {
	content := "import x from './utils';\nimport y from './utils';\n"
	path := writeTemp(t, "index.ts", content)
	desc := models.CorrectionDescriptor{FilePath: path, Find: "'./utils'", Replace: "'./lib/utils'"}

	if _, err := (FixImport{}).Apply(context.Background(), desc); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := "import x from './lib/utils';\nimport y from './utils';\n"
	if got := readTemp(t, path); got != want {
		t.Errorf("content = %q, want %q", got, want)
	}

	desc.Find = "'./missing'"
	if _, err := (FixImport{}).Apply(context.Background(), desc); !errors.Is(err, ErrNotFound) {
		t.Errorf("Apply() error = %v, want ErrNotFound", err)
	}
}

func TestTypeValidation(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		location string
		want     string
		wantErr  error
	}{
		{"top", "export const a = 1;\n", models.InsertTop, "// typed\nexport const a = 1;\n", nil},
		{"default is top", "const a = 1;\n", "", "// typed\nconst a = 1;\n", nil},
		{"before export", "const a = 1;\nexport { a };\n", models.InsertBeforeExport, "const a = 1;\n// typed\nexport { a };\n", nil},
		{"no export", "const a = 1;\n", models.InsertBeforeExport, "", ErrNotFound},
		{"export in comment", "// exported helpers\nconst a = 1;\nexport { a };\n", models.InsertBeforeExport, "// exported helpers\nconst a = 1;\n// typed\nexport { a };\n", nil},
		{"export in identifier", "const exporter = 1;\n", models.InsertBeforeExport, "", ErrNotFound},
		{"already present", "// typed\nconst a = 1;\n", models.InsertTop, "// typed\nconst a = 1;\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "types.ts", tt.content)
			desc := models.CorrectionDescriptor{FilePath: path, Snippet: "// typed", InsertLocation: tt.location}
			_, err := TypeValidation{}.Apply(context.Background(), desc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got := readTemp(t, path); got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigValue_JSON(t *testing.T) {
	path := writeTemp(t, "app.json", `{"server":{"port":8080},"name":"app"}`)
	desc := models.CorrectionDescriptor{FilePath: path, ConfigKey: "server.timeout.read", Value: "30s"}

	if _, err := (ConfigValue{}).Apply(context.Background(), desc); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(readTemp(t, path)), &doc); err != nil {
		t.Fatal(err)
	}
	server := doc["server"].(map[string]any)
	if server["port"] != 8080.0 {
		t.Errorf("port = %v, want 8080 preserved", server["port"])
	}
	if got := server["timeout"].(map[string]any)["read"]; got != "30s" {
		t.Errorf("server.timeout.read = %v, want 30s", got)
	}
	if doc["name"] != "app" {
		t.Errorf("name = %v, want app", doc["name"])
	}
}

func TestConfigValue_YAML(t *testing.T) {
	path := writeTemp(t, "app.yaml", "server:\n  port: 8080\n")
	desc := models.CorrectionDescriptor{FilePath: path, ConfigKey: "server.port", Value: 9090}

	if _, err := (ConfigValue{}).Apply(context.Background(), desc); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(readTemp(t, path)), &doc); err != nil {
		t.Fatal(err)
	}
	if got := doc["server"].(map[string]any)["port"]; got != 9090 {
		t.Errorf("server.port = %v, want 9090", got)
	}
}

func TestConfigValue_TOML(t *testing.T) {
	path := writeTemp(t, "app.toml", "[server]\nport = 8080\n")
	desc := models.CorrectionDescriptor{FilePath: path, ConfigKey: "server.host", Value: "localhost"}

	if _, err := (ConfigValue{}).Apply(context.Background(), desc); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	doc := make(map[string]any)
	if _, err := toml.Decode(readTemp(t, path), &doc); err != nil {
		t.Fatal(err)
	}
	server := doc["server"].(map[string]any)
	if server["host"] != "localhost" {
		t.Errorf("server.host = %v, want localhost", server["host"])
	}
	if server["port"] != int64(8080) {
		t.Errorf("server.port = %v, want 8080 preserved", server["port"])
	}
}

func TestConfigValue_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		key     string
		wantErr error
	}{
		{"scalar intermediate", "app.json", `{"server":"local"}`, "server.port", ErrInvalid},
		{"unsupported format", "app.ini", "port=1", "port", ErrInvalid},
		{"empty key segment", "app.json", `{}`, "server..port", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.file, tt.content)
			desc := models.CorrectionDescriptor{FilePath: path, ConfigKey: tt.key, Value: 1}
			_, err := ConfigValue{}.Apply(context.Background(), desc)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if got := readTemp(t, path); got != tt.content {
				t.Errorf("file changed on failure: %q", got)
			}
		})
	}

	missing := models.CorrectionDescriptor{FilePath: filepath.Join(t.TempDir(), "gone.json"), ConfigKey: "a", Value: 1}
	if _, err := (ConfigValue{}).Apply(context.Background(), missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Apply() on missing file error = %v, want ErrNotFound", err)
	}
}

func TestDefaultRegistry_Kinds(t *testing.T) {
	got := DefaultRegistry().Kinds()
	want := []models.CorrectionKind{
		models.KindAddTypeValidation,
		models.KindAddValidationSnippet,
		models.KindFixConfigValue,
		models.KindFixImport,
		models.KindSyntaxRewrite,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Kinds() mismatch (-want +got):\n%s", diff)
	}
}
