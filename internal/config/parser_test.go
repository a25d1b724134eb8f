package config

import (
	"testing"
)

func TestParseJSONString(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  bool
		wantLine int
		wantData bool
	}{
		{"object", `{"pipeline": {}}`, false, 0, true},
		{"empty", "   ", true, 0, false},
		{"null", "null", false, 0, false},
		{"array", `[1, 2]`, true, 0, false},
		{"syntax error on line 3", "{\n  \"a\": 1,\n  \"b\": }", true, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseJSONString(tt.content)
			if result.IsValid() == tt.wantErr {
				t.Fatalf("IsValid() = %v, errors = %v", result.IsValid(), result.Errors)
			}
			if tt.wantLine > 0 && result.Errors[0].Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", result.Errors[0].Line, tt.wantLine)
			}
			if (result.Data != nil) != tt.wantData {
				t.Errorf("Data = %v, wantData %v", result.Data, tt.wantData)
			}
		})
	}
}

func TestParseYAMLString(t *testing.T) {
	result := ParseYAMLString("pipeline:\n  numeric: [age, fare]\n  edges: [0, 18.5]\n")
	if !result.IsValid() {
		t.Fatalf("errors = %v", result.Errors)
	}
	p := result.Data["pipeline"].(map[string]interface{})
	edges := p["edges"].([]interface{})
	if _, ok := edges[0].(int); !ok {
		t.Errorf("edges[0] = %T, want int", edges[0])
	}

	bad := ParseYAMLString("pipeline:\n  name: [unclosed\n")
	if bad.IsValid() {
		t.Fatal("expected a syntax error")
	}
	if bad.Errors[0].Type != ErrorTypeSyntax {
		t.Errorf("Type = %q, want syntax", bad.Errors[0].Type)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]string{
		"pipeline.json": FormatJSON,
		"pipeline.YAML": FormatYAML,
		"pipeline.yml":  FormatYAML,
		"pipeline.conf": "",
		"pipeline":      "",
	}
	for path, want := range tests {
		if got := DetectFormat(path); got != want {
			t.Errorf("DetectFormat(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestParseConfig_DetectsContentFormat(t *testing.T) {
	path := writeConfig(t, "pipeline.conf", titanicYAML)
	result := ParseConfig(path)
	if !result.IsValid() {
		t.Fatalf("errors = %v", result.AllErrors())
	}
	if result.Format != FormatYAML {
		t.Errorf("Format = %q, want yaml", result.Format)
	}
}

func TestParseConfigString(t *testing.T) {
	if r := ParseConfigString(titanicYAML, ""); !r.IsValid() {
		t.Errorf("auto-detected yaml: errors = %v", r.AllErrors())
	}
	if r := ParseConfigString("{}", "toml"); r.IsValid() || r.ParseErrors[0].Type != ErrorTypeFormat {
		t.Errorf("unsupported format: result = %+v", r)
	}
}

func TestParseError_Error(t *testing.T) {
	e := ParseError{Path: "p.json", Line: 2, Column: 5, Message: "boom"}
	if got, want := e.Error(), "p.json: line 2, column 5: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
