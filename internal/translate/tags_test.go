package translate

import (
	"reflect"
	"strings"
	"testing"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
)

func TestFormat(t *testing.T) {
	tagged, mapping := Format([]Item{
		{Name: "speaker", Text: "  Aoi "},
		{Name: "blank", Text: "   "},
		{Name: "line", Text: "konnichiwa"},
	})
	if want := "<|1|> Aoi\n<|2|> konnichiwa"; tagged != want {
		t.Errorf("tagged = %q, want %q", tagged, want)
	}
	if want := map[int]string{1: "speaker", 2: "line"}; !reflect.DeepEqual(mapping, want) {
		t.Errorf("mapping = %v, want %v", mapping, want)
	}
	if got := Names(mapping); !reflect.DeepEqual(got, []string{"speaker", "line"}) {
		t.Errorf("Names = %v", got)
	}
}

func TestFormatEmpty(t *testing.T) {
	tagged, mapping := Format([]Item{{Name: "a", Text: ""}})
	if tagged != "" || len(mapping) != 0 {
		t.Errorf("Format = %q, %v", tagged, mapping)
	}
	out, err := ParseOutput("anything", mapping)
	if err != nil || len(out) != 0 {
		t.Errorf("ParseOutput with empty mapping = %v, %v", out, err)
	}
}

func TestTagRoundTrip(t *testing.T) {
	batches := [][]Item{
		{{Name: "a", Text: "konnichiwa"}},
		{{Name: "a", Text: "one"}, {Name: "b", Text: "two words"}, {Name: "c", Text: "3 > 2 < 4"}},
		{{Name: "x", Text: "multi\nline text"}, {Name: "y", Text: "| pipes |"}},
		{{Name: "a", Text: "I love you <3"}, {Name: "b", Text: "x < y <"}, {Name: "c", Text: "level <12"}},
	}
	for _, batch := range batches {
		tagged, mapping := Format(batch)
		got, err := ParseOutput(tagged, mapping)
		if err != nil {
			t.Fatalf("ParseOutput(%q): %v", tagged, err)
		}
		want := make(map[string]string)
		for _, it := range batch {
			want[it.Name] = it.Text
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip = %v, want %v", got, want)
		}
	}
}

func TestParseOutput(t *testing.T) {
	three := map[int]string{1: "a", 2: "b", 3: "c"}
	one := map[int]string{1: "a"}

	tests := []struct {
		name    string
		raw     string
		mapping map[int]string
		want    map[string]string
		wantErr bool
	}{
		{
			name:    "inline tags",
			raw:     "<|1|> Hello <|2|> World <|3|> Bye",
			mapping: three,
			want:    map[string]string{"a": "Hello", "b": "World", "c": "Bye"},
		},
		{
			name:    "missing segment filled",
			raw:     "<|1|> Hello\n<|2|> World",
			mapping: three,
			want:    map[string]string{"a": "Hello", "b": "World", "c": MissingPlaceholder},
		},
		{
			name:    "trailing partial tag stripped",
			raw:     "<|1|> Hello\n<|2|> World <|",
			mapping: map[int]string{1: "a", 2: "b"},
			want:    map[string]string{"a": "Hello", "b": "World"},
		},
		{
			name:    "trailing partial tag with number stripped",
			raw:     "<|1|> Hello\n<|2|> World <|3",
			mapping: map[int]string{1: "a", 2: "b"},
			want:    map[string]string{"a": "Hello", "b": "World"},
		},
		{
			name:    "angle bracket at end kept",
			raw:     "<|1|> I love you <3\n<|2|> x < y <",
			mapping: map[int]string{1: "a", 2: "b"},
			want:    map[string]string{"a": "I love you <3", "b": "x < y <"},
		},
		{
			name:    "spaced tags fall back to lines",
			raw:     "<| 1 |> Hello\n  <|2 |>World",
			mapping: map[int]string{1: "a", 2: "b"},
			want:    map[string]string{"a": "Hello", "b": "World"},
		},
		{
			name:    "untagged single segment",
			raw:     "  Hello there  ",
			mapping: one,
			want:    map[string]string{"a": "Hello there"},
		},
		{
			name:    "untagged multi segment",
			raw:     "Hello there",
			mapping: three,
			wantErr: true,
		},
		{
			name:    "tag-shaped garbage",
			raw:     "<|broken",
			mapping: one,
			wantErr: true,
		},
		{
			name:    "only unknown tags",
			raw:     "<|7|> stray",
			mapping: three,
			wantErr: true,
		},
		{
			name:    "first duplicate wins",
			raw:     "<|1|> first <|1|> second",
			mapping: one,
			want:    map[string]string{"a": "first"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOutput(tt.raw, tt.mapping)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				if !apperrors.IsCode(err, apperrors.CodeLLMInvalidResponse) {
					t.Errorf("code = %v", apperrors.CodeOf(err))
				}
				if !strings.Contains(err.Error(), tt.raw) {
					t.Errorf("error should carry the raw reply: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOutput: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
