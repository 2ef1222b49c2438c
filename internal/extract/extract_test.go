package extract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-refinery/internal/profile"
)

type fakeCompleter struct {
	mu      sync.Mutex
	out     string
	err     error
	systems []string
	prompts []string
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

const profilePage = `<html><head><title>Dr. Jane Doe</title><script>var x = 1;</script></head>
<body><nav>Home | Doctors</nav>
<h1>Dr. Jane Doe</h1><p>Cardiology at <b>General</b> Hospital.</p>
<footer>Copyright</footer></body></html>`

func TestCleanText(t *testing.T) {
	t.Parallel()

	text, err := CleanText(profilePage, 0)
	require.NoError(t, err)
	require.Equal(t, "Dr. Jane Doe Dr. Jane Doe Cardiology at General Hospital.", text)

	text, err = CleanText(profilePage, 6)
	require.NoError(t, err)
	require.Equal(t, "Dr. Ja", text)

	text, err = CleanText("  ", 100)
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestTruncateCountsCharacters(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Dr. Mü", truncate("Dr. Müller", 6))
	require.Equal(t, "abc", truncate("abc", 10))
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	system, prompt := BuildPrompt(Request{Name: "Dr. Jane Doe"}, "page text")
	require.Equal(t, systemPrompt, system)
	require.Contains(t, prompt, "Extract doctor profile for: 'Dr. Jane Doe'.")
	for _, field := range profile.ProfileFields {
		require.Contains(t, prompt, "- "+field+" (")
	}
	require.True(t, strings.HasSuffix(prompt, "Source Text:\npage text"))

	system, prompt = BuildPrompt(Request{
		Name:   "Dr. Jane Doe",
		Mode:   ModeMissing,
		Fields: []string{profile.FieldNPI, profile.FieldLicense},
	}, "page text")
	require.Empty(t, system)
	require.Contains(t, prompt, "Return JSON with keys: npi_id, license_id.")
	require.Contains(t, prompt, "If not found, use 'N/A'.")
}

func TestParseFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want profile.Fields
	}{
		{
			name: "plain object",
			in:   `{"name": "Dr. Jane Doe", "npi_id": "N/A", "license_id": "A-123"}`,
			want: profile.Fields{"name": "Dr. Jane Doe", "license_id": "A-123"},
		},
		{
			name: "json fence",
			in:   "Here you go:\n```json\n{\"NPI_ID\": 1234567890}\n```\nThanks",
			want: profile.Fields{"npi_id": "1234567890"},
		},
		{
			name: "bare fence with list",
			in:   "```\n{\"languages\": [\"English\", \"N/A\", \"Spanish\"], \"email\": null}\n```",
			want: profile.Fields{"languages": []string{"English", "Spanish"}},
		},
		{
			name: "placeholder list dropped",
			in:   `{"languages": ["none"], "summary": {"nested": true}}`,
			want: profile.Fields{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseFields(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseFieldsMalformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "I could not find anything", "[1, 2]", "{not json}"} {
		_, err := ParseFields(in)
		require.ErrorIs(t, err, profile.ErrExtractionMalformed, in)
	}
}

func TestLLMExtractProfile(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{out: `{"name": "Dr. Jane Doe", "speciality": "Cardiology"}`}
	extractor := NewLLM(completer, Config{}, nil)

	fields, err := extractor.Extract(context.Background(), Request{Name: "Dr. Jane Doe", HTML: profilePage})
	require.NoError(t, err)
	require.Equal(t, profile.Fields{"name": "Dr. Jane Doe", "speciality": "Cardiology"}, fields)
	require.Equal(t, []string{systemPrompt}, completer.systems)
	require.NotContains(t, completer.prompts[0], "var x")
}

func TestLLMExtractMissingRestrictsKeys(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{out: `{"npi_id": "1234567890", "license_id": "N/A", "email": "x@example.org"}`}
	extractor := NewLLM(completer, Config{}, nil)

	fields, err := extractor.Extract(context.Background(), Request{
		Name:   "Dr. Jane Doe",
		HTML:   profilePage,
		Mode:   ModeMissing,
		Fields: []string{profile.FieldNPI, profile.FieldLicense},
	})
	require.NoError(t, err)
	require.Equal(t, profile.Fields{"npi_id": "1234567890"}, fields)
}

func TestLLMExtractSkipsEmptyInput(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{out: `{}`}
	extractor := NewLLM(completer, Config{}, nil)

	fields, err := extractor.Extract(context.Background(), Request{Name: "x", HTML: "<html><script>1</script></html>"})
	require.NoError(t, err)
	require.Empty(t, fields)

	fields, err = extractor.Extract(context.Background(), Request{Name: "x", HTML: profilePage, Mode: ModeMissing})
	require.NoError(t, err)
	require.Empty(t, fields)
	require.Empty(t, completer.prompts)
}

func TestLLMExtractMalformed(t *testing.T) {
	t.Parallel()

	extractor := NewLLM(&fakeCompleter{out: "sorry"}, Config{}, nil)
	_, err := extractor.Extract(context.Background(), Request{Name: "x", HTML: profilePage})
	require.ErrorIs(t, err, profile.ErrExtractionMalformed)
}

func TestLLMBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{err: errors.New("upstream down")}
	extractor := NewLLM(completer, Config{BreakerFailures: 2, BreakerTimeout: time.Minute}, nil)
	req := Request{Name: "x", HTML: profilePage}

	for range 2 {
		_, err := extractor.Extract(context.Background(), req)
		require.Error(t, err)
	}
	_, err := extractor.Extract(context.Background(), req)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Len(t, completer.prompts, 2)
}
