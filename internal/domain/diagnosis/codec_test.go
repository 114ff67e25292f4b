package diagnosis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	text, codes := Encode(Set{{"Caries", "K02"}, {"Gingivitis", "K05"}})
	assert.Equal(t, "Caries,Gingivitis", text)
	assert.Equal(t, "K02,K05", codes)
}

func TestEncode_Empty(t *testing.T) {
	text, codes := Encode(nil)
	assert.Empty(t, text)
	assert.Empty(t, codes)
}

func TestDecode_RoundTrip(t *testing.T) {
	cases := []Set{
		{{"Caries", "K02"}},
		{{"Caries", "K02"}, {"Gingivitis", "K05"}, {"Pulpitis", "K04.0"}},
		{{"Caries", ""}, {"Abscess", "K04.7"}},
		{{"Caries", "K02"}, {"", "K05"}},
	}
	for _, want := range cases {
		text, codes := Encode(want)
		assert.Equal(t, want, Decode(text, codes), "blobs %q / %q", text, codes)
		assert.Equal(t, want, Parse(text, codes), "blobs %q / %q", text, codes)
	}
}

func TestDecode_TrimsWhitespace(t *testing.T) {
	got := Decode(" Caries , Gingivitis ", "K02 ,  K05")
	assert.Equal(t, Set{{"Caries", "K02"}, {"Gingivitis", "K05"}}, got)
}

func TestDecode_EmptyYieldsSentinel(t *testing.T) {
	got := Decode("", "")
	require.Len(t, got, 1)
	assert.True(t, got[0].IsPlaceholder())
}

func TestDecode_EmptyCodesUsePlaceholder(t *testing.T) {
	got := Decode("Caries", "")
	assert.Equal(t, Set{{"Caries", Placeholder}}, got)
}

func TestDecode_EmptyTextIsSentinel(t *testing.T) {
	for _, codes := range []string{"K02", "K02,K05", "  "} {
		got := Decode(" ", codes)
		assert.Equal(t, Set{{Placeholder, Placeholder}}, got, "codes %q", codes)
	}
}

func TestDecode_UnequalLengthsTruncate(t *testing.T) {
	got := Decode("Caries,Gingivitis,Pulpitis", "K02,K05")
	assert.Equal(t, Set{{"Caries", "K02"}, {"Gingivitis", "K05"}}, got)

	got = Decode("Caries", "K02,K05,K04")
	assert.Equal(t, Set{{"Caries", "K02"}}, got)
}

func TestDecode_SeparatorCollision(t *testing.T) {
	// A comma inside a diagnosis text shifts every later entry.
	text, codes := Encode(Set{{"Caries, deep", "K02"}, {"Gingivitis", "K05"}})
	got := Decode(text, codes)
	assert.Equal(t, Set{{"Caries", "K02"}, {"deep", "K05"}}, got)
}

func TestParse_EmptyIsNil(t *testing.T) {
	assert.Nil(t, Parse("", ""))
	assert.Nil(t, Parse("  ", ""))
}

func TestAppend(t *testing.T) {
	text, codes := Append("", "", "Caries", "K02")
	assert.Equal(t, "Caries", text)
	assert.Equal(t, "K02", codes)

	text, codes = Append(text, codes, "Gingivitis", "K05")
	assert.Equal(t, "Caries,Gingivitis", text)
	assert.Equal(t, "K02,K05", codes)

	assert.Equal(t, Set{{"Caries", "K02"}, {"Gingivitis", "K05"}}, Decode(text, codes))
}

func TestAppend_BlankIsNoop(t *testing.T) {
	text, codes := Append("Caries", "K02", "", "")
	assert.Equal(t, "Caries", text)
	assert.Equal(t, "K02", codes)

	text, codes = Append("Caries", "K02", "   ", " ")
	assert.Equal(t, "Caries", text)
	assert.Equal(t, "K02", codes)
}

func TestAppend_EmptyCodeKeepsListsAligned(t *testing.T) {
	text, codes := Append("Caries", "K02", "Sensitivity", "")
	text, codes = Append(text, codes, "Gingivitis", "K05")

	assert.Equal(t, "Caries,Sensitivity,Gingivitis", text)
	assert.Equal(t, "K02,,K05", codes)
	assert.Equal(t, Set{{"Caries", "K02"}, {"Sensitivity", ""}, {"Gingivitis", "K05"}}, Parse(text, codes))
}

func TestAppend_FirstEntryWithoutText(t *testing.T) {
	text, codes := Append("", "", "", "K02")
	text, codes = Append(text, codes, "Gingivitis", "K05")

	assert.Equal(t, ",Gingivitis", text)
	assert.Equal(t, "K02,K05", codes)
	assert.Equal(t, Set{{"", "K02"}, {"Gingivitis", "K05"}}, Parse(text, codes))
}
