package diagnosis

import "strings"

const (
	// Separator joins diagnosis texts (and, independently, codes) in the
	// embedded column encoding. Texts containing it do not round-trip.
	Separator = ","

	// Placeholder stands in for a missing text or code on decode.
	Placeholder = "-"
)

// Encode flattens a Set into two parallel blobs: all texts joined by
// Separator and all codes joined by Separator, in order.
func Encode(set Set) (text, codes string) {
	if len(set) == 0 {
		return "", ""
	}
	texts := make([]string, len(set))
	cs := make([]string, len(set))
	for i, p := range set {
		texts[i] = p.Text
		cs[i] = p.Code
	}
	return strings.Join(texts, Separator), strings.Join(cs, Separator)
}

// Decode is the display-side inverse of Encode. An empty text blob means no
// diagnosis was recorded and decodes to the single sentinel pair ("-", "-")
// whatever the code blob holds. An empty code blob yields Placeholder codes.
// Lists of unequal length are zipped to the shorter one.
func Decode(text, codes string) Set {
	if strings.TrimSpace(text) == "" {
		return Set{{Text: Placeholder, Code: Placeholder}}
	}
	return zip(strings.Split(text, Separator), splitOr(codes, Placeholder))
}

// Parse is the storage-side inverse of Encode: two empty blobs yield a nil
// Set and no placeholders are substituted. Unequal lists are truncated to
// the shorter, as with Decode.
func Parse(text, codes string) Set {
	if strings.TrimSpace(text) == "" && strings.TrimSpace(codes) == "" {
		return nil
	}
	return zip(strings.Split(text, Separator), strings.Split(codes, Separator))
}

// Append adds one (text, code) pair to the end of the encoded blobs. Both
// lists always grow by one slot so they stay aligned; an empty text with a
// code (or the reverse) is kept as a degenerate entry. When both newText
// and newCode are blank the blobs are returned unchanged.
func Append(text, codes, newText, newCode string) (string, string) {
	newText = strings.TrimSpace(newText)
	newCode = strings.TrimSpace(newCode)
	if newText == "" && newCode == "" {
		return text, codes
	}
	if text == "" && codes == "" {
		return newText, newCode
	}
	return text + Separator + newText, codes + Separator + newCode
}

func splitOr(blob, placeholder string) []string {
	if strings.TrimSpace(blob) == "" {
		return []string{placeholder}
	}
	return strings.Split(blob, Separator)
}

func zip(texts, codes []string) Set {
	n := len(texts)
	if len(codes) < n {
		n = len(codes)
	}
	set := make(Set, n)
	for i := 0; i < n; i++ {
		set[i] = Pair{
			Text: strings.TrimSpace(texts[i]),
			Code: strings.TrimSpace(codes[i]),
		}
	}
	return set
}
