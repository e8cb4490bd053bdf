package types

import "slices"

// Attribute is a typed key/value pair attached to a textile, such as fabric
// or insulation value.
type Attribute struct {
	Type    string
	Value   string
	Private bool
	Notes   []Handle
}

// ChildRef points from an ensemble to one of its textiles.
type ChildRef struct {
	Ref     Handle
	Private bool
}

// Region is a crop rectangle in percent of the media dimensions.
type Region struct {
	X1, Y1, X2, Y2 int
}

// MediaRef points at a media object, optionally cropped.
// Region is nil when the whole image is meant.
type MediaRef struct {
	Ref     Handle
	Private bool
	Region  *Region
}

// URL is a web link attached to a textile.
type URL struct {
	Path        string
	Type        string
	Description string
	Private     bool
}

// Range is a half-open character range [Start, End) within a StyledText.
type Range struct {
	Start int
	End   int
}

// StyledTextTag applies a style (bold, link, fontcolor...) to ranges of a text.
type StyledTextTag struct {
	Name   string
	Value  string
	Ranges []Range
}

// StyledText is a string with style tags.
type StyledText struct {
	String string
	Tags   []StyledTextTag
}

// Clone returns a deep copy of the styled text.
func (s StyledText) Clone() StyledText {
	cp := StyledText{String: s.String}
	if s.Tags != nil {
		cp.Tags = make([]StyledTextTag, len(s.Tags))
		for i, tag := range s.Tags {
			tag.Ranges = slices.Clone(tag.Ranges)
			cp.Tags[i] = tag
		}
	}
	return cp
}

func cloneAttributes(attrs []Attribute) []Attribute {
	if attrs == nil {
		return nil
	}
	out := make([]Attribute, len(attrs))
	for i, a := range attrs {
		a.Notes = slices.Clone(a.Notes)
		out[i] = a
	}
	return out
}

func cloneMediaRefs(refs []MediaRef) []MediaRef {
	if refs == nil {
		return nil
	}
	out := make([]MediaRef, len(refs))
	for i, r := range refs {
		if r.Region != nil {
			region := *r.Region
			r.Region = &region
		}
		out[i] = r
	}
	return out
}
