/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package log

import (
	"regexp"
	"strings"
)

// Mask replaces every match of RegExp with Mask.
type Mask struct {
	RegExp *regexp.Regexp
	Mask   string
}

// NewMask compiles a mask. It panics on an invalid expression.
func NewMask(cfg MaskConfig) Mask {
	return Mask{regexp.MustCompile(cfg.RegExp), cfg.Mask}
}

// FieldMasker masks a single secret field in every configured format.
type FieldMasker struct {
	Field string // lowercase, used as a cheap pre-check before running the expressions
	Masks []Mask
}

// NewFieldMasker builds a FieldMasker from a rule.
func NewFieldMasker(cfg MaskingRuleConfig) FieldMasker {
	fm := FieldMasker{Field: strings.ToLower(cfg.Field), Masks: make([]Mask, 0, len(cfg.Masks)+len(cfg.Formats))}
	for _, m := range cfg.Masks {
		fm.Masks = append(fm.Masks, NewMask(m))
	}
	for _, format := range cfg.Formats {
		switch format {
		case FieldMaskFormatHTTPHeader:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)` + cfg.Field + `: .+?\r\n`, cfg.Field + ": ***\r\n"}))
		case FieldMaskFormatJSON:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)"` + cfg.Field + `"\s*:\s*".*?[^\\]"`, `"` + cfg.Field + `": "***"`}))
		case FieldMaskFormatURLEncoded:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)` + cfg.Field + `\s*=\s*[^&\s]+`, cfg.Field + "=***"}))
		}
	}
	return fm
}

// Masker masks secrets in strings.
type Masker struct {
	FieldMasks []FieldMasker
}

// NewMasker creates a Masker for the given rules.
func NewMasker(rules []MaskingRuleConfig) *Masker {
	m := &Masker{FieldMasks: make([]FieldMasker, 0, len(rules))}
	for _, rule := range rules {
		m.FieldMasks = append(m.FieldMasks, NewFieldMasker(rule))
	}
	return m
}

// Mask returns s with all known secrets replaced.
func (m *Masker) Mask(s string) string {
	lower := strings.ToLower(s)
	for _, fm := range m.FieldMasks {
		if !strings.Contains(lower, fm.Field) {
			continue
		}
		for _, mask := range fm.Masks {
			s = mask.RegExp.ReplaceAllString(s, mask.Mask)
		}
	}
	return s
}

// DefaultMasks hide relay credentials: the bearer header, apiKey fields and bare "ct_" project keys.
var DefaultMasks = []MaskingRuleConfig{
	{
		Field:   "Authorization",
		Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader},
		Masks:   []MaskConfig{{RegExp: `(?i)Bearer\s+[A-Za-z0-9._~+/-]+=*`, Mask: "Bearer ***"}},
	},
	{
		Field:   "apiKey",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "api_key",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field: "ct_",
		Masks: []MaskConfig{{RegExp: `\bct_[A-Za-z0-9]{8,}`, Mask: "ct_***"}},
	},
}
