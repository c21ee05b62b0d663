package http

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips markup from free text fields before they are stored.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean sanitizes each field in place. Nil fields are skipped.
func (s *Sanitizer) Clean(fields ...*string) {
	for _, f := range fields {
		if f == nil {
			continue
		}
		*f = strings.TrimSpace(s.policy.Sanitize(*f))
	}
}
