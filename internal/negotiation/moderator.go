package negotiation

import "regexp"

// ContentModerator scans message text for contact-exchange attempts.
// Detection is detective, not preventive: a flagged message is still
// delivered, so false positives never break a live negotiation.
type ContentModerator struct {
	patterns []moderationPattern
}

type moderationPattern struct {
	reason string
	re     *regexp.Regexp
}

// NewContentModerator compiles the fixed pattern set.
func NewContentModerator() *ContentModerator {
	return &ContentModerator{
		patterns: []moderationPattern{
			{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
			{"phone", regexp.MustCompile(`(\+|00)[0-9][0-9 \-\(\)]{7,14}[0-9]|\b05[0-9]{8}\b`)},
			{"external-platform", regexp.MustCompile(`(?i)\b(whatsapp|telegram|signal|viber|snapchat|instagram|discord|wechat)\b`)},
			// Arabic platform names; Go's \b is ASCII-only so these match bare.
			{"external-platform", regexp.MustCompile(`واتساب|واتس اب|تليجرام|تلغرام|انستقرام|انستغرام|سناب شات|سناب`)},
			{"off-platform-contact", regexp.MustCompile(`(?i)contact me (outside|off|directly)|off[\- ]platform|reach me (at|on)|dm me`)},
			{"off-platform-contact", regexp.MustCompile(`راسلني|تواصل معي خارج|كلمني على|تواصل خارج المنصة`)},
		},
	}
}

// Scan reports whether the text matches any disallowed pattern, along with
// the reasons that matched. It never blocks delivery.
func (m *ContentModerator) Scan(text string) (bool, []string) {
	var reasons []string
	for _, p := range m.patterns {
		if p.re.MatchString(text) {
			reasons = append(reasons, p.reason)
		}
	}
	return len(reasons) > 0, reasons
}
