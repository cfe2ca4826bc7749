package features

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// Lexical watchlists used by the URL extractor. These mirror the lists the
// URL classifier was trained against; changing them shifts the feature
// distribution away from the trained model.
var (
	suspiciousTLDs = []string{
		".tk", ".ml", ".ga", ".cf", ".gq", ".pw",
		".xyz", ".top", ".club", ".online", ".ru", ".cn",
	}

	urlShorteners = []string{
		"bit.ly", "tinyurl", "goo.gl", "t.co", "ow.ly",
		"is.gd", "buff.ly", "rebrand.ly", "adf.ly",
	}

	sensitiveWords = []string{
		"login", "signin", "bank", "secure", "account", "update",
		"verify", "password", "admin", "support", "confirm",
		"paypal", "ebay", "apple", "amazon",
	}

	brandWords = []string{
		"paypal", "amazon", "apple", "google",
		"microsoft", "facebook", "netflix",
	}

	subdomainBrands = []string{"paypal", "amazon", "apple"}

	embeddedIPPattern = regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)
	wordSplit         = regexp.MustCompile(`[\W_]+`)
)

// URLFeatures builds the lexical feature map for the URL classifier.
// The extractor is total: malformed or empty input yields a map of the same
// schema with neutral values. Scheme-less input is prefixed with "http://"
// and every value-based feature is derived from the prefixed string, the
// same string the model saw at training time.
func URLFeatures(rawURL string) map[string]float64 {
	value := strings.TrimSpace(rawURL)
	if !strings.Contains(value, "://") {
		value = "http://" + value
	}

	domain, path, query := "", "", ""
	if parsed, err := url.Parse(value); err == nil {
		domain = strings.ToLower(parsed.Host)
		// Userinfo survives inside Host on some malformed inputs.
		if at := strings.LastIndex(domain, "@"); at >= 0 {
			domain = domain[at+1:]
		}
		if colon := strings.Index(domain, ":"); colon >= 0 {
			domain = domain[:colon]
		}
		path = parsed.Path
		query = parsed.RawQuery
	}

	lower := strings.ToLower(value)

	valueRunes := []rune(value)
	totalChars := float64(len(valueRunes))

	uppercase := 0.0
	digits := 0.0
	special := 0.0
	for _, r := range valueRunes {
		if unicode.IsUpper(r) {
			uppercase++
		}
		if unicode.IsDigit(r) {
			digits++
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			special++
		}
	}

	domainDigits := 0.0
	domainDots := 0.0
	domainVowels := 0.0
	for _, r := range domain {
		if unicode.IsDigit(r) {
			domainDigits++
		}
		if r == '.' {
			domainDots++
		}
		switch r {
		case 'a', 'e', 'i', 'o', 'u':
			domainVowels++
		}
	}

	longestWord := 0
	for _, word := range wordSplit.Split(lower, -1) {
		if len(word) > longestWord {
			longestWord = len(word)
		}
	}

	features := map[string]float64{
		"url_length":    totalChars,
		"domain_length": float64(len([]rune(domain))),
		"path_length":   float64(len([]rune(path))),
		"query_length":  float64(len([]rune(query))),

		"dot_count":       float64(strings.Count(value, ".")),
		"subdomain_count": math.Max(0, domainDots-1),

		"has_ip":                 boolFeature(embeddedIPPattern.MatchString(domain)),
		"has_at_symbol":          boolFeature(strings.Contains(value, "@")),
		"has_redirection":        boolFeature(len(value) > 8 && strings.Contains(value[8:], "//")),
		"is_https":               boolFeature(strings.HasPrefix(lower, "https")),
		"has_shortener":          boolFeature(containsAny(lower, urlShorteners)),
		"has_prefix_suffix_dash": boolFeature(strings.HasPrefix(domain, "-") || strings.HasSuffix(domain, "-")),

		"depth": float64(strings.Count(path, "/")),

		"uppercase_count":    uppercase,
		"uppercase_ratio":    safeRatio(uppercase, totalChars),
		"digit_ratio":        safeRatio(digits, totalChars),
		"special_char_ratio": safeRatio(special, totalChars),

		"hyphen_count":     float64(strings.Count(value, "-")),
		"underscore_count": float64(strings.Count(value, "_")),
		"question_count":   float64(strings.Count(value, "?")),
		"equal_count":      float64(strings.Count(value, "=")),
		"ampersand_count":  float64(strings.Count(value, "&")),
		"percent_count":    float64(strings.Count(value, "%")),

		"has_www":              boolFeature(strings.Contains(lower, "www.")),
		"sensitive_word_count": countAny(lower, sensitiveWords),
		"brand_count":          countAny(lower, brandWords),

		"entropy":            ShannonEntropy(value),
		"has_suspicious_tld": boolFeature(containsAny(domain, suspiciousTLDs)),
		"num_digits_domain":  domainDigits,
		"vowel_ratio":        safeRatio(domainVowels, float64(len([]rune(domain)))),

		"longest_word_length":    float64(longestWord),
		"has_punycode":           boolFeature(strings.Contains(domain, "xn--")),
		"has_obfuscated_percent": boolFeature(strings.Count(value, "%") > 5),

		"query_params_count":     queryParamCount(query),
		"has_brand_in_subdomain": boolFeature(brandInFirstLabel(domain)),
		"digit_in_domain_ratio":  safeRatio(domainDigits, float64(len([]rune(domain)))),
	}

	return features
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func safeRatio(num, denom float64) float64 {
	if denom == 0 {
		return 0
	}
	return num / denom
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func countAny(haystack string, needles []string) float64 {
	count := 0.0
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			count++
		}
	}
	return count
}

func queryParamCount(query string) float64 {
	if query == "" {
		return 0
	}
	return float64(len(strings.Split(query, "&")))
}

// brandInFirstLabel flags lookalike hosts such as paypal.secure-login.example
// where the brand rides in the leftmost label instead of the registered domain.
func brandInFirstLabel(domain string) bool {
	if domain == "" {
		return false
	}
	for _, brand := range subdomainBrands {
		if strings.Contains(strings.Split(domain, ".")[0], brand) {
			return true
		}
	}
	return false
}
