package patterns

import "regexp"

// =============================================================================
// PATTERN DEFINITIONS BY CATEGORY
// All patterns are registered here and compiled once at package init.
// Severity values feed the sandbox stage scores and heuristic classifiers;
// changing them shifts risk scores engine-wide.
// =============================================================================

// --- PHISHING LANGUAGE (SANDBOX STATIC EMAIL STAGE, +25 EACH) ---
func (r *Registry) registerPhishingLanguagePatterns() {
	cat := CategoryPhishingLanguage

	r.register("urgent_action", `(?i)urgent.*action.*required`, cat, 25, "Urgency pressure phrasing")
	r.register("verify_account", `(?i)verify.*account.*immediately`, cat, 25, "Account verification lure")
	r.register("click_suspend", `(?i)click.*here.*suspend`, cat, 25, "Suspension threat with link")
	r.register("lottery_claim", `(?i)winner.*lottery.*claim`, cat, 25, "Lottery winner lure")
	r.register("tax_refund", `(?i)irs.*tax.*refund`, cat, 25, "Tax refund lure")
	r.register("bank_update", `(?i)bank.*security.*update`, cat, 25, "Bank security pretext")
}

// --- SCAM KEYWORDS (SANDBOX ML EMAIL STAGE, +5 PER HIT CAPPED AT 50) ---
func (r *Registry) registerScamKeywordPatterns() {
	cat := CategoryScamKeyword

	keywords := []string{
		"urgent", "immediate", "action required", "verify account",
		"suspended", "winner", "lottery", "inheritance", "tax refund",
		"bank transfer", "security alert", "click here", "download now",
	}
	for _, kw := range keywords {
		r.register("kw_"+kw, `(?i)`+regexp.QuoteMeta(kw), cat, 5, "Scam keyword: "+kw)
	}
}

// --- SPAM KEYWORDS (EMAIL HEURISTIC FALLBACK, 0.18 PROBABILITY PER HIT) ---
func (r *Registry) registerSpamKeywordPatterns() {
	cat := CategorySpamKeyword

	keywords := []string{
		"urgent", "verify", "account", "password", "wire transfer",
		"bank", "claim prize", "won", "bitcoin", "gift card",
		"suspended", "login now",
	}
	for _, kw := range keywords {
		r.register("spam_"+kw, `(?i)`+regexp.QuoteMeta(kw), cat, 18, "Spam keyword: "+kw)
	}
}

// --- SUSPICIOUS SENDER DOMAINS (SANDBOX STATIC EMAIL STAGE, +20) ---
func (r *Registry) registerSenderPatterns() {
	cat := CategorySuspiciousSender

	// Free TLDs often abused
	r.register("free_tld", `(?i)\.(tk|ml|ga|cf)\b`, cat, 20, "Disposable free TLD")
	// Phishing domain prefixes
	r.register("phishing_prefix", `(?i)(secure|verify|confirm)-`, cat, 20, "Phishing-style domain prefix")
	// Common in bulk spam
	r.register("noreply_sender", `(?i)no-?reply`, cat, 20, "No-reply sender")
	r.register("sender_shortener", `(?i)(bit\.ly|tinyurl|t\.co)`, cat, 20, "Shortener as sender domain")
}

// --- SUSPICIOUS URLS AND SHORTENERS (PER-URL SCORING) ---
func (r *Registry) registerURLPatterns() {
	r.register("url_shortener", `(?i)(bit\.ly|tinyurl\.com|t\.co|goo\.gl)`, CategoryShortener, 10, "URL shortener")

	cat := CategorySuspiciousURL
	r.register("url_phishing_prefix", `(?i)(secure|verify|confirm)-`, cat, 20, "Phishing-style URL prefix")
	r.register("url_credential_words", `(?i)(login|signin|account|update)`, cat, 20, "Credential-harvesting keyword")
	r.register("url_pressure_words", `(?i)(suspended|blocked|urgent)`, cat, 20, "Pressure keyword in URL")
	r.register("url_known_shortener", `(?i)(bit\.ly|tinyurl\.com|t\.co|goo\.gl)`, cat, 20, "Shortener hiding destination")
}

// --- FILE SIGNATURES (SANDBOX STATIC/DYNAMIC FILE STAGES) ---
func (r *Registry) registerFilePatterns() {
	r.register("executable_ext", `(?i)\.(exe|bat|cmd|scr|ps1)`, CategoryExecutableFile, 40, "Windows executable extension")
	r.register("script_ext", `(?i)\.(js|vbs|jar|app)`, CategoryScriptFile, 30, "Script or bundle extension")
	r.register("office_legacy_ext", `(?i)\.(doc|xls|ppt)$`, CategoryMacroDocument, 35, "Legacy Office document (macro capable)")
	r.register("installer_name", `(?i)(setup|install|crack|keygen|patch|loader)`, CategoryDangerousFilename, 20, "Installer or cracktool filename")
}
