package rulestore

import "github.com/axssbug/twitter-plugin/internal/filter/domain"

// Persisted store keys. The names are shared with other execution contexts
// writing the same store, so they are wire format and must not change.
const (
	KeyRemoteAccounts = "filterAccounts"
	KeyRemoteKeywords = "filterKeywords"
	KeyServerKeywords = "serverKeywords"

	KeyBlockedAccounts  = "manualBlockedAccounts"
	KeyBlockedKeywords  = "manualBlockedKeywords"
	KeyBlockedUsernames = "manualBlockedUsernames"

	KeyAllowedAccounts  = "manualWhitelistAccounts"
	KeyAllowedKeywords  = "manualWhitelistKeywords"
	KeyAllowedUsernames = "manualWhitelistUsernames"

	KeyEnabled         = "isEnabled"
	KeyAccountEnabled  = "accountFilterEnabled"
	KeyKeywordEnabled  = "keywordFilterEnabled"
	KeyUsernameEnabled = "usernameFilterEnabled"

	KeyBlockCount    = "totalBlockCount"
	KeyLastUpdate    = "lastUpdateTime"   // epoch ms
	KeyLastIndexLoad = "lastWasmLoadTime" // epoch ms
	KeyAccountCount  = "wasmAccountCount"
	KeyKeywordCount  = "wasmKeywordCount"
)

// categoryKeys maps a filter category to its persisted list keys, enable-flag
// key, and address sigil. Keywords carry no sigil; handles and display names
// may be stored with or without a leading "@".
type categoryKeys struct {
	block   string
	allow   string
	enabled string
	sigil   string
}

var keysByCategory = map[domain.Category]categoryKeys{
	domain.CategoryAccount: {
		block:   KeyBlockedAccounts,
		allow:   KeyAllowedAccounts,
		enabled: KeyAccountEnabled,
		sigil:   "@",
	},
	domain.CategoryUsername: {
		block:   KeyBlockedUsernames,
		allow:   KeyAllowedUsernames,
		enabled: KeyUsernameEnabled,
		sigil:   "@",
	},
	domain.CategoryKeyword: {
		block:   KeyBlockedKeywords,
		allow:   KeyAllowedKeywords,
		enabled: KeyKeywordEnabled,
		sigil:   "",
	},
}

// ruleKeys are the keys whose change should force a re-evaluation pass.
// Counters and timestamps are recognized (kept in memory) but changing them
// does not alter any classification outcome, so they do not trigger one.
var ruleKeys = map[string]bool{
	KeyRemoteAccounts:   true,
	KeyRemoteKeywords:   true,
	KeyServerKeywords:   true,
	KeyBlockedAccounts:  true,
	KeyBlockedKeywords:  true,
	KeyBlockedUsernames: true,
	KeyAllowedAccounts:  true,
	KeyAllowedKeywords:  true,
	KeyAllowedUsernames: true,
	KeyEnabled:          true,
	KeyAccountEnabled:   true,
	KeyKeywordEnabled:   true,
	KeyUsernameEnabled:  true,
}
