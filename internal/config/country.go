package config

import (
	"fmt"
	"strings"
)

// countryAliases maps each supported ISO 3166-1 alpha-2 code to the tokens an
// operator may use for it: the alpha-2 code itself, the alpha-3 code, and the
// common English (or native) name. All comparisons are case-insensitive.
var countryAliases = map[string][]string{
	"us": {"us", "usa", "united states", "america"},
	"gb": {"gb", "gbr", "uk", "united kingdom", "britain", "great britain"},
	"ca": {"ca", "can", "canada"},
	"de": {"de", "deu", "germany", "deutschland"},
	"fr": {"fr", "fra", "france"},
	"au": {"au", "aus", "australia"},
	"jp": {"jp", "jpn", "japan"},
	"in": {"in", "ind", "india"},
	"br": {"br", "bra", "brazil", "brasil"},
	"it": {"it", "ita", "italy", "italia"},
	"es": {"es", "esp", "spain", "españa"},
	"mx": {"mx", "mex", "mexico"},
	"ru": {"ru", "rus", "russia"},
	"cn": {"cn", "chn", "china"},
	"kr": {"kr", "kor", "south korea", "korea"},
	"nl": {"nl", "nld", "netherlands", "holland"},
	"se": {"se", "swe", "sweden"},
	"no": {"no", "nor", "norway"},
	"dk": {"dk", "dnk", "denmark"},
	"fi": {"fi", "fin", "finland"},
	"pl": {"pl", "pol", "poland"},
	"ar": {"ar", "arg", "argentina"},
	"cl": {"cl", "chl", "chile"},
	"co": {"co", "col", "colombia"},
	"pe": {"pe", "per", "peru"},
	"za": {"za", "zaf", "south africa"},
	"eg": {"eg", "egy", "egypt"},
	"tr": {"tr", "tur", "turkey"},
	"gr": {"gr", "grc", "greece"},
	"pt": {"pt", "prt", "portugal"},
	"ie": {"ie", "irl", "ireland"},
	"be": {"be", "bel", "belgium"},
	"ch": {"ch", "che", "switzerland"},
	"at": {"at", "aut", "austria"},
	"cz": {"cz", "cze", "czech republic"},
	"hu": {"hu", "hun", "hungary"},
	"ro": {"ro", "rou", "romania"},
	"bg": {"bg", "bgr", "bulgaria"},
	"hr": {"hr", "hrv", "croatia"},
	"si": {"si", "svn", "slovenia"},
	"sk": {"sk", "svk", "slovakia"},
	"lt": {"lt", "ltu", "lithuania"},
	"lv": {"lv", "lva", "latvia"},
	"ee": {"ee", "est", "estonia"},
	"th": {"th", "tha", "thailand"},
	"vn": {"vn", "vnm", "vietnam"},
	"id": {"id", "idn", "indonesia"},
	"my": {"my", "mys", "malaysia"},
	"sg": {"sg", "sgp", "singapore"},
	"ph": {"ph", "phl", "philippines"},
	"tw": {"tw", "twn", "taiwan"},
	"hk": {"hk", "hkg", "hong kong"},
	"ae": {"ae", "are", "uae", "united arab emirates"},
	"sa": {"sa", "sau", "saudi arabia"},
}

// aliasToCode is the inverted lookup, built once at init.
var aliasToCode = func() map[string]string {
	m := make(map[string]string, len(countryAliases)*3)
	for code, aliases := range countryAliases {
		for _, a := range aliases {
			m[a] = code
		}
	}
	return m
}()

// CanonicalCountry resolves a country token ("us", "usa", "united states") to
// its ISO 3166-1 alpha-2 code. Unknown tokens are a configuration error and
// must be rejected at load time, not silently dropped per cycle.
func CanonicalCountry(token string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(token))
	if t == "" {
		return "", fmt.Errorf("empty country token")
	}
	if code, ok := aliasToCode[t]; ok {
		return code, nil
	}
	return "", fmt.Errorf("unrecognized country token %q", token)
}

// CountryAliases returns every known spelling for an alpha-2 code, the code
// itself included. Unknown codes return just the code.
func CountryAliases(code string) []string {
	if aliases, ok := countryAliases[code]; ok {
		return aliases
	}
	return []string{code}
}

// CanonicalCountries resolves a token list to alpha-2 codes, preserving
// order and collapsing duplicate spellings of the same country.
func CanonicalCountries(tokens []string) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		code, err := CanonicalCountry(t)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}

// CountrySet canonicalizes a list of country tokens into an alpha-2 set.
func CountrySet(tokens []string) (map[string]struct{}, error) {
	codes, err := CanonicalCountries(tokens)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set, nil
}
