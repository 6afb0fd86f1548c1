package profile

import (
	"strings"
)

// hebrewLanguages 把英文语言名映射为希伯来语词汇。
var hebrewLanguages = map[string]string{
	"english":    "אנגלית",
	"french":     "צרפתית",
	"spanish":    "ספרדית",
	"german":     "גרמנית",
	"russian":    "רוסית",
	"arabic":     "ערבית",
	"hebrew":     "עברית",
	"italian":    "איטלקית",
	"portuguese": "פורטוגזית",
	"amharic":    "אמהרית",
	"yiddish":    "יידיש",
	"chinese":    "סינית",
	"mandarin":   "סינית",
	"japanese":   "יפנית",
	"korean":     "קוריאנית",
	"polish":     "פולנית",
	"romanian":   "רומנית",
	"ukrainian":  "אוקראינית",
	"hungarian":  "הונגרית",
	"turkish":    "טורקית",
	"dutch":      "הולנדית",
	"persian":    "פרסית",
	"farsi":      "פרסית",
	"hindi":      "הינדית",
	"greek":      "יוונית",
	"czech":      "צ'כית",
}

// TranslateLanguages 把语言名翻译为希伯来语并去重，括号中的熟练度说明会被去掉。
// 无法识别的语言名按原样保留。
func TranslateLanguages(langs []string) []string {
	out := make([]string, 0, len(langs))
	seen := make(map[string]bool)
	for _, raw := range langs {
		name := strings.TrimSpace(raw)
		if i := strings.IndexAny(name, "(-–:"); i > 0 {
			name = strings.TrimSpace(name[:i])
		}
		if name == "" {
			continue
		}
		if he, ok := hebrewLanguages[strings.ToLower(name)]; ok {
			name = he
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
