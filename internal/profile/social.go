package profile

import (
	"regexp"
	"strings"

	"cv-smart-go/internal/model"
)

var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// NormalizeSocialURL 去掉协议、www.、查询串和末尾斜杠，只保留 host+path。
// requirePath 为 true 时，没有具体路径的裸域名（如 linkedin.com）返回空串；
// 不含点号的品牌词（如 "LinkedIn"）一律返回空串。
func NormalizeSocialURL(raw string, requirePath bool) string {
	s := strings.TrimSpace(raw)
	s = schemePrefix.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimPrefix(s, "WWW.")
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if s == "" || strings.ContainsAny(s, " \t") {
		return ""
	}

	host, path, _ := strings.Cut(s, "/")
	if !strings.Contains(host, ".") {
		return ""
	}
	if requirePath && path == "" {
		return ""
	}
	return s
}

// NormalizeSocialProfiles 归一化所有社交主页字段，并对 other 去重。
func NormalizeSocialProfiles(p model.SocialProfiles) model.SocialProfiles {
	out := model.SocialProfiles{
		LinkedIn:  NormalizeSocialURL(p.LinkedIn, true),
		GitHub:    NormalizeSocialURL(p.GitHub, true),
		Portfolio: NormalizeSocialURL(p.Portfolio, false),
		Twitter:   NormalizeSocialURL(p.Twitter, true),
		Other:     []string{},
	}
	seen := map[string]bool{
		strings.ToLower(out.LinkedIn):  true,
		strings.ToLower(out.GitHub):    true,
		strings.ToLower(out.Portfolio): true,
		strings.ToLower(out.Twitter):   true,
	}
	for _, raw := range p.Other {
		u := NormalizeSocialURL(raw, true)
		key := strings.ToLower(u)
		if u == "" || seen[key] {
			continue
		}
		seen[key] = true
		out.Other = append(out.Other, u)
	}
	return out
}
