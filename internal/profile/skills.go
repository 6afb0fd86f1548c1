package profile

import (
	"strings"
)

// DefaultSkillsLimit 是技能列表的默认上限。
const DefaultSkillsLimit = 12

// NormalizeSkills 去掉空白项，按语义分组去重，并截断到 limit 个。
//
// 分组规则：忽略大小写、空格、点号和连字符，去掉 .js/js 后缀；
// 多词技能若首词与列表中另一个单词技能同组，则并入该组（React Native 并入 React）。
func NormalizeSkills(skills []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultSkillsLimit
	}

	type entry struct {
		display string
		key     string
		head    string
	}
	entries := make([]entry, 0, len(skills))
	singles := make(map[string]string)
	for _, s := range skills {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			continue
		}
		e := entry{display: s, key: skillKey(s)}
		if fields := strings.Fields(s); len(fields) > 1 {
			e.head = skillKey(fields[0])
		} else if _, ok := singles[e.key]; !ok {
			singles[e.key] = baseName(s)
		}
		entries = append(entries, e)
	}

	out := make([]string, 0, limit)
	seen := make(map[string]bool)
	for _, e := range entries {
		group, display := e.key, e.display
		if base, ok := singles[e.key]; ok {
			display = base
		} else if base, ok := singles[e.head]; ok && e.head != "" {
			group, display = e.head, base
		}
		if seen[group] {
			continue
		}
		seen[group] = true
		out = append(out, display)
		if len(out) == limit {
			break
		}
	}
	return out
}

func skillKey(s string) string {
	k := strings.ToLower(s)
	k = strings.NewReplacer(" ", "", ".", "", "-", "", "_", "").Replace(k)
	if len(k) > 4 && strings.HasSuffix(k, "js") {
		k = strings.TrimSuffix(k, "js")
	}
	return k
}

// baseName 去掉 .js 形式的后缀，React.js 显示为 React。
func baseName(s string) string {
	for _, suffix := range []string{".js", ".JS", ".Js"} {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}
	return s
}
