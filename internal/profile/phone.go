// Package profile 实现候选人画像字段的归一化规则。
package profile

import "strings"

const israelCode = "972"

// callingCodes 是常见的国际电话区号，用于无分隔符号码的区号识别。
var callingCodes = map[string]bool{
	"1": true, "7": true,
	"20": true, "27": true, "30": true, "31": true, "32": true, "33": true, "34": true,
	"36": true, "39": true, "40": true, "41": true, "43": true, "44": true, "45": true,
	"46": true, "47": true, "48": true, "49": true, "51": true, "52": true, "53": true,
	"54": true, "55": true, "56": true, "57": true, "58": true, "60": true, "61": true,
	"62": true, "63": true, "64": true, "65": true, "66": true, "81": true, "82": true,
	"84": true, "86": true, "90": true, "91": true, "92": true, "93": true, "94": true,
	"95": true, "98": true,
	"212": true, "213": true, "216": true, "234": true, "254": true, "351": true,
	"352": true, "353": true, "354": true, "355": true, "356": true, "357": true,
	"358": true, "359": true, "370": true, "371": true, "372": true, "373": true,
	"374": true, "375": true, "380": true, "381": true, "385": true, "386": true,
	"420": true, "421": true, "852": true, "886": true, "961": true, "962": true,
	"963": true, "964": true, "965": true, "966": true, "968": true, "970": true,
	"971": true, "972": true, "973": true, "974": true, "977": true, "994": true,
	"995": true, "998": true,
}

// NormalizePhone 将电话号码转换为两种规范形式之一：
// 以色列号码转换为以 0 开头的纯数字本地号码（如 0541234567），
// 其他国际号码转换为 "+<区号> <号码>"。没有国际前缀的非以色列号码保留为纯数字。
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "(0)", "")

	international := false
	switch {
	case strings.HasPrefix(s, "+"):
		international = true
		s = s[1:]
	case strings.HasPrefix(s, "00"):
		international = true
		s = s[2:]
	}

	digits := onlyDigits(s)
	if digits == "" {
		return ""
	}

	if local, ok := israeliLocal(digits, international); ok {
		return local
	}
	if !international {
		return digits
	}

	cc := leadingGroup(s)
	if cc == "" || len(cc) > 3 || len(cc) == len(digits) || !strings.HasPrefix(digits, cc) {
		cc = lookupCallingCode(digits)
	}
	if len(digits) <= len(cc) {
		return ""
	}
	return "+" + cc + " " + digits[len(cc):]
}

func israeliLocal(digits string, international bool) (string, bool) {
	var local string
	switch {
	case strings.HasPrefix(digits, israelCode) && (international || len(digits) >= 11):
		local = strings.TrimPrefix(digits[len(israelCode):], "0")
		local = "0" + local
	case !international && strings.HasPrefix(digits, "0"):
		local = digits
	default:
		return "", false
	}
	if len(local) < 9 || len(local) > 10 {
		return "", false
	}
	return local, true
}

// leadingGroup 返回第一个分隔符之前的 ASCII 数字。
func leadingGroup(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r < '0' || r > '9' {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

func lookupCallingCode(digits string) string {
	for n := 3; n >= 1; n-- {
		if len(digits) > n && callingCodes[digits[:n]] {
			return digits[:n]
		}
	}
	if len(digits) > 3 {
		return digits[:3]
	}
	return digits[:1]
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
