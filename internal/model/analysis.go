package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Category 是一次字段范围受限的模型抽取请求所对应的画像分组。
type Category string

const (
	CategoryBasicInfo  Category = "basic_info"
	CategoryExperience Category = "experience"
	CategoryEducation  Category = "education"
	CategorySkills     Category = "skills"
	CategoryMilitary   Category = "military"
)

// Categories 列出分析流程要执行的全部分组。
var Categories = []Category{
	CategoryBasicInfo,
	CategoryExperience,
	CategoryEducation,
	CategorySkills,
	CategoryMilitary,
}

// CVAnalysis 是合并后的候选人画像，各分组的 JSON 键互不重叠。
type CVAnalysis struct {
	CandidateName   string           `json:"candidate_name"`
	Position        string           `json:"position"`
	Email           string           `json:"email"`
	Phone           FlexString       `json:"phone"`
	Location        string           `json:"location"`
	SocialProfiles  SocialProfiles   `json:"social_profiles"`
	Experience      []Experience     `json:"experience"`
	Education       []Education      `json:"education"`
	Skills          []string         `json:"skills"`
	Languages       []string         `json:"languages"`
	MilitaryService *MilitaryService `json:"military_service"`
}

type SocialProfiles struct {
	LinkedIn  string   `json:"linkedin"`
	GitHub    string   `json:"github"`
	Portfolio string   `json:"portfolio"`
	Twitter   string   `json:"twitter"`
	Other     []string `json:"other"`
}

type Experience struct {
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Duration    FlexString `json:"duration"`
	Description string     `json:"description,omitempty"`
}

type Education struct {
	Institution string     `json:"institution"`
	Degree      string     `json:"degree"`
	Year        FlexString `json:"year,omitempty"`
}

type MilitaryService struct {
	Role  string     `json:"role"`
	Unit  string     `json:"unit"`
	Years FlexString `json:"years"`
}

// Partial 是某一个分组的抽取结果。
type Partial interface {
	Category() Category
	applyTo(a *CVAnalysis)
}

// BasicInfo 是身份与联系方式分组。
type BasicInfo struct {
	CandidateName  string         `json:"candidate_name"`
	Position       string         `json:"position"`
	Email          string         `json:"email"`
	Phone          FlexString     `json:"phone"`
	Location       string         `json:"location"`
	SocialProfiles SocialProfiles `json:"social_profiles"`
}

func (BasicInfo) Category() Category { return CategoryBasicInfo }

func (b BasicInfo) applyTo(a *CVAnalysis) {
	a.CandidateName = b.CandidateName
	a.Position = b.Position
	a.Email = b.Email
	a.Phone = b.Phone
	a.Location = b.Location
	a.SocialProfiles = b.SocialProfiles
}

type ExperienceInfo struct {
	Experience []Experience `json:"experience"`
}

func (ExperienceInfo) Category() Category { return CategoryExperience }

func (e ExperienceInfo) applyTo(a *CVAnalysis) { a.Experience = e.Experience }

type EducationInfo struct {
	Education []Education `json:"education"`
}

func (EducationInfo) Category() Category { return CategoryEducation }

func (e EducationInfo) applyTo(a *CVAnalysis) { a.Education = e.Education }

// SkillsInfo 同时包含技能和语言。
type SkillsInfo struct {
	Skills    []string `json:"skills"`
	Languages []string `json:"languages"`
}

func (SkillsInfo) Category() Category { return CategorySkills }

func (s SkillsInfo) applyTo(a *CVAnalysis) {
	a.Skills = s.Skills
	a.Languages = s.Languages
}

type MilitaryInfo struct {
	MilitaryService *MilitaryService `json:"military_service"`
}

func (MilitaryInfo) Category() Category { return CategoryMilitary }

func (m MilitaryInfo) applyTo(a *CVAnalysis) { a.MilitaryService = m.MilitaryService }

// Merge 将分组结果写入画像，只覆盖该分组拥有的字段。
func (a *CVAnalysis) Merge(p Partial) {
	if p == nil {
		return
	}
	p.applyTo(a)
}

// Normalize 把 nil 切片替换为空切片，保证序列化后每个键都是数组。
func (a *CVAnalysis) Normalize() {
	if a.Experience == nil {
		a.Experience = []Experience{}
	}
	if a.Education == nil {
		a.Education = []Education{}
	}
	if a.Skills == nil {
		a.Skills = []string{}
	}
	if a.Languages == nil {
		a.Languages = []string{}
	}
	if a.SocialProfiles.Other == nil {
		a.SocialProfiles.Other = []string{}
	}
}

// FlexString 接受 JSON 字符串、数字或布尔值，统一保存为字符串。
// 模型经常把年份之类的字段输出成数字。
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*f = FlexString(strconv.FormatBool(b))
	return nil
}

func (f FlexString) String() string { return string(f) }
