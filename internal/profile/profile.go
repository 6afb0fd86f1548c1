package profile

import (
	"strings"

	"cv-smart-go/internal/model"
)

// Policy 汇总各分组结果的归一化策略。
type Policy struct {
	SkillsLimit int
}

// BasicInfo 归一化身份与联系方式分组。
func (p Policy) BasicInfo(b model.BasicInfo) model.BasicInfo {
	b.CandidateName = strings.TrimSpace(b.CandidateName)
	b.Position = strings.TrimSpace(b.Position)
	b.Email = strings.TrimSpace(b.Email)
	b.Location = strings.TrimSpace(b.Location)
	b.Phone = model.FlexString(NormalizePhone(b.Phone.String()))
	b.SocialProfiles = NormalizeSocialProfiles(b.SocialProfiles)
	return b
}

// Skills 归一化技能和语言分组。
func (p Policy) Skills(s model.SkillsInfo) model.SkillsInfo {
	s.Skills = NormalizeSkills(s.Skills, p.SkillsLimit)
	s.Languages = TranslateLanguages(s.Languages)
	return s
}

// Experience 去掉没有职位也没有公司的条目。
func (p Policy) Experience(e model.ExperienceInfo) model.ExperienceInfo {
	kept := make([]model.Experience, 0, len(e.Experience))
	for _, x := range e.Experience {
		if strings.TrimSpace(x.Title) == "" && strings.TrimSpace(x.Company) == "" {
			continue
		}
		kept = append(kept, x)
	}
	e.Experience = kept
	return e
}

// Education 去掉没有院校也没有学位的条目。
func (p Policy) Education(e model.EducationInfo) model.EducationInfo {
	kept := make([]model.Education, 0, len(e.Education))
	for _, x := range e.Education {
		if strings.TrimSpace(x.Institution) == "" && strings.TrimSpace(x.Degree) == "" {
			continue
		}
		kept = append(kept, x)
	}
	e.Education = kept
	return e
}

// Military 把全部为空的兵役记录置为 nil。
func (p Policy) Military(m model.MilitaryInfo) model.MilitaryInfo {
	if s := m.MilitaryService; s != nil && s.Role == "" && s.Unit == "" && s.Years == "" {
		m.MilitaryService = nil
	}
	return m
}
