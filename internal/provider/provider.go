// Package provider 把五类简历抽取请求转换为对文本生成模型的调用。
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"cv-smart-go/internal/apperr"
	"cv-smart-go/internal/model"
	"cv-smart-go/internal/profile"
	"cv-smart-go/internal/sanitize"
	"cv-smart-go/pkg/llm"
	"cv-smart-go/pkg/log"
)

// Provider 是简历分析能力的抽象，每个方法只返回自己负责的类别。
type Provider interface {
	// AnalyzeBasicInfo 的输入是页面列表的 JSON，以便读取嵌入链接。
	AnalyzeBasicInfo(ctx context.Context, pagesJSON string) (model.BasicInfo, error)
	AnalyzeExperience(ctx context.Context, text string) (model.ExperienceInfo, error)
	AnalyzeEducation(ctx context.Context, text string) (model.EducationInfo, error)
	AnalyzeSkills(ctx context.Context, text string) (model.SkillsInfo, error)
	AnalyzeMilitary(ctx context.Context, text string) (model.MilitaryInfo, error)
	Name() string
}

// GenerativeProvider 基于 llm.Generator 实现 Provider。
type GenerativeProvider struct {
	gen    llm.Generator
	policy profile.Policy
}

// NewGenerativeProvider 创建一个新的 GenerativeProvider 实例。
func NewGenerativeProvider(gen llm.Generator, policy profile.Policy) *GenerativeProvider {
	return &GenerativeProvider{gen: gen, policy: policy}
}

func (p *GenerativeProvider) Name() string { return p.gen.Name() }

func (p *GenerativeProvider) AnalyzeBasicInfo(ctx context.Context, pagesJSON string) (model.BasicInfo, error) {
	var out model.BasicInfo
	if err := p.analyze(ctx, model.CategoryBasicInfo, basicInfoPrompt, pagesJSON, &out); err != nil {
		return model.BasicInfo{}, err
	}
	return p.policy.BasicInfo(out), nil
}

func (p *GenerativeProvider) AnalyzeExperience(ctx context.Context, text string) (model.ExperienceInfo, error) {
	var out model.ExperienceInfo
	if err := p.analyze(ctx, model.CategoryExperience, experiencePrompt, text, &out); err != nil {
		return model.ExperienceInfo{}, err
	}
	return p.policy.Experience(out), nil
}

func (p *GenerativeProvider) AnalyzeEducation(ctx context.Context, text string) (model.EducationInfo, error) {
	var out model.EducationInfo
	if err := p.analyze(ctx, model.CategoryEducation, educationPrompt, text, &out); err != nil {
		return model.EducationInfo{}, err
	}
	return p.policy.Education(out), nil
}

func (p *GenerativeProvider) AnalyzeSkills(ctx context.Context, text string) (model.SkillsInfo, error) {
	var out model.SkillsInfo
	if err := p.analyze(ctx, model.CategorySkills, skillsPrompt, text, &out); err != nil {
		return model.SkillsInfo{}, err
	}
	return p.policy.Skills(out), nil
}

func (p *GenerativeProvider) AnalyzeMilitary(ctx context.Context, text string) (model.MilitaryInfo, error) {
	var out model.MilitaryInfo
	if err := p.analyze(ctx, model.CategoryMilitary, militaryPrompt, text, &out); err != nil {
		return model.MilitaryInfo{}, err
	}
	return p.policy.Military(out), nil
}

// analyze 组装请求、调用模型，并把清洗后的 JSON 解码到 out。
func (p *GenerativeProvider) analyze(ctx context.Context, cat model.Category, instructions, input string, out any) error {
	prompt := BuildPrompt(instructions, input)
	log.Debugf("[Provider] 发送 %s 请求, Model: %s, PromptLen: %d", cat, p.gen.Name(), len(prompt))

	raw, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("%s: generate: %w", cat, err)
	}
	if err := sanitize.Decode(raw, out); err != nil {
		log.Warnf("[Provider] %s 响应无法解析: %v", cat, err)
		return fmt.Errorf("%s: %w", cat, err)
	}
	return nil
}

// BuildPrompt 拼接指令、简历文本以及从页面 JSON 中找到的嵌入链接。
func BuildPrompt(instructions, input string) string {
	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\nCV Text:\n")
	sb.WriteString(input)
	if links := EmbeddedLinks(input); len(links) > 0 {
		sb.WriteString("\n\nEmbedded Links:\n")
		sb.WriteString(strings.Join(links, "\n"))
	}
	return sb.String()
}

var linksFragment = regexp.MustCompile(`\{[\s\S]*?"links":\s*\[([\s\S]*?)\]`)

// EmbeddedLinks 在输入是页面数组 JSON 时返回全部链接 URL；否则退回正则扫描第一个 links 数组。
func EmbeddedLinks(input string) []string {
	var pages []model.Page
	if err := json.Unmarshal([]byte(input), &pages); err == nil {
		var urls []string
		for _, pg := range pages {
			for _, l := range pg.Links {
				urls = append(urls, l.URL)
			}
		}
		return urls
	}

	m := linksFragment.FindStringSubmatch(input)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return nil
	}
	var links []model.Link
	if err := json.Unmarshal([]byte("["+m[1]+"]"), &links); err != nil {
		return nil
	}
	urls := make([]string, 0, len(links))
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	return urls
}

// IsParseFailure 报告错误是否源于模型响应无法解析。
func IsParseFailure(err error) bool {
	return apperr.IsKind(err, apperr.Parse)
}
