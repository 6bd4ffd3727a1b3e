package assistant

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Action selects which editing task the assistant performs on the given text.
type Action string

const (
	ActionImprove   Action = "improve"
	ActionRephrase  Action = "rephrase"
	ActionSummarize Action = "summarize"
	ActionExpand    Action = "expand"
	ActionGrammar   Action = "grammar"
	ActionSuggest   Action = "suggest"
)

func ValidAction(action Action) bool {
	switch action {
	case ActionImprove, ActionRephrase, ActionSummarize, ActionExpand, ActionGrammar, ActionSuggest:
		return true
	}
	return false
}

const systemPrompt = "أنت مساعد أكاديمي متخصص في الكتابة البحثية باللغة العربية."

// Each template contains a %s placeholder for the user's text. The prompts
// instruct the model to return only the result, no commentary.
var defaultTemplates = map[Action]string{
	ActionImprove: "حسّن النص التالي من الناحية اللغوية والأكاديمية مع الحفاظ على المعنى:\n\n%s\n\nقدم نسخة محسنة فقط بدون شرح.",

	ActionRephrase: "أعد صياغة النص التالي بأسلوب أكاديمي احترافي:\n\n%s\n\nقدم النص المعاد صياغته فقط بدون شرح.",

	ActionSummarize: "لخص النص التالي بشكل موجز ومفيد:\n\n%s\n\nقدم الملخص فقط بدون مقدمات.",

	ActionExpand: "وسّع الفكرة التالية بشكل أكاديمي مع إضافة تفاصيل وأمثلة:\n\n%s\n\nقدم النص الموسع فقط.",

	ActionGrammar: "صحح الأخطاء اللغوية والنحوية في النص التالي:\n\n%s\n\nقدم النص المصحح فقط.",

	ActionSuggest: "اقترح 3 أفكار لتطوير أو إضافة للنص التالي:\n\n%s\n\nقدم الاقتراحات في نقاط واضحة.",
}

// Prompts holds the active templates, defaults optionally overridden per
// deployment.
type Prompts struct {
	system    string
	templates map[Action]string
}

func DefaultPrompts() *Prompts {
	templates := make(map[Action]string, len(defaultTemplates))
	for action, template := range defaultTemplates {
		templates[action] = template
	}
	return &Prompts{system: systemPrompt, templates: templates}
}

type promptOverrides struct {
	System    string            `yaml:"system"`
	Templates map[string]string `yaml:"templates"`
}

// LoadPromptOverrides reads a yaml file replacing some or all of the default
// templates. Unknown actions are rejected, templates must keep the %s
// placeholder for the input text.
func LoadPromptOverrides(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading prompt overrides %v: %w", path, err)
	}

	var overrides promptOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("error parsing prompt overrides %v: %w", path, err)
	}

	prompts := DefaultPrompts()
	if overrides.System != "" {
		prompts.system = overrides.System
	}
	for name, template := range overrides.Templates {
		action := Action(name)
		if !ValidAction(action) {
			return nil, fmt.Errorf("unknown action '%v' in prompt overrides", name)
		}
		if !strings.Contains(template, "%s") {
			return nil, fmt.Errorf("template for action '%v' is missing the %%s text placeholder", name)
		}
		prompts.templates[action] = template
	}

	return prompts, nil
}

func (p *Prompts) System() string {
	return p.system
}

// For renders the user prompt for an action over the given text.
func (p *Prompts) For(action Action, text string) (string, error) {
	template, ok := p.templates[action]
	if !ok {
		return "", fmt.Errorf("no template for action '%v'", action)
	}
	return fmt.Sprintf(template, text), nil
}
