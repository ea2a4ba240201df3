package recommend

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/bytedance/sonic"
)

// Section headers the model must reproduce verbatim.
const (
	HeaderStrengths       = "Current strengths:"
	HeaderImprovements    = "Areas for improvement:"
	HeaderRecommendations = "Specific actionable recommendations:"
	HeaderImpacts         = "Potential score impact:"
)

var headers = []string{HeaderStrengths, HeaderImprovements, HeaderRecommendations, HeaderImpacts}

const systemPrompt = "You are an expert in renewable energy projects and ESG scoring. " +
	"Always provide comprehensive, structured responses with at least 3 points per category. " +
	"Be specific and actionable in your recommendations. " +
	"Focus on quantifiable metrics and practical implementation details."

var userPrompt = template.Must(template.New("user").Parse(`As a renewable energy and sustainability expert, analyze the following project and provide a comprehensive evaluation. For each category, provide AT LEAST 3 points.

Project Details:
{{.Project}}

Please structure your response exactly as follows:

{{.Strengths}}
- [List at least 3 specific strengths of the project]
- [Focus on existing positive aspects]
- [Include quantifiable metrics where possible]

{{.Improvements}}
- [List at least 3 specific areas that need improvement]
- [Focus on concrete aspects that can be enhanced]
- [Include specific gaps or limitations]

{{.Recommendations}}
- [Provide at least 3 detailed, actionable steps]
- [Include implementation timeframes where relevant]
- [Focus on practical, achievable improvements]

{{.Impacts}}
- [List at least 3 specific score improvements]
- [Quantify the potential impact of each recommendation]
- [Include estimated timeframes for improvements]

Remember:
- Each section MUST have at least 3 bullet points
- Be specific and detailed in each point
- Focus on practical, achievable improvements
- Include quantifiable metrics where possible
- Maintain a professional, constructive tone`))

// BuildUserPrompt embeds project as two-space indented JSON.
func BuildUserPrompt(project any) (string, error) {
	js, err := sonic.ConfigStd.MarshalIndent(project, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode project: %w", err)
	}
	var buf bytes.Buffer
	err = userPrompt.Execute(&buf, map[string]string{
		"Project":         string(js),
		"Strengths":       HeaderStrengths,
		"Improvements":    HeaderImprovements,
		"Recommendations": HeaderRecommendations,
		"Impacts":         HeaderImpacts,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
