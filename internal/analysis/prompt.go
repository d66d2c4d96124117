package analysis

import (
	"fmt"
	"strings"
	"text/template"
)

// YouTubeStats is the channel data the roadmap prompt reads.
type YouTubeStats struct {
	Title       string
	Description string
	Subscribers uint64
	Videos      uint64
	Views       uint64
}

// XStats is the account data the roadmap prompt reads.
type XStats struct {
	Username    string
	Description string
	Followers   int64
	Following   int64
	Tweets      int64
}

// PromptData carries the stats of each platform. Nil means not connected.
type PromptData struct {
	YouTube *YouTubeStats
	X       *XStats
}

var roadmapTemplate = template.Must(template.New("roadmap").Parse(`You are an expert business strategist for online creators. Analyze the following data from the user's connected platforms and generate a concise, actionable growth roadmap.

**YouTube Data:**
{{- with .YouTube}}
- Channel Name: {{.Title}}
- Channel Description: "{{.Description}}"
- Subscribers: {{.Subscribers}}
- Total Videos: {{.Videos}}
- Total Views: {{.Views}}
{{- else}}
- Not Connected
{{- end}}

**X Data:**
{{- with .X}}
- Handle: @{{.Username}}
- Bio: "{{.Description}}"
- Followers: {{.Followers}}
- Following: {{.Following}}
- Tweet Count: {{.Tweets}}
{{- else}}
- Not Connected
{{- end}}

**Your Task:**
Based on all available data, provide a holistic strategic roadmap with three sections:
1. **Cross-Platform Content Strategy:** Suggest how the user can leverage their platforms together. What content works on one but not the other? Suggest 2-3 specific ideas.
2. **Audience Growth Synergy:** How can they use one platform to grow the other? Provide 2 unique strategies.
3. **Unified Monetization Opportunities:** Based on their combined audience and content themes, identify the top 2 most viable digital product or service ideas.

Format your response clearly with markdown headings for each section. If a platform is not connected, acknowledge that and tailor the advice to the available data.
`))

// RenderPrompt fills the roadmap template.
func RenderPrompt(data PromptData) (string, error) {
	var builder strings.Builder
	if err := roadmapTemplate.Execute(&builder, data); err != nil {
		return "", fmt.Errorf("analysis.prompt.render: %w", err)
	}
	return builder.String(), nil
}
