package flows

import "github.com/klejdi94/quill/core"

// YouTubeTitles suggests click-worthy video titles.
func YouTubeTitles() *core.Flow {
	return &core.Flow{
		Name:        "youtube-titles",
		Title:       "YouTube Title Generator",
		Description: "Video titles that balance search and curiosity.",
		Category:    CategoryVideo,
		System:      "You are a YouTube growth strategist. " + jsonOnly,
		Template: `Write 10 YouTube titles for a video about:
{{.description}}
Keep each title under 70 characters.`,
		Fragments: []core.Fragment{
			{Field: "keyword", Text: "Put the keyword \"{{.keyword}}\" near the start of each title."},
		},
		Input: []core.Field{
			core.String("description", core.MinLength(5), core.MaxLength(500)),
			core.String("keyword", core.Optional(), core.MaxLength(60)),
		},
		Output: core.Shape{core.List("titles")},
	}
}

// YouTubeDescription writes a video description with chapters and tags.
func YouTubeDescription() *core.Flow {
	return &core.Flow{
		Name:        "youtube-description",
		Title:       "YouTube Description Generator",
		Description: "Video description, chapters and tags.",
		Category:    CategoryVideo,
		System:      "You write YouTube descriptions that rank. " + jsonOnly,
		Template: `Write a YouTube description for the video "{{.title}}".
Summary of the video:
{{.summary}}
{{if .links}}Include these links:
{{list .links}}
{{end}}`,
		Input: []core.Field{
			core.String("title", core.MinLength(3), core.MaxLength(100)),
			core.String("summary", core.MinLength(10), core.MaxLength(2000)),
			core.String("links", core.Optional(), core.MaxLength(1000), core.Describe("Comma separated URLs")),
		},
		Output: core.Shape{
			core.Text("description"),
			core.List("chapters"),
			core.List("tags"),
		},
	}
}
