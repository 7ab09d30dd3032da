package flows

import "github.com/klejdi94/quill/core"

// BlogPost writes a full article.
func BlogPost() *core.Flow {
	return &core.Flow{
		Name:        "blog-post",
		Title:       "Blog Post Generator",
		Description: "A complete, SEO-friendly blog article.",
		Category:    CategoryWriting,
		System:      "You are an experienced blog writer who writes well structured, original articles. " + jsonOnly,
		Template: `Write a blog post about "{{.topic}}".
Tone: {{.tone}}.
Length: about {{.wordCount}} words.
Use Markdown headings for sections.`,
		Fragments: []core.Fragment{
			{Field: "keywords", Text: "Naturally include these keywords: {{.keywords}}."},
		},
		Input: []core.Field{
			core.String("topic", core.MinLength(10), core.MaxLength(200), core.Describe("Title or subject of the post")),
			core.String("keywords", core.Optional(), core.MaxLength(300), core.Describe("Comma separated SEO keywords")),
			core.Enum("tone", tones),
			core.Number("wordCount", core.Min(600), core.Max(2500)),
		},
		Output: core.Shape{
			core.Text("title"),
			core.Text("metaDescription"),
			core.Text("content"),
		},
	}
}

// BlogOutline drafts the section structure of an article.
func BlogOutline() *core.Flow {
	return &core.Flow{
		Name:        "blog-outline",
		Title:       "Blog Outline Generator",
		Description: "Section headings and key points for an article.",
		Category:    CategoryWriting,
		System:      "You plan blog articles. " + jsonOnly,
		Template: `Create an outline for a blog post about "{{.topic}}" with {{.sections}} sections.
{{if .audience}}The readers are {{.audience}}.
{{end}}Return {"title": "...", "sections": ["..."]} where each section is a heading followed by a one line summary.`,
		Input: []core.Field{
			core.String("topic", core.MinLength(10), core.MaxLength(200)),
			core.Number("sections", core.Min(3), core.Max(12), core.Default(6)),
			core.String("audience", core.Optional(), core.MaxLength(120)),
		},
		Output: core.Shape{core.Text("title"), core.List("sections")},
	}
}

// ProductDescription writes e-commerce copy.
func ProductDescription() *core.Flow {
	return &core.Flow{
		Name:        "product-description",
		Title:       "Product Description Generator",
		Description: "Persuasive copy for a product page.",
		Category:    CategoryMarketing,
		System:      "You are an e-commerce copywriter. " + jsonOnly,
		Template: `Write a product description for {{.product}}.
Key features:
{{list .features}}
Tone: {{.tone}}.`,
		Fragments: []core.Fragment{
			{Field: "audience", Text: "Write for this audience: {{.audience}}."},
		},
		Input: []core.Field{
			core.String("product", core.MinLength(2), core.MaxLength(120)),
			core.String("features", core.MinLength(3), core.MaxLength(1000), core.Describe("Comma separated features")),
			core.Enum("tone", tones, core.Default("professional")),
			core.String("audience", core.Optional(), core.MaxLength(120)),
		},
		Output: core.Shape{
			core.Text("headline"),
			core.Text("description"),
			core.List("bullets"),
		},
	}
}

// EmailSubjectLines suggests subject lines for a campaign.
func EmailSubjectLines() *core.Flow {
	return &core.Flow{
		Name:        "email-subject-lines",
		Title:       "Email Subject Line Generator",
		Description: "Subject lines and preview text for an email campaign.",
		Category:    CategoryMarketing,
		System:      "You are an email marketing specialist focused on open rates. " + jsonOnly,
		Template: `Write {{.count}} email subject lines for this campaign:
{{.campaign}}
Keep each under 60 characters.`,
		Input: []core.Field{
			core.String("campaign", core.MinLength(5), core.MaxLength(500)),
			core.Number("count", core.Min(1), core.Max(20), core.Default(10)),
		},
		Output: core.Shape{core.List("subjects"), core.Text("previewText")},
	}
}

// Slogan writes brand slogans.
func Slogan() *core.Flow {
	return &core.Flow{
		Name:        "slogan",
		Title:       "Slogan Generator",
		Description: "Catchy slogans for a brand or product.",
		Category:    CategoryMarketing,
		System:      "You are a brand copywriter. " + jsonOnly,
		Template: `Write 10 short slogans for {{.brand}}.
{{if .industry}}Industry: {{.industry}}.
{{end}}Return {"slogans": [...]}.`,
		Input: []core.Field{
			core.String("brand", core.MinLength(2), core.MaxLength(120)),
			core.String("industry", core.Optional(), core.MaxLength(80)),
		},
		Output: core.Shape{core.List("slogans")},
	}
}
