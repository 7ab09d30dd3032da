package flows

import "github.com/klejdi94/quill/core"

// TopicHashtags suggests hashtags for a free-text description.
func TopicHashtags() *core.Flow {
	return &core.Flow{
		Name:        "topic-hashtags",
		Title:       "Topic Hashtag Generator",
		Description: "Hashtags for any topic, product or event.",
		Category:    CategorySocial,
		System:      "You are a social media strategist who picks relevant, discoverable hashtags. " + jsonOnly,
		Template: `Suggest 10 to 15 hashtags for the following topic:
{{.description}}

Mix broad and niche tags. Every hashtag starts with #.
Return {"hashtags": [...]}.`,
		Input: []core.Field{
			core.String("description", core.MinLength(3), core.MaxLength(500), core.Describe("What the post is about")),
		},
		Output: core.Shape{core.List("hashtags")},
	}
}

// InstagramCaptions writes several caption options for a post.
func InstagramCaptions() *core.Flow {
	return &core.Flow{
		Name:        "instagram-captions",
		Title:       "Instagram Caption Generator",
		Description: "Caption options for an Instagram post.",
		Category:    CategorySocial,
		System:      "You write engaging Instagram captions. " + jsonOnly,
		Template: `Write {{.count}} Instagram captions in a {{.tone}} tone for this post:
{{.description}}
{{if .emojis}}Use emojis where they fit.{{else}}Do not use emojis.{{end}}`,
		Fragments: []core.Fragment{
			{Field: "callToAction", Text: "End each caption with this call to action: {{.callToAction}}"},
		},
		Input: []core.Field{
			core.String("description", core.MinLength(3), core.MaxLength(1000)),
			core.Enum("tone", tones, core.Default("casual")),
			core.Number("count", core.Min(1), core.Max(10), core.Default(5)),
			core.Bool("emojis", core.Default(true)),
			core.String("callToAction", core.Optional(), core.MaxLength(120)),
		},
		Output: core.Shape{core.List("captions")},
	}
}

// InstagramHashtags suggests hashtags tuned for an Instagram niche.
func InstagramHashtags() *core.Flow {
	return &core.Flow{
		Name:        "instagram-hashtags",
		Title:       "Instagram Hashtag Generator",
		Description: "Instagram hashtags grouped by reach.",
		Category:    CategorySocial,
		System:      "You are an Instagram growth expert. " + jsonOnly,
		Template: `Suggest Instagram hashtags for a post in the {{.niche}} niche about:
{{.description}}

Return {"popular": [...], "niche": [...], "branded": [...]} with up to 10 hashtags in each list.`,
		Input: []core.Field{
			core.String("niche", core.MinLength(2), core.MaxLength(80)),
			core.String("description", core.MinLength(3), core.MaxLength(500)),
		},
		Output: core.Shape{core.List("popular"), core.List("niche"), core.List("branded")},
	}
}

// InstagramBio writes profile bio options.
func InstagramBio() *core.Flow {
	return &core.Flow{
		Name:        "instagram-bio",
		Title:       "Instagram Bio Generator",
		Description: "Short profile bios under 150 characters.",
		Category:    CategorySocial,
		System:      "You write short, memorable social media bios. " + jsonOnly,
		Template: `Write 5 Instagram bios for {{.name}}, who is {{.about}}.
Tone: {{.tone}}. Each bio must be under 150 characters.`,
		Fragments: []core.Fragment{
			{Field: "keywords", Text: "Work in these keywords: {{.keywords}}"},
		},
		Input: []core.Field{
			core.String("name", core.MinLength(1), core.MaxLength(60)),
			core.String("about", core.MinLength(3), core.MaxLength(300)),
			core.Enum("tone", tones, core.Default("casual")),
			core.String("keywords", core.Optional(), core.MaxLength(200)),
		},
		Output: core.Shape{core.List("bios")},
	}
}

// TikTokCaptions writes short captions for a TikTok video.
func TikTokCaptions() *core.Flow {
	return &core.Flow{
		Name:        "tiktok-captions",
		Title:       "TikTok Caption Generator",
		Description: "Punchy captions for short videos.",
		Category:    CategorySocial,
		System:      "You write viral TikTok captions. " + jsonOnly,
		Template: `Write {{.count}} TikTok captions for a video about:
{{.description}}
Keep each caption under 100 characters and make the first words hook the viewer.`,
		Input: []core.Field{
			core.String("description", core.MinLength(3), core.MaxLength(500)),
			core.Number("count", core.Min(1), core.Max(10), core.Default(5)),
		},
		Output: core.Shape{core.List("captions")},
	}
}

// TikTokHashtags suggests trending-style hashtags for TikTok.
func TikTokHashtags() *core.Flow {
	return &core.Flow{
		Name:        "tiktok-hashtags",
		Title:       "TikTok Hashtag Generator",
		Description: "Hashtags for TikTok discovery.",
		Category:    CategorySocial,
		System:      "You know what works on TikTok's For You page. " + jsonOnly,
		Template: `Suggest 8 to 12 TikTok hashtags for a video about:
{{.description}}
Return {"hashtags": [...]}.`,
		Input: []core.Field{
			core.String("description", core.MinLength(3), core.MaxLength(500)),
		},
		Output: core.Shape{core.List("hashtags")},
	}
}

// TwitterThread turns a topic into a thread of posts.
func TwitterThread() *core.Flow {
	return &core.Flow{
		Name:        "twitter-thread",
		Title:       "Twitter Thread Generator",
		Description: "A numbered thread that explains a topic.",
		Category:    CategorySocial,
		System:      "You write clear, engaging threads for X (Twitter). " + jsonOnly,
		Template: `Write a thread of {{.length}} posts about {{.topic}} in a {{.tone}} tone.
Each post must fit in 280 characters. The first post hooks the reader and the last one sums up.`,
		Input: []core.Field{
			core.String("topic", core.MinLength(5), core.MaxLength(300)),
			core.Enum("tone", tones, core.Default("informative")),
			core.Number("length", core.Min(3), core.Max(15), core.Default(6)),
		},
		Output: core.Shape{core.Text("hook"), core.List("tweets")},
	}
}

// LinkedInPost writes a professional post.
func LinkedInPost() *core.Flow {
	return &core.Flow{
		Name:        "linkedin-post",
		Title:       "LinkedIn Post Generator",
		Description: "A professional post with suggested hashtags.",
		Category:    CategorySocial,
		System:      "You are a LinkedIn ghostwriter for executives and founders. " + jsonOnly,
		Template: `Write a LinkedIn post about {{.topic}}.
Tone: {{.tone}}.
{{if .audience}}Target audience: {{.audience}}.
{{end}}Use short paragraphs and end with a question that invites comments.`,
		Input: []core.Field{
			core.String("topic", core.MinLength(5), core.MaxLength(500)),
			core.Enum("tone", tones, core.Default("professional")),
			core.String("audience", core.Optional(), core.MaxLength(120)),
		},
		Output: core.Shape{core.Text("post"), core.List("hashtags")},
	}
}
