// Package flows defines the built-in content-generation flows.
package flows

import (
	"sync"

	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/registry"
)

// Categories used by the built-in flows.
const (
	CategorySocial    = "social"
	CategoryWriting   = "writing"
	CategoryVideo     = "video"
	CategoryMarketing = "marketing"
)

var tones = []string{"professional", "casual", "funny", "informative", "inspirational"}

const jsonOnly = "Respond with a single JSON object and nothing else."

// All returns fresh copies of every built-in flow in declaration order.
func All() []*core.Flow {
	return []*core.Flow{
		TopicHashtags(),
		InstagramCaptions(),
		InstagramHashtags(),
		InstagramBio(),
		TikTokCaptions(),
		TikTokHashtags(),
		TwitterThread(),
		LinkedInPost(),
		YouTubeTitles(),
		YouTubeDescription(),
		BlogPost(),
		BlogOutline(),
		ProductDescription(),
		EmailSubjectLines(),
		Slogan(),
	}
}

var (
	catalogOnce sync.Once
	catalog     *registry.Catalog
)

// Catalog returns the catalog of built-in flows. It is built on first use.
func Catalog() *registry.Catalog {
	catalogOnce.Do(func() {
		catalog = registry.MustNew(All()...)
	})
	return catalog
}

// Source returns the built-in flows as a registry source, so stores loaded
// after it can override them by name.
func Source() registry.Source {
	return registry.Static(All()...)
}
