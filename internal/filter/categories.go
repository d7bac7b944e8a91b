package filter

// Category is a built-in group of sites that can be blocked in one step.
type Category struct {
	Key     string
	Name    string
	Domains []string
}

var categories = []Category{
	{
		Key:  "social_media",
		Name: "Social Media",
		Domains: []string{
			"facebook.com", "www.facebook.com", "*.facebook.com",
			"instagram.com", "www.instagram.com", "*.instagram.com",
			"twitter.com", "x.com", "*.twitter.com", "*.x.com",
			"tiktok.com", "www.tiktok.com", "*.tiktok.com",
			"snapchat.com", "*.snapchat.com",
			"reddit.com", "www.reddit.com", "*.reddit.com",
			"linkedin.com", "www.linkedin.com", "*.linkedin.com",
		},
	},
	{
		Key:  "video_streaming",
		Name: "Video Streaming",
		Domains: []string{
			"youtube.com", "www.youtube.com", "*.youtube.com",
			"youtu.be", "*.youtu.be",
			"netflix.com", "*.netflix.com",
			"hulu.com", "*.hulu.com",
			"twitch.tv", "*.twitch.tv",
			"vimeo.com", "*.vimeo.com",
		},
	},
	{
		Key:  "gaming",
		Name: "Gaming",
		Domains: []string{
			"steam.com", "*.steampowered.com",
			"epicgames.com", "*.epicgames.com",
			"twitch.tv", "*.twitch.tv",
			"discord.com", "*.discord.com",
			"roblox.com", "*.roblox.com",
		},
	},
	{
		Key:  "news",
		Name: "News Sites",
		Domains: []string{
			"cnn.com", "*.cnn.com",
			"foxnews.com", "*.foxnews.com",
			"bbc.com", "*.bbc.com",
			"nytimes.com", "*.nytimes.com",
		},
	},
	{
		Key:  "shopping",
		Name: "Shopping",
		Domains: []string{
			"amazon.com", "*.amazon.com",
			"ebay.com", "*.ebay.com",
			"walmart.com", "*.walmart.com",
			"target.com", "*.target.com",
		},
	},
}

// Categories returns the built-in categories in menu order.
func Categories() []Category {
	out := make([]Category, len(categories))
	for i, c := range categories {
		c.Domains = append([]string(nil), c.Domains...)
		out[i] = c
	}
	return out
}

// CategoryByKey looks up a built-in category.
func CategoryByKey(key string) (Category, bool) {
	for _, c := range Categories() {
		if c.Key == key {
			return c, true
		}
	}
	return Category{}, false
}
