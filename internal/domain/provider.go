package domain

// Provider identifies a content provider (social network) an account lives on.
type Provider string

const (
	ProviderInstagram Provider = "instagram"
	ProviderTikTok    Provider = "tiktok"
	ProviderX         Provider = "x"
	ProviderFacebook  Provider = "facebook"
	ProviderYouTube   Provider = "youtube"
	ProviderTelegram  Provider = "telegram"
	ProviderUnknown   Provider = "unknown"
)

// Providers lists every supported provider in a stable order.
var Providers = []Provider{
	ProviderInstagram,
	ProviderTikTok,
	ProviderX,
	ProviderFacebook,
	ProviderYouTube,
	ProviderTelegram,
}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

func (p Provider) String() string {
	return string(p)
}
