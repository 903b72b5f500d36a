package domain

import "time"

// Image kinds that can be uploaded for a tenant profile.
const (
	ImageLogo   = "logo"
	ImageBanner = "banner"
	ImagePopup  = "popup"
)

// Link is one entry of the link card.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Tenant is a restaurant account and its public profile.
type Tenant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	LogoURL       string    `json:"logo_url,omitempty"`
	BannerURL     string    `json:"banner_url,omitempty"`
	PopupImageURL string    `json:"popup_image_url,omitempty"`
	PopupEnabled  bool      `json:"popup_enabled"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	Links         []Link    `json:"links"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsValidImageKind checks an upload kind.
func IsValidImageKind(kind string) bool {
	return kind == ImageLogo || kind == ImageBanner || kind == ImagePopup
}

// ImageURL returns the current URL for kind.
func (t *Tenant) ImageURL(kind string) string {
	switch kind {
	case ImageLogo:
		return t.LogoURL
	case ImageBanner:
		return t.BannerURL
	case ImagePopup:
		return t.PopupImageURL
	}
	return ""
}

// SetImageURL stores url for kind.
func (t *Tenant) SetImageURL(kind, url string) {
	switch kind {
	case ImageLogo:
		t.LogoURL = url
	case ImageBanner:
		t.BannerURL = url
	case ImagePopup:
		t.PopupImageURL = url
	}
}

// PublicMenu is what the digital menu page renders.
type PublicMenu struct {
	Tenant     *Tenant    `json:"tenant"`
	Categories []Category `json:"categories"`
	Products   []Product  `json:"products"`
}

// LinkCard is the social profile page.
type LinkCard struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	LogoURL string `json:"logo_url,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Links   []Link `json:"links"`
}

// LinkCard projects the tenant onto its link card.
func (t *Tenant) LinkCard() LinkCard {
	links := t.Links
	if links == nil {
		links = []Link{}
	}
	return LinkCard{
		Name:    t.Name,
		Slug:    t.Slug,
		LogoURL: t.LogoURL,
		Phone:   t.Phone,
		Address: t.Address,
		Links:   links,
	}
}
