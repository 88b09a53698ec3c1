package cms

// AssetRef is the store's image/file field: a pointer to an asset document
// plus editorial alt text. Either Asset.URL (dereferenced by the query) or
// Asset.Ref (an opaque asset id) may be populated.
type AssetRef struct {
	Asset *AssetPointer `json:"asset,omitempty"`
	Alt   string        `json:"alt,omitempty"`
}

type AssetPointer struct {
	Ref string `json:"_ref,omitempty"`
	URL string `json:"url,omitempty"`
}

// AltText returns the alt text or "" for a nil ref.
func (a *AssetRef) AltText() string {
	if a == nil {
		return ""
	}
	return a.Alt
}
