package models

// StartUploadRequest is the body of POST /api/video/start.
type StartUploadRequest struct {
	Size int64  `json:"size"`
	Name string `json:"name"`
}

// UploadSession is a provider-issued resumable upload target.
// UploadLink is issued once; VideoURI names the created, not yet finalized video.
type UploadSession struct {
	UploadLink   string `json:"uploadLink"`
	VideoURI     string `json:"videoUri"`
	ProviderPage string `json:"providerPage,omitempty"`
}

// FinalizeRequest is the body of POST /api/video/finalize.
type FinalizeRequest struct {
	VideoURI string `json:"videoUri"`
	Name     string `json:"name"`
}

// FinalizedVideo holds the public links of a renamed video.
type FinalizedVideo struct {
	PlayerLink string `json:"playerLink,omitempty"`
	PageLink   string `json:"pageLink,omitempty"`
}

// PreferredLink returns the embeddable player link, falling back to the page link.
func (v *FinalizedVideo) PreferredLink() string {
	if v == nil {
		return ""
	}
	if v.PlayerLink != "" {
		return v.PlayerLink
	}
	return v.PageLink
}
