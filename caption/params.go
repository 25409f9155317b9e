package caption

// Params are the extension parameters a field is configured with. The host
// supplies two layers, installation-wide and per-field instance, and the
// installation layer wins for every key.
type Params struct {
	Installation map[string]any
	Instance     map[string]any

	// Visualisation is the host's preview host, used when neither layer
	// names an image host
	Visualisation string
	// DefaultImageHost is the last resort before the link's own defaultHost
	DefaultImageHost string
}

// ImagePointer returns the (possibly relative) pointer to the image link
// this field captions, or "" when none is configured.
func (p Params) ImagePointer() string {
	return p.firstString("image")
}

// AutoCaption reports whether a caption is requested automatically when an
// image appears and the field is empty.
func (p Params) AutoCaption() bool {
	return p.Installation["autoCaption"] == true || p.Instance["autoCaption"] == true
}

// ImageHost returns the host retrieval URLs are built against, or "" to use
// the link's own defaultHost.
func (p Params) ImageHost() string {
	if h := p.firstString("imageHost"); h != "" {
		return h
	}
	if p.Visualisation != "" {
		return p.Visualisation
	}
	return p.DefaultImageHost
}

func (p Params) firstString(key string) string {
	if s, _ := p.Installation[key].(string); s != "" {
		return s
	}
	s, _ := p.Instance[key].(string)
	return s
}
