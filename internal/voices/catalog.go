// Package voices holds the static catalog of voice identifiers the
// underlying model ships with. Identifiers are opaque to the rest of the
// service; the catalog exists for discovery, not validation, since the
// model accepts voices the catalog may not list yet.
package voices

type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
}

var catalog = []Voice{
	{ID: "zf_001", Name: "小雅", Language: "zh-CN", Gender: "female"},
	{ID: "zf_002", Name: "小婉", Language: "zh-CN", Gender: "female"},
	{ID: "zf_003", Name: "小霜", Language: "zh-CN", Gender: "female"},
	{ID: "zf_008", Name: "小蓉", Language: "zh-CN", Gender: "female"},
	{ID: "zf_017", Name: "小琳", Language: "zh-CN", Gender: "female"},
	{ID: "zm_001", Name: "云帆", Language: "zh-CN", Gender: "male"},
	{ID: "zm_009", Name: "云鹤", Language: "zh-CN", Gender: "male"},
	{ID: "zm_010", Name: "云川", Language: "zh-CN", Gender: "male"},
}

// All returns the catalog in stable order.
func All() []Voice {
	out := make([]Voice, len(catalog))
	copy(out, catalog)
	return out
}

// Known reports whether id appears in the catalog.
func Known(id string) bool {
	for _, v := range catalog {
		if v.ID == id {
			return true
		}
	}
	return false
}

// Languages returns the distinct languages covered by the catalog.
func Languages() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range catalog {
		if !seen[v.Language] {
			seen[v.Language] = true
			out = append(out, v.Language)
		}
	}
	return out
}
