package model

import "fmt"

// Identity 一次尝试使用的随机浏览器指纹。每次尝试独立抽取，不跨账号复用。
type Identity struct {
	UserAgent string   `json:"userAgent"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Languages []string `json:"languages"`
}

func (id Identity) AcceptLanguage() string {
	switch len(id.Languages) {
	case 0:
		return "en-US,en"
	case 1:
		return id.Languages[0]
	default:
		out := id.Languages[0]
		for _, l := range id.Languages[1:] {
			out += "," + l
		}
		return out
	}
}

func (id Identity) ViewportLabel() string {
	return fmt.Sprintf("%dx%d", id.Width, id.Height)
}
