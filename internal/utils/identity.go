package utils

import (
	"math/rand"

	"signup_engine/internal/model"
)

// 桌面 Chrome UA 池，随机轮换降低指纹重合度。
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
}

var viewports = [][2]int{
	{1920, 1080},
	{1680, 1050},
	{1536, 864},
	{1440, 900},
	{1366, 768},
}

// RandomIdentity 为一次尝试抽取独立指纹：UA、分辨率、语言。
func RandomIdentity() model.Identity {
	vp := viewports[rand.Intn(len(viewports))]
	return model.Identity{
		UserAgent: userAgents[rand.Intn(len(userAgents))],
		Width:     vp[0],
		Height:    vp[1],
		Languages: []string{"en-US", "en"},
	}
}
