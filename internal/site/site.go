// Package site 固化目标站点与临时邮箱站点的 DOM 约定。
// 选择器是对单一站点页面结构的硬编码，站点改版时只需要改这里。
package site

import "regexp"

type Contract struct {
	Name       string
	TargetURL  string
	InboxURL   string
	AuthDomain string
	// VerificationLink 从邮件正文提取验证链接的模式，随 AuthDomain 派生。
	VerificationLink *regexp.Regexp

	// 临时邮箱页面。
	InboxEmailInput  string
	InboxCopyButton  string
	InboxRefreshBtn  string
	InboxMessageList string
	InboxMessageItem string
	InboxMessageBody string

	// 注册/登录弹窗。
	LoginLinkXPath string
	SignupSwitch   string
	EmailInput     string
	PasswordInput  string
	TermsCheckbox  string
	SignupButton   string
	LoginButton    string

	// 验证邮件识别。
	VerifySubject    string
	VerifyButtonText string
	VerifyKeywords   []string
	// 邮件中转跳转链接特征（邮件服务商的点击跟踪域名）。
	RelayLinkMarkers []string

	// 登录成功的页面特征词。
	LoginSuccessMarkers []string
}

// 验证链接与邮箱地址的提取模式。
var (
	VerificationLinkPattern = LinkPattern("auth.medo.dev")
	EmailAddressPattern     = regexp.MustCompile(`[\w\.-]+@[\w\.-]+\.\w+`)
)

// LinkPattern 生成指向给定验证域的链接提取模式。域名允许带端口（本地联调）。
func LinkPattern(authDomain string) *regexp.Regexp {
	return regexp.MustCompile(`https?://` + regexp.QuoteMeta(authDomain) + `[^\s<>"']+`)
}

// Default 返回 medo.dev 的站点约定。
func Default() Contract {
	return Contract{
		Name:             "MeDo",
		TargetURL:        "https://medo.dev/?invitecode=user-9mj2gtv04um8",
		InboxURL:         "https://temp-mail.io/en/",
		AuthDomain:       "auth.medo.dev",
		VerificationLink: VerificationLinkPattern,

		InboxEmailInput:  "#email",
		InboxCopyButton:  `[data-qa="copy-button"]`,
		InboxRefreshBtn:  `[data-qa="refresh-button"]`,
		InboxMessageList: ".email-list",
		InboxMessageItem: ".message",
		InboxMessageBody: ".message__body",

		LoginLinkXPath: `//*[contains(text(), 'Login')]`,
		SignupSwitch:   "#link-signup-login",
		EmailInput:     "#email",
		PasswordInput:  "#password",
		TermsCheckbox:  "#agree-terms",
		SignupButton:   "#btn-signup",
		LoginButton:    "#btn-login",

		VerifySubject:    "Verify your email",
		VerifyButtonText: "Verify Your Account",
		VerifyKeywords:   []string{"MeDo", "Verify", "support@medo.dev"},
		RelayLinkMarkers: []string{"u55282886.ct.sendgrid.net", "click?upn="},

		LoginSuccessMarkers: []string{
			"dashboard", "profile", "logout", "credits",
			"settings", "welcome", "account",
		},
	}
}

// WithOverrides 返回替换了站点地址的副本，空参数保持原值。
// 换了验证域时同步重建链接提取模式。
func (c Contract) WithOverrides(targetURL, inboxURL, authDomain string) Contract {
	if targetURL != "" {
		c.TargetURL = targetURL
	}
	if inboxURL != "" {
		c.InboxURL = inboxURL
	}
	if authDomain != "" && authDomain != c.AuthDomain {
		c.AuthDomain = authDomain
		c.VerificationLink = LinkPattern(authDomain)
	}
	return c
}
