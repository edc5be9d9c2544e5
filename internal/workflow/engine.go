// Package workflow 实现单个账号的五步注册状态机：
// 领取临时邮箱 → 提交注册 → 等验证邮件 → 完成验证 → 登录确认。
// 状态只向前推进，任何一步失败即终止本次尝试；会话在所有出口上恰好释放一次。
package workflow

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"signup_engine/internal/browser"
	"signup_engine/internal/config"
	"signup_engine/internal/lifecycle"
	"signup_engine/internal/logbus"
	"signup_engine/internal/model"
	"signup_engine/internal/site"
	"signup_engine/internal/utils"
)

type Engine struct {
	provider *browser.Provider
	contract site.Contract
	timeouts config.TimeoutsConfig
	browserC config.BrowserConfig
	bus      *logbus.Bus
	rt       *lifecycle.Runtime
}

type Options struct {
	Provider *browser.Provider
	Contract site.Contract
	Timeouts config.TimeoutsConfig
	Browser  config.BrowserConfig
	Bus      *logbus.Bus
	Runtime  *lifecycle.Runtime
}

func New(opts Options) *Engine {
	return &Engine{
		provider: opts.Provider,
		contract: opts.Contract,
		timeouts: opts.Timeouts,
		browserC: opts.Browser,
		bus:      opts.Bus,
		rt:       opts.Runtime,
	}
}

// RunAccount 对一个账号序号执行完整流程，返回的结果一定满足：
// 成功则邮箱/密码非空，失败则错误描述非空。这里不重试，重试交给上层。
func (e *Engine) RunAccount(ctx context.Context, idx, total, attempt int) model.AccountResult {
	start := time.Now()
	password := utils.GeneratePassword(e.browserC.PasswordLength, e.browserC.UseSymbols())
	identity := utils.RandomIdentity()

	e.log("info", idx, fmt.Sprintf("开始注册账号 %d/%d", idx, total), nil)

	sess, err := e.provider.Open(ctx, identity)
	if err != nil {
		return e.failed(idx, attempt, start, fmt.Errorf("%w: %v", ErrSessionStart, err))
	}
	// 无论走到哪个终态，会话都在这里恰好释放一次（含存储清理）。
	defer sess.Close()

	f := &flow{engine: e, sess: sess, idx: idx}

	email, err := f.provisionInbox(ctx)
	if err != nil {
		return e.failed(idx, attempt, start, err)
	}
	e.log("info", idx, "已领取临时邮箱", map[string]any{"email": email})

	if err := f.submitSignup(ctx, email, password); err != nil {
		return e.failed(idx, attempt, start, err)
	}
	e.log("debug", idx, "注册表单已提交", nil)

	if err := f.awaitVerification(ctx); err != nil {
		return e.failed(idx, attempt, start, err)
	}

	if err := f.completeVerification(ctx); err != nil {
		return e.failed(idx, attempt, start, err)
	}

	if err := f.loginAndValidate(ctx, email, password); err != nil {
		return e.failed(idx, attempt, start, err)
	}

	duration := time.Since(start)
	e.log("info", idx, fmt.Sprintf("账号注册成功，用时 %.1fs", duration.Seconds()), map[string]any{"email": email})
	return model.AccountResult{
		Success:      true,
		Email:        email,
		Password:     password,
		AccountIndex: idx,
		Attempt:      attempt,
		Duration:     duration,
	}
}

func (e *Engine) failed(idx, attempt int, start time.Time, err error) model.AccountResult {
	e.log("error", idx, "注册失败", map[string]any{"error": err.Error()})
	return model.AccountResult{
		Success:      false,
		Error:        err.Error(),
		AccountIndex: idx,
		Attempt:      attempt,
		Duration:     time.Since(start),
	}
}

func (e *Engine) log(level string, idx int, msg string, fields map[string]any) {
	if e.bus == nil {
		return
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["account"] = idx
	e.bus.Log(level, msg, fields)
}

// flow 绑定一次尝试的两个标签页：目标站点页与临时邮箱页。
type flow struct {
	engine *Engine
	sess   *browser.Session
	idx    int

	sitePage *rod.Page
	mailPage *rod.Page
}

func (f *flow) contract() site.Contract         { return f.engine.contract }
func (f *flow) timeouts() config.TimeoutsConfig { return f.engine.timeouts }

func (f *flow) log(level, msg string, fields map[string]any) {
	f.engine.log(level, f.idx, msg, fields)
}

func (f *flow) miss(step string) func(name string, err error) {
	return func(name string, err error) {
		f.log("debug", step+" 候选方法落空", map[string]any{"method": name, "error": err.Error()})
	}
}

// ---- 状态 1：领取临时邮箱 ----

func (f *flow) provisionInbox(ctx context.Context) (string, error) {
	page, err := f.sess.NewPage(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmailProvision, err)
	}
	f.mailPage = page

	c := f.contract()
	if err := rod.Try(func() {
		p := page.Timeout(f.timeouts().PageLoad())
		p.MustNavigate(c.InboxURL)
		p.MustWaitLoad()
	}); err != nil {
		return "", fmt.Errorf("%w: open inbox provider: %v", ErrEmailProvision, err)
	}

	email, err := firstMatch([]strategy{
		{name: "input_field", run: func() (string, error) { return f.emailFromInput(10 * time.Second) }},
		{name: "clipboard", run: func() (string, error) { return f.emailFromClipboard() }},
		{name: "page_text", run: func() (string, error) { return f.emailFromPageText() }},
	}, f.miss("领取邮箱"))
	if err != nil {
		f.logInboxDiagnostics()
		return "", fmt.Errorf("%w: %v", ErrEmailProvision, err)
	}
	return email, nil
}

// emailFromInput 等输入框的 value 被站点填充成带 @ 的地址。
func (f *flow) emailFromInput(wait time.Duration) (string, error) {
	c := f.contract()
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		var value string
		err := rod.Try(func() {
			el := f.mailPage.Timeout(2 * time.Second).MustElement(c.InboxEmailInput)
			value = el.MustProperty("value").Str()
		})
		if err == nil && strings.Contains(value, "@") {
			return strings.TrimSpace(value), nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return "", fmt.Errorf("input value never contained @")
}

// emailFromClipboard 点复制按钮后从剪贴板读。无头环境可能没有剪贴板权限，
// 失败就换下一个方法。
func (f *flow) emailFromClipboard() (string, error) {
	c := f.contract()
	var value string
	err := rod.Try(func() {
		btn := f.mailPage.Timeout(5 * time.Second).MustElement(c.InboxCopyButton)
		btn.MustClick()
		time.Sleep(500 * time.Millisecond)
		value = f.mailPage.Timeout(3 * time.Second).MustEval(`() => navigator.clipboard.readText()`).Str()
	})
	if err != nil {
		return "", err
	}
	if !strings.Contains(value, "@") {
		return "", fmt.Errorf("clipboard text %q is not an email", value)
	}
	return strings.TrimSpace(value), nil
}

func (f *flow) emailFromPageText() (string, error) {
	var body string
	err := rod.Try(func() {
		body = f.mailPage.Timeout(3 * time.Second).MustElement("body").MustText()
	})
	if err != nil {
		return "", err
	}
	if m := site.EmailAddressPattern.FindString(body); m != "" {
		return m, nil
	}
	return "", fmt.Errorf("no email-shaped text on page")
}

// logInboxDiagnostics 三种方法都失败时落一份现场：URL、标题、原始值、正文片段。
func (f *flow) logInboxDiagnostics() {
	fields := map[string]any{}
	_ = rod.Try(func() {
		info := f.mailPage.MustInfo()
		fields["url"] = info.URL
		fields["title"] = info.Title
	})
	_ = rod.Try(func() {
		el := f.mailPage.Timeout(time.Second).MustElement(f.contract().InboxEmailInput)
		fields["inputValue"] = el.MustProperty("value").Str()
	})
	_ = rod.Try(func() {
		body := f.mailPage.Timeout(time.Second).MustElement("body").MustText()
		if len(body) > 500 {
			body = body[:500]
		}
		fields["bodyPreview"] = body
	})
	f.log("debug", "领取邮箱失败现场", fields)
}

// ---- 状态 2：提交注册 ----

func (f *flow) submitSignup(ctx context.Context, email, password string) error {
	page, err := f.sess.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormField, err)
	}
	f.sitePage = page

	c := f.contract()
	if err := rod.Try(func() {
		p := page.Timeout(f.timeouts().PageLoad())
		p.MustNavigate(c.TargetURL)
		p.MustWaitLoad()
	}); err != nil {
		return fmt.Errorf("%w: open target site: %v", ErrFormField, err)
	}

	// 弹窗打不开/切换失败先不视为致命，后面找不到输入框自然会报错。
	f.safeClickX(page, c.LoginLinkXPath, "打开登录弹窗", 5*time.Second)
	f.safeClick(page, c.SignupSwitch, "切换到注册", 5*time.Second)

	if err := f.fillCredentials(page, email, password); err != nil {
		return err
	}
	f.acceptTermsIfPresent(page)

	if !f.safeClick(page, c.SignupButton, "提交注册", 5*time.Second) {
		return fmt.Errorf("%w: signup button", ErrFormField)
	}
	return nil
}

func (f *flow) fillCredentials(page *rod.Page, email, password string) error {
	c := f.contract()
	if err := rod.Try(func() {
		el := page.Timeout(f.timeouts().PageLoad()).MustElement(c.EmailInput)
		el.MustInput(email)
	}); err != nil {
		return fmt.Errorf("%w: email input: %v", ErrFormField, err)
	}
	if err := rod.Try(func() {
		el := page.Timeout(5 * time.Second).MustElement(c.PasswordInput)
		el.MustInput(password)
	}); err != nil {
		return fmt.Errorf("%w: password input: %v", ErrFormField, err)
	}
	return nil
}

// acceptTermsIfPresent 条款勾选框不一定存在，存在且未勾选时用脚本点一下。
func (f *flow) acceptTermsIfPresent(page *rod.Page) {
	c := f.contract()
	_ = rod.Try(func() {
		el := page.Timeout(2 * time.Second).MustElement(c.TermsCheckbox)
		if !el.MustProperty("checked").Bool() {
			el.MustEval(`() => this.click()`)
		}
	})
}

// ---- 状态 3：等验证邮件 ----

func (f *flow) awaitVerification(ctx context.Context) error {
	c := f.contract()
	page := f.mailPage
	timeout := f.timeouts().EmailWait()
	deadline := time.Now().Add(timeout)

	f.log("info", "等待验证邮件...", nil)

	for time.Now().Before(deadline) {
		if f.engine.rt != nil && f.engine.rt.ShutdownRequested() {
			return ErrShutdown
		}

		// 先点站点自己的刷新控件，没有就整页重载。
		if err := rod.Try(func() {
			page.Timeout(2 * time.Second).MustElement(c.InboxRefreshBtn).MustClick()
		}); err != nil {
			_ = rod.Try(func() { page.Timeout(f.timeouts().PageLoad()).MustReload() })
		}
		if !sleepCtx(ctx, f.timeouts().SettleDelay()) {
			return ErrShutdown
		}

		var listText string
		_ = rod.Try(func() {
			listText = page.Timeout(2 * time.Second).MustElement(c.InboxMessageList).MustText()
		})
		if listText != "" && containsAnyKeyword(listText, c.VerifyKeywords) {
			f.log("info", "验证邮件已到达", nil)
			f.echoVerificationLink(page)
			f.openMessage(page)
			return nil
		}

		if !sleepCtx(ctx, f.timeouts().PollInterval()) {
			return ErrShutdown
		}
	}
	return fmt.Errorf("%w within %s", ErrVerificationTimeout, timeout)
}

// echoVerificationLink 在打开邮件前先把验证链接（去掉 # 尾巴）打出来，方便人工兜底。
func (f *flow) echoVerificationLink(page *rod.Page) {
	_ = rod.Try(func() {
		html := page.MustHTML()
		if link := f.contract().VerificationLink.FindString(html); link != "" {
			clean, _, _ := strings.Cut(link, "#")
			f.log("info", "验证链接", map[string]any{"link": clean})
		}
	})
}

func (f *flow) openMessage(page *rod.Page) {
	c := f.contract()
	// 优先点标题匹配的那封，点不到就退回列表第一封。
	err := rod.Try(func() {
		xpath := fmt.Sprintf(`//*[contains(@title, '%s') or contains(@data-qa, 'message')]`, c.VerifySubject)
		page.Timeout(3 * time.Second).MustElementX(xpath).MustClick()
	})
	if err != nil {
		_ = rod.Try(func() {
			page.Timeout(3 * time.Second).MustElement(c.InboxMessageItem).MustClick()
		})
	}
	time.Sleep(f.timeouts().SettleDelay())
}

// ---- 状态 4：完成验证 ----

func (f *flow) completeVerification(ctx context.Context) error {
	page := f.mailPage
	_ = rod.Try(func() {
		page.MustEval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	})
	time.Sleep(time.Second)

	_, err := firstMatch([]strategy{
		{name: "verify_button", run: func() (string, error) { return f.clickVerifyButton(page) }},
		{name: "page_source_link", run: func() (string, error) { return f.navigateExtractedLink(page) }},
		{name: "dom_auth_links", run: func() (string, error) { return f.navigateAuthDomainLink(page) }},
		{name: "relay_links", run: func() (string, error) { return f.navigateRelayLink(page) }},
	}, f.miss("完成验证"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationLink, err)
	}
	return nil
}

func (f *flow) clickVerifyButton(page *rod.Page) (string, error) {
	c := f.contract()
	if err := rod.Try(func() {
		xpath := fmt.Sprintf(`//*[contains(text(), '%s')]`, c.VerifyButtonText)
		el := page.Timeout(5 * time.Second).MustElementX(xpath)
		el.MustScrollIntoView()
		time.Sleep(300 * time.Millisecond)
		el.MustClick()
	}); err != nil {
		return "", err
	}
	time.Sleep(3 * time.Second)

	var current string
	_ = rod.Try(func() { current = page.MustInfo().URL })
	if strings.Contains(current, f.contract().AuthDomain) || strings.Contains(current, "email-verification") {
		time.Sleep(2 * time.Second)
		return current, nil
	}
	return "", fmt.Errorf("no redirect after button click (url=%s)", current)
}

func (f *flow) navigateExtractedLink(page *rod.Page) (string, error) {
	var html string
	if err := rod.Try(func() { html = page.MustHTML() }); err != nil {
		return "", err
	}
	link := f.contract().VerificationLink.FindString(html)
	if link == "" {
		return "", fmt.Errorf("no verification link in page source")
	}
	if err := rod.Try(func() { page.Timeout(f.timeouts().PageLoad()).MustNavigate(link) }); err != nil {
		return "", err
	}
	time.Sleep(5 * time.Second)
	return link, nil
}

func (f *flow) navigateAuthDomainLink(page *rod.Page) (string, error) {
	href, err := f.findHref(page, func(h string) bool {
		return strings.Contains(h, f.contract().AuthDomain) && strings.Contains(h, "email-verification")
	})
	if err != nil {
		return "", err
	}
	if err := rod.Try(func() { page.Timeout(f.timeouts().PageLoad()).MustNavigate(href) }); err != nil {
		return "", err
	}
	time.Sleep(5 * time.Second)
	return href, nil
}

func (f *flow) navigateRelayLink(page *rod.Page) (string, error) {
	markers := f.contract().RelayLinkMarkers
	href, err := f.findHref(page, func(h string) bool {
		return containsAnyKeyword(h, markers)
	})
	if err != nil {
		return "", err
	}
	if err := rod.Try(func() { page.Timeout(f.timeouts().PageLoad()).MustNavigate(href) }); err != nil {
		return "", err
	}
	time.Sleep(5 * time.Second)
	return href, nil
}

func (f *flow) findHref(page *rod.Page, match func(string) bool) (string, error) {
	var found string
	err := rod.Try(func() {
		links := page.Timeout(3 * time.Second).MustElements("a")
		for _, link := range links {
			href := link.MustProperty("href").Str()
			if href != "" && match(href) {
				found = href
				return
			}
		}
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no matching hyperlink")
	}
	return found, nil
}

// ---- 状态 5：登录确认 ----

// loginAndValidate 回到目标站点用刚注册的凭据登录。判定是“乐观式”的：
// 命中成功特征或 URL 离开登录态即成功；两者都判不出来时同样按成功处理，
// 这是刻意保留的启发式约定，不做硬校验。
func (f *flow) loginAndValidate(ctx context.Context, email, password string) error {
	c := f.contract()
	page := f.sitePage

	base := baseSiteURL(c.TargetURL)
	if err := rod.Try(func() {
		p := page.Timeout(f.timeouts().PageLoad())
		p.MustNavigate(base)
		p.MustWaitLoad()
	}); err != nil {
		return fmt.Errorf("%w: reopen target site: %v", ErrFormField, err)
	}
	time.Sleep(2 * time.Second)

	f.safeClickX(page, c.LoginLinkXPath, "打开登录弹窗", 5*time.Second)
	time.Sleep(time.Second)

	if err := f.fillCredentials(page, email, password); err != nil {
		return err
	}
	f.acceptTermsIfPresent(page)
	f.safeClick(page, c.LoginButton, "提交登录", 5*time.Second)
	time.Sleep(3 * time.Second)

	var current, html string
	_ = rod.Try(func() { current = page.MustInfo().URL })
	_ = rod.Try(func() { html = strings.ToLower(page.MustHTML()) })

	if containsAnyKeyword(html, c.LoginSuccessMarkers) {
		f.log("info", "登录确认成功：命中页面特征", nil)
		return nil
	}
	lowerURL := strings.ToLower(current)
	if current != "" && !strings.Contains(lowerURL, "login") && !strings.Contains(lowerURL, "auth") {
		f.log("info", "登录确认成功：URL 已离开登录页", nil)
		return nil
	}

	_ = rod.Try(func() {
		errEl := page.Timeout(time.Second).MustElement(".error")
		f.log("warn", "登录页提示错误", map[string]any{"text": errEl.MustText()})
	})

	f.log("info", "登录结果无法判定，按成功处理", nil)
	return nil
}

// ---- 公共小工具 ----

// safeClick 等元素可点并点击；超时或被遮挡时退回脚本点击。
func (f *flow) safeClick(page *rod.Page, selector, desc string, timeout time.Duration) bool {
	err := rod.Try(func() {
		el := page.Timeout(timeout).MustElement(selector)
		el.MustScrollIntoView()
		time.Sleep(200 * time.Millisecond)
		el.MustClick()
	})
	if err == nil {
		f.log("debug", "点击成功："+desc, nil)
		return true
	}
	if jsErr := rod.Try(func() {
		page.Timeout(timeout).MustElement(selector).MustEval(`() => this.click()`)
	}); jsErr == nil {
		f.log("debug", "点击成功（脚本兜底）："+desc, nil)
		return true
	}
	f.log("warn", "点击失败："+desc, map[string]any{"error": err.Error()})
	return false
}

func (f *flow) safeClickX(page *rod.Page, xpath, desc string, timeout time.Duration) bool {
	err := rod.Try(func() {
		el := page.Timeout(timeout).MustElementX(xpath)
		el.MustScrollIntoView()
		time.Sleep(200 * time.Millisecond)
		el.MustClick()
	})
	if err == nil {
		f.log("debug", "点击成功："+desc, nil)
		return true
	}
	if jsErr := rod.Try(func() {
		page.Timeout(timeout).MustElementX(xpath).MustEval(`() => this.click()`)
	}); jsErr == nil {
		f.log("debug", "点击成功（脚本兜底）："+desc, nil)
		return true
	}
	f.log("warn", "点击失败："+desc, map[string]any{"error": err.Error()})
	return false
}

func containsAnyKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// baseSiteURL 去掉邀请链接上的查询参数，回到站点首页。
func baseSiteURL(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return target
	}
	return u.Scheme + "://" + u.Host
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
