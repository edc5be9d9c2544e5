package site

import "testing"

func TestVerificationLinkPattern(t *testing.T) {
	html := `<a href="https://auth.medo.dev/email-verification?token=abc123&amp;x=1#frag">Verify Your Account</a>`
	got := VerificationLinkPattern.FindString(html)
	want := "https://auth.medo.dev/email-verification?token=abc123&amp;x=1#frag"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	if VerificationLinkPattern.MatchString(`https://evil.dev/email-verification`) {
		t.Fatal("pattern must only match the auth domain")
	}
	// 引号和空白都是链接边界。
	got = VerificationLinkPattern.FindString(`before https://auth.medo.dev/v?t=1 after`)
	if got != "https://auth.medo.dev/v?t=1" {
		t.Fatalf("whitespace boundary broken: %q", got)
	}
}

func TestWithOverridesRedirectsAllEndpoints(t *testing.T) {
	c := Default().WithOverrides("http://localhost:8080/", "http://localhost:8080/inbox", "localhost:8080")

	if c.TargetURL != "http://localhost:8080/" {
		t.Fatalf("TargetURL = %q", c.TargetURL)
	}
	if c.InboxURL != "http://localhost:8080/inbox" {
		t.Fatalf("InboxURL = %q", c.InboxURL)
	}
	if c.AuthDomain != "localhost:8080" {
		t.Fatalf("AuthDomain = %q", c.AuthDomain)
	}

	// 换验证域后链接模式必须跟着走，否则邮件里的链接永远提取不出来。
	link := `http://localhost:8080/email-verification?email=a%40b.c`
	if got := c.VerificationLink.FindString("click " + link + " now"); got != link {
		t.Fatalf("override link not matched: %q", got)
	}
	if c.VerificationLink.MatchString("https://auth.medo.dev/email-verification?x=1") {
		t.Fatal("old auth domain must no longer match")
	}
}

func TestWithOverridesEmptyArgsKeepDefaults(t *testing.T) {
	c := Default().WithOverrides("", "", "")
	d := Default()
	if c.TargetURL != d.TargetURL || c.InboxURL != d.InboxURL || c.AuthDomain != d.AuthDomain {
		t.Fatalf("empty overrides changed the contract: %+v", c)
	}
	if c.VerificationLink != VerificationLinkPattern {
		t.Fatal("default link pattern must be preserved")
	}
}

func TestEmailAddressPattern(t *testing.T) {
	cases := map[string]string{
		"Your address: tmp.user-1@temp-mail.io is ready": "tmp.user-1@temp-mail.io",
		"plain@example.com":                              "plain@example.com",
		"no address here":                                "",
	}
	for in, want := range cases {
		if got := EmailAddressPattern.FindString(in); got != want {
			t.Fatalf("FindString(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefaultContractIsComplete(t *testing.T) {
	c := Default()
	for name, v := range map[string]string{
		"TargetURL":        c.TargetURL,
		"InboxURL":         c.InboxURL,
		"AuthDomain":       c.AuthDomain,
		"InboxEmailInput":  c.InboxEmailInput,
		"SignupButton":     c.SignupButton,
		"LoginButton":      c.LoginButton,
		"VerifyButtonText": c.VerifyButtonText,
	} {
		if v == "" {
			t.Fatalf("contract field %s is empty", name)
		}
	}
	if len(c.VerifyKeywords) == 0 || len(c.LoginSuccessMarkers) == 0 {
		t.Fatal("keyword lists must not be empty")
	}
}
