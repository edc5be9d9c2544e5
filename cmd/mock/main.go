// mock 是本地联调用的假目标站加假收件箱：页面结构与线上约定的选择器一致，
// 验证邮件按 -mail-delay 延迟投递，便于演练整条注册链路。
package main

import (
	"flag"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"
)

type account struct {
	Email    string
	Password string
	Verified bool
}

type message struct {
	Email     string
	Subject   string
	Body      string
	DeliverAt time.Time
}

type state struct {
	mu       sync.Mutex
	accounts map[string]*account
	messages []*message
	delay    time.Duration
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	mailDelay := flag.Duration("mail-delay", 5*time.Second, "delay before the verification message shows up")
	flag.Parse()

	s := &state{
		accounts: make(map[string]*account),
		delay:    *mailDelay,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSite)
	mux.HandleFunc("/signup", s.handleSignup)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/email-verification", s.handleVerify)
	mux.HandleFunc("/inbox", s.handleInbox)

	log.Printf("mock site listening on %s (mail delay %s)", *addr, *mailDelay)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

var siteTmpl = template.Must(template.New("site").Parse(`<!doctype html>
<html><head><title>MeDo</title></head><body>
<a href="#" onclick="document.getElementById('modal').style.display='block'">Login</a>
<div id="modal">
  <a id="link-signup-login" href="#">Sign up</a>
  <form method="post" action="/signup">
    <input id="email" name="email" type="email">
    <input id="password" name="password" type="password">
    <input id="agree-terms" name="agree" type="checkbox">
    <button id="btn-signup" type="submit">Sign up</button>
    <button id="btn-login" type="submit" formaction="/login">Log in</button>
  </form>
</div>
{{if .Error}}<div class="error">{{.Error}}</div>{{end}}
</body></html>`))

var inboxTmpl = template.Must(template.New("inbox").Parse(`<!doctype html>
<html><head><title>Temp Mail</title></head><body>
<input id="email" value="{{.Address}}">
<button data-qa="copy-button">Copy</button>
<button data-qa="refresh-button" onclick="location.reload()">Refresh</button>
<div class="email-list">
{{range .Messages}}
  <div class="message" title="{{.Subject}}">
    <div class="message__subject">{{.Subject}}</div>
    <div class="message__body">{{.Body}}</div>
  </div>
{{end}}
</div>
</body></html>`))

var dashboardTmpl = template.Must(template.New("dash").Parse(`<!doctype html>
<html><head><title>Dashboard</title></head><body>
<h1>Welcome back</h1>
<nav><a href="/profile">profile</a> <a href="/logout">logout</a></nav>
<p>dashboard, credits: 100</p>
</body></html>`))

func (s *state) handleSite(w http.ResponseWriter, r *http.Request) {
	_ = siteTmpl.Execute(w, map[string]any{"Error": r.URL.Query().Get("error")})
}

func (s *state) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	email := r.FormValue("email")
	password := r.FormValue("password")
	if email == "" || password == "" {
		http.Redirect(w, r, "/?error=missing+fields", http.StatusSeeOther)
		return
	}

	s.mu.Lock()
	s.accounts[email] = &account{Email: email, Password: password}
	link := fmt.Sprintf("http://%s/email-verification?email=%s", r.Host, email)
	s.messages = append(s.messages, &message{
		Email:     email,
		Subject:   "Verify Your Email",
		Body:      fmt.Sprintf(`MeDo support@medo.dev <a href="%s">Verify Your Account</a>`, link),
		DeliverAt: time.Now().Add(s.delay),
	})
	s.mu.Unlock()

	fmt.Fprint(w, "<html><body>Check your inbox to verify your account.</body></html>")
}

func (s *state) handleVerify(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	s.mu.Lock()
	acc := s.accounts[email]
	if acc != nil {
		acc.Verified = true
	}
	s.mu.Unlock()

	if acc == nil {
		http.Error(w, "unknown account", http.StatusNotFound)
		return
	}
	fmt.Fprint(w, "<html><body>Your email has been verified. You can now log in.</body></html>")
}

func (s *state) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	email := r.FormValue("email")
	password := r.FormValue("password")

	s.mu.Lock()
	acc := s.accounts[email]
	s.mu.Unlock()

	if acc == nil || acc.Password != password || !acc.Verified {
		http.Redirect(w, r, "/?error=invalid+credentials", http.StatusSeeOther)
		return
	}
	_ = dashboardTmpl.Execute(w, nil)
}

func (s *state) handleInbox(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		address = "guest@mock.local"
	}

	now := time.Now()
	var visible []*message
	s.mu.Lock()
	for _, m := range s.messages {
		if m.Email == address && now.After(m.DeliverAt) {
			visible = append(visible, m)
		}
	}
	s.mu.Unlock()

	_ = inboxTmpl.Execute(w, map[string]any{
		"Address":  address,
		"Messages": visible,
	})
}
