package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"signup_engine/internal/config"
	"signup_engine/internal/logbus"
)

type EmailNotifier struct {
	cfg config.NotifyConfig
	bus *logbus.Bus

	mu     sync.Mutex
	queue  chan RunFinishedEvent
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup
}

func NewEmailNotifier(cfg config.NotifyConfig, bus *logbus.Bus) (*EmailNotifier, error) {
	if err := validateNotifyConfig(cfg); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		cfg:    cfg,
		bus:    bus,
		queue:  make(chan RunFinishedEvent, 8),
		ctx:    ctx,
		cancel: cancel,
	}
	n.wg.Add(1)
	go n.loop()
	return n, nil
}

func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyRunFinished(_ context.Context, evt RunFinishedEvent) {
	select {
	case n.queue <- evt:
	default:
		if n.bus != nil {
			n.bus.Log("warn", "邮件通知丢弃：队列已满", map[string]any{"runId": evt.RunID})
		}
	}
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			// 退出前把队里剩下的发完。
			for {
				select {
				case evt := <-n.queue:
					n.send(evt)
				default:
					return
				}
			}
		case evt := <-n.queue:
			n.send(evt)
		}
	}
}

func (n *EmailNotifier) send(evt RunFinishedEvent) {
	sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := SendRunFinishedEmail(sendCtx, n.cfg, evt); err != nil {
		if n.bus != nil {
			n.bus.Log("warn", "通知邮件发送失败", map[string]any{
				"runId": evt.RunID,
				"error": err.Error(),
			})
		}
		return
	}
	if n.bus != nil {
		n.bus.Log("info", "通知邮件已发送", map[string]any{
			"runId": evt.RunID,
			"to":    n.recipient(),
		})
	}
}

func (n *EmailNotifier) recipient() string {
	to := strings.TrimSpace(n.cfg.To)
	if to == "" {
		to = strings.TrimSpace(n.cfg.Email)
	}
	return to
}

func validateNotifyConfig(cfg config.NotifyConfig) error {
	email := strings.TrimSpace(cfg.Email)
	if email == "" {
		return errors.New("notify email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid notify email")
	}
	if strings.TrimSpace(cfg.AuthCode) == "" {
		return errors.New("notify authCode is required")
	}
	return nil
}

func SendRunFinishedEmail(ctx context.Context, cfg config.NotifyConfig, evt RunFinishedEvent) error {
	if err := validateNotifyConfig(cfg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	email := strings.TrimSpace(cfg.Email)
	host := strings.TrimSpace(cfg.SMTPHost)
	port := cfg.SMTPPort
	useSSL := port == 465
	if host == "" {
		var err error
		host, port, useSSL, err = smtpConfigForEmail(email)
		if err != nil {
			return err
		}
	}

	to := strings.TrimSpace(cfg.To)
	if to == "" {
		to = email
	}

	subject := fmt.Sprintf("注册批次完成：成功 %d / 共 %d", evt.Successful, evt.Total)
	htmlBody, textBody, err := buildRunFinishedBody(evt)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(email, "注册助手"))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(cfg.AuthCode))
	d.SSL = useSSL
	return d.DialAndSend(msg)
}

// smtpConfigForEmail 按发件域猜常见服务商的 SMTP 配置，猜不到就按惯例 smtp.<domain>:465。
func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))

	switch {
	case domain == "qq.com" || strings.HasSuffix(domain, ".qq.com") || domain == "foxmail.com":
		return "smtp.qq.com", 465, true, nil
	case domain == "163.com" || domain == "126.com" || domain == "yeah.net":
		return "smtp.163.com", 465, true, nil
	case domain == "gmail.com":
		return "smtp.gmail.com", 587, false, nil
	case domain == "outlook.com" || domain == "hotmail.com" || domain == "live.com":
		return "smtp.office365.com", 587, false, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}

var runFinishedTmpl = template.Must(template.New("runFinished").Parse(`
<h3>注册批次完成</h3>
<p>运行 ID：{{.RunID}}</p>
<p>总数 {{.Total}}，成功 <b>{{.Successful}}</b>，失败 {{.Failed}}，总用时 {{.DurationText}}</p>
{{if .Emails}}
<p>新账号：</p>
<ul>{{range .Emails}}<li>{{.}}</li>{{end}}</ul>
{{end}}
{{if .Errors}}
<p>失败原因：</p>
<ul>{{range .Errors}}<li>{{.}}</li>{{end}}</ul>
{{end}}
`))

func buildRunFinishedBody(evt RunFinishedEvent) (htmlBody, textBody string, err error) {
	data := struct {
		RunFinishedEvent
		DurationText string
	}{
		RunFinishedEvent: evt,
		DurationText:     fmt.Sprintf("%.1fs", evt.Duration.Seconds()),
	}

	var buf bytes.Buffer
	if err := runFinishedTmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}

	var text strings.Builder
	fmt.Fprintf(&text, "注册批次完成\n运行 ID：%s\n总数 %d，成功 %d，失败 %d，总用时 %s\n",
		evt.RunID, evt.Total, evt.Successful, evt.Failed, data.DurationText)
	for _, e := range evt.Emails {
		fmt.Fprintf(&text, "新账号：%s\n", e)
	}
	for _, e := range evt.Errors {
		fmt.Fprintf(&text, "失败：%s\n", e)
	}
	return buf.String(), text.String(), nil
}
