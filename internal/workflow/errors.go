package workflow

import "errors"

// 每类错误对应状态机里一个失败出口。除 ErrShutdown 外都允许上层按预算重试。
var (
	// ErrSessionStart 浏览器进程起不来。本层不重试。
	ErrSessionStart = errors.New("browser session start failed")
	// ErrEmailProvision 三种方式都拿不到临时邮箱地址。
	ErrEmailProvision = errors.New("could not retrieve email address")
	// ErrFormField 注册/登录表单缺少必填字段。
	ErrFormField = errors.New("required form field not found")
	// ErrVerificationTimeout 超时仍没等到验证邮件。
	ErrVerificationTimeout = errors.New("verification email not received")
	// ErrVerificationLink 找不到可用的验证链接。
	ErrVerificationLink = errors.New("verification link not found")
	// ErrShutdown 协作式停机，不重试，直接上抛。
	ErrShutdown = errors.New("shutdown requested")
)
