package model

import "time"

// AccountResult 一次账号注册尝试的最终结果。
// 成功时 Email/Password 必须非空；失败时 Error 必须非空。
// 结果返回后不再修改，汇总时只读。
type AccountResult struct {
	Success      bool          `json:"success"`
	Email        string        `json:"email,omitempty"`
	Password     string        `json:"password,omitempty"`
	Error        string        `json:"error,omitempty"`
	AccountIndex int           `json:"accountIndex"`
	Attempt      int           `json:"attempt"`
	Duration     time.Duration `json:"duration"`
}

type Summary struct {
	RunID         string          `json:"runId"`
	Total         int             `json:"total"`
	Successful    int             `json:"successful"`
	Failed        int             `json:"failed"`
	TotalDuration time.Duration   `json:"totalDuration"`
	AvgDuration   time.Duration   `json:"avgDuration"`
	Results       []AccountResult `json:"results"`
}

func (s Summary) SuccessResults() []AccountResult {
	out := make([]AccountResult, 0, s.Successful)
	for _, r := range s.Results {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

func (s Summary) FailedResults() []AccountResult {
	out := make([]AccountResult, 0, s.Failed)
	for _, r := range s.Results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}
