package workflow

import (
	"fmt"
	"strings"
)

// strategy 一个步骤的单个候选方法。run 返回 (值, nil) 表示命中；
// 返回错误表示本方法落空，换下一个。动作类方法命中时返回值可以为空串。
type strategy struct {
	name string
	run  func() (string, error)
}

// firstMatch 按声明顺序执行候选方法，第一个命中即返回。
// 全部落空时把各方法的失败原因拼成一条错误，方便排查是卡在哪一步。
func firstMatch(list []strategy, onMiss func(name string, err error)) (string, error) {
	misses := make([]string, 0, len(list))
	for _, s := range list {
		v, err := s.run()
		if err == nil {
			return v, nil
		}
		if onMiss != nil {
			onMiss(s.name, err)
		}
		misses = append(misses, fmt.Sprintf("%s: %v", s.name, err))
	}
	return "", fmt.Errorf("all strategies failed (%s)", strings.Join(misses, "; "))
}
