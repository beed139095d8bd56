package model

import "time"

// Stage 工作流中的一个评审阶段，order 从 1 开始连续编号
type Stage struct {
	Order int    `json:"order"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Workflow 不可变的阶段定义；修改会以相同 key 生成新版本
type Workflow struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	Stages    []Stage   `json:"stages"`
	CreatedAt time.Time `json:"created_at"`
}

// StageByOrder 按 order 查找阶段
func (w *Workflow) StageByOrder(order int) (Stage, bool) {
	for _, s := range w.Stages {
		if s.Order == order {
			return s, true
		}
	}
	return Stage{}, false
}

// LastStage 返回最后一个阶段的 order
func (w *Workflow) LastStage() int {
	return len(w.Stages)
}

// Clone 深拷贝
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Stages = append([]Stage(nil), w.Stages...)
	return &c
}
