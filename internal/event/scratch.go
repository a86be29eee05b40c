package event

import "time"

// ScratchKey 枚举 handler 链内共享数据的键，避免裸字符串拼写错误。
type ScratchKey uint8

const (
	// ScratchStartTime 由调度循环在链首写入，链尾用来统计派发耗时。
	ScratchStartTime ScratchKey = iota
	// ScratchNote 供链上 handler 传递自由文本。
	ScratchNote
)

// Scratch 是单次派发内 handler 之间传递数据的草稿区。
// 链上靠前的 handler 写入，靠后的读取；派发结束即丢弃。
type Scratch struct {
	vals map[ScratchKey]any
}

func newScratch() *Scratch {
	return &Scratch{vals: make(map[ScratchKey]any, 4)}
}

func (s *Scratch) Set(k ScratchKey, v any) {
	s.vals[k] = v
}

func (s *Scratch) Get(k ScratchKey) (any, bool) {
	v, ok := s.vals[k]
	return v, ok
}

func (s *Scratch) Time(k ScratchKey) (time.Time, bool) {
	v, ok := s.vals[k]
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

func (s *Scratch) String(k ScratchKey) (string, bool) {
	v, ok := s.vals[k]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}
