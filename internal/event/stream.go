package event

import "strings"

// streamManager 维护 Type → Topic → priorityList 的注册表。
// 只在调度 goroutine 上修改，无需加锁。
type streamManager struct {
	byType map[Type]map[string]*priorityList
}

func newStreamManager() *streamManager {
	return &streamManager{byType: make(map[Type]map[string]*priorityList)}
}

func (m *streamManager) subscribe(t Type, topic, name string, priority int, fn HandlerFunc) bool {
	topics, ok := m.byType[t]
	if !ok {
		topics = make(map[string]*priorityList)
		m.byType[t] = topics
	}
	pl, ok := topics[topic]
	if !ok {
		pl = &priorityList{}
		topics[topic] = pl
	}
	return pl.insert(name, priority, fn)
}

// unsubscribe 删除注册；空桶与空的类型表会被回收。
func (m *streamManager) unsubscribe(t Type, topic, name string) bool {
	topics, ok := m.byType[t]
	if !ok {
		return false
	}
	pl, ok := topics[topic]
	if !ok {
		return false
	}
	removed := pl.remove(name)
	if pl.empty() {
		delete(topics, topic)
	}
	if len(topics) == 0 {
		delete(m.byType, t)
	}
	return removed
}

// resolve 组装一次派发的 handler 链：
//
//	[""] + [head: 各级前缀，由粗到细] + [tail: 带尾点前缀，由细到粗] + ["."]
//
// head 收集注册在前缀本身的 handler，tail 收集注册在 "前缀." 下的
// 兜底 handler，后者在更具体的 handler 之后执行。
func (m *streamManager) resolve(t Type, topic string) []entry {
	topics, ok := m.byType[t]
	if !ok {
		return nil
	}
	var chain []entry
	if pl, ok := topics[""]; ok {
		chain = append(chain, pl.items...)
	}
	var head, tail []entry
	if topic != "" && topic != "." {
		prefix := ""
		for _, seg := range strings.Split(topic, ".") {
			if seg == "" {
				continue
			}
			if prefix == "" {
				prefix = seg
			} else {
				prefix += "." + seg
			}
			if pl, ok := topics[prefix]; ok {
				head = append(head, pl.items...)
			}
			if pl, ok := topics[prefix+"."]; ok {
				tail = append(append([]entry{}, pl.items...), tail...)
			}
		}
	}
	chain = append(chain, head...)
	chain = append(chain, tail...)
	if pl, ok := topics["."]; ok {
		chain = append(chain, pl.items...)
	}
	return chain
}
