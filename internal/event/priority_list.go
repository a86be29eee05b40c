package event

import "sort"

// entry 是一条 handler 注册记录。seq 记录注册次序，
// 同优先级的 handler 按注册顺序执行。
type entry struct {
	name     string
	priority int
	seq      int
	fn       HandlerFunc
}

// priorityList 维护单个 (Type, Topic) 桶内的 handler，
// 按优先级降序排列，同优先级保持插入顺序。
type priorityList struct {
	items []entry
	seq   int
}

// insert 把 handler 插入到有序位置；同名注册是幂等的。
func (l *priorityList) insert(name string, priority int, fn HandlerFunc) bool {
	for _, it := range l.items {
		if it.name == name {
			return false
		}
	}
	l.seq++
	e := entry{name: name, priority: priority, seq: l.seq, fn: fn}
	idx := sort.Search(len(l.items), func(i int) bool {
		if l.items[i].priority != e.priority {
			return l.items[i].priority < e.priority
		}
		return l.items[i].seq > e.seq
	})
	l.items = append(l.items, entry{})
	copy(l.items[idx+1:], l.items[idx:])
	l.items[idx] = e
	return true
}

// remove 按名称删除，返回是否删除成功。
func (l *priorityList) remove(name string) bool {
	for i, it := range l.items {
		if it.name == name {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

func (l *priorityList) empty() bool { return len(l.items) == 0 }
