package event

import "time"

// Type 标识事件流的种类，handler 按 (Type, Topic) 订阅。
type Type uint8

const (
	TypeTick Type = iota
	TypeBar
	TypeOrder
	TypeExecution
	TypeLimit
	TypeStop
	TypeCancel
	TypeTime
	TypeModify
	TypeConfirm
	TypeRecall
	TypePosition
	TypeAccount
	TypeOrderStatus
	TypeLog
	TypeError
	TypeInit
	TypeExit
)

var typeNames = [...]string{
	TypeTick:        "tick",
	TypeBar:         "bar",
	TypeOrder:       "order",
	TypeExecution:   "execution",
	TypeLimit:       "limit",
	TypeStop:        "stop",
	TypeCancel:      "cancel",
	TypeTime:        "time",
	TypeModify:      "modify",
	TypeConfirm:     "confirm",
	TypeRecall:      "recall",
	TypePosition:    "position",
	TypeAccount:     "account",
	TypeOrderStatus: "order_status",
	TypeLog:         "log",
	TypeError:       "error",
	TypeInit:        "init",
	TypeExit:        "exit",
}

func (t Type) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return "unknown"
}

// 事件默认优先级。数值越小越先出队，Exit 永远排在最后。
const (
	PriorityExecution = 90
	PriorityStatus    = 95
	PriorityBar       = 100
	PriorityTick      = 100
	PriorityOrder     = 110
	PriorityTime      = 150
	PriorityLog       = 500
	PriorityExit      = 1 << 30
)

// Event 是队列中的最小调度单元。Sequence 由队列在入队时分配，
// 保证同 (Priority, Timestamp) 事件按到达顺序出队。
type Event struct {
	Type      Type
	Priority  int
	Topic     string
	Timestamp time.Time
	Sequence  uint64
	Payload   any
}

// New 按类型的默认优先级构造事件。
func New(t Type, topic string, ts time.Time, payload any) *Event {
	return &Event{
		Type:      t,
		Priority:  defaultPriority(t),
		Topic:     topic,
		Timestamp: ts,
		Payload:   payload,
	}
}

func defaultPriority(t Type) int {
	switch t {
	case TypeExecution:
		return PriorityExecution
	case TypeOrderStatus, TypeRecall, TypeConfirm:
		return PriorityStatus
	case TypeOrder, TypeCancel, TypeModify:
		return PriorityOrder
	case TypeTime:
		return PriorityTime
	case TypeLog, TypeError:
		return PriorityLog
	case TypeExit:
		return PriorityExit
	default:
		return PriorityBar
	}
}

// Less 定义事件的全序：(Priority, Timestamp, Sequence)。
func Less(a, b *Event) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Sequence < b.Sequence
}
