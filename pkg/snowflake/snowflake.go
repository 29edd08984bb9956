// Package snowflake 產生按時間遞增的 64 位內容 ID
//
// 位元配置：
//
//	| 1 bit 保留 | 41 bit 毫秒時間戳 | 10 bit 節點 | 12 bit 序列 |
//
// ID 越大代表越新的內容，feed 排序以此作為同分時的次要鍵。
package snowflake

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	epoch int64 = 1704067200000 // 2024-01-01 00:00:00 UTC

	nodeBits     = 10
	sequenceBits = 12

	maxNode     = (1 << nodeBits) - 1
	maxSequence = (1 << sequenceBits) - 1

	nodeShift = sequenceBits
	timeShift = sequenceBits + nodeBits
)

var (
	// ErrInvalidNode 節點編號超出範圍
	ErrInvalidNode = errors.New("node must be between 0 and 1023")

	// ErrClockMovedBackwards 系統時鐘回撥
	ErrClockMovedBackwards = errors.New("clock moved backwards")
)

// Node ID 產生器，可安全並發使用
type Node struct {
	mu       sync.Mutex
	node     int64
	sequence int64
	lastMs   int64
	now      func() time.Time
}

// NewNode 建立產生器
func NewNode(node int64) (*Node, error) {
	if node < 0 || node > maxNode {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNode, node)
	}
	return &Node{node: node, now: time.Now}, nil
}

// Next 產生下一個 ID
func (n *Node) Next() (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := n.now().UnixMilli()
	if ms < n.lastMs {
		return 0, fmt.Errorf("%w: last=%d current=%d", ErrClockMovedBackwards, n.lastMs, ms)
	}

	if ms == n.lastMs {
		n.sequence = (n.sequence + 1) & maxSequence
		if n.sequence == 0 {
			// 同一毫秒序列用盡，等到下一毫秒
			for ms <= n.lastMs {
				time.Sleep(10 * time.Microsecond)
				ms = n.now().UnixMilli()
			}
		}
	} else {
		n.sequence = 0
	}
	n.lastMs = ms

	return ((ms - epoch) << timeShift) | (n.node << nodeShift) | n.sequence, nil
}

// At 產生對應指定時間的 ID（序列固定為 0），用於回填歷史內容
func (n *Node) At(t time.Time) int64 {
	return ((t.UnixMilli() - epoch) << timeShift) | (n.node << nodeShift)
}

// Time 解析 ID 內的時間戳
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + epoch)
}
