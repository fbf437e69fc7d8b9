package util

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand"
	"time"
)

// Shuffler Fisher-Yates 洗牌。带种子时结果可复现（用于回看试卷顺序），
// 不带种子时每次随机。非并发安全，按需创建。
type Shuffler struct {
	rnd *rand.Rand
}

func NewSeededShuffler(seed int64) *Shuffler {
	return &Shuffler{rnd: rand.New(rand.NewSource(seed))}
}

func NewShuffler() *Shuffler {
	return NewSeededShuffler(NewShuffleSeed())
}

// NewShuffleSeed 生成一个新的正数种子，保存在作答记录上。
// 同一时刻开考的两份作答也不会拿到相同顺序
func NewShuffleSeed() int64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		// 系统熵源不可用时退回进程内随机数
		return rand.Int63n(math.MaxInt64-1) + 1
	}
	seed := int64(binary.BigEndian.Uint64(buf[:]) & math.MaxInt64)
	if seed == 0 {
		seed = time.Now().UnixNano() & math.MaxInt64
	}
	return seed
}

// Perm 返回 [0,n) 的一个排列
func (s *Shuffler) Perm(n int) []int {
	if n <= 0 {
		return []int{}
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

// Shuffle 返回打乱后的新切片，不修改入参
func Shuffle[T any](s *Shuffler, items []T) []T {
	out := make([]T, len(items))
	for i, j := range s.Perm(len(items)) {
		out[i] = items[j]
	}
	return out
}
