package simulator

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/jxskiss/base62"
)

// idGenerator 生成成交编号：纳秒时间戳 + 进程内序号，base62 编码
type idGenerator struct {
	seq atomic.Uint32
}

func newIDGenerator() *idGenerator {
	return &idGenerator{}
}

func (g *idGenerator) next(now time.Time) string {
	var buf [12]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(now.UnixNano()))
	binary.BigEndian.PutUint32(buf[8:], g.seq.Add(1))
	return base62.EncodeToString(buf[:])
}
